//
// libfeed is a client for item-oriented feeds that expose a monotonic integer ID space,
// such as the Hacker News API (https://github.com/HackerNews/API).
//

// Create client
//
//	client, err := libfeed.NewDefaultClient("https://hacker-news.firebaseio.com/v0/")
//	if err != nil {
//		log.Fatal(err)
//	}
//
// Get the current maximum item ID
//
//	max, err := client.MaxItemID(ctx)
//	if err != nil {
//		log.Fatal(err)
//	}
//
// Fetch and decode an item
//
//	raw, err := client.FetchItem(ctx, max)
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	item, err := libfeed.DecodeItem(raw)
//	if err != nil {
//		log.Fatal(err)
//	}
//
// Fetch several items concurrently
//
//	responses := []<-chan libfeed.Response{
//		client.FetchItemAsync(ctx, 8863),
//		client.FetchItemAsync(ctx, 8864),
//	}
//	for _, ch := range responses {
//		res := <-ch
//		if res.Err != nil {
//			continue
//		}
//		fmt.Println(res.ID, len(res.Body))
//	}
package libfeed
