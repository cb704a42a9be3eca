package main

import (
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/asdine/storm/v3"
	"github.com/mdouchement/feedmirror/internal/database"
	"github.com/mdouchement/feedmirror/pkg/libfeed"
	"github.com/mdouchement/feedmirror/pkg/stormsql"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"go.etcd.io/bbolt"
)

const lockTimeout = time.Second

// go run tools/console/main.go feedmirror.db " SELECT count(*) FROM items WHERE who = 'pg' AND time > '2023-01-01 20:52:55';  "

// fields maps the relational column names to the item fields.
var fields = map[string]string{
	"id":      "ID",
	"deleted": "Deleted",
	"type":    "Type",
	"who":     "Author",
	"by":      "Author",
	"time":    "Time",
	"dead":    "Dead",
	"kids":    "Kids",
	"title":   "Title",
	"content": "Text",
	"text":    "Text",
	"score":   "Score",
	"url":     "URL",
	"parent":  "Parent",
}

func main() {
	var format string

	c := &cobra.Command{
		Use:   "console <file.db> <select>",
		Short: "SQL console for feedmirror file database",
		Args:  cobra.ExactArgs(2),
		RunE: func(_ *cobra.Command, args []string) error {
			//
			//
			sc, err := stormsql.ParseSelect(args[1], fields, "Time")
			if err != nil {
				return err
			}
			if sc.Tablename != "items" {
				return errors.Errorf("unknown tablename: %s", sc.Tablename)
			}

			//
			//
			db, err := open(args[0], lockTimeout)
			if err != nil {
				return err
			}
			defer db.Close()

			//
			// Prepare request
			//

			query := db.Select(sc.Matcher)
			if sc.Skip > 0 {
				query.Skip(sc.Skip)
			}
			if sc.Limit > 0 {
				query.Limit(sc.Limit)
			}
			if len(sc.OrderBy) > 0 {
				query.OrderBy(sc.OrderBy...)
				if sc.OrderByReversed {
					query.Reverse()
				}
			}

			// Execute

			if sc.Count {
				return count(query)
			}

			return list(query, format)
		},
	}
	c.Flags().StringVarP(&format, "format", "f", "json", "Output format (json, sql)")

	if err := c.Execute(); err != nil {
		log.Fatalf("%+v", err)
	}
}

// open opens the database read-only, giving up when another process holds its lock for longer than timeout.
func open(path string, timeout time.Duration) (*storm.DB, error) {
	db, err := storm.Open(path, database.StormCodec, storm.BoltOptions(0600, &bbolt.Options{
		Timeout:  timeout,
		ReadOnly: true,
	}))
	return db, errors.Wrap(err, "could not open database")
}

func count(query storm.Query) error {
	n, err := query.Count(&libfeed.Item{})
	if err != nil {
		return errors.Wrap(err, "could not perform query")
	}

	fmt.Println("Count:", n)

	return nil
}

func list(query storm.Query, format string) error {
	var records []*libfeed.Item

	err := query.Find(&records)
	if err != nil && !errors.Is(err, storm.ErrNotFound) {
		return errors.Wrap(err, "could not perform query")
	}

	switch format {
	case "sql":
		for _, record := range records {
			fmt.Println(database.SQLValues(record))
		}
	case "json":
		if records == nil {
			records = []*libfeed.Item{}
		}
		jsondump(records)
	default:
		return errors.Errorf("unknown format: %s", format)
	}

	return nil
}

func jsondump(v any) {
	d, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		panic(err)
	}
	fmt.Println(string(d))
}
