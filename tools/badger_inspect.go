package main

import (
	"fmt"
	"livechat/internal"
	"livechat/storage"
	"os"
	"strconv"
	"strings"

	"github.com/dgraph-io/badger/v4"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/pflag"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Fatal error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		dbPath string
		prefix string
		limit  int
	)
	flagSet := pflag.NewFlagSet("badger-inspect", pflag.ContinueOnError)
	flagSet.StringVar(&dbPath, "db", "./data/badger", "path to the store badger directory")
	flagSet.StringVar(&prefix, "prefix", "messages/", "raw key prefix to scan, presence/ or messages/")
	flagSet.IntVar(&limit, "limit", 0, "maximum number of rows, 0 for all")
	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if err == pflag.ErrHelp {
			return nil
		}
		return err
	}

	db, err := openDB(dbPath)
	if err != nil {
		return fmt.Errorf("error while opening Badger: %w", err)
	}
	defer db.Close()

	entries, err := storage.Scan(db, prefix, limit)
	if err != nil {
		return err
	}

	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Path", "Key", "Timestamp", "Size", "Record"})
	table.SetAutoWrapText(false)
	table.SetAutoFormatHeaders(true)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetCenterSeparator("")
	table.SetColumnSeparator("")
	table.SetRowSeparator("")
	table.SetHeaderLine(false)
	table.SetBorder(false)
	table.SetTablePadding("\t")

	for _, entry := range entries {
		row := internal.ToInspectRow(entry)
		table.Append([]string{
			row.Path,
			row.Key,
			row.Timestamp,
			strconv.Itoa(entry.Size),
			row.Detail,
		})
	}
	table.Render()
	fmt.Printf("%d entries under %q\n", len(entries), prefix)
	return nil
}

func openDB(path string) (*badger.DB, error) {
	opts := badger.DefaultOptions(path).
		WithReadOnly(true).
		WithLogger(nil).
		WithBypassLockGuard(true)

	db, err := badger.Open(opts)
	if err != nil {
		// A store killed mid-write needs a writable open to truncate its log.
		if strings.Contains(err.Error(), "Log truncate required") {
			repairOpts := badger.DefaultOptions(path).
				WithLogger(nil).WithBypassLockGuard(true)

			db, err = badger.Open(repairOpts)
			if err != nil {
				return nil, fmt.Errorf("repair failed: %w", err)
			}
			_ = db.Close()
			return badger.Open(opts)
		}
		return nil, err
	}
	return db, nil
}
