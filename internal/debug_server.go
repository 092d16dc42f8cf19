package internal

import (
	"embed"
	"fmt"
	"html/template"
	"livechat/storage"
	"net/http"
	"sort"
	"strconv"
	"strings"
)

//go:embed inspect.html
var templatesFS embed.FS

const maxInspectRows = 500

type InspectRow struct {
	Key       string
	Path      string
	Timestamp string
	Detail    string
}

// EntryLister returns the stored children under a raw key prefix.
type EntryLister func(prefix string, limit int) ([]storage.Entry, error)
type StatsProvider func() map[string]any

type PageData struct {
	Prefix string
	Items  []InspectRow
	Stats  []Stat
	Error  string
}

type Stat struct {
	Name  string
	Value any
}

// NewInspectHandler renders the stored children under ?prefix= as an html table.
func NewInspectHandler(list EntryLister, statsProvider StatsProvider, defaultPrefix string) http.Handler {
	tmpl := template.Must(template.ParseFS(templatesFS, "inspect.html"))

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		prefix := r.URL.Query().Get("prefix")
		if prefix == "" {
			prefix = defaultPrefix
		}

		data := PageData{Prefix: prefix}
		if statsProvider != nil {
			data.Stats = sortedStats(statsProvider())
		}
		entries, err := list(prefix, maxInspectRows)
		if err != nil {
			data.Error = err.Error()
		}
		for _, entry := range entries {
			data.Items = append(data.Items, ToInspectRow(entry))
		}

		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_ = tmpl.Execute(w, data)
	})
}

func ToInspectRow(entry storage.Entry) InspectRow {
	row := InspectRow{
		Key:       entry.Key,
		Path:      entry.Path,
		Timestamp: "--:--:--",
		Detail:    "Size: " + strconv.Itoa(entry.Size) + " bytes",
	}
	if !entry.At.IsZero() {
		row.Timestamp = entry.At.Format("2006-01-02 15:04:05.000")
	}
	switch {
	case entry.Err != nil:
		row.Detail = "undecodable: " + entry.Err.Error()
	case len(entry.Value) > 0:
		row.Detail = FormatRecord(entry.Value)
	}
	return row
}

// FormatRecord prints the fields of a record sorted by name.
func FormatRecord(record map[string]any) string {
	fields := make([]string, 0, len(record))
	for name, value := range record {
		fields = append(fields, fmt.Sprintf("%s=%v", name, value))
	}
	sort.Strings(fields)
	return strings.Join(fields, " ")
}

func sortedStats(stats map[string]any) []Stat {
	out := make([]Stat, 0, len(stats))
	for name, value := range stats {
		out = append(out, Stat{Name: name, Value: value})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
