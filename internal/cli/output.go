package cli

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/goccy/go-json"
)

type tabbedWriter struct {
	tw      *tabwriter.Writer
	headers []string
	wrote   bool
}

func newTabbedWriter(w io.Writer, headers ...string) *tabbedWriter {
	return &tabbedWriter{
		tw:      tabwriter.NewWriter(w, 4, 4, 2, ' ', 0),
		headers: headers,
	}
}

func (t *tabbedWriter) Done() error {
	if !t.wrote && len(t.headers) > 0 {
		t.writeHeaders()
	}
	return t.tw.Flush()
}

func (t *tabbedWriter) writeHeaders() {
	_, _ = fmt.Fprintln(t.tw, strings.Join(t.headers, "\t"))
	t.wrote = true
}

func (t *tabbedWriter) WriteLine(parts ...any) {
	if !t.wrote && len(t.headers) > 0 {
		t.writeHeaders()
	}
	t.wrote = true
	for i, part := range parts {
		if i > 0 {
			_, _ = fmt.Fprint(t.tw, "\t")
		}
		_, _ = fmt.Fprint(t.tw, toString(part))
	}
	_, _ = fmt.Fprintln(t.tw)
}

func toString(x any) string {
	switch x := x.(type) {
	case nil:
		return "NULL"
	case string:
		return x
	case []byte:
		return string(x)
	case bool:
		if x {
			return "yes"
		}
		return "-"
	case time.Time:
		if x.IsZero() {
			return "-"
		}
		return x.Format(time.RFC3339)
	case fmt.Stringer:
		return x.String()
	default:
		return fmt.Sprint(x)
	}
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
