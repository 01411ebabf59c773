package export

import "errors"

// ErrNoColumns is returned when a dataset declares no columns.
var ErrNoColumns = errors.New("dataset requires at least one column")

// Column describes one field of an exported table. Width is a relative weight used by the PDF layout.
type Column struct {
	Key   string
	Title string
	Width float64
}

// Dataset defines tabular export content. Row values are looked up by column key.
type Dataset struct {
	Title   string
	Columns []Column
	Rows    []map[string]string
}

func (d Dataset) titles() []string {
	out := make([]string, len(d.Columns))
	for i, c := range d.Columns {
		out[i] = c.Title
		if out[i] == "" {
			out[i] = c.Key
		}
	}
	return out
}
