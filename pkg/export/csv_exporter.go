package export

import (
	"bytes"
	"encoding/csv"
	"fmt"
)

// Dataset is one tabular block of an export: an ordered column list plus
// rows keyed by column name, so builders can fill cells in any order.
type Dataset struct {
	Columns []string
	Rows    []map[string]string
}

// RenderCSV encodes a dataset as UTF-8 CSV with a header row. Cells missing
// from a row render empty.
func RenderCSV(data Dataset) ([]byte, error) {
	if len(data.Columns) == 0 {
		return nil, fmt.Errorf("csv export requires at least one column")
	}

	buf := &bytes.Buffer{}
	w := csv.NewWriter(buf)
	if err := w.Write(data.Columns); err != nil {
		return nil, fmt.Errorf("write csv header: %w", err)
	}
	cells := make([]string, len(data.Columns))
	for _, row := range data.Rows {
		for i, column := range data.Columns {
			cells[i] = row[column]
		}
		if err := w.Write(cells); err != nil {
			return nil, fmt.Errorf("write csv row: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, fmt.Errorf("flush csv: %w", err)
	}
	return buf.Bytes(), nil
}
