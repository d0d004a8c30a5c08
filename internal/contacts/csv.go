package contacts

import (
	"encoding/csv"
	"fmt"
	"io"
	"strings"
)

// Record is one input row keyed by header field name. The pipeline treats it as an
// opaque payload; an email and a name field are expected but not enforced
// here, since the generation prompt carries the whole row.
type Record map[string]string

// ReadCSV parses contact rows from r. The first row is the header; short
// rows are padded with empty values by field omission.
func ReadCSV(r io.Reader) ([]Record, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if err == io.EOF {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read csv header: %w", err)
	}
	for i := range header {
		header[i] = strings.TrimSpace(header[i])
	}

	var out []Record
	for {
		row, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read csv row %d: %w", len(out)+2, err)
		}
		rec := Record{}
		for i, name := range header {
			if name == "" {
				continue
			}
			if i < len(row) {
				rec[name] = row[i]
			}
		}
		out = append(out, rec)
	}
	return out, nil
}
