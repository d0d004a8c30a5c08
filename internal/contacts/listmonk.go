package contacts

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
)

// TransformForListmonk reshapes a processed CSV into listmonk's subscriber
// import format: email, name, attributes, where attributes is a JSON object
// of every remaining column. The output carries no trailing newline, which
// is what listmonk's importer expects.
func TransformForListmonk(r io.Reader, w io.Writer) error {
	rows, err := ReadCSV(r)
	if err != nil {
		return err
	}

	var buf bytes.Buffer
	cw := csv.NewWriter(&buf)
	if err := cw.Write([]string{"email", "name", "attributes"}); err != nil {
		return fmt.Errorf("write listmonk header: %w", err)
	}

	for _, row := range rows {
		attrs := make(map[string]string)
		for k, v := range row {
			if k == "email" || k == "name" {
				continue
			}
			attrs[k] = v
		}
		encoded, err := json.Marshal(attrs)
		if err != nil {
			return fmt.Errorf("encode attributes: %w", err)
		}
		if err := cw.Write([]string{row["email"], row["name"], string(encoded)}); err != nil {
			return fmt.Errorf("write listmonk row: %w", err)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("flush listmonk csv: %w", err)
	}

	_, err = w.Write(bytes.TrimRight(buf.Bytes(), "\n"))
	return err
}
