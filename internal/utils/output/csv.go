package output

import (
	"encoding/csv"
	"io"
	"strconv"

	"github.com/law-makers/cvpress/internal/engine/extract"
)

// WriteCSV writes one id,content row per record under a header row.
func WriteCSV(w io.Writer, records []extract.Record) error {
	writer := csv.NewWriter(w)
	if err := writer.Write([]string{"id", "content"}); err != nil {
		return err
	}
	for _, r := range records {
		if err := writer.Write([]string{strconv.Itoa(r.ID), r.Content}); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}
