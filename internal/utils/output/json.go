package output

import (
	"encoding/json"
	"io"

	"github.com/law-makers/cvpress/internal/engine/extract"
	"github.com/law-makers/cvpress/pkg/models"
)

// WriteJSON writes records in the scrape endpoint's response shape.
func WriteJSON(w io.Writer, records []extract.Record, indent bool) error {
	resp := models.ScrapeResponse{Success: true, TotalJobs: len(records), Jobs: make([]models.Job, len(records))}
	for i, r := range records {
		resp.Jobs[i] = models.Job{ID: r.ID, Content: r.Content}
	}

	enc := json.NewEncoder(w)
	if indent {
		enc.SetIndent("", "  ")
	}
	return enc.Encode(resp)
}
