// Package output writes extracted records to files.
package output

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/law-makers/cvpress/internal/engine/extract"
)

// Save writes records to path in the format implied by its extension:
// .csv, .md/.markdown, anything else JSON.
func Save(path string, records []extract.Record) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return err
		}
	}

	f, err := os.Create(path)
	if err != nil {
		return err
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		err = WriteCSV(f, records)
	case ".md", ".markdown":
		err = WriteMarkdown(f, "Jobs", records)
	default:
		err = WriteJSON(f, records, true)
	}
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}
