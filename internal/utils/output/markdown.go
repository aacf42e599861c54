package output

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/law-makers/cvpress/internal/engine/extract"
)

// WriteMarkdown writes each record as a numbered section under title.
// Record content is written as is; scrape with the markdown format to get
// converted markup.
func WriteMarkdown(w io.Writer, title string, records []extract.Record) error {
	bw := bufio.NewWriter(w)
	fmt.Fprintf(bw, "# %s (%d)\n", title, len(records))
	for _, r := range records {
		fmt.Fprintf(bw, "\n## %d\n\n%s\n", r.ID, strings.TrimSpace(r.Content))
	}
	return bw.Flush()
}
