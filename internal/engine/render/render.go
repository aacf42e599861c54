// internal/engine/render/render.go
package render

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/law-makers/cvpress/internal/engine"
	"github.com/rs/zerolog"
)

// ContentTypePDF is the media type of every artifact.
const ContentTypePDF = "application/pdf"

// PageFormat is a named paper size.
type PageFormat struct {
	Name   string
	Width  float64 // inches
	Height float64 // inches
}

// Paper sizes accepted by ParseFormat.
var (
	A3      = PageFormat{Name: "a3", Width: 11.69, Height: 16.54}
	A4      = PageFormat{Name: "a4", Width: 8.27, Height: 11.69}
	A5      = PageFormat{Name: "a5", Width: 5.83, Height: 8.27}
	Letter  = PageFormat{Name: "letter", Width: 8.5, Height: 11}
	Legal   = PageFormat{Name: "legal", Width: 8.5, Height: 14}
	Tabloid = PageFormat{Name: "tabloid", Width: 11, Height: 17}
)

var formats = map[string]PageFormat{
	A3.Name:      A3,
	A4.Name:      A4,
	A5.Name:      A5,
	Letter.Name:  Letter,
	Legal.Name:   Legal,
	Tabloid.Name: Tabloid,
}

// ParseFormat looks up a paper size by name; "" is A4.
func ParseFormat(name string) (PageFormat, error) {
	key := strings.ToLower(strings.TrimSpace(name))
	if key == "" {
		return A4, nil
	}
	f, ok := formats[key]
	if !ok {
		return PageFormat{}, engine.NewEngineError(engine.ErrCodeConfiguration,
			fmt.Sprintf("unsupported page format %q", name), nil)
	}
	return f, nil
}

// Artifact is one rendered document. It lives in memory for the duration
// of the request and is never written to disk by the renderer.
type Artifact struct {
	Data        []byte
	ContentType string
	Filename    string
	Format      PageFormat
}

// Size returns the artifact length in bytes.
func (a *Artifact) Size() int {
	return len(a.Data)
}

// WriteTo streams the document to w.
func (a *Artifact) WriteTo(w io.Writer) (int64, error) {
	n, err := w.Write(a.Data)
	return int64(n), err
}

// ServeHTTP sends the artifact as a download. A client that disconnects
// mid-transfer is logged; the status line has already gone out.
func (a *Artifact) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", a.ContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", a.Filename))
	w.Header().Set("Content-Length", fmt.Sprintf("%d", len(a.Data)))
	w.WriteHeader(http.StatusOK)
	if n, err := a.WriteTo(w); err != nil {
		zerolog.Ctx(r.Context()).Warn().
			Err(err).
			Int64("written", n).
			Int("size", a.Size()).
			Str("filename", a.Filename).
			Msg("Artifact download interrupted")
	}
}

// Options controls a render.
type Options struct {
	Format          PageFormat
	Landscape       bool
	PrintBackground bool
	Filename        string
}

// Render claims s and prints it. The page's readiness condition must
// already hold; a page that is not ready is refused with NOT_READY rather
// than printed blank.
func Render(ctx context.Context, s *engine.Session, opts Options) (*Artifact, error) {
	if opts.Format.Width <= 0 || opts.Format.Height <= 0 {
		opts.Format = A4
	}
	if !s.Ready() {
		return nil, engine.NewEngineError(engine.ErrCodeNotReady, "refusing to render before readiness", engine.ErrNotReady)
	}
	if err := s.Claim("renderer"); err != nil {
		return nil, err
	}

	data, err := s.PrintToPDF(ctx, engine.PDFOptions{
		PaperWidth:      opts.Format.Width,
		PaperHeight:     opts.Format.Height,
		Landscape:       opts.Landscape,
		PrintBackground: opts.PrintBackground,
	})
	if err != nil {
		if engine.CodeOf(err) != "" {
			return nil, err
		}
		return nil, engine.NewEngineError(engine.ErrCodeRender, "print to PDF failed", err)
	}
	if len(data) == 0 {
		return nil, engine.NewEngineError(engine.ErrCodeRender, "browser returned an empty document", nil)
	}

	filename := opts.Filename
	if filename == "" {
		filename = "export.pdf"
	}

	s.Logger().Info().
		Str("format", opts.Format.Name).
		Int("bytes", len(data)).
		Msg("Document rendered")

	return &Artifact{
		Data:        data,
		ContentType: ContentTypePDF,
		Filename:    filename,
		Format:      opts.Format,
	}, nil
}
