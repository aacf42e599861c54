// internal/engine/extract/markdown.go
package extract

import (
	"fmt"
	"strings"

	md "github.com/JohannesKaufmann/html-to-markdown"
	"github.com/JohannesKaufmann/html-to-markdown/plugin"
	"github.com/PuerkitoBio/goquery"
	urlutil "github.com/law-makers/cvpress/internal/utils/url"
	"golang.org/x/net/html"
)

type converter struct {
	md *md.Converter
}

func newConverter(baseURL string) *converter {
	conv := md.NewConverter(md.DomainFromURL(baseURL), true, nil)
	conv.Use(plugin.GitHubFlavored())

	// absolute links, so records stay meaningful outside the page
	conv.AddRules(md.Rule{
		Filter: []string{"a"},
		Replacement: func(content string, selec *goquery.Selection, opt *md.Options) *string {
			href, exists := selec.Attr("href")
			if !exists {
				return nil
			}
			text := strings.TrimSpace(content)
			if text == "" {
				text = strings.TrimSpace(selec.Text())
			}
			str := fmt.Sprintf("[%s](%s)", text, urlutil.ResolveURL(baseURL, href))
			return &str
		},
	})

	return &converter{md: conv}
}

func (c *converter) convert(sel *goquery.Selection) (string, error) {
	cleaned, err := cleanHTML(sel)
	if err != nil {
		return "", err
	}
	out, err := c.md.ConvertString(cleaned)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(out), nil
}

// cleanHTML returns the element's markup with scripts, styles, form
// controls and all attributes except link and image targets removed.
func cleanHTML(sel *goquery.Selection) (string, error) {
	raw, err := goquery.OuterHtml(sel)
	if err != nil {
		return "", err
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(raw))
	if err != nil {
		return "", err
	}

	body := doc.Find("body")
	body.Find("script, style, link, meta, noscript, iframe, svg, form, input, button, select, textarea, canvas").Remove()

	body.Find("*").Each(func(_ int, s *goquery.Selection) {
		node := s.Get(0)
		kept := node.Attr[:0]
		for _, attr := range node.Attr {
			if keepAttr(node, attr) {
				kept = append(kept, attr)
			}
		}
		node.Attr = kept
	})

	if strings.TrimSpace(body.Text()) == "" {
		return "", nil
	}
	out, err := body.Html()
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(out), nil
}

func keepAttr(node *html.Node, attr html.Attribute) bool {
	switch node.Data {
	case "a":
		return attr.Key == "href" || attr.Key == "title"
	case "img":
		return attr.Key == "src" || attr.Key == "alt"
	}
	return false
}
