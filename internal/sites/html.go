package sites

import (
	"fmt"
	"io"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// HTMLPage is a Page over a static HTML document, such as a saved product
// page or the content of a rendered browser tab.
type HTMLPage struct {
	doc *goquery.Document
}

func NewHTMLPage(r io.Reader) (*HTMLPage, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, fmt.Errorf("failed to parse HTML: %w", err)
	}
	return &HTMLPage{doc: doc}, nil
}

func NewHTMLPageFromString(html string) (*HTMLPage, error) {
	return NewHTMLPage(strings.NewReader(html))
}

func (p *HTMLPage) Text(selector string) (string, error) {
	sel := p.doc.Find(selector)
	switch sel.Length() {
	case 0:
		return "", fmt.Errorf("%w: %s", ErrNotFound, selector)
	case 1:
		return strings.TrimSpace(sel.Text()), nil
	default:
		return "", fmt.Errorf("%w: %d matches for %s", ErrAmbiguous, sel.Length(), selector)
	}
}
