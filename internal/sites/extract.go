package sites

import (
	"errors"
	"fmt"
)

var (
	ErrUnsupported = errors.New("unsupported site")
	ErrNotFound    = errors.New("price element not found")
	ErrAmbiguous   = errors.New("more than one price element")
	ErrParse       = errors.New("unparsable price text")
)

// Page is a loaded document the extractors can query. Text must return
// ErrNotFound when nothing matches and ErrAmbiguous when more than one
// element does.
type Page interface {
	Text(selector string) (string, error)
}

// Extract reads the price of a site's product page.
func Extract(s Site, page Page) (int, error) {
	if !s.Valid() {
		return 0, fmt.Errorf("%w: %q", ErrUnsupported, s.String())
	}

	text, err := page.Text(s.Selector())
	if err != nil {
		return 0, fmt.Errorf("%s: %w", s, err)
	}

	price, err := ParsePrice(s, text)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", s, err)
	}

	return price, nil
}

// ExtractPrice is Extract with every failure collapsed into a zero price.
func ExtractPrice(s Site, page Page) int {
	price, err := Extract(s, page)
	if err != nil {
		return 0
	}
	return price
}
