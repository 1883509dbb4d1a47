// Package sites holds the fixed set of shops whose product pages we know how
// to read, together with the markup assumptions for each of them.
//
// Selectors here break whenever a shop redesigns its product page. Check a
// saved copy of the page with `price-scraper extract` before changing one.
package sites

import (
	"strings"
)

type Site int

const (
	Alta Site = iota + 1
	Zoommer
	GamingLaptops
	EE
	Veli
)

var all = []Site{Alta, Zoommer, GamingLaptops, EE, Veli}

// All returns every supported site in declaration order.
func All() []Site {
	out := make([]Site, len(all))
	copy(out, all)
	return out
}

// Parse resolves a site identifier such as "gaming-laptops". Unknown
// identifiers report false rather than an error.
func Parse(id string) (Site, bool) {
	id = strings.ToLower(strings.TrimSpace(id))
	for _, s := range all {
		if s.String() == id {
			return s, true
		}
	}
	return 0, false
}

func (s Site) String() string {
	switch s {
	case Alta:
		return "alta"
	case Zoommer:
		return "zoommer"
	case GamingLaptops:
		return "gaming-laptops"
	case EE:
		return "ee"
	case Veli:
		return "veli"
	default:
		return "unknown"
	}
}

// Domain is the shop's host, used for listings and URL sanity checks.
func (s Site) Domain() string {
	switch s {
	case Alta:
		return "alta.ge"
	case Zoommer:
		return "zoommer.ge"
	case GamingLaptops:
		return "gaming-laptops.ge"
	case EE:
		return "ee.ge"
	case Veli:
		return "veli.store"
	default:
		return ""
	}
}

// Selector is the CSS selector of the element holding the current price.
func (s Site) Selector() string {
	switch s {
	case Alta:
		return ".ty-price-num"
	case Zoommer:
		return "h4.sc-a6289b29-6"
	case GamingLaptops:
		return "span.woocommerce-Price-amount.amount bdi"
	case EE:
		return "span.realPriceSectione"
	case Veli:
		return "h3.price"
	default:
		return ""
	}
}

// Valid reports whether s is one of the supported sites.
func (s Site) Valid() bool {
	return s >= Alta && s <= Veli
}

// MatchesURL reports whether rawURL points at the site's domain.
func (s Site) MatchesURL(rawURL string) bool {
	domain := s.Domain()
	if domain == "" {
		return false
	}
	return strings.Contains(strings.ToLower(rawURL), domain)
}
