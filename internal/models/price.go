package models

import (
	"time"
)

// Failure names the reason a price could not be determined.
type Failure string

const (
	FailureNone            Failure = ""
	FailureUnsupportedSite Failure = "unsupported_site"
	FailureNavigation      Failure = "navigation_error"
	FailureNotFound        Failure = "not_found"
	FailureParse           Failure = "parse_error"
)

// PriceRequest is one product page to price. Field names on the wire match
// the ones the laptop catalogue frontend already sends.
type PriceRequest struct {
	URL          string `json:"laptoplink" yaml:"laptoplink"`
	Company      string `json:"company" yaml:"company"`
	IsExactMatch bool   `json:"isExactMatch" yaml:"isExactMatch"`
}

// PriceResult is a PriceRequest annotated with the extracted price.
//
// Price is 0 whenever Found is false. A genuine zero price is reported with
// Found set to true.
type PriceResult struct {
	PriceRequest
	Price     int       `json:"price"`
	Found     bool      `json:"found"`
	Failure   Failure   `json:"failure,omitempty"`
	FetchedAt time.Time `json:"fetchedAt"`
}

func NewPriceRequest(url, company string, exact bool) PriceRequest {
	return PriceRequest{
		URL:          url,
		Company:      company,
		IsExactMatch: exact,
	}
}

// Priced builds a successful result for the request.
func (r PriceRequest) Priced(price int, at time.Time) PriceResult {
	return PriceResult{
		PriceRequest: r,
		Price:        price,
		Found:        true,
		FetchedAt:    at,
	}
}

// Failed builds a result with the zero price sentinel.
func (r PriceRequest) Failed(reason Failure, at time.Time) PriceResult {
	return PriceResult{
		PriceRequest: r,
		Failure:      reason,
		FetchedAt:    at,
	}
}

func (r *PriceResult) Succeeded() bool {
	return r.Found && r.Failure == FailureNone
}
