package scan

import "strings"

// OperationalStatus is the provider's business_status value for places
// that are open for business.
const OperationalStatus = "OPERATIONAL"

// Filter decides which place details a scan keeps. Nil thresholds mean
// the corresponding check is not applied.
type Filter struct {
	MinRating  *float64
	MinReviews *int
}

// Accepts reports whether the details pass the filter. A place must be
// operational; when a minimum is configured, a missing rating or review
// count fails the check rather than exempting the place.
func (f Filter) Accepts(d PlaceDetails) bool {
	if !strings.EqualFold(d.BusinessStatus, OperationalStatus) {
		return false
	}
	if f.MinRating != nil {
		if d.Rating == nil || *d.Rating < *f.MinRating {
			return false
		}
	}
	if f.MinReviews != nil {
		if d.ReviewCount == nil || *d.ReviewCount < *f.MinReviews {
			return false
		}
	}
	return true
}

// HasWebsite reports whether the website string counts as a published
// website: non-empty after trimming surrounding whitespace.
func HasWebsite(website string) bool {
	return strings.TrimSpace(website) != ""
}
