// Package scan defines core types shared across subsystems.
package scan

import (
	"fmt"
	"time"
)

// Status represents the lifecycle state of a scan job.
type Status string

// Scan status values persisted in the store. A scan moves
// Queued -> Running -> {Completed, Failed} and never leaves a
// terminal state.
const (
	StatusQueued    Status = "queued"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// IsTerminal reports whether the status admits no further transition.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Definition captures the immutable input of a scan: where to look and
// what to keep. It is fixed at submission time.
type Definition struct {
	State      string   `json:"state"`
	Cities     []string `json:"cities"`
	Categories []string `json:"categories"`
	MinRating  *float64 `json:"min_rating,omitempty"`
	MinReviews *int     `json:"min_reviews,omitempty"`
}

// Counters tracks aggregate progress per scan.
type Counters struct {
	Processed      int `json:"processed"`
	WithWebsite    int `json:"with_website"`
	WithoutWebsite int `json:"without_website"`
}

// Scan is the mutable job record. The worker owns it while Running;
// anyone may read it at any time.
type Scan struct {
	ID           string     `json:"id"`
	Definition   Definition `json:"definition"`
	Status       Status     `json:"status"`
	Counters     Counters   `json:"counters"`
	ErrorMessage string     `json:"error_message,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// Filter returns the acceptance predicate derived from the definition.
func (s Scan) Filter() Filter {
	return Filter{MinRating: s.Definition.MinRating, MinReviews: s.Definition.MinReviews}
}

// Business is a discovered place. It is a shared fact independent of any
// single scan: the provider's place id is the stable join key and there
// is exactly one row per place id.
type Business struct {
	ID               int64     `json:"id"`
	PlaceID          string    `json:"place_id"`
	Name             string    `json:"name"`
	FormattedAddress string    `json:"formatted_address,omitempty"`
	City             string    `json:"city,omitempty"`
	State            string    `json:"state,omitempty"`
	Country          string    `json:"country,omitempty"`
	Latitude         *float64  `json:"latitude,omitempty"`
	Longitude        *float64  `json:"longitude,omitempty"`
	Phone            string    `json:"phone,omitempty"`
	Website          string    `json:"website,omitempty"`
	Rating           *float64  `json:"rating,omitempty"`
	ReviewCount      *int      `json:"user_ratings_total,omitempty"`
	BusinessStatus   string    `json:"business_status,omitempty"`
	Categories       []string  `json:"categories,omitempty"`
	FirstSeenScanID  string    `json:"first_seen_scan_id,omitempty"`
	CreatedAt        time.Time `json:"created_at"`
}

// MapsURL returns the Google Maps link for the business.
func (b Business) MapsURL() string {
	return fmt.Sprintf("https://www.google.com/maps/place/?q=place_id:%s", b.PlaceID)
}

// Result associates a scan with a business it observed. HadWebsite is a
// snapshot taken at observation time and is never edited afterward.
type Result struct {
	ScanID     string    `json:"scan_id"`
	BusinessID int64     `json:"business_id"`
	HadWebsite bool      `json:"had_website_at_scan_time"`
	CreatedAt  time.Time `json:"created_at"`
}

// PlaceSummary is the lightweight candidate returned by a text search,
// before the full detail fetch.
type PlaceSummary struct {
	PlaceID string `json:"place_id"`
	Name    string `json:"name"`
}

// AddressComponent is one structured piece of a place's address.
type AddressComponent struct {
	LongName  string   `json:"long_name"`
	ShortName string   `json:"short_name"`
	Types     []string `json:"types"`
}

// LatLng is a geographic coordinate pair.
type LatLng struct {
	Lat *float64 `json:"lat,omitempty"`
	Lng *float64 `json:"lng,omitempty"`
}

// Geometry wraps the location of a place detail record.
type Geometry struct {
	Location LatLng `json:"location"`
}

// PlaceDetails is the full field set for one place id.
type PlaceDetails struct {
	PlaceID           string             `json:"place_id"`
	Name              string             `json:"name"`
	FormattedAddress  string             `json:"formatted_address"`
	Geometry          Geometry           `json:"geometry"`
	BusinessStatus    string             `json:"business_status"`
	Phone             string             `json:"formatted_phone_number"`
	Website           string             `json:"website"`
	Rating            *float64           `json:"rating"`
	ReviewCount       *int               `json:"user_ratings_total"`
	Types             []string           `json:"types"`
	AddressComponents []AddressComponent `json:"address_components"`
}

// Location is the parsed city/state/country of a detail record. Missing
// address components leave the corresponding field empty.
type Location struct {
	City    string
	State   string
	Country string
}
