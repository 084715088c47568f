package scan

import "slices"

// Address component tags used by the provider.
const (
	componentLocality  = "locality"
	componentAdminArea = "administrative_area_level_1"
	componentCountry   = "country"
)

// ExtractLocation parses city, state, and country out of a detail
// record's address components. A missing tag leaves the field empty;
// this never fails.
func ExtractLocation(d PlaceDetails) Location {
	var loc Location
	for _, comp := range d.AddressComponents {
		switch {
		case loc.City == "" && slices.Contains(comp.Types, componentLocality):
			loc.City = comp.LongName
		case loc.State == "" && slices.Contains(comp.Types, componentAdminArea):
			loc.State = comp.ShortName
		case loc.Country == "" && slices.Contains(comp.Types, componentCountry):
			loc.Country = comp.ShortName
		}
	}
	return loc
}
