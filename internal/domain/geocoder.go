package domain

import "context"

// GeocodingResult names the place a provider matched for a coordinate.
// Feature is the centre of that place, which is generally not the queried point.
type GeocodingResult struct {
	FormattedAddress string
	PlaceName        string
	Feature          Geo
	Confidence       float64 // provider relevance, 0 to 1
}

// Geocoder names the place under a product centre.
type Geocoder interface {
	ReverseGeocode(ctx context.Context, lat, lon float64) (GeocodingResult, error)
}
