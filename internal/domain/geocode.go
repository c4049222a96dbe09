package domain

import (
	"context"
	"log/slog"
)

// EnrichWithGeocoding names the place under the product centre.
// If geocoder is nil or geocoding fails, the product is returned with
// GeoSource set accordingly (graceful degradation).
func EnrichWithGeocoding(ctx context.Context, p MosaicProduct, geocoder Geocoder, logger *slog.Logger) MosaicProduct {
	if geocoder == nil {
		return p
	}

	if p.Center.Lat == 0 && p.Center.Lon == 0 {
		p.GeoSource = "original"
		return p
	}

	result, err := geocoder.ReverseGeocode(ctx, p.Center.Lat, p.Center.Lon)
	if err != nil {
		logger.Warn("reverse geocoding failed",
			"product_id", p.ID,
			"lat", p.Center.Lat,
			"lon", p.Center.Lon,
			"error", err,
		)
		p.GeoSource = "failed"
		return p
	}
	if result.FormattedAddress == "" {
		p.GeoSource = "original"
		return p
	}

	p.FormattedAddress = result.FormattedAddress
	p.PlaceName = result.PlaceName
	p.GeoConfidence = result.Confidence
	p.GeoSource = "reverse"
	return p
}
