// Package domain models decoded radar mosaic products.
//
// # Data Source
//
// Mosaic files are produced by the national radar network every few minutes
// as MOC binaries (see package mosaic for the byte layout). An upstream
// collector publishes each file unmodified as one Kafka message; the message
// value is the whole file and the optional "filename" header carries the
// original file name.
//
// # Product Conventions
//
// Coordinates:
//
//	Bounding box and centre are WGS-84 degrees. Grid rows run north to south,
//	columns west to east. The product centre is the header centre point, or
//	the box midpoint when the header leaves it at zero.
//
// Time:
//
//	ObservedAt is the observation time in the data clock of the file (UTC or a
//	fixed offset such as +08:00). TimeBucket truncates it to the hour in UTC.
//
// Values:
//
//	Statistics cover only cells at or above the no-data threshold (5.0 in
//	physical units). A product with no valid cells has zero statistics and no
//	intensity.
//
// Intensity classification:
//
//	Derived from the maximum value of reflectivity products (units dBZ).
//	Other variables carry no intensity:
//
//	  <35 dBZ light | <45 dBZ moderate | <55 dBZ heavy | ≥55 dBZ extreme
//
//	Heavy and extreme products are alert-worthy (see [IsAlert]).
//
// # ID Generation
//
// Product IDs are deterministic SHA-256 hashes of
// variable|region|observed-at|bounding box|dimensions. Redelivered or replayed
// files map to the same ID, which the catalog uses to drop duplicates
// (ON CONFLICT DO NOTHING). See [generateID].
package domain
