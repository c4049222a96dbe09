// Package mosaic decodes MOC radar mosaic files into georeferenced grids.
//
// # File Layout
//
// A MOC file is a 256-byte little-endian header followed by one payload block:
//
//	0..255              header record (see wireHeader for every offset)
//	256..256+BlockLen   payload, raw or compressed per the Compression field
//
// The payload decodes to NY rows of NX signed 16-bit cells, row-major,
// northernmost row first. Dividing a cell by Scale gives the physical value
// (composite reflectivity products use Scale 10 and dBZ units).
//
// # Unit Conventions
//
//	Edges, centre:  1/1000 degree integers  → degrees
//	DX, DY:         1/10000 degree integers → degrees
//	TimeZone:       seconds east of UTC (0 = UTC, 28800 = Beijing time)
//
// Coordinate edges are recomputed by linear interpolation between the bounding
// box edges rather than accumulated from DX/DY, so the outer edges always match
// the box exactly.
//
// # Compression
//
//	0  none
//	1  bzip2 (supported)
//	2  zip   (declared, unsupported)
//	3  lzw   (declared, unsupported)
//
// Any other value is a format error. The numbering is part of the wire format.
//
// # Errors
//
// Failures are typed: [*FormatError] for malformed input, [*UnsupportedError]
// for declared-but-unimplemented codecs and [*IOError] for stream failures.
// The sentinel causes (ErrBadMagic, ErrTruncated, ...) are matched with
// errors.Is. The package never logs and keeps no state between calls, so
// concurrent decodes of independent streams are safe.
package mosaic
