package mosaic

import (
	"bytes"
	"encoding/binary"
	"time"
	"unicode/utf8"

	"golang.org/x/text/encoding/simplifiedchinese"
)

// HeaderSize is the fixed length of the header record. The payload block
// starts immediately after it.
const HeaderSize = 256

// Magic is the file identifier stored in the first four bytes (NUL padded).
const Magic = "MOC"

// MaxGridDim caps NX and NY. Real national mosaics are a few thousand cells
// per side; the cap keeps a hostile header from requesting a huge allocation.
const MaxGridDim = 30000

// CoordinateType is the grid coordinate system code at offset 14. Files in
// circulation carry 3 (lat/lon); the edges are read as degrees regardless.
type CoordinateType int16

// wireHeader is the byte-exact layout of the header, little-endian, no padding.
// Offsets are noted for cross-checking against format documents.
type wireHeader struct {
	Label       [4]byte  // 0
	Version     [4]byte  // 4
	FileBytes   int32    // 8
	MosaicID    int16    // 12
	Coordinate  int16    // 14
	VarName     [8]byte  // 16
	Description [64]byte // 24
	BlockPos    int32    // 88
	BlockLen    int32    // 92
	TimeZone    int32    // 96
	Year        int16    // 100
	Month       int16    // 102
	Day         int16    // 104
	Hour        int16    // 106
	Minute      int16    // 108
	Second      int16    // 110
	ObsSeconds  int32    // 112
	ObsDates    uint16   // 116
	GenDates    uint16   // 118
	GenSeconds  int32    // 120
	EdgeS       int32    // 124, 1/1000 degree
	EdgeW       int32    // 128
	EdgeN       int32    // 132
	EdgeE       int32    // 136
	CX          int32    // 140, 1/1000 degree
	CY          int32    // 144
	NX          int32    // 148
	NY          int32    // 152
	DX          int32    // 156, 1/10000 degree
	DY          int32    // 160
	Height      int16    // 164
	Compress    int16    // 166
	NumRadars   int32    // 168
	UnzipBytes  int32    // 172
	Scale       int16    // 176
	_           int16    // 178
	RegionID    [8]byte  // 180
	Units       [8]byte  // 188
	_           [60]byte // 196
}

// ObservationTime is the observation timestamp as stored, in the data clock
// given by Header.TimeZone.
type ObservationTime struct {
	Year, Month, Day     int16
	Hour, Minute, Second int16
	Seconds              int32  // redundant seconds encoding
	JulianDays           uint16 // redundant day-count encoding
}

// GenerationTime is the product processing timestamp as stored.
type GenerationTime struct {
	JulianDays uint16 // days since 1970-01-01
	Seconds    int32  // seconds into that day
}

// Header is the decoded, validated header record with physical units applied.
type Header struct {
	Magic       string
	Version     string
	FileBytes   int32
	MosaicID    int16
	Coordinate  CoordinateType
	VarName     string
	Description string
	BlockPos    int32
	BlockLen    int32
	TimeZone    int32 // seconds east of UTC: 0 = UTC, 28800 = Beijing time

	Observation ObservationTime
	Generation  GenerationTime

	// Bounding box and centre in degrees.
	EdgeSouth, EdgeWest, EdgeNorth, EdgeEast float64
	CenterX, CenterY                         float64

	NX, NY int
	DX, DY float64 // degrees per cell

	HeightCode  int16
	Compression Codec
	NumRadars   int32
	UnzipBytes  int32
	Scale       int16
	RegionID    string
	Units       string
}

// ParseHeader decodes and validates the first HeaderSize bytes of b.
// It never looks past the header.
func ParseHeader(b []byte) (*Header, error) {
	if len(b) < HeaderSize {
		return nil, &FormatError{Field: "header", Expected: HeaderSize, Actual: len(b), Err: ErrTruncated}
	}

	var w wireHeader
	if err := binary.Read(bytes.NewReader(b[:HeaderSize]), binary.LittleEndian, &w); err != nil {
		return nil, &FormatError{Field: "header", Err: ErrTruncated}
	}

	if magic := decodeText(w.Label[:]); magic != Magic {
		return nil, &FormatError{Field: "magic", Expected: Magic, Actual: magic, Err: ErrBadMagic}
	}

	h := &Header{
		Magic:       Magic,
		Version:     decodeText(w.Version[:]),
		FileBytes:   w.FileBytes,
		MosaicID:    w.MosaicID,
		Coordinate:  CoordinateType(w.Coordinate),
		VarName:     decodeText(w.VarName[:]),
		Description: decodeText(w.Description[:]),
		BlockPos:    w.BlockPos,
		BlockLen:    w.BlockLen,
		TimeZone:    w.TimeZone,
		Observation: ObservationTime{
			Year: w.Year, Month: w.Month, Day: w.Day,
			Hour: w.Hour, Minute: w.Minute, Second: w.Second,
			Seconds:    w.ObsSeconds,
			JulianDays: w.ObsDates,
		},
		Generation: GenerationTime{
			JulianDays: w.GenDates,
			Seconds:    w.GenSeconds,
		},
		EdgeSouth:   milliDegrees(w.EdgeS),
		EdgeWest:    milliDegrees(w.EdgeW),
		EdgeNorth:   milliDegrees(w.EdgeN),
		EdgeEast:    milliDegrees(w.EdgeE),
		CenterX:     milliDegrees(w.CX),
		CenterY:     milliDegrees(w.CY),
		NX:          int(w.NX),
		NY:          int(w.NY),
		DX:          float64(w.DX) / 10000,
		DY:          float64(w.DY) / 10000,
		HeightCode:  w.Height,
		Compression: Codec(w.Compress),
		NumRadars:   w.NumRadars,
		UnzipBytes:  w.UnzipBytes,
		Scale:       w.Scale,
		RegionID:    decodeText(w.RegionID[:]),
		Units:       decodeText(w.Units[:]),
	}
	if err := h.validate(); err != nil {
		return nil, err
	}
	return h, nil
}

// validate checks the fields every later stage relies on.
func (h *Header) validate() error {
	switch {
	case h.NX <= 0 || h.NX > MaxGridDim:
		return invalidField("nx", h.NX)
	case h.NY <= 0 || h.NY > MaxGridDim:
		return invalidField("ny", h.NY)
	case h.Scale <= 0:
		return invalidField("scale", h.Scale)
	case h.BlockLen < 0:
		return invalidField("blockLen", h.BlockLen)
	case h.UnzipBytes < 0:
		return invalidField("unzipBytes", h.UnzipBytes)
	}
	return nil
}

// Location returns the fixed zone of the data clock.
func (h *Header) Location() *time.Location {
	if h.TimeZone == 0 {
		return time.UTC
	}
	return time.FixedZone("", int(h.TimeZone))
}

// ObservedAt returns the observation time, or the zero time when the date
// fields are unset.
func (h *Header) ObservedAt() time.Time {
	o := h.Observation
	if o.Year == 0 {
		return time.Time{}
	}
	return time.Date(int(o.Year), time.Month(o.Month), int(o.Day),
		int(o.Hour), int(o.Minute), int(o.Second), 0, h.Location())
}

// GeneratedAt returns the product processing time, or the zero time when unset.
func (h *Header) GeneratedAt() time.Time {
	g := h.Generation
	if g.JulianDays == 0 && g.Seconds == 0 {
		return time.Time{}
	}
	return time.Date(1970, time.January, 1+int(g.JulianDays), 0, 0, int(g.Seconds), 0, h.Location())
}

// PayloadSize is the byte length a decoded payload must have: NX*NY int16 cells.
func (h *Header) PayloadSize() int64 {
	return int64(h.NX) * int64(h.NY) * 2
}

func milliDegrees(v int32) float64 {
	return float64(v) / 1000
}

// decodeText returns a fixed-width text field up to its first NUL with trailing
// blanks removed. Fields that are not valid UTF-8 are read as GB18030, which
// covers the GBK descriptions some producers write.
func decodeText(b []byte) string {
	if i := bytes.IndexByte(b, 0); i >= 0 {
		b = b[:i]
	}
	b = bytes.TrimRight(b, " ")
	if utf8.Valid(b) {
		return string(b)
	}
	out, err := simplifiedchinese.GB18030.NewDecoder().Bytes(b)
	if err != nil {
		return string(b)
	}
	return string(out)
}
