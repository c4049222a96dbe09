// Package mosaictest builds synthetic MOC files for tests. Only the
// uncompressed layout is produced; compressed fixtures live in testdata.
package mosaictest

import (
	"encoding/binary"
)

// Fixture describes a synthetic mosaic. Edge and centre fields are in
// 1/1000 degree and DX/DY in 1/10000 degree, exactly as stored.
type Fixture struct {
	Magic       string
	Version     string
	VarName     string
	Description string
	RegionID    string
	Units       string

	MosaicID   int16
	Coordinate int16
	TimeZone   int32

	Year, Month, Day, Hour, Minute, Second int16
	GenDates                               uint16
	GenSeconds                             int32

	EdgeS, EdgeW, EdgeN, EdgeE int32
	CX, CY                     int32
	NX, NY                     int32
	DX, DY                     int32

	Compression int16
	NumRadars   int32
	UnzipBytes  int32
	Scale       int16

	// Raw holds NY*NX cells row-major. Payload, when non-nil, replaces the
	// encoded cells verbatim (for compressed or deliberately broken blocks).
	Raw     []int16
	Payload []byte

	// BlockLen overrides the declared block length when non-zero.
	BlockLen int32
}

// Composite returns a valid 2×2 uncompressed composite reflectivity fixture:
// box 100E–101E, 29N–30N, Scale 10, raw cells [[50, 60], [4, 100]].
func Composite() Fixture {
	return Fixture{
		Magic:       "MOC",
		Version:     "1.0",
		VarName:     "CR",
		Description: "Composite Reflectivity mosaic",
		RegionID:    "ACHN",
		Units:       "dBZ",
		MosaicID:    1,
		Coordinate:  3,
		TimeZone:    0,
		Year:        2024, Month: 4, Day: 26, Hour: 15, Minute: 6, Second: 0,
		EdgeS: 29000, EdgeW: 100000, EdgeN: 30000, EdgeE: 101000,
		CX: 100500, CY: 29500,
		NX: 2, NY: 2,
		DX: 5000, DY: 5000,
		NumRadars: 3,
		Scale:     10,
		Raw:       []int16{50, 60, 4, 100},
	}
}

// Block returns the payload block the fixture will carry.
func (f Fixture) Block() []byte {
	if f.Payload != nil {
		return f.Payload
	}
	b := make([]byte, 2*len(f.Raw))
	for i, v := range f.Raw {
		binary.LittleEndian.PutUint16(b[2*i:], uint16(v))
	}
	return b
}

// Header returns the 256-byte header record.
func (f Fixture) Header() []byte {
	block := f.Block()
	blockLen := f.BlockLen
	if blockLen == 0 {
		blockLen = int32(len(block))
	}

	h := make([]byte, 256)
	le := binary.LittleEndian
	copy(h[0:4], f.Magic)
	copy(h[4:8], f.Version)
	le.PutUint32(h[8:], uint32(256+len(block)))
	le.PutUint16(h[12:], uint16(f.MosaicID))
	le.PutUint16(h[14:], uint16(f.Coordinate))
	copy(h[16:24], f.VarName)
	copy(h[24:88], f.Description)
	le.PutUint32(h[88:], 256)
	le.PutUint32(h[92:], uint32(blockLen))
	le.PutUint32(h[96:], uint32(f.TimeZone))
	le.PutUint16(h[100:], uint16(f.Year))
	le.PutUint16(h[102:], uint16(f.Month))
	le.PutUint16(h[104:], uint16(f.Day))
	le.PutUint16(h[106:], uint16(f.Hour))
	le.PutUint16(h[108:], uint16(f.Minute))
	le.PutUint16(h[110:], uint16(f.Second))
	le.PutUint32(h[112:], uint32(int32(f.Hour)*3600+int32(f.Minute)*60+int32(f.Second)))
	le.PutUint16(h[118:], f.GenDates)
	le.PutUint32(h[120:], uint32(f.GenSeconds))
	le.PutUint32(h[124:], uint32(f.EdgeS))
	le.PutUint32(h[128:], uint32(f.EdgeW))
	le.PutUint32(h[132:], uint32(f.EdgeN))
	le.PutUint32(h[136:], uint32(f.EdgeE))
	le.PutUint32(h[140:], uint32(f.CX))
	le.PutUint32(h[144:], uint32(f.CY))
	le.PutUint32(h[148:], uint32(f.NX))
	le.PutUint32(h[152:], uint32(f.NY))
	le.PutUint32(h[156:], uint32(f.DX))
	le.PutUint32(h[160:], uint32(f.DY))
	le.PutUint16(h[166:], uint16(f.Compression))
	le.PutUint32(h[168:], uint32(f.NumRadars))
	le.PutUint32(h[172:], uint32(f.UnzipBytes))
	le.PutUint16(h[176:], uint16(f.Scale))
	copy(h[180:188], f.RegionID)
	copy(h[188:196], f.Units)
	return h
}

// Bytes returns the complete file: header followed by the payload block.
func (f Fixture) Bytes() []byte {
	return append(f.Header(), f.Block()...)
}
