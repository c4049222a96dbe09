package mosaic

import "strconv"

// Codec is the payload compression identifier stored at header offset 166.
// The numbering is part of the wire format.
type Codec int16

const (
	CodecNone  Codec = 0
	CodecBzip2 Codec = 1
	CodecZip   Codec = 2 // declared by the format, not implemented
	CodecLZW   Codec = 3 // declared by the format, not implemented
)

func (c Codec) String() string {
	switch c {
	case CodecNone:
		return "none"
	case CodecBzip2:
		return "bz2"
	case CodecZip:
		return "zip"
	case CodecLZW:
		return "lzw"
	default:
		return "codec(" + strconv.Itoa(int(c)) + ")"
	}
}

// Known reports whether c is one of the four declared code points.
func (c Codec) Known() bool {
	return c >= CodecNone && c <= CodecLZW
}
