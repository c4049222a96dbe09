package mosaic

import (
	"bytes"
	"compress/bzip2"
	"fmt"
	"io"
)

// DecodePayload reads the payload block that follows the header from r and
// returns it decompressed. r must be positioned at byte HeaderSize.
func DecodePayload(r io.Reader, h *Header) ([]byte, error) {
	if !h.Compression.Known() {
		return nil, &FormatError{Field: "compression", Actual: int16(h.Compression), Err: ErrUnknownCodec}
	}
	if h.Compression == CodecZip || h.Compression == CodecLZW {
		return nil, &UnsupportedError{Codec: h.Compression}
	}

	block, err := readBlock(r, int64(h.BlockLen))
	if err != nil {
		return nil, err
	}

	out := block
	if h.Compression == CodecBzip2 {
		out, err = inflateBzip2(block, decodeLimit(h))
		if err != nil {
			return nil, err
		}
	}

	if h.UnzipBytes > 0 && int64(len(out)) != int64(h.UnzipBytes) {
		return nil, sizeMismatch("unzipBytes", int64(h.UnzipBytes), int64(len(out)))
	}
	return out, nil
}

// readBlock reads exactly n bytes. The buffer grows with the data actually
// present, so a lying length field cannot force a large allocation.
func readBlock(r io.Reader, n int64) ([]byte, error) {
	block, err := io.ReadAll(io.LimitReader(r, n))
	if err != nil {
		return nil, &IOError{Op: "read payload", Err: err}
	}
	if int64(len(block)) < n {
		return nil, &IOError{Op: "read payload", Err: fmt.Errorf("%w: blockLen %d, got %d bytes", ErrTruncated, n, len(block))}
	}
	return block, nil
}

// decodeLimit bounds decompressed output: the declared size when present,
// otherwise the size the grid needs. One extra byte is allowed so an
// oversized stream is still detected as a mismatch.
func decodeLimit(h *Header) int64 {
	if h.UnzipBytes > 0 {
		return int64(h.UnzipBytes) + 1
	}
	return h.PayloadSize() + 1
}

func inflateBzip2(block []byte, limit int64) ([]byte, error) {
	out, err := io.ReadAll(io.LimitReader(bzip2.NewReader(bytes.NewReader(block)), limit))
	if err != nil {
		// The block is already in memory, so any read error is a bad stream.
		return nil, &FormatError{Field: "payload", Err: fmt.Errorf("%w: bzip2: %w", ErrCorruptPayload, err)}
	}
	return out, nil
}
