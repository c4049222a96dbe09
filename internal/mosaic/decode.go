package mosaic

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
)

// Decode runs the whole pipeline over a mosaic stream: header, payload, grid.
// Nothing is returned unless every stage succeeds.
func Decode(r io.Reader) (*Grid, error) {
	buf := make([]byte, HeaderSize)
	n, err := io.ReadFull(r, buf)
	switch {
	case errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF):
		return nil, &FormatError{Field: "header", Expected: HeaderSize, Actual: n, Err: ErrTruncated}
	case err != nil:
		return nil, &IOError{Op: "read header", Err: err}
	}

	h, err := ParseHeader(buf)
	if err != nil {
		return nil, err
	}
	payload, err := DecodePayload(r, h)
	if err != nil {
		return nil, err
	}
	return BuildGrid(payload, h)
}

// DecodeBytes decodes a mosaic file already held in memory, such as a message
// value. There is no stream to retry, so a short payload is a *FormatError
// wrapping ErrTruncated rather than an *IOError.
func DecodeBytes(b []byte) (*Grid, error) {
	g, err := Decode(bytes.NewReader(b))
	if err == nil {
		return g, nil
	}
	var ioErr *IOError
	if errors.As(err, &ioErr) && errors.Is(err, ErrTruncated) {
		return nil, &FormatError{Field: "payload", Err: ioErr.Err}
	}
	return nil, err
}

// DecodeFile opens path, decodes it and closes it on every exit path.
func DecodeFile(path string) (*Grid, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, &IOError{Op: "open", Err: err}
	}
	defer f.Close()

	g, err := Decode(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return g, nil
}
