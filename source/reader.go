package source

import (
	"context"
	"errors"
	"io"
)

type streamReader struct {
	r   io.Reader
	eof bool
}

// NewReader adapts r. Each Read fills as much of max as r can supply, so a
// short result only happens at the end of the stream.
func NewReader(r io.Reader) Reader { return &streamReader{r: r} }

func (s *streamReader) Read(ctx context.Context, max int) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.eof || max <= 0 {
		return nil, io.EOF
	}
	buf := make([]byte, max)
	n, err := io.ReadFull(s.r, buf)
	switch {
	case errors.Is(err, io.ErrUnexpectedEOF):
		s.eof = true
		return buf[:n], nil
	case errors.Is(err, io.EOF):
		s.eof = true
		return nil, io.EOF
	case err != nil:
		return nil, err
	}
	return buf, nil
}

// Bytes is a Reader over an in-memory stream.
func Bytes(b []byte) Reader { return &bytesReader{b: b} }

type bytesReader struct{ b []byte }

func (r *bytesReader) Read(ctx context.Context, max int) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(r.b) == 0 {
		return nil, io.EOF
	}
	n := min(max, len(r.b))
	out := r.b[:n:n]
	r.b = r.b[n:]
	return out, nil
}
