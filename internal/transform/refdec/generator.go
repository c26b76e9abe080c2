package refdec

import (
	"bytes"
	"errors"
	"io"
	"math/rand/v2"

	"framepump/internal/media"
)

// Segment is a run of frames sharing one geometry.
type Segment struct {
	Size   media.Size
	Frames int
}

// Generator writes a synthetic Annex-B stream the Decoder understands: an
// SPS and PPS at the start of each segment, an IDR slice every GOP frames
// and P slices in between. Slice payloads never contain zero bytes, so no
// emulation prevention is needed.
type Generator struct {
	Segments    []Segment
	GOP         int
	PayloadSize int
	Seed        uint64
}

var pps = []byte{0x68, 0xce, 0x38, 0x80}

func (g Generator) Frames() int {
	n := 0
	for _, s := range g.Segments {
		n += s.Frames
	}
	return n
}

func (g Generator) Bytes() ([]byte, error) {
	var buf bytes.Buffer
	if _, err := g.WriteTo(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (g Generator) WriteTo(w io.Writer) (int64, error) {
	if len(g.Segments) == 0 {
		return 0, errors.New("generator: no segments")
	}
	gop := g.GOP
	if gop <= 0 {
		gop = 12
	}
	payload := g.PayloadSize
	if payload <= 0 {
		payload = 64
	}
	rng := rand.New(rand.NewPCG(g.Seed, g.Seed^0x9e3779b97f4a7c15))

	var buf bytes.Buffer
	long := []byte{0, 0, 0, 1}
	for _, seg := range g.Segments {
		sps, err := EncodeSPS(0, seg.Size)
		if err != nil {
			return 0, err
		}
		buf.Write(long)
		buf.Write(sps)
		buf.Write(long)
		buf.Write(pps)
		for i := range seg.Frames {
			header := byte(0x41)
			if i%gop == 0 {
				header = 0x65
			}
			buf.Write(startCode)
			buf.WriteByte(header)
			for range payload - 1 {
				buf.WriteByte(byte(1 + rng.IntN(255)))
			}
		}
	}
	return buf.WriteTo(w)
}
