package refdec

import "bytes"

const (
	nalSlice = 1
	nalIDR   = 5
	nalSEI   = 6
	nalSPS   = 7
	nalPPS   = 8
	nalAUD   = 9
)

var startCode = []byte{0, 0, 1}

// splitter accumulates Annex-B bytes and hands out NAL units once the start
// code that terminates them has arrived, so chunk boundaries never change
// the units it produces.
type splitter struct {
	buf  []byte
	scan int // bytes after the leading start code already searched
}

func (s *splitter) Write(p []byte) { s.buf = append(s.buf, p...) }

func (s *splitter) Buffered() int { return len(s.buf) }

// Next returns the next complete NAL unit, without start code.
func (s *splitter) Next() ([]byte, bool) {
	for {
		if !bytes.HasPrefix(s.buf, startCode) {
			first := bytes.Index(s.buf, startCode)
			if first < 0 {
				// Keep a possible partial start code.
				if len(s.buf) > 2 {
					s.buf = append(s.buf[:0], s.buf[len(s.buf)-2:]...)
				}
				s.scan = 0
				return nil, false
			}
			s.buf = s.buf[first:]
			s.scan = 0
		}
		body := s.buf[len(startCode):]
		// A start code may straddle the end of the previous search.
		from := max(s.scan-len(startCode)+1, 0)
		end := bytes.Index(body[from:], startCode)
		if end < 0 {
			s.scan = len(body)
			return nil, false
		}
		end += from
		nal := trimTrailingZeros(body[:end])
		s.buf = body[end:]
		s.scan = 0
		if len(nal) > 0 {
			return bytes.Clone(nal), true
		}
	}
}

// Flush returns the unterminated tail as the final NAL unit.
func (s *splitter) Flush() ([]byte, bool) {
	first := bytes.Index(s.buf, startCode)
	if first < 0 {
		s.Reset()
		return nil, false
	}
	nal := trimTrailingZeros(s.buf[first+len(startCode):])
	nal = bytes.Clone(nal)
	s.Reset()
	return nal, len(nal) > 0
}

func (s *splitter) Reset() { s.buf, s.scan = s.buf[:0], 0 }

func trimTrailingZeros(b []byte) []byte {
	for len(b) > 0 && b[len(b)-1] == 0 {
		b = b[:len(b)-1]
	}
	return b
}

func nalType(nal []byte) byte { return nal[0] & 0x1f }
