package refdec

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/icza/bitio"

	"framepump/internal/media"
)

var errSPSTooShort = errors.New("sps too short")

// SPS carries the fields of a sequence parameter set that affect output
// geometry.
type SPS struct {
	ProfileIDC byte
	LevelIDC   byte
	ID         uint32
	Size       media.Size
}

type expGolombReader struct {
	*bitio.Reader
}

func (r expGolombReader) ue() uint32 {
	zeros := uint8(0)
	for !r.TryReadBool() {
		if r.TryError != nil {
			return 0
		}
		zeros++
		if zeros > 31 {
			r.TryError = errSPSTooShort
			return 0
		}
	}
	if zeros == 0 {
		return 0
	}
	return uint32(1)<<zeros - 1 + uint32(r.TryReadBits(zeros))
}

func (r expGolombReader) se() int32 {
	v := r.ue()
	if v%2 == 0 {
		return -int32(v / 2)
	}
	return int32((v + 1) / 2)
}

func (r expGolombReader) skipScalingList(size int) {
	last, next := int32(8), int32(8)
	for range size {
		if next != 0 {
			next = (last + r.se() + 256) % 256
		}
		if next != 0 {
			last = next
		}
	}
}

func hasChromaInfo(profile byte) bool {
	switch profile {
	case 100, 110, 122, 244, 44, 83, 86, 118, 128, 138, 139, 134, 135:
		return true
	}
	return false
}

// ParseSPS decodes an SPS NAL unit, header byte included.
func ParseSPS(nal []byte) (SPS, error) {
	if len(nal) < 4 {
		return SPS{}, errSPSTooShort
	}
	r := expGolombReader{bitio.NewReader(bytes.NewReader(unescapeRBSP(nal[1:])))}

	var sps SPS
	sps.ProfileIDC = byte(r.TryReadBits(8))
	r.TryReadBits(8)
	sps.LevelIDC = byte(r.TryReadBits(8))
	sps.ID = r.ue()

	chromaFormat := uint32(1)
	separatePlanes := false
	if hasChromaInfo(sps.ProfileIDC) {
		chromaFormat = r.ue()
		if chromaFormat == 3 {
			separatePlanes = r.TryReadBool()
		}
		r.ue() // bit_depth_luma_minus8
		r.ue() // bit_depth_chroma_minus8
		r.TryReadBool()
		if r.TryReadBool() {
			lists := 8
			if chromaFormat == 3 {
				lists = 12
			}
			for i := range lists {
				if r.TryReadBool() {
					if i < 6 {
						r.skipScalingList(16)
					} else {
						r.skipScalingList(64)
					}
				}
			}
		}
	}

	r.ue() // log2_max_frame_num_minus4
	switch r.ue() {
	case 0:
		r.ue()
	case 1:
		r.TryReadBool()
		r.se()
		r.se()
		n := r.ue()
		for range n {
			r.se()
		}
	}
	r.ue() // max_num_ref_frames
	r.TryReadBool()
	widthMbs := r.ue() + 1
	heightUnits := r.ue() + 1
	frameMbsOnly := r.TryReadBool()
	if !frameMbsOnly {
		r.TryReadBool()
	}
	r.TryReadBool() // direct_8x8_inference

	var cropL, cropR, cropT, cropB uint32
	if r.TryReadBool() {
		cropL, cropR, cropT, cropB = r.ue(), r.ue(), r.ue(), r.ue()
	}
	if r.TryError != nil {
		return SPS{}, fmt.Errorf("parse sps: %w", r.TryError)
	}

	fieldFactor := uint32(2)
	if frameMbsOnly {
		fieldFactor = 1
	}
	cropX, cropY := uint32(1), fieldFactor
	if chromaFormat != 0 && !separatePlanes {
		subW, subH := uint32(2), uint32(2)
		switch chromaFormat {
		case 2:
			subH = 1
		case 3:
			subW, subH = 1, 1
		}
		cropX, cropY = subW, subH*fieldFactor
	}

	w := widthMbs * 16
	h := fieldFactor * heightUnits * 16
	if cropX*(cropL+cropR) >= w || cropY*(cropT+cropB) >= h {
		return SPS{}, fmt.Errorf("parse sps: crop exceeds %dx%d", w, h)
	}
	sps.Size = media.Size{
		Width:  w - cropX*(cropL+cropR),
		Height: h - cropY*(cropT+cropB),
	}
	return sps, nil
}

type expGolombWriter struct {
	*bitio.Writer
}

func (w expGolombWriter) ue(v uint32) {
	x := uint64(v) + 1
	n := uint8(0)
	for t := x; t > 1; t >>= 1 {
		n++
	}
	w.TryWriteBits(0, n)
	w.TryWriteBits(x, n+1)
}

// EncodeSPS writes a baseline-profile SPS NAL unit (header byte included,
// emulation prevention applied) describing a progressive 4:2:0 picture of
// the given size. Width and height must be even.
func EncodeSPS(id uint32, size media.Size) ([]byte, error) {
	if size.Width == 0 || size.Height == 0 || size.Width%2 != 0 || size.Height%2 != 0 {
		return nil, fmt.Errorf("encode sps: unsupported size %s", size)
	}
	widthMbs := (size.Width + 15) / 16
	heightMbs := (size.Height + 15) / 16

	var buf bytes.Buffer
	w := expGolombWriter{bitio.NewWriter(&buf)}
	w.TryWriteBits(66, 8) // profile_idc: baseline
	w.TryWriteBits(0xC0, 8)
	w.TryWriteBits(30, 8) // level_idc
	w.ue(id)
	w.ue(0) // log2_max_frame_num_minus4
	w.ue(0) // pic_order_cnt_type
	w.ue(0) // log2_max_pic_order_cnt_lsb_minus4
	w.ue(1) // max_num_ref_frames
	w.TryWriteBool(false)
	w.ue(widthMbs - 1)
	w.ue(heightMbs - 1)
	w.TryWriteBool(true) // frame_mbs_only
	w.TryWriteBool(true) // direct_8x8_inference
	padW, padH := widthMbs*16-size.Width, heightMbs*16-size.Height
	if padW != 0 || padH != 0 {
		w.TryWriteBool(true)
		w.ue(0)
		w.ue(padW / 2)
		w.ue(0)
		w.ue(padH / 2)
	} else {
		w.TryWriteBool(false)
	}
	w.TryWriteBool(false) // vui_parameters_present
	w.TryWriteBool(true)  // rbsp_stop_one_bit
	if err := w.Close(); err != nil {
		return nil, err
	}
	if w.TryError != nil {
		return nil, w.TryError
	}
	return append([]byte{0x67}, escapeRBSP(buf.Bytes())...), nil
}

func unescapeRBSP(data []byte) []byte {
	out := make([]byte, 0, len(data))
	for i := 0; i < len(data); i++ {
		if i+2 < len(data) && data[i] == 0 && data[i+1] == 0 && data[i+2] == 3 &&
			(i+3 >= len(data) || data[i+3] <= 3) {
			out = append(out, 0, 0)
			i += 2
			continue
		}
		out = append(out, data[i])
	}
	return out
}

func escapeRBSP(data []byte) []byte {
	out := make([]byte, 0, len(data)+len(data)/2)
	zeros := 0
	for _, b := range data {
		if zeros >= 2 && b <= 3 {
			out = append(out, 3)
			zeros = 0
		}
		out = append(out, b)
		if b == 0 {
			zeros++
		} else {
			zeros = 0
		}
	}
	return out
}
