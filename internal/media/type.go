package media

import (
	"fmt"
	"slices"
	"strconv"
	"strings"
)

type MajorType string

const (
	MajorVideo MajorType = "video"
	MajorAudio MajorType = "audio"
)

// Subtype is the codec or sample-layout tag of a Type. Format compatibility
// between two types is decided on this tag alone.
type Subtype string

const (
	SubtypeH264 Subtype = "H264"
	SubtypeNV12 Subtype = "NV12"
	SubtypeYV12 Subtype = "YV12"
	SubtypeIYUV Subtype = "IYUV"
	SubtypeI420 Subtype = "I420"
	SubtypeYUY2 Subtype = "YUY2"
)

type Key string

const (
	KeyMajorType             Key = "major_type"
	KeySubtype               Key = "subtype"
	KeyAllSamplesIndependent Key = "all_samples_independent"
	KeyFixedSizeSamples      Key = "fixed_size_samples"
	KeySampleSize            Key = "sample_size"
	KeyFrameSize             Key = "frame_size"
	KeyFrameRate             Key = "frame_rate"
	KeyPixelAspectRatio      Key = "pixel_aspect_ratio"
)

type Size struct {
	Width  uint32
	Height uint32
}

func (s Size) String() string { return fmt.Sprintf("%dx%d", s.Width, s.Height) }

type Ratio struct {
	Num uint32
	Den uint32
}

func (r Ratio) String() string { return fmt.Sprintf("%d/%d", r.Num, r.Den) }

// ParseRatio reads "num/den" or a bare integer.
func ParseRatio(s string) (Ratio, error) {
	num, den, found := strings.Cut(strings.TrimSpace(s), "/")
	if !found {
		den = "1"
	}
	n, err := strconv.ParseUint(strings.TrimSpace(num), 10, 32)
	if err != nil {
		return Ratio{}, fmt.Errorf("ratio %q: %w", s, err)
	}
	d, err := strconv.ParseUint(strings.TrimSpace(den), 10, 32)
	if err != nil {
		return Ratio{}, fmt.Errorf("ratio %q: %w", s, err)
	}
	if n == 0 || d == 0 {
		return Ratio{}, fmt.Errorf("ratio %q: zero term", s)
	}
	return Ratio{Num: uint32(n), Den: uint32(d)}, nil
}

// Attribute is one typed key/value pair. Value holds one of: bool, uint32,
// uint64, float64, string, []byte, MajorType, Subtype, Size, Ratio.
type Attribute struct {
	Key   Key
	Value any
}

// Type is an ordered attribute set describing a media format.
type Type struct {
	attrs []Attribute
}

func NewType(attrs ...Attribute) *Type {
	t := &Type{}
	for _, a := range attrs {
		t.Set(a.Key, a.Value)
	}
	return t
}

// NewVideoType is a shorthand for a type with major video and the given subtype.
func NewVideoType(sub Subtype) *Type {
	return NewType(
		Attribute{KeyMajorType, MajorVideo},
		Attribute{KeySubtype, sub},
	)
}

// Set replaces the value of key in place, or appends it.
func (t *Type) Set(key Key, value any) *Type {
	for i := range t.attrs {
		if t.attrs[i].Key == key {
			t.attrs[i].Value = value
			return t
		}
	}
	t.attrs = append(t.attrs, Attribute{Key: key, Value: value})
	return t
}

func (t *Type) Get(key Key) (any, bool) {
	if t == nil {
		return nil, false
	}
	for _, a := range t.attrs {
		if a.Key == key {
			return a.Value, true
		}
	}
	return nil, false
}

func (t *Type) Len() int {
	if t == nil {
		return 0
	}
	return len(t.attrs)
}

// Attributes returns a copy of the attributes in insertion order.
func (t *Type) Attributes() []Attribute {
	if t == nil {
		return nil
	}
	return slices.Clone(t.attrs)
}

func (t *Type) Clone() *Type {
	if t == nil {
		return nil
	}
	return &Type{attrs: slices.Clone(t.attrs)}
}

func (t *Type) Uint32(key Key) (uint32, bool) {
	v, ok := t.Get(key)
	if !ok {
		return 0, false
	}
	u, ok := v.(uint32)
	return u, ok
}

func (t *Type) Bool(key Key) bool {
	v, _ := t.Get(key)
	b, _ := v.(bool)
	return b
}

func (t *Type) MajorType() MajorType {
	v, _ := t.Get(KeyMajorType)
	m, _ := v.(MajorType)
	return m
}

func (t *Type) Subtype() Subtype {
	v, _ := t.Get(KeySubtype)
	s, _ := v.(Subtype)
	return s
}

func (t *Type) FrameSize() (Size, bool) {
	v, ok := t.Get(KeyFrameSize)
	if !ok {
		return Size{}, false
	}
	s, ok := v.(Size)
	return s, ok
}

func (t *Type) FrameRate() (Ratio, bool) {
	v, ok := t.Get(KeyFrameRate)
	if !ok {
		return Ratio{}, false
	}
	r, ok := v.(Ratio)
	return r, ok
}

// SampleSize reports the fixed sample size. It is only known when the type
// declares fixed-size samples and carries a non-zero size.
func (t *Type) SampleSize() (uint32, bool) {
	if !t.Bool(KeyFixedSizeSamples) {
		return 0, false
	}
	n, ok := t.Uint32(KeySampleSize)
	if !ok || n == 0 {
		return 0, false
	}
	return n, true
}

// Compatible reports whether both types carry the same subtype tag.
func (t *Type) Compatible(o *Type) bool {
	if t == nil || o == nil {
		return false
	}
	return t.Subtype() != "" && t.Subtype() == o.Subtype()
}

// Equal compares the attribute sets, ignoring order.
func (t *Type) Equal(o *Type) bool {
	if t.Len() != o.Len() {
		return false
	}
	for _, a := range t.Attributes() {
		v, ok := o.Get(a.Key)
		if !ok || !valueEqual(a.Value, v) {
			return false
		}
	}
	return true
}

func valueEqual(a, b any) bool {
	ab, aok := a.([]byte)
	bb, bok := b.([]byte)
	if aok || bok {
		return aok && bok && slices.Equal(ab, bb)
	}
	return a == b
}

func (t *Type) String() string {
	if t == nil {
		return "<nil>"
	}
	s := string(t.MajorType()) + "/" + string(t.Subtype())
	if fs, ok := t.FrameSize(); ok {
		s += " " + fs.String()
	}
	if n, ok := t.SampleSize(); ok {
		s += fmt.Sprintf(" sample=%d", n)
	}
	return s
}
