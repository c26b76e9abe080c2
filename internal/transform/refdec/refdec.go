// Package refdec is a reference H.264 Annex-B transform. It does not decode
// pictures: it tracks stream geometry from sequence parameter sets and emits
// one synthetic frame per slice, which is enough to exercise every control
// path of a real hardware or platform decoder (backpressure, stream change,
// caller or self allocated storage, drain).
package refdec

import (
	"fmt"
	"log/slog"
	"math"

	"framepump/internal/logging"
	"framepump/internal/media"
	"framepump/internal/transform"
)

const DefaultMaxQueuedFrames = 8

var DefaultFrameRate = media.Ratio{Num: 25, Den: 1}

// OutputSubtypes is the order in which output types are offered.
var OutputSubtypes = []media.Subtype{
	media.SubtypeNV12,
	media.SubtypeYV12,
	media.SubtypeIYUV,
	media.SubtypeI420,
	media.SubtypeYUY2,
}

type Option func(*Decoder)

func WithFrameRate(r media.Ratio) Option {
	return func(d *Decoder) {
		if r.Num > 0 && r.Den > 0 {
			d.frameRate = r
		}
	}
}

// WithProvidesSamples makes the decoder allocate output buffers itself.
func WithProvidesSamples() Option { return func(d *Decoder) { d.provides = true } }

func WithMaxQueuedFrames(n int) Option {
	return func(d *Decoder) {
		if n > 0 {
			d.maxQueued = n
		}
	}
}

func WithLogger(l *slog.Logger) Option { return func(d *Decoder) { d.log = l } }

type item struct {
	change  bool
	size    media.Size
	payload []byte
}

type Decoder struct {
	log       *slog.Logger
	frameRate media.Ratio
	provides  bool
	maxQueued int

	input  *media.Type
	output *media.Type
	split  splitter

	geometry media.Size // geometry of the frames currently being output
	latest   media.Size // geometry of the last parsed SPS
	queue    []item
	frames   int
	index    int64
}

var _ transform.Transform = (*Decoder)(nil)

func New(opts ...Option) *Decoder {
	d := &Decoder{
		log:       logging.For("refdec"),
		frameRate: DefaultFrameRate,
		maxQueued: DefaultMaxQueuedFrames,
	}
	for _, o := range opts {
		o(d)
	}
	return d
}

// SampleSize is the frame size in bytes of sub at the given geometry.
func SampleSize(sub media.Subtype, size media.Size) uint64 {
	px := uint64(size.Width) * uint64(size.Height)
	if sub == media.SubtypeYUY2 {
		return px * 2
	}
	return px * 3 / 2
}

// maxSampleSize bounds every offered subtype; sample_size is a uint32.
const maxSampleSize = math.MaxUint32

func (d *Decoder) SetInputType(t *media.Type) error {
	if t.MajorType() != media.MajorVideo || t.Subtype() != media.SubtypeH264 {
		return fmt.Errorf("%w: want video/H264, got %s", transform.ErrInvalidType, t)
	}
	d.input = t.Clone()
	if fr, ok := t.FrameRate(); ok && fr.Num > 0 && fr.Den > 0 {
		d.frameRate = fr
	}
	return nil
}

func (d *Decoder) OutputAvailableType(index int) (*media.Type, error) {
	if d.input == nil {
		return nil, transform.ErrTypeNotSet
	}
	if index < 0 || index >= len(OutputSubtypes) {
		return nil, transform.ErrNoMoreTypes
	}
	return d.outputType(OutputSubtypes[index]), nil
}

func (d *Decoder) outputType(sub media.Subtype) *media.Type {
	mt := media.NewVideoType(sub).
		Set(media.KeyAllSamplesIndependent, true).
		Set(media.KeyFixedSizeSamples, true)
	if d.geometry == (media.Size{}) {
		return mt
	}
	return mt.
		Set(media.KeySampleSize, uint32(SampleSize(sub, d.geometry))).
		Set(media.KeyFrameSize, d.geometry).
		Set(media.KeyFrameRate, d.frameRate).
		Set(media.KeyPixelAspectRatio, media.Ratio{Num: 1, Den: 1})
}

func (d *Decoder) SetOutputType(t *media.Type) error {
	if d.input == nil {
		return transform.ErrTypeNotSet
	}
	if !t.Equal(d.outputType(t.Subtype())) {
		return fmt.Errorf("%w: %s not offered", transform.ErrInvalidType, t)
	}
	d.output = t.Clone()
	return nil
}

func (d *Decoder) OutputCurrentType() (*media.Type, error) {
	if d.output == nil {
		return nil, transform.ErrTypeNotSet
	}
	return d.output.Clone(), nil
}

func (d *Decoder) OutputStreamInfo() (transform.StreamInfo, error) {
	info := transform.StreamInfo{
		Flags:     transform.FlagWholeSamples | transform.FlagSingleSamplePerBuffer | transform.FlagFixedSampleSize,
		Alignment: 1,
	}
	if d.provides {
		info.Flags |= transform.FlagProvidesSamples
	}
	if d.output != nil {
		info.Size, _ = d.output.SampleSize()
	}
	return info, nil
}

func (d *Decoder) ProcessInput(chunk media.Chunk) error {
	if d.input == nil {
		return transform.ErrTypeNotSet
	}
	if d.frames >= d.maxQueued {
		return transform.ErrNotAccepting
	}
	d.split.Write(chunk.Data)
	for {
		nal, ok := d.split.Next()
		if !ok {
			return nil
		}
		if err := d.handleNAL(nal); err != nil {
			return err
		}
	}
}

func (d *Decoder) handleNAL(nal []byte) error {
	switch nalType(nal) {
	case nalSPS:
		sps, err := ParseSPS(nal)
		if err != nil {
			return err
		}
		if n := SampleSize(media.SubtypeYUY2, sps.Size); n > maxSampleSize {
			return fmt.Errorf("%w: %s frames need %d bytes", transform.ErrInvalidType, sps.Size, n)
		}
		if sps.Size != d.latest {
			d.log.Debug("geometry change", "from", d.latest.String(), "to", sps.Size.String())
			d.latest = sps.Size
			d.queue = append(d.queue, item{change: true, size: sps.Size})
		}
	case nalSlice, nalIDR:
		if d.latest == (media.Size{}) {
			d.log.Debug("dropping slice before first sps", "bytes", len(nal))
			return nil
		}
		d.queue = append(d.queue, item{size: d.latest, payload: nal})
		d.frames++
	}
	return nil
}

func (d *Decoder) ProcessOutput(storage []byte) (transform.Sample, error) {
	if d.output == nil {
		return transform.Sample{}, transform.ErrTypeNotSet
	}
	if len(d.queue) == 0 {
		return transform.Sample{}, transform.ErrNeedMoreInput
	}
	head := d.queue[0]
	if head.change {
		d.queue = d.queue[1:]
		d.geometry = head.size
		d.output = nil
		return transform.Sample{}, transform.ErrStreamChange
	}

	n := SampleSize(d.output.Subtype(), d.geometry)
	switch {
	case storage == nil && !d.provides:
		return transform.Sample{}, transform.ErrNoStorage
	case storage == nil:
		storage = make([]byte, n)
	case uint64(len(storage)) != n:
		return transform.Sample{}, fmt.Errorf("%w: got %d, want %d", transform.ErrBufferSize, len(storage), n)
	}
	for i := range storage {
		storage[i] = head.payload[i%len(head.payload)]
	}
	d.queue = d.queue[1:]
	d.frames--

	dur := media.FrameDuration(d.frameRate)
	smp := transform.Sample{Data: storage, Time: media.Tick(d.index) * dur, Duration: dur}
	d.index++
	return smp, nil
}

func (d *Decoder) ProcessMessage(msg transform.Message) error {
	switch msg {
	case transform.MessageDrain:
		d.log.Debug("drain", "tail_bytes", d.split.Buffered(), "queued_frames", d.frames)
		if nal, ok := d.split.Flush(); ok {
			if err := d.handleNAL(nal); err != nil {
				return err
			}
		}
	case transform.MessageFlush:
		d.split.Reset()
		d.queue = nil
		d.frames = 0
	default:
		return fmt.Errorf("unsupported message %s", msg)
	}
	return nil
}
