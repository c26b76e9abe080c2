package transform

import (
	"errors"
	"fmt"
	"iter"
	"log/slog"

	"framepump/internal/logging"
	"framepump/internal/media"
)

type FeedOutcome int

const (
	FeedAccepted FeedOutcome = iota
	// FeedBusy means the transform queue is full; resubmit the same chunk.
	FeedBusy
)

func (o FeedOutcome) String() string {
	if o == FeedBusy {
		return "busy"
	}
	return "accepted"
}

type PullKind int

const (
	PullUnit PullKind = iota
	PullNeedMoreInput
	PullFormatChanged
)

func (k PullKind) String() string {
	switch k {
	case PullUnit:
		return "unit"
	case PullNeedMoreInput:
		return "need_more_input"
	case PullFormatChanged:
		return "format_changed"
	default:
		return "unknown"
	}
}

// PullOutcome is the tagged result of Pull. Unit is only set for PullUnit.
type PullOutcome struct {
	Kind PullKind
	Unit media.Unit
}

type Option func(*Session)

func WithLogger(l *slog.Logger) Option { return func(s *Session) { s.log = l } }

func WithDumper(d media.Dumper) Option { return func(s *Session) { s.dumper = d } }

// Session owns the negotiation state of one Transform. It is not safe for
// concurrent use; a single Driver owns it.
type Session struct {
	t      Transform
	log    *slog.Logger
	dumper media.Dumper

	inputType  *media.Type
	outputType *media.Type
	desired    media.Subtype

	sampleSize      uint32
	sampleSizeKnown bool
	outputAllocates bool
	outputStale     bool
}

func NewSession(t Transform, opts ...Option) *Session {
	s := &Session{
		t:      t,
		log:    logging.For("transform"),
		dumper: media.NopDumper{},
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

func (s *Session) InputType() *media.Type  { return s.inputType.Clone() }
func (s *Session) OutputType() *media.Type { return s.outputType.Clone() }
func (s *Session) Desired() media.Subtype  { return s.desired }
func (s *Session) OutputAllocates() bool   { return s.outputAllocates }

func (s *Session) OutputSampleSize() (uint32, bool) {
	return s.sampleSize, s.sampleSizeKnown
}

// Configure sets the input type and selects the first offered output type
// whose subtype is desired.
func (s *Session) Configure(input *media.Type, desired media.Subtype) error {
	s.dumper.DumpType("input", input)
	if err := s.t.SetInputType(input); err != nil {
		if errors.Is(err, ErrInvalidType) {
			return &NegotiationError{Subtype: input.Subtype(), Reason: ErrTransformRejectedInput, Err: opErr("set_input_type", err)}
		}
		return opErr("set_input_type", err)
	}
	s.inputType = input.Clone()
	s.desired = desired
	if err := s.selectOutput(); err != nil {
		return err
	}
	s.log.Info("transform configured",
		"input", s.inputType.String(),
		"output", s.outputType.String(),
		"allocates", s.outputAllocates)
	return nil
}

// OutputTypes enumerates the candidate output types from index 0. Each call
// restarts the enumeration. The sequence ends at exhaustion; any other
// enumeration failure is yielded once as an error.
func (s *Session) OutputTypes() iter.Seq2[*media.Type, error] {
	return func(yield func(*media.Type, error) bool) {
		for i := 0; ; i++ {
			mt, err := s.t.OutputAvailableType(i)
			if errors.Is(err, ErrNoMoreTypes) {
				return
			}
			if err != nil {
				yield(nil, opErr(fmt.Sprintf("output_available_type[%d]", i), err))
				return
			}
			if !yield(mt, nil) {
				return
			}
		}
	}
}

// Renegotiate re-selects the output type after PullFormatChanged and
// re-derives the allocation policy and sample size.
func (s *Session) Renegotiate() error {
	if s.inputType == nil {
		return opErr("renegotiate", ErrTypeNotSet)
	}
	prev := s.outputType
	if err := s.selectOutput(); err != nil {
		return err
	}
	n, known := s.OutputSampleSize()
	s.log.Debug("output renegotiated",
		"from", prev.String(),
		"to", s.outputType.String(),
		"allocates", s.outputAllocates,
		"sample_size", n, "sample_size_known", known)
	return nil
}

func (s *Session) selectOutput() error {
	want := media.NewVideoType(s.Desired())
	var chosen *media.Type
	for mt, err := range s.OutputTypes() {
		if err != nil {
			return &NegotiationError{Subtype: s.desired, Err: err}
		}
		if mt.Compatible(want) {
			chosen = mt
			break
		}
	}
	if chosen == nil {
		return &NegotiationError{Subtype: s.desired, Reason: ErrNoMatchingOutputFormat}
	}
	if err := s.t.SetOutputType(chosen); err != nil {
		return &NegotiationError{Subtype: s.desired, Err: opErr("set_output_type", err)}
	}
	s.outputType = chosen.Clone()
	s.outputStale = false
	s.dumper.DumpType("output", chosen)
	return s.applyAllocationPolicy()
}

func (s *Session) applyAllocationPolicy() error {
	info, err := s.t.OutputStreamInfo()
	if err != nil {
		return opErr("output_stream_info", err)
	}
	s.outputAllocates = AllocationPolicy(info.Flags)
	s.sampleSize, s.sampleSizeKnown = 0, false
	if s.outputAllocates {
		return nil
	}
	cur, err := s.t.OutputCurrentType()
	if err != nil {
		return opErr("output_current_type", err)
	}
	s.sampleSize, s.sampleSizeKnown = cur.SampleSize()
	return nil
}

// Feed submits one chunk. FeedBusy is backpressure, not an error.
func (s *Session) Feed(chunk media.Chunk) (FeedOutcome, error) {
	err := s.t.ProcessInput(chunk)
	switch {
	case err == nil:
		return FeedAccepted, nil
	case errors.Is(err, ErrNotAccepting):
		return FeedBusy, nil
	default:
		return FeedAccepted, opErr("process_input", err)
	}
}

// SignalEndOfInput asks the transform to flush everything it buffered.
func (s *Session) SignalEndOfInput() error {
	return opErr("process_message(drain)", s.t.ProcessMessage(MessageDrain))
}

// Pull asks for one decoded unit. With provideStorage the session attaches
// a buffer of exactly storageSize bytes.
func (s *Session) Pull(provideStorage bool, storageSize uint32) (PullOutcome, error) {
	if s.outputStale {
		return PullOutcome{}, opErr("process_output", fmt.Errorf("%w: output type needs renegotiation", ErrTypeNotSet))
	}
	var storage []byte
	if provideStorage {
		if storageSize == 0 {
			return PullOutcome{}, opErr("process_output", fmt.Errorf("%w: zero storage size", ErrBufferSize))
		}
		storage = make([]byte, storageSize)
	}
	smp, err := s.t.ProcessOutput(storage)
	switch {
	case err == nil:
		return PullOutcome{
			Kind: PullUnit,
			Unit: media.Unit{Data: smp.Data, PresentationTime: smp.Time, Duration: smp.Duration},
		}, nil
	case errors.Is(err, ErrNeedMoreInput):
		return PullOutcome{Kind: PullNeedMoreInput}, nil
	case errors.Is(err, ErrStreamChange):
		s.outputStale = true
		return PullOutcome{Kind: PullFormatChanged}, nil
	default:
		return PullOutcome{}, opErr("process_output", err)
	}
}
