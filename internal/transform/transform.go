package transform

import (
	"framepump/internal/media"
)

// Transform is the black box being driven. Methods follow the status-code
// convention of native decoder APIs: flow-control conditions come back as
// the sentinel errors ErrNotAccepting, ErrNeedMoreInput, ErrStreamChange
// and ErrNoMoreTypes.
type Transform interface {
	SetInputType(t *media.Type) error
	// OutputAvailableType returns the index-th candidate output type, or
	// ErrNoMoreTypes once index is past the end.
	OutputAvailableType(index int) (*media.Type, error)
	SetOutputType(t *media.Type) error
	OutputCurrentType() (*media.Type, error)
	OutputStreamInfo() (StreamInfo, error)

	ProcessInput(chunk media.Chunk) error
	// ProcessOutput fills storage when it is non-nil; otherwise the
	// transform supplies its own buffer.
	ProcessOutput(storage []byte) (Sample, error)
	ProcessMessage(msg Message) error
}

type Message int

const (
	MessageDrain Message = iota + 1
	MessageFlush
)

func (m Message) String() string {
	switch m {
	case MessageDrain:
		return "drain"
	case MessageFlush:
		return "flush"
	default:
		return "unknown"
	}
}

// StreamFlags is the capability bitset of an output stream.
type StreamFlags uint32

const (
	FlagWholeSamples StreamFlags = 1 << iota
	FlagSingleSamplePerBuffer
	FlagFixedSampleSize
	FlagDiscardable
	FlagOptional
	FlagProvidesSamples
	FlagCanProvideSamples
	FlagLazyRead
	FlagRemovable
)

type StreamInfo struct {
	Flags     StreamFlags
	Size      uint32
	Alignment uint32
}

// AllocationPolicy reports whether a stream with these flags supplies its
// own output storage.
func AllocationPolicy(flags StreamFlags) bool {
	return flags&(FlagProvidesSamples|FlagCanProvideSamples) != 0
}

// Sample is what ProcessOutput hands back. Data aliases the storage passed
// in, or a buffer owned by the transform until it is returned.
type Sample struct {
	Data     []byte
	Time     media.Tick
	Duration media.Tick
}
