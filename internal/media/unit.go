package media

import "time"

// Tick is a time quantity in 100ns units.
type Tick int64

const TicksPerSecond Tick = 10_000_000

func TicksFromDuration(d time.Duration) Tick { return Tick(d / 100) }

func (t Tick) Duration() time.Duration { return time.Duration(t) * 100 }

func (t Tick) Milliseconds() int64 { return int64(t) / 10_000 }

// FrameDuration returns the duration of one frame at rate, rounded down to
// whole ticks. A zero rate yields zero.
func FrameDuration(rate Ratio) Tick {
	if rate.Num == 0 || rate.Den == 0 {
		return 0
	}
	return Tick(int64(TicksPerSecond) * int64(rate.Den) / int64(rate.Num))
}

// Chunk is one piece of encoded input. Seq only serves diagnostics.
type Chunk struct {
	Data []byte
	Seq  uint64
}

// Unit is one decoded output buffer with its timing. The caller owns Data.
type Unit struct {
	Data             []byte
	PresentationTime Tick
	Duration         Tick
}
