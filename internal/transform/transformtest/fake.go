// Package transformtest provides a scriptable Transform for tests.
package transformtest

import (
	"slices"

	"framepump/internal/media"
	"framepump/internal/transform"
)

// Step is one scripted ProcessOutput result. Before runs first, which lets a
// stream-change step swap the offered types or stream flags.
type Step struct {
	Sample transform.Sample
	Err    error
	Before func(f *Fake)
}

// Fake records every call it receives. Once Steps are exhausted
// ProcessOutput reports ErrNeedMoreInput.
type Fake struct {
	InputErr  error
	FeedErr   error
	DrainErr  error
	Types     []*media.Type
	Info      transform.StreamInfo
	Steps     []Step
	Busy      []bool
	EnumCalls int

	Input      *media.Type
	Current    *media.Type
	Fed        []media.Chunk
	FeedCalls  int
	Storage    []int
	SetOutputs []*media.Type
	Drains     int
}

var _ transform.Transform = (*Fake)(nil)

func (f *Fake) SetInputType(t *media.Type) error {
	if f.InputErr != nil {
		return f.InputErr
	}
	f.Input = t.Clone()
	return nil
}

func (f *Fake) OutputAvailableType(index int) (*media.Type, error) {
	f.EnumCalls++
	if f.Input == nil {
		return nil, transform.ErrTypeNotSet
	}
	if index < 0 || index >= len(f.Types) {
		return nil, transform.ErrNoMoreTypes
	}
	return f.Types[index].Clone(), nil
}

func (f *Fake) SetOutputType(t *media.Type) error {
	if !slices.ContainsFunc(f.Types, t.Equal) {
		return transform.ErrInvalidType
	}
	f.Current = t.Clone()
	f.SetOutputs = append(f.SetOutputs, t.Clone())
	return nil
}

func (f *Fake) OutputCurrentType() (*media.Type, error) {
	if f.Current == nil {
		return nil, transform.ErrTypeNotSet
	}
	return f.Current.Clone(), nil
}

func (f *Fake) OutputStreamInfo() (transform.StreamInfo, error) { return f.Info, nil }

func (f *Fake) ProcessInput(chunk media.Chunk) error {
	f.FeedCalls++
	if f.FeedErr != nil {
		return f.FeedErr
	}
	if len(f.Busy) > 0 {
		busy := f.Busy[0]
		f.Busy = f.Busy[1:]
		if busy {
			return transform.ErrNotAccepting
		}
	}
	f.Fed = append(f.Fed, media.Chunk{Data: slices.Clone(chunk.Data), Seq: chunk.Seq})
	return nil
}

func (f *Fake) ProcessOutput(storage []byte) (transform.Sample, error) {
	if storage == nil {
		f.Storage = append(f.Storage, -1)
	} else {
		f.Storage = append(f.Storage, len(storage))
	}
	if len(f.Steps) == 0 {
		return transform.Sample{}, transform.ErrNeedMoreInput
	}
	st := f.Steps[0]
	f.Steps = f.Steps[1:]
	if st.Before != nil {
		st.Before(f)
	}
	if st.Err != nil {
		return transform.Sample{}, st.Err
	}
	smp := st.Sample
	if storage != nil {
		if want, ok := f.Current.SampleSize(); ok && uint32(len(storage)) != want {
			return transform.Sample{}, transform.ErrBufferSize
		}
		copy(storage, smp.Data)
		smp.Data = storage
	}
	return smp, nil
}

func (f *Fake) ProcessMessage(msg transform.Message) error {
	if msg == transform.MessageDrain {
		f.Drains++
		return f.DrainErr
	}
	return nil
}

// VideoType builds an output type with a fixed sample size; size 0 leaves
// the sample size unset.
func VideoType(sub media.Subtype, size uint32) *media.Type {
	mt := media.NewVideoType(sub).Set(media.KeyFixedSizeSamples, true)
	if size > 0 {
		mt.Set(media.KeySampleSize, size)
	}
	return mt
}

// Unit is a scripted unit step.
func Unit(pts, dur media.Tick, data ...byte) Step {
	return Step{Sample: transform.Sample{Data: data, Time: pts, Duration: dur}}
}

// StreamChange is a scripted format change that first replaces the
// offered types.
func StreamChange(types ...*media.Type) Step {
	return Step{
		Err: transform.ErrStreamChange,
		Before: func(f *Fake) {
			if len(types) > 0 {
				f.Types = types
			}
			f.Current = nil
		},
	}
}

func NeedMoreInput() Step { return Step{Err: transform.ErrNeedMoreInput} }
