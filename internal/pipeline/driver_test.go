package pipeline

import (
	"context"
	"errors"
	"io"
	"slices"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"framepump/internal/media"
	"framepump/internal/transform"
	"framepump/internal/transform/refdec"
	"framepump/internal/transform/transformtest"
	"framepump/source"
)

func h264() *media.Type { return media.NewVideoType(media.SubtypeH264) }

func fakeSession(t *testing.T, f *transformtest.Fake) *transform.Session {
	t.Helper()
	if f.Types == nil {
		f.Types = []*media.Type{transformtest.VideoType(media.SubtypeNV12, 6)}
	}
	s := transform.NewSession(f)
	require.NoError(t, s.Configure(h264(), media.SubtypeNV12))
	return s
}

func collect(t *testing.T, d *Driver) ([]media.Unit, error) {
	t.Helper()
	var units []media.Unit
	for u, err := range d.Units(context.Background()) {
		if err != nil {
			return units, err
		}
		units = append(units, u)
	}
	return units, nil
}

type errReader struct{ err error }

func (r errReader) Read(context.Context, int) ([]byte, error) { return nil, r.err }

func TestDriver_ChunkingDoesNotChangeTiming(t *testing.T) {
	g := refdec.Generator{
		Segments: []refdec.Segment{
			{Size: media.Size{Width: 32, Height: 16}, Frames: 7},
			{Size: media.Size{Width: 48, Height: 32}, Frames: 5},
		},
		PayloadSize: 200,
		Seed:        3,
	}
	data, err := g.Bytes()
	require.NoError(t, err)

	type result struct {
		pts  []media.Tick
		lens []int
	}
	run := func(sizer source.Sizer) result {
		s := transform.NewSession(refdec.New(refdec.WithMaxQueuedFrames(2)))
		require.NoError(t, s.Configure(h264(), media.SubtypeNV12))
		d := NewDriver(s, source.Bytes(data), WithSizer(sizer))
		units, err := collect(t, d)
		require.NoError(t, err)
		var r result
		for _, u := range units {
			r.pts = append(r.pts, u.PresentationTime)
			r.lens = append(r.lens, len(u.Data))
		}
		require.Equal(t, Finished, d.State())
		require.Equal(t, uint64(2), d.Stats().FormatChanges)
		return r
	}

	want := run(source.FixedSize(len(data)))
	require.Len(t, want.pts, g.Frames())
	for i, pts := range want.pts {
		require.Equal(t, media.Tick(i)*400_000, pts)
	}
	require.Equal(t, 32*16*3/2, want.lens[0])
	require.Equal(t, 48*32*3/2, want.lens[len(want.lens)-1])

	for _, sizer := range []source.Sizer{
		source.FixedSize(1),
		source.FixedSize(13),
		source.RandomSize(500, 1500, 1),
		source.RandomSize(1, 64, 99),
	} {
		require.Equal(t, want, run(sizer))
	}
}

func TestDriver_SelfAllocatingTransform(t *testing.T) {
	data, err := refdec.Generator{Segments: []refdec.Segment{{Size: media.Size{Width: 16, Height: 16}, Frames: 4}}}.Bytes()
	require.NoError(t, err)
	s := transform.NewSession(refdec.New(refdec.WithProvidesSamples()))
	require.NoError(t, s.Configure(h264(), media.SubtypeYUY2))

	units, err := collect(t, NewDriver(s, source.Bytes(data), WithSizer(source.FixedSize(17))))
	require.NoError(t, err)
	require.Len(t, units, 4)
	require.Len(t, units[3].Data, 16*16*2)
	require.True(t, s.OutputAllocates())
}

func TestDriver_BusyNeverLosesData(t *testing.T) {
	input := []byte("abcdefghijklmnopq")
	f := &transformtest.Fake{Busy: []bool{true, true, false, true, false, false, true, true, true, false}}
	d := NewDriver(fakeSession(t, f), source.Bytes(input), WithSizer(source.FixedSize(3)))

	units, err := collect(t, d)
	require.NoError(t, err)
	require.Empty(t, units)

	var fed []byte
	for i, c := range f.Fed {
		fed = append(fed, c.Data...)
		require.Equal(t, uint64(i+1), c.Seq, "each chunk is fed exactly once, in order")
	}
	require.Equal(t, input, fed)
	require.Equal(t, 1, f.Drains)
	require.Equal(t, uint64(6), d.Stats().BusyRetries)
	require.Equal(t, len(f.Fed)+6, f.FeedCalls)
}

func TestDriver_ExactStorageAfterFormatChange(t *testing.T) {
	f := &transformtest.Fake{
		Types: []*media.Type{transformtest.VideoType(media.SubtypeNV12, 0)},
		Steps: []transformtest.Step{
			transformtest.StreamChange(transformtest.VideoType(media.SubtypeNV12, 6)),
			transformtest.Unit(0, 10, 1, 2, 3, 4, 5, 6),
			transformtest.Unit(10, 10, 6, 5, 4, 3, 2, 1),
		},
	}
	d := NewDriver(fakeSession(t, f), source.Bytes([]byte("0123456789")), WithSizer(source.FixedSize(4)))

	units, err := collect(t, d)
	require.NoError(t, err)
	require.Len(t, units, 2)
	require.Equal(t, []byte{1, 2, 3, 4, 5, 6}, units[0].Data)
	require.Equal(t, []int{-1, 6, 6}, f.Storage[:3])
	for _, n := range f.Storage[3:] {
		require.Equal(t, 6, n)
	}
}

func TestDriver_AllocationPolicyFollowsRenegotiation(t *testing.T) {
	f := &transformtest.Fake{
		Steps: []transformtest.Step{
			transformtest.Unit(0, 1, 1, 1, 1, 1, 1, 1),
			{Err: transform.ErrStreamChange, Before: func(f *transformtest.Fake) {
				f.Current = nil
				f.Info.Flags = transform.FlagProvidesSamples
			}},
			transformtest.Unit(1, 1, 7),
		},
	}
	units, err := collect(t, NewDriver(fakeSession(t, f), source.Bytes([]byte("xyz")), WithSizer(source.FixedSize(1))))
	require.NoError(t, err)
	require.Len(t, units, 2)
	require.Equal(t, []int{6, 6, -1}, f.Storage[:3])
}

func TestDriver_EmptyStream(t *testing.T) {
	f := &transformtest.Fake{}
	d := NewDriver(fakeSession(t, f), source.Bytes(nil))

	units, err := collect(t, d)
	require.NoError(t, err)
	require.Empty(t, units)
	require.Zero(t, f.FeedCalls)
	require.Equal(t, 1, f.Drains)
	require.Equal(t, Finished, d.State())

	_, err = d.Next(context.Background())
	require.ErrorIs(t, err, io.EOF)
}

func TestDriver_TinyStreamIsOneChunk(t *testing.T) {
	data, err := refdec.Generator{Segments: []refdec.Segment{{Size: media.Size{Width: 16, Height: 16}, Frames: 1}}, PayloadSize: 8}.Bytes()
	require.NoError(t, err)
	s := transform.NewSession(refdec.New())
	require.NoError(t, s.Configure(h264(), media.SubtypeNV12))
	d := NewDriver(s, source.Bytes(data), WithSizer(source.FixedSize(4096)))

	units, err := collect(t, d)
	require.NoError(t, err)
	require.Len(t, units, 1, "the only frame comes out of the drain")
	require.Equal(t, uint64(1), d.Stats().Chunks)
}

func TestDriver_SpuriousFormatChange(t *testing.T) {
	f := &transformtest.Fake{
		Steps: []transformtest.Step{
			transformtest.Unit(0, 400_000, 1, 1, 1, 1, 1, 1),
			transformtest.StreamChange(),
			transformtest.Unit(400_000, 400_000, 2, 2, 2, 2, 2, 2),
			transformtest.Unit(800_000, 400_000, 3, 3, 3, 3, 3, 3),
		},
	}
	s := fakeSession(t, f)
	d := NewDriver(s, source.Bytes(make([]byte, 10)), WithSizer(source.FixedSize(2)))
	ctx := context.Background()

	u, err := d.Next(ctx)
	require.NoError(t, err)
	require.Equal(t, media.Tick(0), u.PresentationTime)
	require.Len(t, f.Fed, 1)

	u, err = d.Next(ctx)
	require.NoError(t, err)
	require.Equal(t, media.Tick(400_000), u.PresentationTime)
	require.Len(t, f.Fed, 2, "no chunk is fed between the format change and the next pull")
	require.Len(t, f.SetOutputs, 2)
	n, ok := s.OutputSampleSize()
	require.True(t, ok)
	require.Equal(t, uint32(6), n)

	u, err = d.Next(ctx)
	require.NoError(t, err)
	require.Equal(t, media.Tick(800_000), u.PresentationTime)

	rest, err := collect(t, d)
	require.NoError(t, err)
	require.Empty(t, rest)
	require.Equal(t, []int{6, 6, 6, 6}, f.Storage[:4])
}

func TestDriver_FatalErrorsAreTerminal(t *testing.T) {
	boom := errors.New("boom")

	t.Run("feed", func(t *testing.T) {
		f := &transformtest.Fake{FeedErr: boom}
		d := NewDriver(fakeSession(t, f), source.Bytes([]byte("abc")))
		_, err := d.Next(context.Background())
		var oe *transform.OpError
		require.ErrorAs(t, err, &oe)
		require.Equal(t, "process_input", oe.Op)
		require.Equal(t, Finished, d.State())

		_, again := d.Next(context.Background())
		require.Equal(t, err, again, "errors are sticky")
	})

	t.Run("pull", func(t *testing.T) {
		f := &transformtest.Fake{Steps: []transformtest.Step{{Err: boom}}}
		units, err := collect(t, NewDriver(fakeSession(t, f), source.Bytes([]byte("abc"))))
		require.Empty(t, units)
		require.ErrorIs(t, err, boom)
		var oe *transform.OpError
		require.ErrorAs(t, err, &oe)
		require.Equal(t, "process_output", oe.Op)
	})

	t.Run("source", func(t *testing.T) {
		f := &transformtest.Fake{}
		_, err := collect(t, NewDriver(fakeSession(t, f), errReader{boom}))
		var se *SourceError
		require.ErrorAs(t, err, &se)
		require.ErrorIs(t, err, boom)
		var oe *transform.OpError
		require.False(t, errors.As(err, &oe))
		require.Zero(t, f.Drains, "a failed stream is never drained as if it ended")
	})

	t.Run("renegotiation", func(t *testing.T) {
		f := &transformtest.Fake{Steps: []transformtest.Step{
			transformtest.StreamChange(transformtest.VideoType(media.SubtypeYUY2, 8)),
		}}
		_, err := collect(t, NewDriver(fakeSession(t, f), source.Bytes([]byte("abc"))))
		require.ErrorIs(t, err, transform.ErrNoMatchingOutputFormat)
	})
}

func TestDriver_StallBound(t *testing.T) {
	f := &transformtest.Fake{Busy: slices.Repeat([]bool{true}, 10)}
	_, err := collect(t, NewDriver(fakeSession(t, f), source.Bytes([]byte("abc")), WithMaxBusyRetries(3)))
	require.ErrorIs(t, err, ErrTransformStalled)
	require.Equal(t, 4, f.FeedCalls)
}

func TestDriver_CancelDrainsThenReportsCause(t *testing.T) {
	f := &transformtest.Fake{Steps: []transformtest.Step{
		transformtest.Unit(0, 1, 1, 1, 1, 1, 1, 1),
		transformtest.Unit(1, 1, 2, 2, 2, 2, 2, 2),
		transformtest.Unit(2, 1, 3, 3, 3, 3, 3, 3),
	}}
	d := NewDriver(fakeSession(t, f), source.Bytes(make([]byte, 100)), WithSizer(source.FixedSize(10)))
	ctx, cancel := context.WithCancel(context.Background())

	_, err := d.Next(ctx)
	require.NoError(t, err)
	cancel()

	var drained int
	for _, err := range d.Units(ctx) {
		if err != nil {
			require.ErrorIs(t, err, context.Canceled)
			break
		}
		drained++
	}
	require.Equal(t, 2, drained)
	require.Len(t, f.Fed, 1)
	require.Equal(t, 1, f.Drains)
}

func TestDriver_CancelDropsPendingChunk(t *testing.T) {
	f := &transformtest.Fake{
		Busy:  []bool{true},
		Steps: []transformtest.Step{transformtest.Unit(0, 1, 1, 1, 1, 1, 1, 1)},
	}
	d := NewDriver(fakeSession(t, f), source.Bytes([]byte("abc")))
	ctx, cancel := context.WithCancel(context.Background())

	_, err := d.Next(ctx)
	require.NoError(t, err)
	cancel()

	_, err = d.Next(ctx)
	require.ErrorIs(t, err, context.Canceled)
	require.Empty(t, f.Fed)
	require.Equal(t, 1, f.Drains)
}

func TestDriver_BusyBackoffIsInterruptible(t *testing.T) {
	f := &transformtest.Fake{Busy: []bool{true}}
	d := NewDriver(fakeSession(t, f), source.Bytes([]byte("abc")), WithBusyBackoff(time.Hour))
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := d.Next(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)
	require.Less(t, time.Since(start), time.Minute)
}
