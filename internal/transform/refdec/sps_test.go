package refdec

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"

	"framepump/internal/media"
)

func TestParseSPS_RealStreams(t *testing.T) {
	cases := []struct {
		name string
		nal  []byte
		want media.Size
	}{
		{
			name: "high 720p",
			nal: []byte{
				0x67, 0x64, 0x00, 0x1f, 0xac, 0xd9, 0x40, 0x50,
				0x05, 0xbb, 0xff, 0x00, 0x03, 0x00, 0x04, 0x6a,
				0x02, 0x02, 0x02, 0x80, 0x00, 0x01, 0xf4, 0x80,
				0x00, 0x5d, 0xc0, 0x07, 0x8c, 0x18, 0xcb,
			},
			want: media.Size{Width: 1280, Height: 720},
		},
		{
			name: "main 256x192",
			nal: []byte{
				0x67, 0x4d, 0x40, 0x1f, 0xb9, 0x08, 0x08, 0x0c,
				0xd8, 0x0b, 0x50, 0x10, 0x10, 0x14, 0x00, 0x00,
				0x0f, 0xa4, 0x00, 0x02, 0xee, 0x03, 0x81, 0x80,
				0x04, 0x93, 0xc0, 0x02, 0x49, 0xe8, 0xa0, 0xc0,
				0x3a, 0x8e, 0x18, 0xc9,
			},
			want: media.Size{Width: 256, Height: 192},
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			sps, err := ParseSPS(tc.nal)
			require.NoError(t, err)
			require.Equal(t, tc.want, sps.Size)
		})
	}
}

func TestEncodeSPS_RoundTrip(t *testing.T) {
	for _, size := range []media.Size{
		{Width: 1920, Height: 1080},
		{Width: 1280, Height: 720},
		{Width: 640, Height: 480},
		{Width: 176, Height: 144},
		{Width: 18, Height: 34},
		{Width: 2, Height: 2},
	} {
		t.Run(size.String(), func(t *testing.T) {
			nal, err := EncodeSPS(3, size)
			require.NoError(t, err)
			require.Equal(t, byte(nalSPS), nalType(nal))
			require.False(t, bytes.Contains(nal, startCode), "escaped sps must not contain a start code")

			sps, err := ParseSPS(nal)
			require.NoError(t, err)
			require.Equal(t, size, sps.Size)
			require.Equal(t, byte(66), sps.ProfileIDC)
			require.Equal(t, byte(30), sps.LevelIDC)
			require.Equal(t, uint32(3), sps.ID)
		})
	}
}

func TestEncodeSPS_RejectsOddSizes(t *testing.T) {
	_, err := EncodeSPS(0, media.Size{Width: 641, Height: 480})
	require.Error(t, err)
	_, err = EncodeSPS(0, media.Size{})
	require.Error(t, err)
}

func TestParseSPS_TooShort(t *testing.T) {
	_, err := ParseSPS(nil)
	require.Error(t, err)
	_, err = ParseSPS([]byte{0x67, 0x64, 0x00})
	require.Error(t, err)
}

func TestRBSPEscaping(t *testing.T) {
	raw := []byte{0x00, 0x00, 0x01, 0x00, 0x00, 0x00, 0x05, 0x00, 0x00}
	esc := escapeRBSP(raw)
	require.Equal(t, []byte{0x00, 0x00, 0x03, 0x01, 0x00, 0x00, 0x03, 0x00, 0x05, 0x00, 0x00}, esc)
	require.Equal(t, raw, unescapeRBSP(esc))
}
