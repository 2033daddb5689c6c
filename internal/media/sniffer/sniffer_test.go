package sniffer

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ftyp(brand string) []byte {
	head := []byte{0x00, 0x00, 0x00, 0x20}
	head = append(head, "ftyp"...)
	head = append(head, brand...)
	return append(head, 0x00, 0x00, 0x02, 0x00)
}

func TestDetectHead(t *testing.T) {
	tests := []struct {
		name  string
		head  []byte
		want  MediaType
		mime  string
		video bool
	}{
		{name: "jpeg", head: []byte{0xff, 0xd8, 0xff, 0xe0, 0x00}, want: TypeJPEG, mime: "image/jpeg"},
		{name: "png", head: []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n', 0x00}, want: TypePNG, mime: "image/png"},
		{name: "gif", head: []byte("GIF89a...."), want: TypeGIF, mime: "image/gif"},
		{name: "webp", head: []byte("RIFF\x00\x00\x00\x00WEBPVP8 "), want: TypeWEBP, mime: "image/webp"},
		{name: "avif", head: ftyp("avif"), want: TypeAVIF, mime: "image/avif"},
		{name: "mp4", head: ftyp("isom"), want: TypeMP4, mime: "video/mp4", video: true},
		{name: "quicktime", head: ftyp("qt  "), want: TypeQuickTime, mime: "video/quicktime", video: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DetectHead(tt.head)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got.Type)
			assert.Equal(t, tt.mime, got.MIME)
			assert.Equal(t, tt.video, got.Video())
		})
	}
}

func TestDetectHead_Unknown(t *testing.T) {
	for _, head := range [][]byte{nil, []byte("<svg></svg>"), []byte("plain text"), ftyp("heic")} {
		_, err := DetectHead(head)
		assert.ErrorIs(t, err, ErrUnknownType)
	}
}

func TestDetect_ShortReader(t *testing.T) {
	res, head, err := Detect(bytes.NewReader([]byte{0xff, 0xd8, 0xff, 0xdb}))
	require.NoError(t, err)
	assert.Equal(t, TypeJPEG, res.Type)
	assert.Len(t, head, 4)
}

func TestNormalizeMIME(t *testing.T) {
	assert.Equal(t, "image/jpeg", NormalizeMIME("image/JPG"))
	assert.Equal(t, "video/mp4", NormalizeMIME("video/mp4; codecs=avc1"))
	assert.Equal(t, "video/quicktime", NormalizeMIME("video/mov"))
	assert.Equal(t, "", NormalizeMIME(""))
}
