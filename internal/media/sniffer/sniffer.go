package sniffer

import (
	"bytes"
	"errors"
	"io"
	"strings"
)

type MediaType string

const (
	TypeJPEG      MediaType = "jpeg"
	TypePNG       MediaType = "png"
	TypeGIF       MediaType = "gif"
	TypeWEBP      MediaType = "webp"
	TypeAVIF      MediaType = "avif"
	TypeMP4       MediaType = "mp4"
	TypeQuickTime MediaType = "mov"
)

var ErrUnknownType = errors.New("unknown media type")

type Result struct {
	Type MediaType
	MIME string
}

// Video reports whether the detected container holds a video.
func (r Result) Video() bool {
	return strings.HasPrefix(r.MIME, "video/")
}

func Detect(r io.Reader) (Result, []byte, error) {
	head := make([]byte, 512)
	n, err := io.ReadFull(r, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return Result{}, nil, err
	}
	head = head[:n]

	result, err := DetectHead(head)
	return result, head, err
}

func DetectHead(head []byte) (Result, error) {
	if len(head) == 0 {
		return Result{}, ErrUnknownType
	}

	if isJPEG(head) {
		return Result{Type: TypeJPEG, MIME: "image/jpeg"}, nil
	}
	if isPNG(head) {
		return Result{Type: TypePNG, MIME: "image/png"}, nil
	}
	if isGIF(head) {
		return Result{Type: TypeGIF, MIME: "image/gif"}, nil
	}
	if isWEBP(head) {
		return Result{Type: TypeWEBP, MIME: "image/webp"}, nil
	}
	if brand, ok := ftypBrand(head); ok {
		switch {
		case brand == "avif" || brand == "avis":
			return Result{Type: TypeAVIF, MIME: "image/avif"}, nil
		case brand == "qt  ":
			return Result{Type: TypeQuickTime, MIME: "video/quicktime"}, nil
		case isMP4Brand(brand):
			return Result{Type: TypeMP4, MIME: "video/mp4"}, nil
		}
	}

	return Result{}, ErrUnknownType
}

func isJPEG(head []byte) bool {
	return len(head) > 3 &&
		head[0] == 0xff &&
		head[1] == 0xd8 &&
		head[2] == 0xff
}

func isPNG(head []byte) bool {
	pngMagic := []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n'}
	return len(head) >= len(pngMagic) && bytes.Equal(head[:len(pngMagic)], pngMagic)
}

func isGIF(head []byte) bool {
	return len(head) >= 6 && (bytes.Equal(head[:6], []byte("GIF87a")) || bytes.Equal(head[:6], []byte("GIF89a")))
}

func isWEBP(head []byte) bool {
	return len(head) >= 12 &&
		bytes.Equal(head[:4], []byte("RIFF")) &&
		bytes.Equal(head[8:12], []byte("WEBP"))
}

// ftypBrand returns the major brand of an ISO base media file.
func ftypBrand(head []byte) (string, bool) {
	if len(head) < 12 || string(head[4:8]) != "ftyp" {
		return "", false
	}
	return string(head[8:12]), true
}

func isMP4Brand(brand string) bool {
	switch brand {
	case "isom", "iso2", "iso4", "iso5", "iso6", "mp41", "mp42", "avc1", "dash", "M4V ", "M4VH", "MSNV", "3gp4", "3gp5", "3g2a":
		return true
	}
	return false
}

// NormalizeMIME lowercases a declared content type, drops parameters and
// folds common aliases.
func NormalizeMIME(contentType string) string {
	if idx := strings.Index(contentType, ";"); idx >= 0 {
		contentType = contentType[:idx]
	}
	mime := strings.ToLower(strings.TrimSpace(contentType))
	switch mime {
	case "image/jpg", "image/pjpeg":
		return "image/jpeg"
	case "video/mov":
		return "video/quicktime"
	}
	return mime
}
