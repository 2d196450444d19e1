package identify

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/webp"
)

// MaxImageSize is the largest accepted upload.
const MaxImageSize = 10 << 20

var formatMIME = map[string]string{
	"png":  "image/png",
	"jpeg": "image/jpeg",
	"gif":  "image/gif",
	"webp": "image/webp",
}

// ImageInfo describes a sniffed upload.
type ImageInfo struct {
	MIME   string
	Width  int
	Height int
}

// SniffImage checks that data is a PNG, JPEG, GIF or WebP image by
// decoding its header. The declared content type is ignored.
func SniffImage(data []byte) (ImageInfo, error) {
	if len(data) == 0 {
		return ImageInfo{}, fmt.Errorf("%w: empty image", ErrUnsupported)
	}
	if len(data) > MaxImageSize {
		return ImageInfo{}, fmt.Errorf("%w: image larger than %d bytes", ErrUnsupported, MaxImageSize)
	}
	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return ImageInfo{}, fmt.Errorf("%w: %v", ErrUnsupported, err)
	}
	mime, ok := formatMIME[format]
	if !ok {
		return ImageInfo{}, fmt.Errorf("%w: image format %s", ErrUnsupported, format)
	}
	return ImageInfo{MIME: mime, Width: cfg.Width, Height: cfg.Height}, nil
}
