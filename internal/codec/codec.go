// Package codec converts between encoded image files and raster buffers.
// Decoding accepts PNG, JPEG and WebP; the working image is written back as
// PNG (lossless, the default) or JPEG.
package codec

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"
	"image/png"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog/log"
	_ "golang.org/x/image/webp" // register the WebP decoder

	"github.com/fpang/beauty-retouch/internal/raster"
)

// Format names as returned by image.Decode.
const (
	FormatPNG  = "png"
	FormatJPEG = "jpeg"
	FormatWebP = "webp"
)

// JPEGQuality is used when encoding JPEG output.
const JPEGQuality = 92

// SupportedExtensions maps file extensions to decodable formats.
var SupportedExtensions = map[string]string{
	".png":  FormatPNG,
	".jpg":  FormatJPEG,
	".jpeg": FormatJPEG,
	".webp": FormatWebP,
}

// IsSupported reports whether the file extension is decodable.
func IsSupported(path string) bool {
	_, ok := SupportedExtensions[strings.ToLower(filepath.Ext(path))]
	return ok
}

// OutputFormat picks the encoding for a saved working image: JPEG input
// stays JPEG, everything else becomes PNG.
func OutputFormat(inputFormat string) string {
	if inputFormat == FormatJPEG {
		return FormatJPEG
	}
	return FormatPNG
}

// Decode reads an encoded image into a raster buffer and returns the
// detected format name.
func Decode(r io.Reader) (*raster.Image, string, error) {
	img, format, err := image.Decode(r)
	if err != nil {
		return nil, "", fmt.Errorf("decode image: %w", err)
	}
	return raster.FromImage(img), format, nil
}

// DecodeFile opens and decodes path.
func DecodeFile(path string) (*raster.Image, string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, "", fmt.Errorf("failed to open file: %w", err)
	}
	defer f.Close()

	img, format, err := Decode(f)
	if err != nil {
		return nil, "", fmt.Errorf("%s: %w", path, err)
	}
	log.Debug().
		Str("path", path).
		Str("format", format).
		Int("width", img.Width).
		Int("height", img.Height).
		Msg("Image decoded")
	return img, format, nil
}

// Encode writes img to w in the given format (png or jpeg).
func Encode(w io.Writer, img *raster.Image, format string) error {
	switch format {
	case FormatPNG:
		return png.Encode(w, img.NRGBA())
	case FormatJPEG:
		return jpeg.Encode(w, img.NRGBA(), &jpeg.Options{Quality: JPEGQuality})
	default:
		return fmt.Errorf("unsupported output format %q", format)
	}
}

// EncodeBytes encodes img into memory.
func EncodeBytes(img *raster.Image, format string) ([]byte, error) {
	var buf bytes.Buffer
	if err := Encode(&buf, img, format); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// EncodeFile writes img to path in the given format.
func EncodeFile(path string, img *raster.Image, format string) error {
	data, err := EncodeBytes(img, format)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}

// FormatFor returns the output format implied by a file extension,
// defaulting to PNG.
func FormatFor(path string) string {
	if SupportedExtensions[strings.ToLower(filepath.Ext(path))] == FormatJPEG {
		return FormatJPEG
	}
	return FormatPNG
}
