package codec

import (
	"bytes"
	"image/color"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/fpang/beauty-retouch/internal/raster"
)

func gradient(t *testing.T, w, h int) *raster.Image {
	t.Helper()
	img, err := raster.New(w, h)
	if err != nil {
		t.Fatalf("raster.New: %v", err)
	}
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.NRGBA{R: uint8(x * 255 / w), G: uint8(y * 255 / h), B: 80, A: 255})
		}
	}
	return img
}

func TestPNGRoundTrip(t *testing.T) {
	img := gradient(t, 17, 9)
	data, err := EncodeBytes(img, FormatPNG)
	if err != nil {
		t.Fatalf("EncodeBytes: %v", err)
	}
	got, format, err := Decode(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if format != FormatPNG {
		t.Errorf("expected png, got %s", format)
	}
	if !got.Equal(img) {
		t.Error("expected lossless round trip")
	}
}

func TestJPEGEncodeDecode(t *testing.T) {
	img := gradient(t, 32, 16)
	dir := t.TempDir()
	path := filepath.Join(dir, "out.jpg")
	if err := EncodeFile(path, img, FormatFor(path)); err != nil {
		t.Fatalf("EncodeFile: %v", err)
	}
	got, format, err := DecodeFile(path)
	if err != nil {
		t.Fatalf("DecodeFile: %v", err)
	}
	if format != FormatJPEG || got.Width != 32 || got.Height != 16 {
		t.Errorf("expected 32x16 jpeg, got %dx%d %s", got.Width, got.Height, format)
	}
}

func TestEncodeUnsupported(t *testing.T) {
	if _, err := EncodeBytes(gradient(t, 2, 2), FormatWebP); err == nil {
		t.Error("expected error for webp output")
	}
}

func TestDecodeGarbage(t *testing.T) {
	if _, _, err := Decode(strings.NewReader("not an image")); err == nil {
		t.Error("expected decode error")
	}
	if _, _, err := DecodeFile(filepath.Join(t.TempDir(), "missing.png")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestFormats(t *testing.T) {
	tests := []struct {
		path      string
		supported bool
		out       string
	}{
		{"a.png", true, FormatPNG},
		{"a.JPG", true, FormatJPEG},
		{"a.jpeg", true, FormatJPEG},
		{"a.webp", true, FormatPNG},
		{"a.heic", false, FormatPNG},
	}
	for _, tt := range tests {
		if got := IsSupported(tt.path); got != tt.supported {
			t.Errorf("IsSupported(%s): expected %v, got %v", tt.path, tt.supported, got)
		}
		if got := FormatFor(tt.path); got != tt.out {
			t.Errorf("FormatFor(%s): expected %s, got %s", tt.path, tt.out, got)
		}
	}
	if OutputFormat(FormatWebP) != FormatPNG || OutputFormat(FormatJPEG) != FormatJPEG {
		t.Error("unexpected output format mapping")
	}
}

func TestThumbnail(t *testing.T) {
	tests := []struct {
		w, h, limit  int
		wantW, wantH int
	}{
		{800, 400, 200, 200, 100},
		{300, 900, 300, 100, 300},
		{50, 40, 400, 50, 40},
	}
	for _, tt := range tests {
		got := Thumbnail(gradient(t, tt.w, tt.h), tt.limit)
		if got.Width != tt.wantW || got.Height != tt.wantH {
			t.Errorf("%dx%d limit %d: expected %dx%d, got %dx%d", tt.w, tt.h, tt.limit, tt.wantW, tt.wantH, got.Width, got.Height)
		}
		if len(got.Pix) != 4*got.Width*got.Height {
			t.Errorf("unexpected buffer length %d", len(got.Pix))
		}
	}
}

func TestReadMetadataWithoutEXIF(t *testing.T) {
	path := filepath.Join(t.TempDir(), "plain.txt")
	if err := os.WriteFile(path, []byte("no exif here"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	if _, err := ReadMetadataFile(path); err == nil {
		t.Error("expected error for a file without metadata")
	}
}
