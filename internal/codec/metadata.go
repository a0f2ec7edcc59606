package codec

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/evanoberholster/imagemeta"
	"github.com/rs/zerolog/log"
)

// Metadata is the EXIF provenance kept with a saved edit.
type Metadata struct {
	CameraMake  string
	CameraModel string

	DateTaken time.Time
	HasDate   bool

	Latitude  float64
	Longitude float64
	HasGPS    bool
}

// ReadMetadata extracts EXIF fields with imagemeta. Only the metadata
// blocks are read, not the pixel data. Files without EXIF (most PNGs)
// return an error; callers treat that as "no provenance".
func ReadMetadata(r io.ReadSeeker) (*Metadata, error) {
	exifData, err := imagemeta.Decode(r)
	if err != nil {
		return nil, fmt.Errorf("failed to decode EXIF metadata: %w", err)
	}

	md := &Metadata{
		CameraMake:  strings.TrimSpace(exifData.Make),
		CameraModel: strings.TrimSpace(exifData.Model),
	}

	gps := exifData.GPS
	if gps.Latitude() != 0 || gps.Longitude() != 0 {
		md.Latitude = gps.Latitude()
		md.Longitude = gps.Longitude()
		md.HasGPS = true
	}

	// DateTimeOriginal, then CreateDate, then ModifyDate
	for _, t := range []time.Time{exifData.DateTimeOriginal(), exifData.CreateDate(), exifData.ModifyDate()} {
		if !t.IsZero() {
			md.DateTaken = t
			md.HasDate = true
			break
		}
	}
	return md, nil
}

// ReadMetadataFile opens path and reads its EXIF metadata.
func ReadMetadataFile(path string) (*Metadata, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	defer f.Close()

	md, err := ReadMetadata(f)
	if err != nil {
		return nil, err
	}
	log.Debug().
		Str("path", path).
		Bool("has_gps", md.HasGPS).
		Bool("has_date", md.HasDate).
		Str("camera", strings.TrimSpace(md.CameraMake+" "+md.CameraModel)).
		Msg("Image metadata extracted")
	return md, nil
}
