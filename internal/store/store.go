// Package store persists finished editing sessions.
//
// The durable record of an edit is its operation list, not a flattened
// image diff: re-applying the list to the retained original reproduces the
// working image exactly, which is what lets a session be reopened later
// without recompression loss. The encoded working image is stored next to
// the list for consumers that only want the result.
//
// Records are keyed by a reference derived from the original image
// (see RefFor). Two backends exist: FileStore (local directory, zstd
// compressed JSON) and DynamoStore (single-table DynamoDB design with the
// image bytes in S3).
package store

import (
	"context"
	"fmt"
	"regexp"
	"time"

	"github.com/fpang/beauty-retouch/internal/editerr"
	"github.com/fpang/beauty-retouch/internal/operation"
)

// DefaultTTL is how long a DynamoDB edit record lives without being saved
// again. Zero disables expiry.
const DefaultTTL = 30 * 24 * time.Hour

// EditStore saves and loads edit records. Implementations are safe for
// concurrent use.
//
// Load returns (nil, nil, nil) when no record exists for ref. Save replaces
// any existing record.
type EditStore interface {
	Save(ctx context.Context, rec *EditRecord, working []byte) error
	Load(ctx context.Context, ref string) (*EditRecord, []byte, error)
	Delete(ctx context.Context, ref string) error
}

// Provenance is metadata read from the original file.
type Provenance struct {
	CameraMake  string     `json:"cameraMake,omitempty" dynamodbav:"cameraMake,omitempty"`
	CameraModel string     `json:"cameraModel,omitempty" dynamodbav:"cameraModel,omitempty"`
	TakenAt     *time.Time `json:"takenAt,omitempty" dynamodbav:"takenAt,omitempty"`
	Latitude    float64    `json:"latitude,omitempty" dynamodbav:"latitude,omitempty"`
	Longitude   float64    `json:"longitude,omitempty" dynamodbav:"longitude,omitempty"`
}

// EditRecord is one saved session.
type EditRecord struct {
	// Ref identifies the original image. Derived from PK on DynamoDB reads.
	Ref        string `json:"ref" dynamodbav:"-"`
	SourcePath string `json:"sourcePath,omitempty" dynamodbav:"sourcePath,omitempty"`
	Width      int    `json:"width" dynamodbav:"width"`
	Height     int    `json:"height" dynamodbav:"height"`
	// Format is the encoding of the stored working image (png, jpeg).
	Format string `json:"format" dynamodbav:"format"`
	// WorkingFingerprint is raster.Image.Fingerprint of the working image
	// at save time, hex encoded.
	WorkingFingerprint string      `json:"workingFingerprint" dynamodbav:"workingFingerprint"`
	Provenance         *Provenance `json:"provenance,omitempty" dynamodbav:"provenance,omitempty"`
	SavedAt            time.Time   `json:"savedAt" dynamodbav:"savedAt"`
	// Operations is the applied log, oldest first. DynamoStore keeps each
	// entry in its own item.
	Operations []operation.Record `json:"operations" dynamodbav:"-"`
}

var refPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,128}$`)

// RefFor formats an original-image fingerprint as a record reference.
func RefFor(fingerprint uint64) string {
	return fmt.Sprintf("%016x", fingerprint)
}

// ValidateRef rejects references that are unsafe as file names or keys.
func ValidateRef(ref string) error {
	if !refPattern.MatchString(ref) {
		return editerr.Input("ref", "%q must be 1-128 letters, digits, '-' or '_'", ref)
	}
	return nil
}

func (r *EditRecord) validate() error {
	if r == nil {
		return editerr.Input("record", "must not be nil")
	}
	if err := ValidateRef(r.Ref); err != nil {
		return err
	}
	if r.Width <= 0 || r.Height <= 0 {
		return editerr.Input("record.size", "invalid size %dx%d", r.Width, r.Height)
	}
	return nil
}
