package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/zstd"
	"github.com/rs/zerolog/log"
)

const (
	recordFile  = "edit.json.zst"
	workingFile = "working.img"
)

// FileStore keeps each record in its own directory under root:
//
//	<root>/<ref>/edit.json.zst   zstd-compressed EditRecord
//	<root>/<ref>/working.img     encoded working image
//
// Files are written to a temporary name and renamed into place, so a
// crash never leaves a half-written record.
type FileStore struct {
	root string
}

var _ EditStore = (*FileStore)(nil)

// NewFileStore returns a store rooted at dir, creating it if needed.
func NewFileStore(dir string) (*FileStore, error) {
	if dir == "" {
		return nil, errors.New("file store: empty directory")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create store directory: %w", err)
	}
	return &FileStore{root: dir}, nil
}

// Root returns the store directory.
func (s *FileStore) Root() string { return s.root }

func (s *FileStore) Save(ctx context.Context, rec *EditRecord, working []byte) error {
	if err := rec.validate(); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	dir := filepath.Join(s.root, rec.Ref)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create record directory: %w", err)
	}

	if err := writeAtomic(filepath.Join(dir, workingFile), func(f *os.File) error {
		_, err := f.Write(working)
		return err
	}); err != nil {
		return fmt.Errorf("write working image: %w", err)
	}

	if err := writeAtomic(filepath.Join(dir, recordFile), func(f *os.File) error {
		enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.EncoderLevelFromZstd(12)))
		if err != nil {
			return err
		}
		if err := json.NewEncoder(enc).Encode(rec); err != nil {
			enc.Close()
			return err
		}
		return enc.Close()
	}); err != nil {
		return fmt.Errorf("write edit record: %w", err)
	}

	log.Info().
		Str("ref", rec.Ref).
		Int("operations", len(rec.Operations)).
		Int("image_bytes", len(working)).
		Str("dir", dir).
		Msg("Edit record saved")
	return nil
}

func (s *FileStore) Load(ctx context.Context, ref string) (*EditRecord, []byte, error) {
	if err := ValidateRef(ref); err != nil {
		return nil, nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}

	dir := filepath.Join(s.root, ref)
	f, err := os.Open(filepath.Join(dir, recordFile))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil, nil
	}
	if err != nil {
		return nil, nil, fmt.Errorf("open edit record: %w", err)
	}
	defer f.Close()

	dec, err := zstd.NewReader(f)
	if err != nil {
		return nil, nil, fmt.Errorf("zstd reader: %w", err)
	}
	defer dec.Close()

	var rec EditRecord
	if err := json.NewDecoder(dec).Decode(&rec); err != nil {
		return nil, nil, fmt.Errorf("decode edit record %s: %w", ref, err)
	}
	rec.Ref = ref

	working, err := os.ReadFile(filepath.Join(dir, workingFile))
	if err != nil {
		return nil, nil, fmt.Errorf("read working image: %w", err)
	}

	log.Debug().Str("ref", ref).Int("operations", len(rec.Operations)).Msg("Edit record loaded")
	return &rec, working, nil
}

// Delete removes the record directory. Deleting a missing record succeeds.
func (s *FileStore) Delete(_ context.Context, ref string) error {
	if err := ValidateRef(ref); err != nil {
		return err
	}
	if err := os.RemoveAll(filepath.Join(s.root, ref)); err != nil {
		return fmt.Errorf("delete edit record: %w", err)
	}
	log.Info().Str("ref", ref).Msg("Edit record deleted")
	return nil
}

func writeAtomic(path string, write func(*os.File) error) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if err := write(tmp); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}
