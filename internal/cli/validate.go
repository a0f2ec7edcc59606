package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/fpang/beauty-retouch/internal/codec"
)

// ValidateAndResolveFile checks that the path exists, is a regular file and
// has a decodable image extension, then returns the absolute path.
func ValidateAndResolveFile(path string) (string, error) {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", fmt.Errorf("file not found: %s", path)
		}
		return "", fmt.Errorf("failed to access %s: %w", path, err)
	}
	if info.IsDir() {
		return "", fmt.Errorf("path is a directory: %s", path)
	}
	if !codec.IsSupported(path) {
		return "", fmt.Errorf("unsupported image type: %s", filepath.Ext(path))
	}

	if abs, err := filepath.Abs(path); err == nil {
		path = abs
	}
	return path, nil
}
