package cli

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/ncruces/zenity"
	"github.com/rs/zerolog/log"

	"github.com/fpang/beauty-retouch/internal/codec"
)

// ErrCanceled is returned when the user dismisses the picker or enters
// nothing at the prompt.
var ErrCanceled = errors.New("no image selected")

// PromptForImage asks for an image path on stdin.
func PromptForImage() (string, error) {
	return promptFrom(os.Stdin, os.Stdout)
}

func promptFrom(in io.Reader, out io.Writer) (string, error) {
	fmt.Fprint(out, "Image path: ")

	reader := bufio.NewReader(in)
	input, err := reader.ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		log.Warn().Err(err).Msg("Failed to read input")
		return "", err
	}

	input = strings.TrimSpace(input)
	if input == "" {
		return "", ErrCanceled
	}
	return input, nil
}

// PickImage opens the native file dialog filtered to decodable images.
func PickImage() (string, error) {
	selected, err := zenity.SelectFile(
		zenity.Title("Select a photo to retouch"),
		zenity.FileFilters{
			{
				Name:     "Images",
				Patterns: imagePatterns(),
			},
		},
	)
	if err != nil {
		if errors.Is(err, zenity.ErrCanceled) {
			return "", ErrCanceled
		}
		log.Error().Err(err).Msg("File picker failed")
		return "", fmt.Errorf("file picker failed: %w", err)
	}
	log.Info().Str("path", selected).Msg("Image picked via native dialog")
	return selected, nil
}

func imagePatterns() []string {
	patterns := make([]string, 0, len(codec.SupportedExtensions))
	for ext := range codec.SupportedExtensions {
		patterns = append(patterns, "*"+ext)
	}
	sort.Strings(patterns)
	return patterns
}
