package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/fpang/beauty-retouch/internal/cli"
	"github.com/fpang/beauty-retouch/internal/session"
)

// edit flags
var (
	editScriptFlag string
	editFacesFlag  string
	editOutFlag    string
	editThumbFlag  string
	editPickFlag   bool
	editResumeFlag bool
	editNoSaveFlag bool
)

var editCmd = &cobra.Command{
	Use:   "edit [image]",
	Short: "Apply an edit script to an image and save the session",
	Long: `Edit replays a JSON edit script (strokes plus undo/redo/reset commands)
against an image through the same session controller a UI would drive, then
saves the working image and edit log to the configured store.

The script format is:
  {"steps": [
    {"tool": "skinSmoothing", "intensity": 0.6,
     "stroke": [{"x": 120, "y": 80, "p": 1}, {"x": 140, "y": 82, "p": 0.8}]},
    {"action": "undo"},
    {"tool": "lipColor", "paletteColor": 1, "stroke": [{"x": 200, "y": 310, "p": 1}]}
  ]}`,
	Args: cobra.MaximumNArgs(1),
	RunE: runEdit,
}

func init() {
	editCmd.Flags().StringVarP(&editScriptFlag, "script", "s", "", "JSON edit script to apply (required)")
	editCmd.Flags().StringVar(&editFacesFlag, "faces", "", "JSON face description used for region-scoped tools")
	editCmd.Flags().StringVarP(&editOutFlag, "out", "o", "", "Write the working image to this path")
	editCmd.Flags().StringVar(&editThumbFlag, "thumbnail", "", "Write a preview thumbnail to this path")
	editCmd.Flags().BoolVar(&editPickFlag, "pick", false, "Choose the image with the native file dialog")
	editCmd.Flags().BoolVar(&editResumeFlag, "resume", false, "Continue from the saved edit log for this image")
	editCmd.Flags().BoolVar(&editNoSaveFlag, "no-save", false, "Do not save the session to the store")
	_ = editCmd.MarkFlagRequired("script")
	rootCmd.AddCommand(editCmd)
}

func runEdit(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	e, err := setup(ctx, "retouch edit")
	if err != nil {
		return err
	}

	path, err := resolveImage(args, editPickFlag)
	if err != nil {
		if errors.Is(err, cli.ErrCanceled) {
			log.Info().Msg("No image selected")
			return nil
		}
		return err
	}
	script, err := ReadScriptFile(editScriptFlag)
	if err != nil {
		return err
	}
	in, err := loadImage(path)
	if err != nil {
		return err
	}
	c, err := newSession(e, in, editFacesFlag)
	if err != nil {
		return err
	}
	c.Subscribe(func(ev session.Event) {
		log.Debug().
			Str("event", string(ev.Kind)).
			Int("operations", ev.OperationCount).
			Bool("canUndo", ev.CanUndo).
			Bool("canRedo", ev.CanRedo).
			Msg("Session changed")
	})

	if editResumeFlag {
		ok, err := c.Resume(ctx)
		if err != nil {
			return err
		}
		if !ok {
			log.Warn().Str("ref", c.Ref()).Msg("No saved edit to resume, starting fresh")
		}
	}

	start := time.Now()
	if err := script.Run(ctx, c); err != nil {
		return err
	}
	log.Info().
		Int("steps", len(script.Steps)).
		Int("operations", c.OperationCount()).
		Str("elapsed", cli.FormatDurationShort(time.Since(start))).
		Msg("Edit script applied")

	if err := writeOutputs(c, editOutFlag, editThumbFlag); err != nil {
		return err
	}
	if editNoSaveFlag {
		return nil
	}
	rec, err := c.Save(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Saved %s (%d operations)\n", rec.Ref, len(rec.Operations))
	return nil
}
