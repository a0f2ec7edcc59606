package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

// replay flags
var (
	replayFacesFlag  string
	replayOutFlag    string
	replayThumbFlag  string
	replayStrictFlag bool
)

var replayCmd = &cobra.Command{
	Use:   "replay <image>",
	Short: "Rebuild a saved edit from its log and verify the result",
	Long: `Replay loads the saved edit log for an image, replays every operation
from the original and compares the result with the fingerprint recorded at
save time.`,
	Args: cobra.ExactArgs(1),
	RunE: runReplay,
}

func init() {
	replayCmd.Flags().StringVar(&replayFacesFlag, "faces", "", "JSON face description used when the edit was made")
	replayCmd.Flags().StringVarP(&replayOutFlag, "out", "o", "", "Write the replayed image to this path")
	replayCmd.Flags().StringVar(&replayThumbFlag, "thumbnail", "", "Write a preview thumbnail to this path")
	replayCmd.Flags().BoolVar(&replayStrictFlag, "strict", false, "Fail when the replayed image differs from the saved one")
	rootCmd.AddCommand(replayCmd)
}

func runReplay(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	e, err := setup(ctx, "retouch replay")
	if err != nil {
		return err
	}
	path, err := resolveImage(args, false)
	if err != nil {
		return err
	}
	in, err := loadImage(path)
	if err != nil {
		return err
	}
	c, err := newSession(e, in, replayFacesFlag)
	if err != nil {
		return err
	}

	rec, _, err := e.store.Load(ctx, c.Ref())
	if err != nil {
		return err
	}
	if rec == nil {
		return fmt.Errorf("no saved edit for %s", path)
	}
	if _, err := c.Resume(ctx); err != nil {
		return err
	}

	got := fmt.Sprintf("%016x", c.Working().Fingerprint())
	match := got == rec.WorkingFingerprint
	fmt.Fprintf(cmd.OutOrStdout(), "%s: %d operations replayed, fingerprint %s (saved %s) match=%t\n",
		rec.Ref, c.OperationCount(), got, rec.WorkingFingerprint, match)

	if err := writeOutputs(c, replayOutFlag, replayThumbFlag); err != nil {
		return err
	}
	if !match && replayStrictFlag {
		return fmt.Errorf("replayed image differs from saved image")
	}
	return nil
}
