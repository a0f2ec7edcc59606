package main

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/fpang/beauty-retouch/internal/cli"
	"github.com/fpang/beauty-retouch/internal/codec"
	"github.com/fpang/beauty-retouch/internal/store"
)

// inspect flags
var (
	inspectJSONFlag bool
	inspectRefFlag  string
)

var inspectCmd = &cobra.Command{
	Use:   "inspect [image]",
	Short: "Print a saved edit log",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runInspect,
}

func init() {
	inspectCmd.Flags().BoolVar(&inspectJSONFlag, "json", false, "Print the record as JSON")
	inspectCmd.Flags().StringVar(&inspectRefFlag, "ref", "", "Look up a record by reference instead of by image")
	rootCmd.AddCommand(inspectCmd)
}

func runInspect(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	e, err := setup(ctx, "retouch inspect")
	if err != nil {
		return err
	}

	ref := inspectRefFlag
	if ref == "" {
		path, err := resolveImage(args, false)
		if err != nil {
			return err
		}
		img, _, err := codec.DecodeFile(path)
		if err != nil {
			return err
		}
		ref = store.RefFor(img.Fingerprint())
	}
	if err := store.ValidateRef(ref); err != nil {
		return err
	}

	rec, working, err := e.store.Load(ctx, ref)
	if err != nil {
		return err
	}
	if rec == nil {
		return fmt.Errorf("no saved edit for %s", ref)
	}

	if inspectJSONFlag {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(rec)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Ref:         %s\n", rec.Ref)
	fmt.Fprintf(out, "Source:      %s\n", rec.SourcePath)
	fmt.Fprintf(out, "Size:        %dx%d %s (%s stored)\n", rec.Width, rec.Height, rec.Format, cli.FormatSize(int64(len(working))))
	fmt.Fprintf(out, "Saved:       %s\n", rec.SavedAt.Format(time.RFC3339))
	if p := rec.Provenance; p != nil {
		fmt.Fprintf(out, "Camera:      %s %s\n", p.CameraMake, p.CameraModel)
		if p.TakenAt != nil {
			fmt.Fprintf(out, "Taken:       %s\n", p.TakenAt.Format(time.RFC3339))
		}
	}
	fmt.Fprintf(out, "Operations:  %d\n\n", len(rec.Operations))

	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "#\tTOOL\tINTENSITY\tREGION\tPOINTS\tTIME")
	for i, op := range rec.Operations {
		region := string(op.Region)
		if region == "" {
			region = "-"
		}
		d := time.Duration(op.ProcessingTimeMs * float64(time.Millisecond))
		fmt.Fprintf(w, "%d\t%s\t%.2f\t%s\t%d\t%s\n", i+1, op.Tool, op.Intensity, region, len(op.Stroke), cli.FormatDurationShort(d))
	}
	return w.Flush()
}
