package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/fpang/beauty-retouch/internal/faceregion"
	"github.com/fpang/beauty-retouch/internal/operation"
)

// palette flags
var (
	paletteFacesFlag  string
	paletteToolFlag   string
	paletteRegionFlag string
)

var paletteCmd = &cobra.Command{
	Use:   "palette <image>",
	Short: "Print the color palette of a face region",
	Args:  cobra.ExactArgs(1),
	RunE:  runPalette,
}

func init() {
	paletteCmd.Flags().StringVar(&paletteFacesFlag, "faces", "", "JSON face description (required)")
	paletteCmd.Flags().StringVar(&paletteToolFlag, "tool", string(operation.LipColor), "Tool the palette is for")
	paletteCmd.Flags().StringVar(&paletteRegionFlag, "region", "", "Region to sample (default: the tool's region)")
	_ = paletteCmd.MarkFlagRequired("faces")
	rootCmd.AddCommand(paletteCmd)
}

func runPalette(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	e, err := setup(ctx, "retouch palette")
	if err != nil {
		return err
	}
	tool, err := operation.ParseToolType(paletteToolFlag)
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
	c, err := newSession(e, in, paletteFacesFlag)
	if err != nil {
		return err
	}
	if err := c.SelectTool(tool); err != nil {
		return err
	}

	p, err := c.Palette(ctx, faceregion.Name(paletteRegionFlag))
	if err != nil {
		return err
	}
	if p == nil {
		return fmt.Errorf("region %q not found in %s", c.Region(), paletteFacesFlag)
	}
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(p)
}
