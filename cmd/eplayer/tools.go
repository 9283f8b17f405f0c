package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/koios/eplayer/internal/handlers"
	"github.com/koios/eplayer/internal/surface"
	"github.com/koios/eplayer/pkg/models"
)

var fillCmd = &cobra.Command{
	Use:   "fill <#RRGGBB|#AARRGGBB>",
	Short: "Paint the whole screen with one color",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		color, err := models.ParseHexColor(args[0])
		if err != nil {
			return err
		}

		e, err := setup(cmd)
		if err != nil {
			return err
		}
		defer e.logger.Sync()

		screen, err := e.openScreen()
		if err != nil {
			return err
		}
		defer screen.Close()

		if err := screen.Fill(color); err != nil {
			return fmt.Errorf("failed to fill screen: %w", err)
		}
		e.logger.Info("Screen filled", zap.String("color", args[0]))
		return nil
	},
}

var geometryCmd = &cobra.Command{
	Use:   "geometry",
	Short: "Print the framebuffer geometry as JSON",
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := setup(cmd)
		if err != nil {
			return err
		}
		defer e.logger.Sync()

		screen, err := e.openScreen()
		if err != nil {
			return err
		}
		defer screen.Close()

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(screen.Geometry())
	},
}

var showCmd = &cobra.Command{
	Use:   "show [image]",
	Short: "Draw the info screen, or an image at the top-left corner",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := setup(cmd)
		if err != nil {
			return err
		}
		defer e.logger.Sync()

		screen, err := e.openScreen()
		if err != nil {
			return err
		}
		defer screen.Close()

		display := handlers.NewDisplay(e.displayID(), screen, surface.NewDecoder(), nil, e.logger)
		if len(args) == 0 {
			return display.ShowInfo(e.infoScreen(screen.Geometry(), e.displayID()))
		}

		media := models.MediaDescriptor{ID: args[0], Kind: models.MediaImage, Group: models.GroupBackground}
		return display.Add(media, args[0])
	},
}

func init() {
	rootCmd.AddCommand(fillCmd)
	rootCmd.AddCommand(geometryCmd)
	rootCmd.AddCommand(showCmd)
}
