package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/koios/eplayer/internal/config"
	"github.com/koios/eplayer/internal/framebuffer"
	"github.com/koios/eplayer/internal/logger"
	"github.com/koios/eplayer/pkg/models"
)

// version is set at build time with -ldflags "-X main.version=..."
var version = "dev"

var (
	dryRun      bool
	profilePath string
)

var rootCmd = &cobra.Command{
	Use:           "eplayer",
	Short:         "eplayer drives a signage screen from remote commands.",
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runAgent(cmd)
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&dryRun, "dry-run", false, "draw into memory instead of the framebuffer device")
	rootCmd.PersistentFlags().StringVar(&profilePath, "profile", "", "display profile YAML (overrides DISPLAY_PROFILE)")
}

// env bundles what every subcommand needs
type env struct {
	cfg     *config.Config
	logger  *zap.Logger
	profile *models.DisplayProfile
}

func setup(cmd *cobra.Command) (*env, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	if cmd.Flags().Changed("dry-run") {
		cfg.Device.DryRun = dryRun
	}
	if profilePath != "" {
		cfg.Device.ProfilePath = profilePath
	}

	log, err := logger.New(cfg.Log)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	e := &env{cfg: cfg, logger: log}

	if cfg.Device.ProfilePath != "" {
		profile, err := models.LoadDisplayProfile(cfg.Device.ProfilePath)
		if err != nil {
			return nil, err
		}
		if profile.Framebuffer != "" {
			cfg.Device.Framebuffer = profile.Framebuffer
		}
		e.profile = profile
		log.Info("Display profile loaded",
			zap.String("path", profile.Path),
			zap.String("device_id", profile.DeviceID))
	}

	return e, nil
}

// displayID is the id of the locally owned display
func (e *env) displayID() string {
	if e.profile != nil && e.profile.DeviceID != "" {
		return e.profile.DeviceID
	}
	return e.cfg.Device.DisplayID()
}

// openScreen opens the framebuffer, or an in-memory one in dry-run mode
func (e *env) openScreen() (*framebuffer.Compositor, error) {
	if e.cfg.Device.DryRun {
		e.logger.Info("Dry run, drawing into memory")
		return framebuffer.NewMemory(framebuffer.ARGB8888.WithSize(1920, 1080), e.logger)
	}

	fb, err := framebuffer.Open(e.cfg.Device.Framebuffer, e.logger)
	if err != nil {
		return nil, err
	}
	if err := fb.Map(); err != nil {
		fb.Close()
		return nil, err
	}
	return fb, nil
}
