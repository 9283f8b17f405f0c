package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/koios/eplayer/internal/downloader"
	"github.com/koios/eplayer/internal/framebuffer"
	"github.com/koios/eplayer/internal/handlers"
	"github.com/koios/eplayer/internal/heartbeat"
	"github.com/koios/eplayer/internal/mqtt"
	"github.com/koios/eplayer/internal/playback"
	"github.com/koios/eplayer/internal/playlist"
	"github.com/koios/eplayer/internal/redis"
	"github.com/koios/eplayer/internal/surface"
	"github.com/koios/eplayer/internal/sysinfo"
	"github.com/koios/eplayer/pkg/models"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the agent (default)",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runAgent(cmd)
	},
}

func init() {
	rootCmd.AddCommand(runCmd)
}

// transport is the command channel to the content server
type transport interface {
	heartbeat.Publisher
	Close() error
}

func runAgent(cmd *cobra.Command) error {
	e, err := setup(cmd)
	if err != nil {
		return err
	}
	log := e.logger
	defer log.Sync()

	cfg := e.cfg
	deviceID := e.displayID()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	screen, err := e.openScreen()
	if err != nil {
		log.Error("Failed to open screen", zap.Error(err))
		return err
	}
	defer screen.Close()
	geom := screen.Geometry()

	fetcher := downloader.NewHTTPFetcher(
		time.Duration(cfg.Download.ConnectTimeout)*time.Second,
		time.Duration(cfg.Download.ReadTimeout)*time.Second,
		cfg.Server.InsecureTLS)
	downloads, err := downloader.New(cfg.Download, cfg.Server.URLRoot, fetcher, log)
	if err != nil {
		return err
	}

	store, err := playlist.NewStore(cfg.TaskDir(), log)
	if err != nil {
		return err
	}

	state := heartbeat.NewState()
	if taskID, err := store.TaskID(deviceID); err != nil {
		log.Warn("Failed to read saved task id", zap.Error(err))
	} else {
		state.SetTaskID(taskID)
	}

	player := playback.NewPlayer(cfg.Device.PlayerBin, playback.DefaultSink, nil, log)
	player.Start()
	defer player.Stop()

	display := handlers.NewDisplay(deviceID, screen, surface.NewDecoder(), player, log)
	ctrl := handlers.NewController(display, downloads, store, state, log)
	ctrl.SetRegistration(handlers.NewRegistration(cfg.Device.ClientID, version, geom.Width, geom.Height))

	if err := display.ShowInfo(e.infoScreen(geom, deviceID)); err != nil {
		log.Warn("Failed to show info screen", zap.Error(err))
	}

	downloads.Start()
	runDone := make(chan struct{})
	go func() {
		defer close(runDone)
		// returns once downloads.Stop closes the results
		ctrl.Run(context.Background())
	}()

	tr, err := connectTransport(ctx, e, ctrl)
	if err != nil {
		log.Error("Failed to start command transport", zap.Error(err))
		downloads.Stop()
		<-runDone
		return err
	}

	if err := ctrl.Refresh(deviceID); err != nil && !errors.Is(err, playlist.ErrNotFound) {
		log.Warn("Failed to load saved playlist", zap.Error(err))
	}

	go func() {
		err := store.Watch(ctx, func(device string) {
			log.Info("Playlist changed on disk", zap.String("device", device))
			if err := ctrl.Refresh(device); err != nil {
				log.Error("Failed to refresh playlist", zap.String("device", device), zap.Error(err))
			}
		})
		if err != nil {
			log.Error("Playlist watch stopped", zap.Error(err))
		}
	}()

	// Create HTTP server for the status API
	mux := http.NewServeMux()
	statusHandler := handlers.NewStatusHandler(ctrl, geom.String(), version, log)
	statusHandler.RegisterRoutes(mux)

	httpServer := &http.Server{
		Addr:         cfg.Server.StatusAddr,
		Handler:      mux,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
	}

	go func() {
		log.Info("Starting status server", zap.String("addr", cfg.Server.StatusAddr))
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("Status server failed", zap.Error(err))
		}
	}()

	log.Info("Agent started",
		zap.String("version", version),
		zap.String("client_id", cfg.Device.ClientID),
		zap.String("device_id", deviceID),
		zap.String("framebuffer", screen.Path()),
		zap.String("transport", cfg.Transport.Kind),
		zap.Stringer("geometry", geom))

	// Wait for interrupt signal to gracefully shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down agent...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error("Status server shutdown failed", zap.Error(err))
	}

	cancel()
	stopCommands(tr, ctrl, log)

	downloads.Stop()
	<-runDone

	log.Info("Agent shutdown complete")
	return nil
}

// connectTransport starts the configured command transport and wires it to ctrl
func connectTransport(ctx context.Context, e *env, ctrl *handlers.Controller) (transport, error) {
	cfg := e.cfg
	log := e.logger

	switch cfg.Transport.Kind {
	case "redis":
		client, err := redis.NewClient(cfg.Redis, cfg.Device.ClientID, log)
		if err != nil {
			return nil, err
		}
		ctrl.SetPublisher(client, cfg.Heartbeat.Kind)

		consumer := redis.NewConsumer(client, ctrl.HandleFrame, ctrl.Greet, log)
		go func() {
			if err := consumer.Start(); err != nil {
				log.Error("Redis consumer failed", zap.Error(err))
			}
		}()
		return &redisTransport{Client: client, consumer: consumer}, nil

	case "mqtt", "":
		if cfg.MQTT.Broker == "" {
			info, err := sysinfo.NewClient(cfg.Server.URLRoot, nil, log).
				FetchWithRetry(ctx, cfg.Server.SystemInfoRetry, 5*time.Second)
			if err != nil {
				return nil, err
			}
			cfg.MQTT.Broker = info.MQTT
		}

		client := mqtt.NewClient(cfg.MQTT, cfg.Device.ClientID, ctrl.HandleFrame, log)
		ctrl.SetPublisher(client, cfg.Heartbeat.Kind)
		client.OnConnect(ctrl.Greet)
		if err := client.Connect(ctx, 10*time.Second); err != nil {
			client.Close()
			return nil, err
		}
		return client, nil

	default:
		return nil, fmt.Errorf("unknown transport %q", cfg.Transport.Kind)
	}
}

// stopCommands closes the transport before stopping the controller. Closing
// drains pending commands, and a late config frame restarts the heartbeat.
func stopCommands(tr transport, ctrl *handlers.Controller, log *zap.Logger) {
	if err := tr.Close(); err != nil {
		log.Error("Failed to close transport", zap.Error(err))
	}
	ctrl.Stop()
}

type redisTransport struct {
	*redis.Client
	consumer *redis.Consumer
}

func (t *redisTransport) Close() error {
	t.consumer.Stop()
	return t.Client.Close()
}

// infoScreen builds the identification screen for the local display
func (e *env) infoScreen(geom framebuffer.Geometry, deviceID string) surface.InfoScreen {
	screen := surface.InfoScreen{
		Width:      geom.Width,
		Height:     geom.Height,
		QRContent:  deviceID,
		Foreground: 0xFFFFFFFF,
		Background: 0xFF000000,
		TextScale:  max(geom.Height/270, 1),
		Lines: []string{
			"Device: " + deviceID,
			"Version: " + version,
			"Server: " + e.cfg.Server.URLRoot,
		},
	}

	if p := e.profile; p != nil {
		if p.Title != "" || len(p.Lines) > 0 {
			screen.Lines = nil
			if p.Title != "" {
				screen.Lines = append(screen.Lines, p.Title)
			}
			screen.Lines = append(screen.Lines, p.Lines...)
		}
		if c, err := models.ParseHexColor(p.Foreground); err == nil {
			screen.Foreground = c
		}
		if c, err := models.ParseHexColor(p.Background); err == nil {
			screen.Background = c
		}
	}
	return screen
}
