package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/image/font"

	"github.com/tiny-dfr/tiny-dfr/internal/backlight"
	"github.com/tiny-dfr/tiny-dfr/internal/config"
	"github.com/tiny-dfr/tiny-dfr/internal/daemon"
	"github.com/tiny-dfr/tiny-dfr/internal/display"
	"github.com/tiny-dfr/tiny-dfr/internal/icons"
	"github.com/tiny-dfr/tiny-dfr/internal/input"
	"github.com/tiny-dfr/tiny-dfr/internal/logger"
	"github.com/tiny-dfr/tiny-dfr/internal/privdrop"
	"github.com/tiny-dfr/tiny-dfr/internal/render"
)

func init() {
	flags := rootCmd.Flags()
	flags.Bool("no-privdrop", false, "Keep running as root after the devices are open")
	viper.BindPFlag("no_privdrop", flags.Lookup("no-privdrop"))
}

func runDaemon(cmd *cobra.Command, args []string) error {
	// SIGTERM stays pending while the loop runs and is only taken after
	// it failed.
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGTERM)
	defer signal.Stop(sigs)

	if os.Geteuid() != 0 {
		logger.Warn("Not running as root, opening devices will likely fail")
	}

	disp, err := display.Open()
	if err != nil {
		return fmt.Errorf("failed to open display: %w", err)
	}
	defer disp.Close()
	width, height := disp.LogicalSize()
	logger.Info("Display ready", "card", disp.Path(), "width", width, "height", height)

	inj, err := input.NewInjector(input.UinputPath)
	if err != nil {
		return err
	}
	defer inj.Close()

	bl, err := backlight.New(fsys, backlight.ClassPath, time.Now())
	if err != nil {
		return fmt.Errorf("failed to open backlight: %w", err)
	}
	defer bl.Close()

	loader := newLoader()
	cfg, err := loader.Load(width)
	if errors.Is(err, config.ErrOverride) {
		logger.Warn("Override config rejected, using the base configuration", "error", err)
		cfg, err = loader.LoadBase(width)
	}
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	src := input.NewSource(input.DefaultDir)
	if err := src.Start(ctx); err != nil {
		return fmt.Errorf("failed to open input devices: %w", err)
	}
	defer src.Close()

	watcher, err := config.NewWatcher(loader.OverridePath())
	if err != nil {
		return fmt.Errorf("failed to watch config: %w", err)
	}
	defer watcher.Close()
	go watcher.Run(ctx)

	if !viper.GetBool("no_privdrop") {
		if err := privdrop.Drop(privdrop.DefaultUser, privdrop.DefaultGroups...); err != nil {
			return fmt.Errorf("failed to drop privileges: %w", err)
		}
	}

	d, err := daemon.New(daemon.Options{
		Display:   disp,
		Backlight: bl,
		Injector:  inj,
		Input:     src,
		Config:    loader,
		Changes:   watcher.Changes(),
		Initial:   cfg,
		Icons:     icons.NewLoader(fsys),
		LoadFace: func(template string, size float64) (font.Face, error) {
			return render.LoadFaceFS(fsys, template, size)
		},

		FixedLogLevel: viper.GetString("log_level") != "",
	})
	if err != nil {
		return err
	}

	logger.Info("tiny-dfr running", "version", Version)
	return parkAfter(disp, d.Run(ctx), sigs)
}

// parkAfter shows the fallback image once the loop has stopped and waits
// for a termination signal before handing back the loop's error.
func parkAfter(disp daemon.Display, err error, sigs <-chan os.Signal) error {
	if err == nil {
		err = errors.New("event loop stopped")
	}
	logger.Error("Event loop failed", "error", err)
	if ferr := daemon.ShowFallback(disp); ferr != nil {
		logger.Error("Failed to show fallback image", "error", ferr)
	}
	sig := <-sigs
	logger.Info("Shutting down", "signal", sig)
	return err
}
