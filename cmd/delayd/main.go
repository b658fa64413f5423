package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"
	"github.com/sethvargo/go-envconfig"

	"delaykit/internal/core"
)

type bootstrap struct {
	ConfigPath string `env:"DELAYD_CONFIG, default=./config.yaml"`
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	var boot bootstrap
	if err := envconfig.Process(ctx, &boot); err != nil {
		fmt.Println("fatal:", err)
		os.Exit(1)
	}

	var cfgPath string
	flag.StringVar(&cfgPath, "config", boot.ConfigPath, "path to config yaml/json")
	flag.Parse()

	app, err := core.NewApp(cfgPath)
	if err != nil {
		fmt.Println("fatal:", err)
		os.Exit(1)
	}

	if err := app.Start(ctx); err != nil {
		fmt.Println("fatal start:", err)
		os.Exit(1)
	}
	// Best-effort; no-op outside systemd units.
	_, _ = daemon.SdNotify(false, daemon.SdNotifyReady)

	<-ctx.Done()

	_, _ = daemon.SdNotify(false, daemon.SdNotifyStopping)
	stopCtx, stopCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer stopCancel()
	_ = app.Stop(stopCtx)
}
