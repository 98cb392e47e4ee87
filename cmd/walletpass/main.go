package main

import (
	"flag"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/exp/slog"

	"github.com/stampably/walletpass/passes"
)

func main() {
	configPath := flag.String("config", "", "path to YAML config file")
	flag.Parse()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	cfg := passes.DefaultConfig()
	if *configPath != "" {
		loaded, err := passes.LoadConfig(*configPath)
		if err != nil {
			logger.Error("loading config", "err", err)
			os.Exit(1)
		}
		cfg = loaded
	}
	if addr := os.Getenv("HTTP_ADDR"); addr != "" {
		cfg.HTTPAddr = addr
	}

	app := passes.NewApp(logger, cfg)
	if err := app.Start(); err != nil {
		logger.Error("starting app", "err", err)
		os.Exit(1)
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	app.Shutdown()
}
