package main

import (
	"context"
	"flag"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/CodeHiveAPP/codehive/internal/logging"
	"github.com/CodeHiveAPP/codehive/internal/relay/config"
	"github.com/CodeHiveAPP/codehive/relay"
)

func runRelay(args []string) error {
	fs := flag.NewFlagSet("relay", flag.ExitOnError)
	configFile := fs.String("config", "", "optional YAML config file")
	host := fs.String("host", "", "listen host (overrides config)")
	port := fs.Int("port", 0, "listen port (overrides config)")
	persistPath := fs.String("persist", "", "room snapshot file (overrides config)")
	showVersion := fs.Bool("version", false, "print version and exit")
	_ = fs.Parse(args)

	if *showVersion {
		fmt.Println(version)
		return nil
	}

	cfg, err := config.Load(*configFile)
	if err != nil {
		return err
	}
	if *host != "" {
		cfg.Host = *host
	}
	if *port != 0 {
		cfg.Port = *port
	}
	if *persistPath != "" {
		cfg.PersistPath = *persistPath
	}

	logging.PrintBanner("relay", version, cfg.Addr())

	server, err := relay.NewServer(cfg)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	return server.Serve(ctx)
}
