package main

import (
	"context"
	"flag"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/CodeHiveAPP/codehive/agent"
	"github.com/CodeHiveAPP/codehive/internal/agent/config"
	"github.com/CodeHiveAPP/codehive/internal/logging"
)

func runAgent(args []string) error {
	fs := flag.NewFlagSet("agent", flag.ExitOnError)
	configFile := fs.String("config", "", "optional YAML config file")
	relayHost := fs.String("relay-host", "", "relay host (overrides config)")
	relayPort := fs.Int("relay-port", 0, "relay port (overrides config)")
	name := fs.String("name", "", "display name (overrides config)")
	project := fs.String("project", "", "project directory to watch (overrides config)")
	create := fs.Bool("create", false, "create a new room")
	join := fs.String("join", "", "room code to join")
	password := fs.String("password", "", "room password")
	public := fs.Bool("public", false, "make a created room discoverable")
	shareCmd := fs.String("share-cmd", "", "command to run and share its terminal output")
	_ = fs.Parse(args)

	if *create == (*join != "") {
		return fmt.Errorf("exactly one of -create or -join is required")
	}

	cfg, err := config.Load(*configFile)
	if err != nil {
		return err
	}
	if *relayHost != "" {
		cfg.RelayHost = *relayHost
	}
	if *relayPort != 0 {
		cfg.RelayPort = *relayPort
	}
	if *name != "" {
		cfg.DevName = *name
	}
	if *project != "" {
		cfg.Project = *project
		if err := cfg.Validate(); err != nil {
			return err
		}
	}

	logging.PrintBanner("agent", version, cfg.URL())

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	return agent.Run(ctx, agent.RunConfig{
		Config:   cfg,
		Create:   *create,
		JoinCode: *join,
		Password: *password,
		Public:   *public,
		ShareCmd: *shareCmd,
	})
}
