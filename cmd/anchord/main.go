package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/anchoros/anchord/internal/config"
	log "github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"
)

const appName = "anchord"

func main() {
	app := cli.NewApp()
	app.Name = appName
	app.Usage = "anchor staking daemon"
	app.Flags = config.Flags
	app.Action = start

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func start(c *cli.Context) error {
	cfg, err := config.LoadConfig(c)
	if err != nil {
		return fmt.Errorf("invalid config: %s", err)
	}

	log.SetLevel(log.Level(cfg.LogLevel))

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %s", err)
	}
	log.Infof("config: %s", cfg)

	oracleSvc, err := cfg.OracleService()
	if err != nil {
		return err
	}
	commitmentSvc, err := cfg.CommitmentService()
	if err != nil {
		return err
	}
	multisigSvc, err := cfg.MultisigService()
	if err != nil {
		return err
	}
	channelSvc, err := cfg.ChannelService()
	if err != nil {
		return err
	}

	ctx := context.Background()
	for _, sourceID := range cfg.OracleSources {
		if err := oracleSvc.RegisterSource(ctx, sourceID); err != nil {
			return fmt.Errorf("failed to register oracle source %s: %s", sourceID, err)
		}
	}

	log.Info("starting services...")
	cfg.SchedulerService().Start()
	if err := commitmentSvc.Start(); err != nil {
		return fmt.Errorf("failed to start commitment service: %s", err)
	}
	if err := multisigSvc.Start(); err != nil {
		return fmt.Errorf("failed to start multisig service: %s", err)
	}
	if err := channelSvc.Start(); err != nil {
		return fmt.Errorf("failed to start channel service: %s", err)
	}
	log.Info("service started")

	log.RegisterExitHandler(func() {
		channelSvc.Stop()
		multisigSvc.Stop()
		commitmentSvc.Stop()
		cfg.SchedulerService().Stop()
		cfg.RepoManager().Close()
	})

	sigChan := make(chan os.Signal, 1)
	signal.Notify(
		sigChan, syscall.SIGTERM, syscall.SIGINT, syscall.SIGQUIT, syscall.SIGHUP, os.Interrupt,
	)
	<-sigChan

	log.Info("shutting down service...")
	log.Exit(0)
	return nil
}
