// Command backtest runs condition backtests from the command line.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"github.com/nadavw1312/trading-manager-server/services/app"
	"github.com/nadavw1312/trading-manager-server/services/config"
	"github.com/nadavw1312/trading-manager-server/services/logging"
)

var configPath string

func jsonOutput(in any) error {
	j, err := json.MarshalIndent(in, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(j))
	return nil
}

// setup loads the configuration and assembles the services for one command.
func setup(c *cli.Context) (*app.App, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	logger, err := logging.New(cfg.Log)
	if err != nil {
		return nil, err
	}
	a, err := app.New(c.Context, cfg, logger)
	if err != nil {
		_ = logger.Sync()
		return nil, err
	}
	return a, nil
}

func teardown(a *app.App) {
	if err := a.Close(); err != nil {
		a.Logger.Warn("Close failed", zap.Error(err))
	}
	_ = a.Logger.Sync()
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	backtest := cli.NewApp()
	backtest.Name = "backtest"
	backtest.Usage = "run vectorized condition backtests over historical bars"
	backtest.EnableBashCompletion = true
	backtest.Flags = []cli.Flag{
		&cli.StringFlag{
			Name:        "config",
			Aliases:     []string{"c"},
			EnvVars:     []string{"BACKTEST_CONFIG"},
			Usage:       "path to the YAML config",
			Destination: &configPath,
		},
	}
	backtest.Commands = []*cli.Command{
		runCommand,
		parityCommand,
		conditionsCommand,
		exportCommand,
		ingestCommand,
		ledgerCommand,
	}

	if err := backtest.RunContext(ctx, os.Args); err != nil {
		log.Fatal(err)
	}
}
