package cohortd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/0x6flab/namegenerator"
	"github.com/absmach/cohort"
	"github.com/absmach/cohort/pkg/mqtt"
	"github.com/absmach/cohort/worker"
	"github.com/spf13/cobra"

	// Registers the engines agents can train.
	_ "github.com/absmach/cohort/pkg/model/dense"
)

func StartWorker(ctx context.Context, cancel context.CancelFunc, cfg *cohort.Config) error {
	wcfg := cfg.Worker
	if wcfg.ID == "" {
		wcfg.ID = namegenerator.NewGenerator().Generate()
	}

	logger, err := newLogger(wcfg.LogLevel)
	if err != nil {
		return err
	}
	logger = logger.With(slog.String("worker_id", wcfg.ID))

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
		select {
		case sig := <-sigChan:
			logger.Info("Received shutdown signal", slog.String("signal", sig.String()))
			cancel()
		case <-ctx.Done():
		}
	}()

	pubsub, err := mqtt.NewPubSub(wcfg.MQTT.Address, wcfg.MQTT.QoS, wcfg.ID, wcfg.MQTT.Username, wcfg.MQTT.Password, true, wcfg.MQTT.Timeout, logger)
	if err != nil {
		return errors.Join(errors.New("failed to initialize mqtt client"), err)
	}
	defer func() {
		if err := pubsub.Disconnect(context.WithoutCancel(ctx)); err != nil {
			logger.Warn("failed to disconnect from mqtt broker", slog.Any("error", err))
		}
	}()

	agent := worker.NewAgent(wcfg.ID, pubsub, wcfg.Concurrency, logger)
	if err := agent.Start(ctx); err != nil {
		return errors.Join(errors.New("failed to start agent"), err)
	}
	logger.Info("worker started", slog.Int("concurrency", wcfg.Concurrency))

	if err := agent.Heartbeat(ctx, wcfg.HeartbeatInterval); err != nil {
		return fmt.Errorf("failed to announce shutdown: %w", err)
	}

	return nil
}

var workerCmd = []cobra.Command{
	{
		Use:   "start",
		Short: "Start worker",
		Long:  `Start a worker agent that trains shards dispatched over MQTT.`,
		Run: func(cmd *cobra.Command, _ []string) {
			cfg, err := cohort.LoadConfig(configPath)
			if err != nil {
				cmd.PrintErrf("failed to load configuration: %s\n", err.Error())

				return
			}

			ctx, cancel := context.WithCancel(cmd.Context())
			if err := StartWorker(ctx, cancel, cfg); err != nil {
				cmd.PrintErrf("failed to start worker: %s\n", err.Error())
			}
			cancel()
		},
	},
}

func NewWorkerCmd() *cobra.Command {
	cmd := cobra.Command{
		Use:   "worker [start]",
		Short: "Worker management",
		Long:  `Run a remote worker for Cohort fits.`,
	}

	for i := range workerCmd {
		cmd.AddCommand(&workerCmd[i])
	}

	cmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "TOML configuration file")

	return &cmd
}
