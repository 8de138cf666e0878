package cohortd

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/absmach/cohort"
	"github.com/absmach/cohort/manager"
	"github.com/absmach/cohort/manager/api"
	"github.com/absmach/cohort/manager/middleware"
	"github.com/absmach/cohort/pkg/mqtt"
	"github.com/absmach/cohort/pkg/prometheus"
	"github.com/absmach/cohort/pkg/server"
	httpserver "github.com/absmach/cohort/pkg/server/http"
	"github.com/absmach/cohort/pkg/storage"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel/trace/noop"
	"golang.org/x/sync/errgroup"
)

const managerSvcName = "manager"

var configPath string

func newLogger(logLevel string) (*slog.Logger, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(logLevel)); err != nil {
		return nil, fmt.Errorf("failed to parse log level: %s", err.Error())
	}
	logHandler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: level,
	})
	logger := slog.New(logHandler)
	slog.SetDefault(logger)

	return logger, nil
}

func StartManager(ctx context.Context, cancel context.CancelFunc, cfg *cohort.Config) error {
	g, ctx := errgroup.WithContext(ctx)

	mcfg := cfg.Manager
	if mcfg.InstanceID == "" {
		mcfg.InstanceID = uuid.NewString()
	}

	logger, err := newLogger(mcfg.LogLevel)
	if err != nil {
		return err
	}

	if err := cfg.Fit.Validate(); err != nil {
		return fmt.Errorf("invalid default fit configuration: %w", err)
	}

	tracer := noop.NewTracerProvider().Tracer(managerSvcName)

	var pubsub mqtt.PubSub
	if mcfg.MQTT.Address != "" {
		pubsub, err = mqtt.NewPubSub(mcfg.MQTT.Address, mcfg.MQTT.QoS, managerSvcName+"-"+mcfg.InstanceID, mcfg.MQTT.Username, mcfg.MQTT.Password, false, mcfg.MQTT.Timeout, logger)
		if err != nil {
			return fmt.Errorf("failed to initialize mqtt pubsub: %w", err)
		}
		defer func() {
			if err := pubsub.Disconnect(context.WithoutCancel(ctx)); err != nil {
				logger.Warn("failed to disconnect from mqtt broker", slog.Any("error", err))
			}
		}()
	}

	backend, err := storage.NewBackend(mcfg.History)
	if err != nil {
		return fmt.Errorf("failed to initialize history storage: %w", err)
	}
	if backend.Closer != nil {
		defer backend.Closer.Close()
	}

	svc := manager.NewService(
		storage.NewInMemoryStorage(),
		storage.NewInMemoryStorage(),
		backend.History,
		pubsub,
		mcfg.AliveTimeout,
		logger,
	)
	svc = middleware.Logging(logger, svc)
	svc = middleware.Tracing(tracer, svc)
	counter, latency := prometheus.MakeMetrics(managerSvcName, "api")
	svc = middleware.Metrics(counter, latency, svc)

	if pubsub != nil {
		if err := svc.Subscribe(ctx); err != nil {
			return fmt.Errorf("failed to subscribe to worker registry: %w", err)
		}
	}

	hs := httpserver.NewServer(ctx, cancel, managerSvcName, mcfg.HTTP, api.MakeHandler(svc, cfg.Fit, logger, mcfg.InstanceID), logger)

	g.Go(func() error {
		return hs.Start()
	})

	g.Go(func() error {
		return server.StopSignalHandler(ctx, cancel, logger, managerSvcName, hs)
	})

	g.Go(func() error {
		<-ctx.Done()
		sctx, scancel := context.WithTimeout(context.WithoutCancel(ctx), server.StopWaitTime)
		defer scancel()

		return svc.Shutdown(sctx)
	})

	if err := g.Wait(); err != nil {
		logger.Error(fmt.Sprintf("%s service exited with error: %s", managerSvcName, err))
	}

	return nil
}

var managerCmd = []cobra.Command{
	{
		Use:   "start",
		Short: "Start manager",
		Long:  `Start manager.`,
		Run: func(cmd *cobra.Command, _ []string) {
			cfg, err := cohort.LoadConfig(configPath)
			if err != nil {
				cmd.PrintErrf("failed to load configuration: %s\n", err.Error())

				return
			}

			ctx, cancel := context.WithCancel(cmd.Context())
			if err := StartManager(ctx, cancel, cfg); err != nil {
				cmd.PrintErrf("failed to start manager: %s\n", err.Error())
			}
			cancel()
		},
	},
}

func NewManagerCmd() *cobra.Command {
	cmd := cobra.Command{
		Use:   "manager [start]",
		Short: "Manager management",
		Long:  `Run the manager that coordinates fits and tracks workers.`,
	}

	for i := range managerCmd {
		cmd.AddCommand(&managerCmd[i])
	}

	cmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "TOML configuration file")

	return &cmd
}
