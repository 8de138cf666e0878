package server

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"
)

const StopWaitTime = 5 * time.Second

type Server interface {
	Start() error
	Stop() error
}

type Config struct {
	Host     string `toml:"host"      env:"HOST"`
	Port     string `toml:"port"      env:"PORT"`
	CertFile string `toml:"cert_file" env:"SERVER_CERT"`
	KeyFile  string `toml:"key_file"  env:"SERVER_KEY"`
}

type BaseServer struct {
	Ctx      context.Context
	Cancel   context.CancelFunc
	Name     string
	Address  string
	Config   Config
	Logger   *slog.Logger
	Protocol string
}

func NewBaseServer(ctx context.Context, cancel context.CancelFunc, name string, config Config, logger *slog.Logger) BaseServer {
	return BaseServer{
		Ctx:      ctx,
		Cancel:   cancel,
		Name:     name,
		Address:  fmt.Sprintf("%s:%s", config.Host, config.Port),
		Config:   config,
		Logger:   logger,
		Protocol: "http",
	}
}

// StopSignalHandler stops every server once SIGINT or SIGTERM arrives or
// ctx is done.
func StopSignalHandler(ctx context.Context, cancel context.CancelFunc, logger *slog.Logger, svcName string, servers ...Server) error {
	c := make(chan os.Signal, 2)
	signal.Notify(c, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(c)

	select {
	case sig := <-c:
		defer cancel()
		var err error
		for _, s := range servers {
			if serr := s.Stop(); serr != nil {
				err = serr
			}
		}
		logger.Info(fmt.Sprintf("%s service shutdown by signal: %s", svcName, sig))

		return err
	case <-ctx.Done():
		return nil
	}
}
