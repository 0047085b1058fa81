package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/downfa11-org/go-recordlog/pkg/broker"
	"github.com/downfa11-org/go-recordlog/pkg/config"
	"github.com/downfa11-org/go-recordlog/pkg/controller"
	"github.com/downfa11-org/go-recordlog/pkg/server"
	"github.com/downfa11-org/go-recordlog/util"
	"go.uber.org/dig"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		util.Fatal("Broker failed: %v", err)
	}
}

func run(args []string) error {
	container := dig.New()
	constructors := []interface{}{
		func() (*config.Config, error) { return config.LoadConfig(args) },
		broker.New,
		func(b *broker.Broker) controller.RecordService { return b },
		controller.NewHandler,
	}
	for _, c := range constructors {
		if err := container.Provide(c); err != nil {
			return err
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return container.Invoke(func(cfg *config.Config, b *broker.Broker, h *controller.Handler) error {
		defer func() {
			if err := b.Close(); err != nil {
				util.Error("broker close: %v", err)
			}
		}()

		util.Info("Starting broker on port %d (logs=%d, partitions=%d, exporter=%v)",
			cfg.BrokerPort, cfg.LogCount, cfg.PartitionCount, cfg.EnableExporter)
		return server.RunServer(ctx, cfg, h.Routes())
	})
}
