package main

import (
	"context"
	"errors"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/erisforge/onebridge/pkg/adapter"
	"github.com/erisforge/onebridge/pkg/bus"
	"github.com/erisforge/onebridge/pkg/config"
	"github.com/erisforge/onebridge/pkg/gateway"
	"github.com/erisforge/onebridge/pkg/logger"
)

func runCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the bridge until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBridge()
		},
	}
}

func runBridge() error {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return err
	}
	logger.Init(cfg.Log.Level)

	accounts := cfg.ResolveAccounts()
	if len(accounts) == 0 {
		return errors.New("no usable accounts configured")
	}
	logger.InfoCF("main", "Loaded account registry", map[string]interface{}{
		"accounts": config.SortedAccountNames(accounts),
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	eventBus := bus.NewEventBus()
	gw := gateway.NewServer(cfg.Gateway)
	bridge := adapter.New(accounts, eventBus, gw)

	if err := bridge.Start(ctx); err != nil {
		return err
	}
	if hasServerMode(accounts) {
		if err := gw.Start(ctx); err != nil {
			bridge.Shutdown()
			return err
		}
	}

	// Drain the bus so emitted events are visible even without a host
	// framework attached.
	go func() {
		for {
			event, ok := eventBus.Consume(ctx)
			if !ok {
				return
			}
			logger.InfoCF("main", "Event", map[string]interface{}{
				"account": event.Account,
				"type":    event.Event.Type,
				"detail":  event.Event.DetailType,
				"self":    event.Event.Self.UserID,
			})
		}
	}()

	<-ctx.Done()
	logger.InfoC("main", "Shutting down")
	bridge.Shutdown()
	gw.Stop()
	eventBus.Close()
	return nil
}

func hasServerMode(accounts map[string]config.Account) bool {
	for _, account := range accounts {
		if account.Enabled && account.Mode == config.ModeServer {
			return true
		}
	}
	return false
}
