package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/voicewire/voicewire/pkg/agent"
	"github.com/voicewire/voicewire/pkg/bus"
	"github.com/voicewire/voicewire/pkg/config"
	"github.com/voicewire/voicewire/pkg/model"
	"github.com/voicewire/voicewire/pkg/server"
	"github.com/voicewire/voicewire/pkg/store"
	"github.com/voicewire/voicewire/pkg/store/db/dynamo"
	"github.com/voicewire/voicewire/pkg/store/db/postgres"
	storememory "github.com/voicewire/voicewire/pkg/store/memory"
	"github.com/voicewire/voicewire/pkg/tools"
)

func main() {
	root := &cobra.Command{
		Use:           "voicewire-agent",
		Short:         "Duplex speech session agent",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd.Context())
		},
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return errors.Wrap(err, "loading config")
	}
	logger := buildLogger(cfg)
	slog.SetDefault(logger)

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.AWSRegion))
	if err != nil {
		return errors.Wrap(err, "loading AWS config")
	}

	sessions, messages, cleanup, err := buildStores(ctx, cfg, awsCfg)
	if err != nil {
		return errors.Wrap(err, "building store")
	}
	defer cleanup()

	if cfg.BusEndpoint == "" {
		return errors.New("VOICEWIRE_BUS_ENDPOINT is required")
	}
	busClient := bus.NewWebsocketClient(cfg.BusEndpoint, bus.WithLogger(logger))

	conn := model.NewBedrockConnection(bedrockruntime.NewFromConfig(awsCfg), cfg.ModelID, logger)

	runner := func(ctx context.Context, params agent.Params) error {
		return agent.Run(ctx, agent.Deps{
			Model:       conn,
			Bus:         busClient,
			Messages:    messages,
			Sessions:    sessions,
			StaticTools: []tools.Tool{tools.NewWeatherTool()},
			Namespace:   cfg.BusNamespace,
			SettleDelay: cfg.SettleDelay,
			ToolTimeout: cfg.ToolTimeout,
			Logger:      logger,
		}, params)
	}

	srv := server.New(runner, logger)
	httpSrv := &http.Server{
		Addr:    cfg.Addr,
		Handler: srv,
	}

	logger.Info("starting agent server", "addr", cfg.Addr, "store", string(cfg.StoreDriver))

	listenErr := make(chan error, 1)
	go func() {
		err := httpSrv.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			listenErr <- err
			return
		}
		listenErr <- nil
	}()

	select {
	case err := <-listenErr:
		if err != nil {
			return errors.Wrap(err, "serve")
		}
		return nil
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownGracePeriod)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		return errors.Wrap(err, "shutting down http server")
	}
	if err := <-listenErr; err != nil {
		return errors.Wrap(err, "serve")
	}

	logger.Info("agent server stopped")
	return nil
}

func buildLogger(cfg config.Config) *slog.Logger {
	if cfg.LogJSON {
		return slog.New(slog.NewJSONHandler(os.Stderr, nil))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, nil))
}

func buildStores(ctx context.Context, cfg config.Config, awsCfg aws.Config) (store.SessionStore, store.MessageStore, func(), error) {
	switch cfg.StoreDriver {
	case config.StoreDriverDynamo:
		st := dynamo.New(dynamodb.NewFromConfig(awsCfg), cfg.MessagesTable, cfg.SessionsTable)
		return st, st, func() {}, nil
	case config.StoreDriverPostgres:
		st, err := postgres.Open(ctx, cfg.PostgresDSN)
		if err != nil {
			return nil, nil, nil, err
		}
		return st, st, st.Close, nil
	case config.StoreDriverMemory:
		st := storememory.New()
		return st, st, func() {}, nil
	default:
		return nil, nil, nil, errors.Errorf("unknown store driver %q", cfg.StoreDriver)
	}
}
