package main

import (
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ruteri/certificate-registry/auth"
	"github.com/ruteri/certificate-registry/cmd/flags"
	"github.com/ruteri/certificate-registry/config"
	"github.com/ruteri/certificate-registry/httpserver"
	"github.com/ruteri/certificate-registry/metrics"
	"github.com/ruteri/certificate-registry/registry"
	"github.com/ruteri/certificate-registry/storage"
	"github.com/urfave/cli/v2"
)

var cliFlags = append([]cli.Flag{
	flags.ConfigFileFlag,
	flags.ListenAddrFlag,
	flags.StorageFlag,
	flags.LayoutFlag,
	flags.AllowReissueFlag,
	flags.LockAdminFlag,
	flags.MaxSkewFlag,
	flags.LogServiceFlagFn("certificate-registry"),
}, flags.CommonFlags...)

func main() {
	app := &cli.App{
		Name:  "registryd",
		Usage: "Serve the certificate registry API",
		Flags: cliFlags,
		Action: func(cCtx *cli.Context) error {
			cfg, err := config.Load(cCtx.String(flags.ConfigFileFlag.Name))
			if err != nil {
				return err
			}
			flags.ApplyFlags(cCtx, cfg)
			if err := cfg.Validate(); err != nil {
				return err
			}

			logger := flags.SetupLoggerFromConfig(cCtx, cfg)

			policy, err := cfg.Policy()
			if err != nil {
				return err
			}

			store, err := storage.NewStorageBackendFactory(logger).BackendForURIs(cfg.Storage)
			if err != nil {
				logger.Error("Failed to open storage", "err", err)
				return err
			}
			defer store.Close()
			logger.Info("Storage opened", "backend", store.Name(), "uri", store.LocationURI())

			promRegistry := metrics.NewRegistry()
			reg := registry.New(store, logger,
				registry.WithPolicy(policy),
				registry.WithMetrics(metrics.NewRegistryMetrics(promRegistry)),
			)
			logger.Info("Registry configured",
				"layout", policy.Layout.String(),
				"allowReissue", policy.AllowReissue,
				"lockAdmin", policy.LockAdmin)

			serverCfg := flags.ConfigureServer(cfg, logger, promRegistry)
			verifier := auth.Verifier{
				MaxSkew: serverCfg.MaxSignatureSkew,
				Replay:  auth.NewReplayCache(),
			}
			handler := httpserver.NewHandler(reg, verifier, logger)
			server, err := httpserver.New(serverCfg, handler)
			if err != nil {
				logger.Error("Failed to create server", "err", err)
				return err
			}

			server.RunInBackground()

			// Wait for termination signal
			exit := make(chan os.Signal, 1)
			signal.Notify(exit, os.Interrupt, syscall.SIGTERM)

			logger.Info("Server is running, press Ctrl+C to stop")
			<-exit
			logger.Info("Shutdown signal received")

			// Give load balancers time to notice /readyz failing
			server.Drain()
			if serverCfg.DrainDuration > 0 {
				logger.Info("Draining", "duration", serverCfg.DrainDuration.String())
				select {
				case <-time.After(serverCfg.DrainDuration):
				case <-exit:
					logger.Info("Second signal received, skipping drain")
				}
			}

			server.Shutdown()
			logger.Info("Server shutdown complete")
			return nil
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}
