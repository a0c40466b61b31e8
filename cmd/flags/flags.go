package flags

import (
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/ruteri/certificate-registry/api"
	"github.com/ruteri/certificate-registry/common"
	"github.com/ruteri/certificate-registry/config"
	"github.com/urfave/cli/v2"
)

// SetupLogger builds the slog logger selected by the log flags of cCtx.
func SetupLogger(cCtx *cli.Context) (log *slog.Logger) {
	logJSON := cCtx.Bool(LogJsonFlag.Name)
	logDebug := cCtx.Bool(LogDebugFlag.Name)
	logUID := cCtx.Bool(LogUidFlag.Name)
	logService := cCtx.String("log-service")

	logger := common.SetupLogger(&common.LoggingOpts{
		Debug:   logDebug,
		JSON:    logJSON,
		Service: logService,
		Version: common.Version,
	})

	if logUID {
		id := uuid.Must(uuid.NewRandom())
		logger = logger.With("uid", id.String())
	}
	return logger
}

// ApplyFlags overrides cfg with every flag the user set explicitly on the command line.
func ApplyFlags(cCtx *cli.Context, cfg *config.Config) {
	if cCtx.IsSet(ListenAddrFlag.Name) {
		cfg.ListenAddr = cCtx.String(ListenAddrFlag.Name)
	}
	if cCtx.IsSet(MetricsAddrFlag.Name) {
		cfg.MetricsAddr = cCtx.String(MetricsAddrFlag.Name)
	}
	if cCtx.IsSet(StorageFlag.Name) {
		cfg.Storage = cCtx.StringSlice(StorageFlag.Name)
	}
	if cCtx.IsSet(LayoutFlag.Name) {
		cfg.Layout = cCtx.String(LayoutFlag.Name)
	}
	if cCtx.IsSet(AllowReissueFlag.Name) {
		cfg.AllowReissue = cCtx.Bool(AllowReissueFlag.Name)
	}
	if cCtx.IsSet(LockAdminFlag.Name) {
		cfg.LockAdmin = cCtx.Bool(LockAdminFlag.Name)
	}
	if cCtx.IsSet(MaxSkewFlag.Name) {
		cfg.MaxSignatureSkew = cCtx.Duration(MaxSkewFlag.Name)
	}
	if cCtx.IsSet(DrainSecondsFlag.Name) {
		cfg.DrainDuration = time.Duration(cCtx.Int64(DrainSecondsFlag.Name)) * time.Second
	}
	if cCtx.IsSet(LogJsonFlag.Name) {
		cfg.LogJSON = cCtx.Bool(LogJsonFlag.Name)
	}
	if cCtx.IsSet(LogDebugFlag.Name) {
		cfg.LogDebug = cCtx.Bool(LogDebugFlag.Name)
	}
	if cCtx.IsSet("log-service") {
		cfg.LogService = cCtx.String("log-service")
	}
	if cCtx.IsSet(PprofFlag.Name) {
		cfg.Pprof = cCtx.Bool(PprofFlag.Name)
	}
}

// SetupLoggerFromConfig is SetupLogger for settings that may come from a config file.
func SetupLoggerFromConfig(cCtx *cli.Context, cfg *config.Config) *slog.Logger {
	logger := common.SetupLogger(&common.LoggingOpts{
		Debug:   cfg.LogDebug,
		JSON:    cfg.LogJSON,
		Service: cfg.LogService,
		Version: common.Version,
	})

	if cCtx.Bool(LogUidFlag.Name) {
		id := uuid.Must(uuid.NewRandom())
		logger = logger.With("uid", id.String())
	}
	return logger
}

// ConfigureServer derives the HTTP server settings from the loaded configuration.
func ConfigureServer(cfg *config.Config, logger *slog.Logger, gatherer prometheus.Gatherer) *api.HTTPServerConfig {
	return &api.HTTPServerConfig{
		ListenAddr:               cfg.ListenAddr,
		MetricsAddr:              cfg.MetricsAddr,
		MetricsRegistry:          gatherer,
		Log:                      logger,
		EnablePprof:              cfg.Pprof,
		DrainDuration:            cfg.DrainDuration,
		GracefulShutdownDuration: cfg.ShutdownTimeout,
		ReadTimeout:              60 * time.Second,
		WriteTimeout:             30 * time.Second,
		MaxSignatureSkew:         cfg.MaxSignatureSkew,
	}
}

var ConfigFileFlag = &cli.StringFlag{
	Name:    "config",
	Aliases: []string{"c"},
	Usage:   "YAML config file; REGISTRY_* environment variables and flags override it",
}

var ListenAddrFlag = &cli.StringFlag{
	Name:  "listen-addr",
	Value: "127.0.0.1:8080",
	Usage: "address to listen on for API",
}

var StorageFlag = &cli.StringSliceFlag{
	Name:  "storage",
	Usage: "storage backend URI (badger://, sqlite://, file://, s3://, vault://, ipfs://); repeat to mirror (first is primary, all must accept writes)",
}

var LayoutFlag = &cli.StringFlag{
	Name:  "layout",
	Value: "slot",
	Usage: "certificate layout: 'slot' (single certificate) or 'keyed' (one per item id)",
}

var AllowReissueFlag = &cli.BoolFlag{
	Name:  "allow-reissue",
	Value: true,
	Usage: "let the admin mint over an existing certificate",
}

var LockAdminFlag = &cli.BoolFlag{
	Name:  "lock-admin",
	Value: false,
	Usage: "reject initialize once an admin is recorded",
}

var MaxSkewFlag = &cli.DurationFlag{
	Name:  "max-signature-skew",
	Value: 5 * time.Minute,
	Usage: "maximum age of signed requests, 0 disables the check",
}

var RegistryURLFlag = &cli.StringFlag{
	Name:    "registry-url",
	Value:   "http://127.0.0.1:8080",
	EnvVars: []string{"REGISTRY_URL"},
	Usage:   "registry server to call",
}

var KeyFileFlag = &cli.StringFlag{
	Name:    "key-file",
	Value:   "caller.key",
	EnvVars: []string{"REGISTRY_KEY_FILE"},
	Usage:   "hex-encoded secp256k1 private key used to sign requests",
}

var LogJsonFlag = &cli.BoolFlag{
	Name:  "log-json",
	Value: false,
	Usage: "log in JSON format",
}
var LogDebugFlag = &cli.BoolFlag{
	Name:  "log-debug",
	Value: false,
	Usage: "log debug messages",
}
var LogUidFlag = &cli.BoolFlag{
	Name:  "log-uid",
	Value: false,
	Usage: "generate a uuid and add to all log messages",
}

var LogServiceFlagFn = func(service string) *cli.StringFlag {
	return &cli.StringFlag{
		Name:  "log-service",
		Value: service,
		Usage: "add 'service' tag to logs",
	}
}

var PprofFlag = &cli.BoolFlag{
	Name:  "pprof",
	Value: false,
	Usage: "enable pprof debug endpoint",
}
var DrainSecondsFlag = &cli.Int64Flag{
	Name:  "drain-seconds",
	Value: 45,
	Usage: "seconds to wait after marking the server not ready before shutting down",
}
var MetricsAddrFlag = &cli.StringFlag{
	Name:  "metrics-addr",
	Value: "127.0.0.1:8090",
	Usage: "address to listen on for Prometheus metrics",
}

var CommonFlags = []cli.Flag{
	LogJsonFlag,
	LogDebugFlag,
	LogUidFlag,
	PprofFlag,
	DrainSecondsFlag,
	MetricsAddrFlag,
}
