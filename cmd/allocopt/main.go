package main

import (
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/semiotic-ai/allocopt/internal/allocopt"
	"github.com/semiotic-ai/allocopt/internal/config"
	"github.com/semiotic-ai/allocopt/internal/julia"
	"github.com/semiotic-ai/allocopt/internal/server"
	"github.com/semiotic-ai/allocopt/pkg/constants"
	"github.com/semiotic-ai/allocopt/pkg/format"
	"github.com/semiotic-ai/allocopt/pkg/grt"
	"github.com/semiotic-ai/allocopt/pkg/output"
	"github.com/semiotic-ai/allocopt/pkg/validation"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	lumberjack "gopkg.in/natefinch/lumberjack.v2"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

// initializeLogger creates a zap logger based on configuration and CLI override
func initializeLogger(loggingConfig config.LoggingConfig, logLevelOverride string) (*zap.Logger, error) {
	level := loggingConfig.Level
	if logLevelOverride != "" {
		level = logLevelOverride
	}
	if level == "" {
		level = "info"
	}

	var zapLevel zapcore.Level
	switch level {
	case "debug":
		zapLevel = zapcore.DebugLevel
	case "info":
		zapLevel = zapcore.InfoLevel
	case "warn", "warning":
		zapLevel = zapcore.WarnLevel
	case "error":
		zapLevel = zapcore.ErrorLevel
	default:
		return nil, fmt.Errorf("invalid log level: %s", level)
	}

	logFormat := loggingConfig.Format
	if logFormat == "" {
		logFormat = "json"
	}

	var zapConfig zap.Config
	switch logFormat {
	case "console":
		zapConfig = zap.NewDevelopmentConfig()
	case "json":
		zapConfig = zap.NewProductionConfig()
	default:
		return nil, fmt.Errorf("invalid log format: %s", logFormat)
	}
	zapConfig.Level = zap.NewAtomicLevelAt(zapLevel)

	if loggingConfig.OutputFile == "" {
		return zapConfig.Build()
	}

	if dir := filepath.Dir(loggingConfig.OutputFile); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create log directory %s: %v", dir, err)
		}
	}

	encoder := zapcore.NewJSONEncoder(zapConfig.EncoderConfig)
	if logFormat == "console" {
		encoder = zapcore.NewConsoleEncoder(zapConfig.EncoderConfig)
	}
	writer := zapcore.AddSync(&lumberjack.Logger{
		Filename:   loggingConfig.OutputFile,
		MaxSize:    loggingConfig.MaxSizeMB,
		MaxBackups: loggingConfig.MaxBackups,
		MaxAge:     loggingConfig.MaxAgeDays,
	})
	zapConfig.OutputPaths = nil
	zapConfig.ErrorOutputPaths = []string{"stderr"}

	return zapConfig.Build(zap.WrapCore(func(zapcore.Core) zapcore.Core {
		return zapcore.NewCore(encoder, writer, zapConfig.Level)
	}))
}

func fatalf(msg string, err error) {
	fmt.Fprintf(os.Stderr, "{\"op\": \"main\", \"level\": \"fatal\", \"msg\": %q, \"error\": %q}\n", msg, err.Error())
	os.Exit(1)
}

func main() {
	configLocation := flag.String("config", constants.DefaultConfigFile, "path to configuration file")
	outputFormatFlag := flag.String("output-format", "", "type of output override: pretty, csv, json")
	logLevel := flag.String("log-level", "", "log level override (debug, info, warn, error)")
	serve := flag.Bool("serve", false, "serve the HTTP API instead of running a single optimization")
	serverConfig := flag.String("server-config", constants.DefaultServerConfigFile, "path to the HTTP server configuration file")
	convert := flag.String("convert", "", "print the GRT value of a wei amount and exit")
	flag.Parse()

	if *convert != "" {
		amount, err := grt.WeiStringToDecimal(*convert)
		if err != nil {
			fatalf("failed to convert wei amount", err)
		}
		fmt.Printf("%s GRT (%s)\n", amount.String(), format.GRT(amount))
		return
	}

	if *serve {
		runServer(*configLocation, *serverConfig, *logLevel)
		return
	}

	conf, err := config.LoadConfiguration(*configLocation)
	if err != nil {
		fatalf(fmt.Sprintf("failed to load configuration at %s", *configLocation), err)
	}

	logger, err := initializeLogger(conf.Logging, *logLevel)
	if err != nil {
		fatalf("failed to initialize logger", err)
	}
	defer func() {
		_ = logger.Sync()
	}()

	outputFormat := conf.Output.Format
	if *outputFormatFlag != "" {
		outputFormat = *outputFormatFlag
	}
	if outputFormat == "" {
		outputFormat = constants.OutputFormatPretty
	}

	if err := validation.ValidateOutputFormat(outputFormat); err != nil {
		logger.Fatal(err.Error(),
			zap.String("op", "main"),
		)
	}

	for _, warning := range conf.ValidateConfiguration() {
		logger.Warn("Configuration warning: "+warning,
			zap.String("op", "main"),
		)
	}

	req, err := conf.Indexer.ToRequest()
	if err != nil {
		logger.Fatal("invalid indexer configuration",
			zap.String("op", "main"),
			zap.Error(err),
		)
	}

	optimizer, err := newOptimizer(logger, conf.Runtime)
	if err != nil {
		logger.Fatal("failed to initialize optimizer",
			zap.String("op", "main"),
			zap.Error(err),
		)
	}

	result, err := optimizer.Allocate(req)
	if err != nil {
		logger.Fatal("failed to optimize allocations",
			zap.String("op", "main"),
			zap.Error(err),
		)
	}

	if err := output.Write(os.Stdout, outputFormat, conf.Indexer.Address, result); err != nil {
		logger.Fatal("failed to write output",
			zap.String("op", "main"),
			zap.Error(err),
		)
	}
}

func newOptimizer(logger *zap.Logger, runtimeConfig config.RuntimeConfig) (*allocopt.Optimizer, error) {
	runtime := julia.NewRuntime(logger, runtimeConfig.ToJuliaConfig())
	return allocopt.NewOptimizer(logger, runtime)
}

// runServer serves the HTTP API. The runtime section of the main
// configuration is used when that file exists; otherwise the defaults apply.
func runServer(configLocation, serverConfigLocation, logLevel string) {
	serverConf, err := server.LoadConfig(serverConfigLocation)
	if err != nil {
		fatalf(fmt.Sprintf("failed to load server configuration at %s", serverConfigLocation), err)
	}

	logger, err := initializeLogger(serverConf.Logging, logLevel)
	if err != nil {
		fatalf("failed to initialize logger", err)
	}
	defer func() {
		_ = logger.Sync()
	}()

	var runtimeConfig config.RuntimeConfig
	if conf, err := config.LoadConfiguration(configLocation); err == nil {
		runtimeConfig = conf.Runtime
	} else {
		logger.Info("no optimizer configuration loaded, using runtime defaults",
			zap.String("op", "main.runServer"),
			zap.String("config", configLocation),
			zap.Error(err),
		)
	}

	optimizer, err := newOptimizer(logger, runtimeConfig)
	if err != nil {
		logger.Fatal("failed to initialize optimizer",
			zap.String("op", "main.runServer"),
			zap.Error(err),
		)
	}

	srv := &http.Server{
		Addr:              serverConf.Address,
		Handler:           server.NewHandler(logger, optimizer, serverConf.BodySizeBytes(), version),
		ReadHeaderTimeout: 10 * time.Second,
	}

	logger.Info("serving allocation API",
		zap.String("op", "main.runServer"),
		zap.String("address", serverConf.Address),
		zap.String("version", version),
	)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatal("server stopped",
			zap.String("op", "main.runServer"),
			zap.Error(err),
		)
	}
}
