package bootstrap

import (
	"fmt"
	"os"

	"nanoclaw-sidecar/config"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// InitLogger initializes the zap logger. The console format uses colored
// levels; json is meant for log shippers.
func InitLogger(cfg config.LogConfig) (*zap.Logger, *zap.SugaredLogger, error) {
	level := zapcore.InfoLevel
	if cfg.Level != "" {
		parsed, err := zapcore.ParseLevel(cfg.Level)
		if err != nil {
			return nil, nil, fmt.Errorf("invalid log level %q: %w", cfg.Level, err)
		}
		level = parsed
	}

	var encoder zapcore.Encoder
	switch cfg.Format {
	case "json":
		encoderConfig := zap.NewProductionEncoderConfig()
		encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
		encoder = zapcore.NewJSONEncoder(encoderConfig)
	default:
		// Create a colored console encoder config
		encoderConfig := zap.NewDevelopmentEncoderConfig()
		encoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder // Colored levels
		encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder        // Readable timestamps
		encoderConfig.EncodeCaller = zapcore.ShortCallerEncoder      // Short file paths
		encoder = zapcore.NewConsoleEncoder(encoderConfig)
	}

	// Write to stdout
	core := zapcore.NewCore(
		encoder,
		zapcore.AddSync(os.Stdout),
		level,
	)

	logger := zap.New(core, zap.AddCaller(), zap.AddStacktrace(zapcore.ErrorLevel))
	return logger, logger.Sugar(), nil
}

// InitConfig loads the application configuration.
func InitConfig(configFile string) (*config.Config, error) {
	cfg, err := config.LoadConfig(configFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return cfg, nil
}

// logConfig reports the effective configuration at startup.
func logConfig(cfg *config.Config, configFileUsed string, sugar *zap.SugaredLogger) {
	if configFileUsed == "" {
		sugar.Info("No config file found, using defaults and env vars")
	} else {
		sugar.Infow("Config file loaded", "path", configFileUsed)
	}

	sugar.Infow("Data paths configuration",
		"data_dir", cfg.DataDir,
		"messages_dir", cfg.MessagesDir(),
		"groups_config", cfg.GroupsConfig)

	sugar.Infow("Config loaded",
		"app", cfg.Server.App,
		"listen_addr", cfg.ListenAddr(),
		"default_group", cfg.DefaultGroup,
		"groups_watch", cfg.Groups.Watch)
}
