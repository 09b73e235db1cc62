package logger

import (
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	// Global logger instance
	Logger *zap.SugaredLogger
	// Flag to track if JSON output is enabled
	JSONOutput bool
)

func init() {
	// Safe no-op logger until Initialize is called
	Logger = zap.NewNop().Sugar()
}

// Initialize sets up the global logger.
// JSON output is for machine consumption (deployed daemon); console output is for the CLI.
// verbosity follows the -v flag count, see VerbosityToLevel.
func Initialize(jsonOutput bool, verbosity int) error {
	JSONOutput = jsonOutput

	zapLogger, err := build(jsonOutput, VerbosityToLevel(verbosity))
	if err != nil {
		return err
	}

	Logger = zapLogger.Sugar()
	return nil
}

// InitializeFromEnv picks JSON output when running in a deployed environment.
// ENVIRONMENT=production|prod or LOG_FORMAT=json switch JSON on; LOG_LEVEL raises the floor.
func InitializeFromEnv(verbosity int) error {
	jsonOutput := isProductionEnvironment() || strings.EqualFold(os.Getenv("LOG_FORMAT"), "json")
	if err := Initialize(jsonOutput, verbosity); err != nil {
		return err
	}

	Logger.Debugw("Logger initialized",
		"environment", getEnvironmentType(),
		"json", jsonOutput,
		"verbosity", LevelName(verbosity))
	return nil
}

func build(jsonOutput bool, level zapcore.Level) (*zap.Logger, error) {
	if envLevel, ok := levelFromEnv(); ok && envLevel > level {
		level = envLevel
	}

	if jsonOutput {
		config := zap.NewProductionConfig()
		config.Level = zap.NewAtomicLevelAt(level)
		config.OutputPaths = []string{"stdout"}
		config.ErrorOutputPaths = []string{"stderr"}
		return config.Build()
	}

	encoderCfg := zap.NewDevelopmentEncoderConfig()
	encoderCfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
	encoderCfg.EncodeTime = zapcore.TimeEncoderOfLayout("15:04:05")
	return zap.New(
		zapcore.NewCore(
			zapcore.NewConsoleEncoder(encoderCfg),
			zapcore.AddSync(os.Stdout),
			level,
		),
	), nil
}

// levelFromEnv reads LOG_LEVEL (DEBUG, INFO, WARN, ERROR)
func levelFromEnv() (zapcore.Level, bool) {
	raw := os.Getenv("LOG_LEVEL")
	if raw == "" {
		return zapcore.InfoLevel, false
	}
	var level zapcore.Level
	if err := level.UnmarshalText([]byte(strings.ToLower(raw))); err != nil {
		return zapcore.InfoLevel, false
	}
	return level, true
}

func isProductionEnvironment() bool {
	env := strings.ToLower(os.Getenv("ENVIRONMENT"))
	return env == "production" || env == "prod"
}

func getEnvironmentType() string {
	if isProductionEnvironment() {
		return "production"
	}
	return "development"
}
