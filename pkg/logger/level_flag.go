package logger

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/pflag"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var levelStrings = map[string]zapcore.Level{
	"debug": zap.DebugLevel,
	"info":  zap.InfoLevel,
	"error": zap.ErrorLevel,
}

// LevelFlagValue is a pflag.Value that forwards the parsed level to a callback,
// so the console level can be adjusted before or after the logger exists.
type LevelFlagValue struct {
	onLevelAvailable func(zapcore.Level)
	value            string
}

func NewLevelFlagValue(onLevelAvailable func(zapcore.Level)) LevelFlagValue {
	return LevelFlagValue{
		onLevelAvailable: onLevelAvailable,
	}
}

// StringToLevel parses a named level ("debug", "info", "error") or a positive
// numeric logr verbosity into a zap level.
func StringToLevel(value string, defaultLevel zapcore.Level) (zapcore.Level, error) {
	if level, namedLevel := levelStrings[strings.ToLower(value)]; namedLevel {
		return level, nil
	}

	logLevel, err := strconv.Atoi(value)
	if err != nil {
		return defaultLevel, fmt.Errorf("invalid log level %q", value)
	}

	if logLevel > 0 {
		// Zap has the levels backwards: higher logr verbosity is a more
		// negative zap level.
		return zapcore.Level(int8(-1 * logLevel)), nil
	}
	return defaultLevel, fmt.Errorf("invalid log level %q", value)
}

func (lfv *LevelFlagValue) Set(flagValue string) error {
	level, err := StringToLevel(flagValue, zapcore.InfoLevel)
	if err != nil {
		return err
	}
	lfv.onLevelAvailable(level)
	lfv.value = flagValue
	return nil
}

func (lfv *LevelFlagValue) String() string {
	return lfv.value
}

func (lfv *LevelFlagValue) Type() string {
	return "level"
}

var _ pflag.Value = (*LevelFlagValue)(nil)

// AddVerbosityFlag registers the --verbosity/-v flag on the passed flag set,
// wired to the logger's atomic console level.
func AddVerbosityFlag(flags *pflag.FlagSet, log *Logger) {
	value := NewLevelFlagValue(log.SetLevel)
	flags.VarP(&value, "verbosity", "v", "Console log verbosity: debug, info, error, or a positive number")
}
