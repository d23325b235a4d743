package logging

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// New builds the console logger used by every command. When file is not
// empty, entries are also written to a size-rotated log file.
func New(level, file string) (*zap.Logger, error) {
	return NewTo(os.Stderr, level, file)
}

// NewTo is New with console output going to w instead of stderr.
func NewTo(w io.Writer, level, file string) (*zap.Logger, error) {
	lvl, err := ParseLevel(level)
	if err != nil {
		return nil, err
	}

	core := zapcore.NewCore(getEncoder(), logWriter(w, file), lvl)
	return zap.New(core), nil
}

// Fallback returns an info level console logger writing to w. It is used
// until the configured logger is built.
func Fallback(w io.Writer) *zap.Logger {
	return zap.New(zapcore.NewCore(getEncoder(), zapcore.Lock(zapcore.AddSync(w)), zapcore.InfoLevel))
}

// ParseLevel accepts zap level names plus "warning".
func ParseLevel(level string) (zapcore.Level, error) {
	l := strings.ToLower(strings.TrimSpace(level))
	if l == "warning" {
		l = "warn"
	}
	var lvl zapcore.Level
	if err := lvl.UnmarshalText([]byte(l)); err != nil {
		return lvl, fmt.Errorf("invalid log level %q", level)
	}
	return lvl, nil
}

func getEncoder() zapcore.Encoder {
	return zapcore.NewConsoleEncoder(zapcore.EncoderConfig{
		MessageKey:       "message",
		TimeKey:          "time",
		LevelKey:         "level",
		EncodeLevel:      CustomLevelEncoder,
		EncodeTime:       SyslogTimeEncoder,
		ConsoleSeparator: " ",
	})
}

func SyslogTimeEncoder(t time.Time, enc zapcore.PrimitiveArrayEncoder) {
	enc.AppendString(t.Format("2006-01-02 15:04:05"))
}

func CustomLevelEncoder(level zapcore.Level, enc zapcore.PrimitiveArrayEncoder) {
	enc.AppendString(level.CapitalString())
}

func logWriter(w io.Writer, file string) zapcore.WriteSyncer {
	console := zapcore.Lock(zapcore.AddSync(w))
	if file == "" {
		return console
	}
	return zapcore.NewMultiWriteSyncer(
		zapcore.AddSync(&lumberjack.Logger{
			Filename: file,
			MaxSize:  100,
			MaxAge:   30,
		}),
		console,
	)
}
