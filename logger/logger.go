package logger

import (
	"os"
	"path/filepath"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/flynnfc/bagginsindex/pkg/bagginsindex/indexerr"
)

// Options configure the daemon logger.
type Options struct {
	// Dir holds the log files, "logs" when empty.
	Dir   string
	Name  string
	Level string
	// Console also writes human readable logs to stderr.
	Console bool
}

// InitLogger returns a JSON zap logger writing to <Dir>/<Name>.log, rotated
// by lumberjack.
func InitLogger(o Options) (*zap.Logger, error) {
	level := zap.InfoLevel
	if o.Level != "" {
		if err := level.UnmarshalText([]byte(o.Level)); err != nil {
			return nil, indexerr.Wrap(err, indexerr.CodeConfig, "logger.InitLogger", "level %q", o.Level)
		}
	}
	dir := o.Dir
	if dir == "" {
		dir = "logs"
	}
	w := zapcore.AddSync(&lumberjack.Logger{
		Filename:   filepath.Join(dir, o.Name+".log"),
		MaxSize:    10, // megabytes
		MaxBackups: 3,
		MaxAge:     28, // days
		Compress:   true,
	})

	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.TimeKey = "timestamp"
	encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	core := zapcore.NewCore(zapcore.NewJSONEncoder(encoderConfig), w, level)
	if o.Console {
		console := zapcore.NewCore(
			zapcore.NewConsoleEncoder(zap.NewDevelopmentEncoderConfig()),
			zapcore.Lock(os.Stderr),
			level,
		)
		core = zapcore.NewTee(core, console)
	}
	return zap.New(core, zap.AddCaller()).Named(o.Name), nil
}
