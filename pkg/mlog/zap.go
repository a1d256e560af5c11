package mlog

import (
	"log"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// ZapLogger is a go.uber.org/zap-backed implementation of Logger. Spans
// emitted by the observability package carry their own trace/span IDs, so
// this logger doesn't need to inject them itself; it just needs to be fast
// and structured.
type ZapLogger struct {
	Logger *zap.SugaredLogger
}

// NewZapLogger builds a ZapLogger from the environment: ENV_NAME=production
// selects the JSON production encoder, anything else the human-readable
// development one; LOG_LEVEL overrides the default (info).
func NewZapLogger() *ZapLogger {
	var cfg zap.Config

	if os.Getenv("ENV_NAME") == "production" {
		cfg = zap.NewProductionConfig()
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
	} else {
		cfg = zap.NewDevelopmentConfig()
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}

	if val, ok := os.LookupEnv("LOG_LEVEL"); ok {
		var lvl zapcore.Level
		if err := lvl.Set(val); err != nil {
			log.Printf("invalid LOG_LEVEL %q, falling back to info: %v", val, err)

			lvl = zapcore.InfoLevel
		}

		cfg.Level = zap.NewAtomicLevelAt(lvl)
	}

	cfg.DisableStacktrace = true

	logger, err := cfg.Build(zap.AddCallerSkip(1))
	if err != nil {
		log.Fatalf("can't initialize zap logger: %v", err)
	}

	return &ZapLogger{Logger: logger.Sugar()}
}

func (l *ZapLogger) Info(args ...any)                 { l.Logger.Info(args...) }
func (l *ZapLogger) Infof(format string, args ...any) { l.Logger.Infof(format, args...) }
func (l *ZapLogger) Infoln(args ...any)                { l.Logger.Infoln(args...) }

func (l *ZapLogger) Error(args ...any)                 { l.Logger.Error(args...) }
func (l *ZapLogger) Errorf(format string, args ...any) { l.Logger.Errorf(format, args...) }
func (l *ZapLogger) Errorln(args ...any)               { l.Logger.Errorln(args...) }

func (l *ZapLogger) Warn(args ...any)                 { l.Logger.Warn(args...) }
func (l *ZapLogger) Warnf(format string, args ...any) { l.Logger.Warnf(format, args...) }
func (l *ZapLogger) Warnln(args ...any)                { l.Logger.Warnln(args...) }

func (l *ZapLogger) Debug(args ...any)                 { l.Logger.Debug(args...) }
func (l *ZapLogger) Debugf(format string, args ...any) { l.Logger.Debugf(format, args...) }
func (l *ZapLogger) Debugln(args ...any)               { l.Logger.Debugln(args...) }

func (l *ZapLogger) Fatal(args ...any)                 { l.Logger.Fatal(args...) }
func (l *ZapLogger) Fatalf(format string, args ...any) { l.Logger.Fatalf(format, args...) }
func (l *ZapLogger) Fatalln(args ...any)               { l.Logger.Fatalln(args...) }

// WithFields returns a new ZapLogger with fields attached to every
// subsequent entry; the receiver is left unchanged.
//
//nolint:ireturn
func (l *ZapLogger) WithFields(fields ...any) Logger {
	return &ZapLogger{Logger: l.Logger.With(fields...)}
}

// Sync flushes any buffered log entries.
func (l *ZapLogger) Sync() error {
	return l.Logger.Sync()
}
