// Package log builds the service logger and holds common structured fields.
package log

import (
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Log field names.
const (
	FieldTxHash        = "txHash"
	FieldCredentialID  = "credentialId"
	FieldApplicationID = "applicationId"
	FieldAgentDID      = "agentDid"
	FieldState         = "state"
	FieldURL           = "url"
	FieldKind          = "kind"
	FieldDuration      = "duration"
)

// Options configure New.
type Options struct {
	// Level is one of debug, info, warn, error.
	Level string

	// Format is json or console.
	Format string
}

// New builds a zap logger.
func New(opts Options) (*zap.Logger, error) {
	level := zapcore.InfoLevel
	if opts.Level != "" {
		if err := level.UnmarshalText([]byte(strings.ToLower(opts.Level))); err != nil {
			return nil, fmt.Errorf("invalid log level %q: %w", opts.Level, err)
		}
	}

	var cfg zap.Config
	switch strings.ToLower(opts.Format) {
	case "", "json":
		cfg = zap.NewProductionConfig()
	case "console":
		cfg = zap.NewDevelopmentConfig()
	default:
		return nil, fmt.Errorf("invalid log format %q", opts.Format)
	}
	cfg.Level = zap.NewAtomicLevelAt(level)
	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	return cfg.Build()
}

// OrNop returns logger, or a no-op logger when nil.
func OrNop(logger *zap.Logger) *zap.Logger {
	if logger == nil {
		return zap.NewNop()
	}
	return logger
}

// WithError sets the error field.
func WithError(err error) zap.Field {
	return zap.Error(err)
}

// WithTxHash sets the transaction hash field.
func WithTxHash(hash string) zap.Field {
	return zap.String(FieldTxHash, hash)
}

// WithCredentialID sets the credential id field.
func WithCredentialID(id string) zap.Field {
	return zap.String(FieldCredentialID, id)
}

// WithApplicationID sets the application id field.
func WithApplicationID(id string) zap.Field {
	return zap.String(FieldApplicationID, id)
}

// WithAgentDID sets the agent DID field.
func WithAgentDID(did string) zap.Field {
	return zap.String(FieldAgentDID, did)
}

// WithState sets the anchor state field.
func WithState(state string) zap.Field {
	return zap.String(FieldState, state)
}

// WithURL sets the URL field.
func WithURL(url string) zap.Field {
	return zap.String(FieldURL, url)
}

// WithKind sets the anchor kind field.
func WithKind(kind string) zap.Field {
	return zap.String(FieldKind, kind)
}

// WithDuration sets the duration field.
func WithDuration(d time.Duration) zap.Field {
	return zap.Duration(FieldDuration, d)
}
