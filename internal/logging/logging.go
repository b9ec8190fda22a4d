// Package logging builds the process-wide slog logger.
package logging

import (
	"io"
	"log/slog"
	"os"

	"github.com/google/uuid"
)

type Options struct {
	JSON    bool
	Debug   bool
	Service string
	Version string
	// UID tags every record with a random uuid for this process.
	UID bool
	// Output defaults to stdout.
	Output io.Writer
}

func Setup(opts *Options) *slog.Logger {
	if opts == nil {
		opts = &Options{}
	}
	out := opts.Output
	if out == nil {
		out = os.Stdout
	}

	hopts := &slog.HandlerOptions{
		Level:     slog.LevelInfo,
		AddSource: opts.Debug,
	}
	if opts.Debug {
		hopts.Level = slog.LevelDebug
	}

	var handler slog.Handler
	if opts.JSON {
		handler = slog.NewJSONHandler(out, hopts)
	} else {
		handler = slog.NewTextHandler(out, hopts)
	}

	logger := slog.New(handler)
	if opts.Service != "" {
		logger = logger.With("service", opts.Service)
	}
	if opts.Version != "" {
		logger = logger.With("version", opts.Version)
	}
	if opts.UID {
		logger = logger.With("uid", uuid.Must(uuid.NewRandom()).String())
	}
	return logger
}
