package common

import (
	"fmt"
	"io"
	"log/slog"
	"strings"
)

// SetupLogger builds a text or JSON slog logger writing to w.
func SetupLogger(w io.Writer, format, level string) (*slog.Logger, error) {
	if level == "" {
		level = "info"
	}
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(strings.ToUpper(level))); err != nil {
		return nil, fmt.Errorf("invalid log level %q", level)
	}
	opts := &slog.HandlerOptions{Level: lvl}

	switch strings.ToLower(format) {
	case "", "text":
		return slog.New(slog.NewTextHandler(w, opts)), nil
	case "json":
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	}
	return nil, fmt.Errorf("invalid log format %q, want text or json", format)
}
