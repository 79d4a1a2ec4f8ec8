package logger

import (
	"log/slog"
)

// SlogHandler is a Logger backed by a slog.Handler.
type SlogHandler struct {
	l *slog.Logger
}

func New(h slog.Handler) *SlogHandler {
	return &SlogHandler{l: slog.New(h)}
}

// With returns a logger that adds args to every record.
func (s *SlogHandler) With(args ...any) *SlogHandler {
	return &SlogHandler{l: s.l.With(args...)}
}

func (s *SlogHandler) Error(msg string, args ...any) { s.l.Error(msg, args...) }

func (s *SlogHandler) Warn(msg string, args ...any) { s.l.Warn(msg, args...) }

func (s *SlogHandler) Info(msg string, args ...any) { s.l.Info(msg, args...) }

func (s *SlogHandler) Debug(msg string, args ...any) { s.l.Debug(msg, args...) }
