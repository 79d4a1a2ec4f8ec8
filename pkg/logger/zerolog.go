package logger

import (
	"io"
	"log/slog"
	"os"

	"github.com/rs/zerolog"
)

const (
	permission = 0664
)

// LogBuild configures a zerolog backed Logger.
type LogBuild struct {
	writer  io.Writer
	path    string
	console bool
	level   slog.Level
}

// ZerologLogger adapts zerolog to the Logger interface.
type ZerologLogger struct {
	LogFile *os.File
	Logger  zerolog.Logger
}

func Build() *LogBuild {
	return &LogBuild{writer: os.Stdout, level: slog.LevelInfo}
}

func (build *LogBuild) FromPath(path string) *LogBuild {
	build.path = path
	return build
}

func (build *LogBuild) FromBuffer(w io.Writer) *LogBuild {
	build.writer = w
	return build
}

// Console switches to zerolog's human readable console writer.
func (build *LogBuild) Console() *LogBuild {
	build.console = true
	return build
}

func (build *LogBuild) Level(level slog.Level) *LogBuild {
	build.level = level
	return build
}

func (build *LogBuild) Make() (logData *ZerologLogger, err error) {
	logData = new(ZerologLogger)
	writer := build.writer
	if build.path != "" {
		logData.LogFile, err = os.OpenFile(build.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, permission)
		if err != nil {
			return nil, err
		}
		writer = zerolog.SyncWriter(logData.LogFile)
	}
	if build.console {
		writer = zerolog.ConsoleWriter{Out: writer, NoColor: build.path != ""}
	}
	logData.Logger = zerolog.New(writer).Level(zerologLevel(build.level)).With().Timestamp().Logger()
	return
}

// Close closes the log file, if any.
func (l *ZerologLogger) Close() error {
	if l.LogFile != nil {
		return l.LogFile.Close()
	}
	return nil
}

func (l *ZerologLogger) Error(msg string, args ...any) {
	l.Logger.Error().Fields(args).Msg(msg)
}

func (l *ZerologLogger) Warn(msg string, args ...any) {
	l.Logger.Warn().Fields(args).Msg(msg)
}

func (l *ZerologLogger) Info(msg string, args ...any) {
	l.Logger.Info().Fields(args).Msg(msg)
}

func (l *ZerologLogger) Debug(msg string, args ...any) {
	l.Logger.Debug().Fields(args).Msg(msg)
}

func zerologLevel(level slog.Level) zerolog.Level {
	switch {
	case level <= slog.LevelDebug:
		return zerolog.DebugLevel
	case level <= slog.LevelInfo:
		return zerolog.InfoLevel
	case level <= slog.LevelWarn:
		return zerolog.WarnLevel
	default:
		return zerolog.ErrorLevel
	}
}
