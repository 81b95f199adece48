// Package logger собирает logrus логгер сервиса из конфигурации:
// уровень, формат и вывод в stdout с необязательной ротацией файла.
package logger

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/arzzra/gb_session/pkg/config"
	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Logger логгер и закрытие файлового вывода
type Logger struct {
	*logrus.Logger
	file *lumberjack.Logger
}

// New создает логгер. stdout используется всегда, файл по cfg.File.
func New(cfg config.LogConfig) (*Logger, error) {
	return newWithStdout(cfg, os.Stdout)
}

func newWithStdout(cfg config.LogConfig, stdout io.Writer) (*Logger, error) {
	level, err := parseLevel(cfg.Level)
	if err != nil {
		return nil, fmt.Errorf("уровень логирования: %w", err)
	}

	formatter, err := newFormatter(cfg.Format)
	if err != nil {
		return nil, err
	}

	l := &Logger{Logger: logrus.New()}
	writers := []io.Writer{stdout}
	if cfg.File.Enabled {
		l.file, err = newFileWriter(cfg.File)
		if err != nil {
			return nil, fmt.Errorf("файловый вывод: %w", err)
		}
		writers = append(writers, l.file)
	}

	l.SetLevel(level)
	l.SetFormatter(formatter)
	l.SetOutput(io.MultiWriter(writers...))
	return l, nil
}

// Component запись с полем component
func (l *Logger) Component(name string) *logrus.Entry {
	return l.WithField("component", name)
}

// Close закрывает файл лога
func (l *Logger) Close() error {
	if l.file == nil {
		return nil
	}
	return l.file.Close()
}

// parseLevel уровень logrus, пустая строка - info
func parseLevel(s string) (logrus.Level, error) {
	if s == "" {
		return logrus.InfoLevel, nil
	}
	return logrus.ParseLevel(s)
}

func newFormatter(format string) (logrus.Formatter, error) {
	switch strings.ToLower(format) {
	case "", "text":
		return &logrus.TextFormatter{FullTimestamp: true}, nil
	case "json":
		return &logrus.JSONFormatter{}, nil
	default:
		return nil, fmt.Errorf("неподдерживаемый формат лога %q (json или text)", format)
	}
}

func newFileWriter(fc config.FileConfig) (*lumberjack.Logger, error) {
	if fc.Path == "" {
		return nil, fmt.Errorf("не задан путь файла лога")
	}
	return &lumberjack.Logger{
		Filename:   fc.Path,
		MaxSize:    fc.MaxSizeMB,
		MaxBackups: fc.MaxBackups,
		MaxAge:     fc.MaxAgeDays,
		Compress:   fc.Compress,
	}, nil
}
