package logger

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// New создаёт корневой логгер: человекочитаемый вывод в dev, JSON в остальных окружениях.
func New(appEnv string) zerolog.Logger {
	return NewWithWriter(appEnv, os.Stdout)
}

// NewWithWriter делает то же, что New, но пишет в переданный writer.
func NewWithWriter(appEnv string, out io.Writer) zerolog.Logger {
	if appEnv == "dev" {
		output := zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}
		logger := zerolog.New(output).With().Timestamp().Logger()
		log.Logger = logger
		return logger
	}
	zerolog.TimeFieldFormat = time.RFC3339
	logger := zerolog.New(out).With().Timestamp().Logger()
	log.Logger = logger
	return logger
}
