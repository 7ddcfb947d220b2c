package logging

import (
	"fmt"

	"github.com/rs/zerolog/log"
)

// AsynqLogger satisfies asynq.Logger.
type AsynqLogger struct{}

func (AsynqLogger) Debug(args ...any) {
	log.Debug().Str("component", "asynq").Msg(fmt.Sprint(args...))
}

func (AsynqLogger) Info(args ...any) {
	log.Info().Str("component", "asynq").Msg(fmt.Sprint(args...))
}

func (AsynqLogger) Warn(args ...any) {
	log.Warn().Str("component", "asynq").Msg(fmt.Sprint(args...))
}

func (AsynqLogger) Error(args ...any) {
	log.Error().Str("component", "asynq").Msg(fmt.Sprint(args...))
}

func (AsynqLogger) Fatal(args ...any) {
	log.Fatal().Str("component", "asynq").Msg(fmt.Sprint(args...))
}
