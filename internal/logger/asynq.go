package logger

import (
	"fmt"
	"os"
)

// AsynqLogger adapts Logger to the asynq.Logger interface so the worker
// server logs through zap.
type AsynqLogger struct {
	log Logger
}

// NewAsynqLogger wraps log for asynq.
func NewAsynqLogger(log Logger) *AsynqLogger {
	return &AsynqLogger{log: log.With(String("component", "asynq"))}
}

func (a *AsynqLogger) Debug(args ...interface{}) { a.log.Debug(fmt.Sprint(args...)) }
func (a *AsynqLogger) Info(args ...interface{})  { a.log.Info(fmt.Sprint(args...)) }
func (a *AsynqLogger) Warn(args ...interface{})  { a.log.Warn(fmt.Sprint(args...)) }
func (a *AsynqLogger) Error(args ...interface{}) { a.log.Error(fmt.Sprint(args...)) }

func (a *AsynqLogger) Fatal(args ...interface{}) {
	a.log.Error(fmt.Sprint(args...))
	_ = a.log.Sync()
	os.Exit(1)
}
