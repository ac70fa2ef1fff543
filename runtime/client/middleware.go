package client

import (
	"context"
	"time"

	"github.com/readingbuddy/dbal/internal/debug"
)

// QueryEvent describes one statement passing through the middleware chain.
type QueryEvent struct {
	Table     string
	Operation string
	SQL       string
	Args      []any
	Duration  time.Duration
	Error     error
	Start     time.Time
	End       time.Time
}

// Middleware intercepts statements. It must call next exactly once to run
// the statement.
type Middleware func(ctx context.Context, event *QueryEvent, next func() error) error

// Chain runs exec through middlewares in registration order.
func Chain(ctx context.Context, middlewares []Middleware, event *QueryEvent, exec func() error) error {
	event.Start = time.Now()
	if len(middlewares) == 0 {
		err := exec()
		finish(event, err)
		return err
	}

	var next func() error
	index := 0

	next = func() error {
		if index >= len(middlewares) {
			err := exec()
			finish(event, err)
			return err
		}

		middleware := middlewares[index]
		index++
		return middleware(ctx, event, next)
	}

	return next()
}

func finish(event *QueryEvent, err error) {
	event.End = time.Now()
	event.Duration = event.End.Sub(event.Start)
	event.Error = err
}

// LoggingMiddleware logs every statement at info level.
func LoggingMiddleware() Middleware {
	return func(ctx context.Context, event *QueryEvent, next func() error) error {
		err := next()
		log := debug.With("table", event.Table, "operation", event.Operation, "duration", event.Duration)
		if err != nil {
			log.Warn("query failed", "error", err)
		} else {
			log.Info("query completed")
		}
		return err
	}
}

// TimingMiddleware reports the duration of every statement.
func TimingMiddleware(onTiming func(event QueryEvent)) Middleware {
	return func(ctx context.Context, event *QueryEvent, next func() error) error {
		err := next()
		if onTiming != nil {
			onTiming(*event)
		}
		return err
	}
}

// ErrorMiddleware reports failed statements.
func ErrorMiddleware(onError func(event QueryEvent, err error)) Middleware {
	return func(ctx context.Context, event *QueryEvent, next func() error) error {
		err := next()
		if err != nil && onError != nil {
			onError(*event, err)
		}
		return err
	}
}
