package config

import (
	"context"
	"errors"
	"strings"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

var loadCounter = sync.OnceValue(func() metric.Int64Counter {
	counter, err := otel.Meter("clinical-records-service/config").Int64Counter(
		"config.load.events",
		metric.WithDescription("Configuration loads by environment and outcome"),
	)
	if err != nil {
		return nil
	}
	return counter
})

// recordLoad counts one configuration load. Validation failures also carry
// how many independent problems were reported.
func recordLoad(ctx context.Context, appEnv string, err error) {
	counter := loadCounter()
	if counter == nil {
		return
	}
	counter.Add(ctx, 1, metric.WithAttributes(
		attribute.String("app_env", envLabel(appEnv)),
		attribute.String("class", loadErrorClass(err)),
		attribute.Int("problems", problemCount(err)),
	))
}

func envLabel(appEnv string) string {
	switch v := strings.ToLower(strings.TrimSpace(appEnv)); v {
	case "production", "staging", "development", "test":
		return v
	case "":
		return "unset"
	default:
		return "other"
	}
}

func loadErrorClass(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrParse):
		return "parse"
	case errors.Is(err, ErrInvalid):
		return "invalid"
	default:
		return "other"
	}
}

func problemCount(err error) int {
	if err == nil {
		return 0
	}
	n := 0
	var walk func(error)
	walk = func(e error) {
		switch x := e.(type) {
		case interface{ Unwrap() []error }:
			for _, inner := range x.Unwrap() {
				if inner != ErrInvalid && inner != ErrParse {
					walk(inner)
				}
			}
		default:
			n++
		}
	}
	walk(err)
	return n
}
