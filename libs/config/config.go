// Package config loads service settings from the environment.
package config

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/caarlos0/env/v11"
)

// Load fills cfg from environment variables using `env` struct tags.
// Every field error is reported, not just the first.
func Load(cfg any) error {
	return joinAggregate(env.Parse(cfg))
}

// LoadFrom is Load over an explicit environment map.
func LoadFrom(cfg any, environment map[string]string) error {
	return joinAggregate(env.ParseWithOptions(cfg, env.Options{Environment: environment}))
}

func joinAggregate(err error) error {
	var agg env.AggregateError
	if errors.As(err, &agg) {
		return errors.Join(agg.Errors...)
	}
	return err
}

// ValidPort checks v is a TCP port number.
func ValidPort(v string) error {
	p, err := strconv.Atoi(v)
	if err != nil || p < 1 || p > 65535 {
		return fmt.Errorf("must be a valid TCP port (got %q)", v)
	}
	return nil
}
