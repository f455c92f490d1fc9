// Copyright 2025 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package threadbound

import (
	"fmt"
	"time"

	"github.com/joeycumines/go-catrate"
	"github.com/joeycumines/logiface"
)

// DefaultLogRates are the per-category limits applied to repetitive log
// events (subscriber panics, dropped continuations), unless overridden via
// [WithLogRateLimits].
var DefaultLogRates = map[time.Duration]int{
	time.Second: 5,
	time.Minute: 30,
}

// options holds configuration shared by all back-ends.
type options struct {
	logger    *logiface.Logger[logiface.Event]
	logLimits *catrate.Limiter
	bound     ThreadID
	deferred  bool
	limitsSet bool
}

// Option configures a dispatcher.
type Option interface {
	apply(*options) error
}

// optionImpl implements Option.
type optionImpl struct {
	applyFunc func(*options) error
}

func (x *optionImpl) apply(opts *options) error {
	return x.applyFunc(opts)
}

// WithLogger sets the structured logger used for lifecycle and failure
// reporting. Nil disables logging (the default).
func WithLogger(logger *logiface.Logger[logiface.Event]) Option {
	return &optionImpl{func(opts *options) error {
		opts.logger = logger
		return nil
	}}
}

// WithLogRateLimits overrides [DefaultLogRates]. An empty map disables rate
// limiting. Rates must be valid per [catrate.NewLimiter].
func WithLogRateLimits(rates map[time.Duration]int) Option {
	return &optionImpl{func(opts *options) (err error) {
		opts.limitsSet = true
		opts.logLimits = nil
		if len(rates) == 0 {
			return nil
		}
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("%w: log rate limits: %v", ErrInvalidOption, r)
			}
		}()
		opts.logLimits = catrate.NewLimiter(rates)
		return nil
	}}
}

// WithBoundThread binds the dispatcher to the given thread at construction,
// instead of the constructing thread. Not supported by [Worker].
func WithBoundThread(id ThreadID) Option {
	return &optionImpl{func(opts *options) error {
		if id == 0 {
			return fmt.Errorf("%w: zero thread id", ErrInvalidOption)
		}
		opts.bound = id
		return nil
	}}
}

// WithDeferredBinding leaves the dispatcher unbound at construction. It is
// bound by the first call to Bind or Run. Only supported by [Queue].
func WithDeferredBinding() Option {
	return &optionImpl{func(opts *options) error {
		opts.deferred = true
		return nil
	}}
}

// resolveOptions applies Option instances to options.
func resolveOptions(opts []Option) (*options, error) {
	cfg := &options{}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt.apply(cfg); err != nil {
			return nil, err
		}
	}
	if cfg.bound != 0 && cfg.deferred {
		return nil, fmt.Errorf("%w: WithBoundThread and WithDeferredBinding are mutually exclusive", ErrInvalidOption)
	}
	if !cfg.limitsSet {
		cfg.logLimits = catrate.NewLimiter(DefaultLogRates)
	}
	return cfg, nil
}
