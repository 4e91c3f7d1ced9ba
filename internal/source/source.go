// Package source implements the source pollers (C1): per-source HTTP
// fetchers plus the long-lived polling loop that feeds the shared
// history store. Each source is polymorphic over the capability set
// spec.md's design notes describe ({fetch-once, describe}); the poller
// loop holds them as a homogeneous []Poller and never branches on
// concrete type.
package source

import (
	"context"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"golang.org/x/time/rate"

	"github.com/concordium/eur2ccd-service/internal/model"
)

// Poller is the capability set every source implements.
type Poller interface {
	// Describe returns the stable source identifier used as the
	// Prometheus label and history-store key.
	Describe() string
	// FetchOnce performs a single fetch-and-parse attempt. It must not
	// retry forever; bounded retry for a single connection blip belongs
	// to the implementation's HTTP client (newRetryClient), not to the
	// poller loop.
	FetchOnce(ctx context.Context) (model.Rate, error)
}

// newRetryClient builds an HTTP client with a short bounded retry for
// transient connection blips, well under one pull_interval. This does
// not replicate the original implementation's unbounded
// exponential-backoff retry loop — spec.md's C1 error model requires a
// single attempt per tick with the failure counted, not a fetch that
// blocks the poller waiting for one upstream to recover.
func newRetryClient() *retryablehttp.Client {
	c := retryablehttp.NewClient()
	c.RetryMax = 2
	c.RetryWaitMin = 200 * time.Millisecond
	c.RetryWaitMax = 1 * time.Second
	c.Logger = nil
	return c
}

// newLimiter returns a rate limiter bounding fetch attempts for one
// source independent of pull_interval misconfiguration, so that a
// pathologically small pull_interval cannot hammer an upstream.
func newLimiter() *rate.Limiter {
	return rate.NewLimiter(rate.Every(time.Second), 1)
}
