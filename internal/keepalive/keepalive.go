// Package keepalive pings the relay's own public health endpoint so hosting
// platforms that idle inactive instances keep it running.
package keepalive

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"hopchain/internal/client"
	"hopchain/internal/config"
	"hopchain/internal/fingerprint"
	"hopchain/internal/metrics"
	"hopchain/internal/model"
)

const pingTimeout = 10 * time.Second

// Doer performs one outbound call.
type Doer interface {
	Do(ctx context.Context, r *client.Request) (*model.HopResponse, error)
}

// Pinger periodically GETs a URL with a random fingerprint. It gives up once
// more than maxFailures pings have failed at the transport level; an HTTP
// error status still counts as the instance being reachable.
type Pinger struct {
	doer        Doer
	selector    *fingerprint.Selector
	logger      *slog.Logger
	url         string
	interval    time.Duration
	maxFailures int

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// New creates a Pinger from the keepalive config section.
func New(cfg *config.Config, d Doer, sel *fingerprint.Selector, logger *slog.Logger) *Pinger {
	return &Pinger{
		doer:        d,
		selector:    sel,
		logger:      logger.With("component", "keepalive"),
		url:         cfg.KeepAlive.URL,
		interval:    time.Duration(cfg.KeepAlive.IntervalSeconds) * time.Second,
		maxFailures: cfg.KeepAlive.MaxFailures,
	}
}

// Start runs the ping loop in the background. Calling Start on a running
// Pinger is a no-op.
func (p *Pinger) Start() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.done != nil {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	p.cancel = cancel
	p.done = make(chan struct{})
	go func(done chan struct{}) {
		defer close(done)
		p.Run(ctx)
	}(p.done)
}

// Stop cancels the loop and waits for it to exit or for ctx to expire.
func (p *Pinger) Stop(ctx context.Context) error {
	p.mu.Lock()
	cancel, done := p.cancel, p.done
	p.mu.Unlock()
	if done == nil {
		return nil
	}

	cancel()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run pings until ctx is cancelled or the failure budget is exhausted.
func (p *Pinger) Run(ctx context.Context) {
	p.logger.Info("keep-alive started", "url", p.url, "interval", p.interval.String())

	failures := 0
	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		if failures > p.maxFailures {
			p.logger.Warn("keep-alive stopped after repeated failures", "failures", failures)
			return
		}

		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}

		if err := p.ping(ctx); err != nil {
			if ctx.Err() != nil {
				return
			}
			failures++
			p.logger.Warn("keep-alive ping failed", "err", err, "failures", failures)
		} else {
			p.logger.Debug("keeping alive")
		}
		timer.Reset(p.interval)
	}
}

func (p *Pinger) ping(ctx context.Context) error {
	profile, err := p.selector.Select("")
	if err != nil {
		return err
	}

	res, err := p.doer.Do(ctx, &client.Request{
		Method:  http.MethodGet,
		URL:     p.url,
		Profile: profile,
		Timeout: pingTimeout,
		Kind:    metrics.HopKeepAlive,
	})
	if err != nil {
		return fmt.Errorf("ping %s: %w", p.url, err)
	}
	defer func() { _ = res.Body.Close() }()

	for _, err := range res.Body.Chunks() {
		if err != nil {
			return fmt.Errorf("read ping response: %w", err)
		}
	}
	return nil
}
