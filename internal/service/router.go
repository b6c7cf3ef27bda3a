package service

import (
	"context"
	"crypto/subtle"
	"log/slog"

	"hopchain/internal/config"
	"hopchain/internal/fingerprint"
	"hopchain/internal/metrics"
	"hopchain/internal/model"
)

// Mode tells the renderer which response shape to produce.
type Mode int

const (
	// ModeDirect means this relay called the target itself.
	ModeDirect Mode = iota
	// ModeForward means the response came from the next relay.
	ModeForward
)

func (m Mode) String() string {
	if m == ModeForward {
		return "forward"
	}
	return "direct"
}

// Result is a hop response plus what the renderer needs to shape it.
type Result struct {
	Mode        Mode
	Fingerprint string
	ReturnData  bool
	Stream      bool
	Response    *model.HopResponse
}

// Router authenticates a descriptor, picks a fingerprint and either
// terminates the chain here or forwards it to the next relay.
type Router struct {
	apiKey   string
	selector *fingerprint.Selector
	exec     *HopExecutor
	metrics  *metrics.Metrics
	logger   *slog.Logger
}

// NewRouter creates a Router.
// The metrics parameter is optional; pass nil to disable recording.
func NewRouter(cfg *config.Config, sel *fingerprint.Selector, exec *HopExecutor, m *metrics.Metrics, logger *slog.Logger) *Router {
	return &Router{
		apiKey:   cfg.Auth.APIKey,
		selector: sel,
		exec:     exec,
		metrics:  m,
		logger:   logger.With("component", "chain_router"),
	}
}

// Handle routes d: an empty chain is served directly, otherwise the head of
// the chain receives a copy of d without itself.
func (r *Router) Handle(ctx context.Context, d *model.Descriptor) (*Result, error) {
	fp, err := r.prepare(d)
	if err != nil {
		return nil, err
	}

	head, tail, ok := d.SplitChain()
	if !ok {
		return r.final(ctx, d, fp)
	}

	nested := d.WithChain(tail)
	r.logger.Debug("forwarding",
		"next_hop", head,
		"remaining", len(tail),
		"fingerprint", fp.ID,
	)

	resp, err := r.exec.ExecuteForward(ctx, head, nested, fp)
	if err != nil {
		return nil, err
	}
	return &Result{
		Mode:        ModeForward,
		Fingerprint: fp.ID,
		ReturnData:  d.ReturnData,
		Stream:      d.Stream,
		Response:    resp,
	}, nil
}

// Direct serves d from this relay regardless of its chain.
func (r *Router) Direct(ctx context.Context, d *model.Descriptor) (*Result, error) {
	fp, err := r.prepare(d)
	if err != nil {
		return nil, err
	}
	return r.final(ctx, d, fp)
}

func (r *Router) prepare(d *model.Descriptor) (*fingerprint.Profile, error) {
	if !r.authorized(d.APIKey) {
		return nil, ErrUnauthorized
	}

	fp, err := r.selector.Select(d.Impersonate)
	if err != nil {
		return nil, err
	}
	if r.metrics != nil {
		r.metrics.FingerprintSelections.WithLabelValues(fp.ID).Inc()
	}
	return fp, nil
}

func (r *Router) final(ctx context.Context, d *model.Descriptor, fp *fingerprint.Profile) (*Result, error) {
	resp, err := r.exec.ExecuteFinal(ctx, d, fp)
	if err != nil {
		return nil, err
	}
	return &Result{
		Mode:        ModeDirect,
		Fingerprint: fp.ID,
		ReturnData:  d.ReturnData,
		Stream:      d.Stream,
		Response:    resp,
	}, nil
}

func (r *Router) authorized(key string) bool {
	if r.apiKey == "" {
		return true
	}
	return subtle.ConstantTimeCompare([]byte(key), []byte(r.apiKey)) == 1
}
