package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"slices"
	"strings"

	"hopchain/internal/client"
	"hopchain/internal/fingerprint"
	"hopchain/internal/metrics"
	"hopchain/internal/model"
	"hopchain/internal/worker"
)

// Doer performs one outbound call.
type Doer interface {
	Do(ctx context.Context, r *client.Request) (*model.HopResponse, error)
}

// HopExecutor issues the outbound call for one hop, either to the target
// (final) or to the next relay (forward). Calls run on the worker pool.
type HopExecutor struct {
	client  Doer
	pool    *worker.Pool
	metrics *metrics.Metrics
	logger  *slog.Logger
}

// NewHopExecutor creates a HopExecutor.
// The metrics parameter is optional; pass nil to disable recording.
func NewHopExecutor(c Doer, pool *worker.Pool, m *metrics.Metrics, logger *slog.Logger) *HopExecutor {
	return &HopExecutor{
		client:  c,
		pool:    pool,
		metrics: m,
		logger:  logger.With("component", "hop_executor"),
	}
}

// ExecuteFinal sends d to its target URL using fingerprint fp.
// The returned body is decoded and must be closed by the caller.
func (e *HopExecutor) ExecuteFinal(ctx context.Context, d *model.Descriptor, fp *fingerprint.Profile) (*model.HopResponse, error) {
	req, err := buildFinalRequest(d, fp)
	if err != nil {
		e.countError(metrics.HopFinal, classInternal)
		return nil, fmt.Errorf("%w: %w", ErrInternal, err)
	}
	return e.run(ctx, req)
}

// ExecuteForward posts the chain-truncated descriptor d to the relay at
// nextHop using fingerprint fp. The body is decoded only when d asks for
// streaming; buffered forwards keep the bytes as received.
func (e *HopExecutor) ExecuteForward(ctx context.Context, nextHop string, d *model.Descriptor, fp *fingerprint.Profile) (*model.HopResponse, error) {
	payload, err := json.Marshal(d)
	if err != nil {
		e.countError(metrics.HopForward, classInternal)
		return nil, fmt.Errorf("%w: encode descriptor: %w", ErrInternal, err)
	}

	header := http.Header{"Content-Type": {"application/json"}}
	if id := RequestID(ctx); id != "" {
		header.Set("X-Request-Id", id)
	}

	return e.run(ctx, &client.Request{
		Method:  http.MethodPost,
		URL:     nextHop,
		Header:  header,
		Body:    payload,
		Profile: fp,
		Timeout: d.Timeout(),
		Decode:  d.Stream,
		Kind:    metrics.HopForward,
	})
}

// run dispatches req to the pool and waits for it. The job is detached from
// ctx cancellation and bounded by the request timeout instead; when ctx ends
// first the response is closed once the job finishes.
func (e *HopExecutor) run(ctx context.Context, req *client.Request) (*model.HopResponse, error) {
	jobCtx := context.WithoutCancel(ctx)
	fut, err := worker.Submit(ctx, e.pool, func(context.Context) (*model.HopResponse, error) {
		return e.client.Do(jobCtx, req)
	})
	if errors.Is(err, worker.ErrStopped) {
		e.countError(req.Kind, classInternal)
		return nil, fmt.Errorf("%w: %w", ErrInternal, err)
	}
	if err != nil {
		e.countError(req.Kind, classTransport)
		return nil, fmt.Errorf("%w: %w", ErrTransport, err)
	}

	resp, err := fut.Wait(ctx)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil && errors.Is(err, ctxErr) {
			go reap(fut)
			e.logger.Debug("hop abandoned", "kind", req.Kind, "error", err)
		}
		e.countError(req.Kind, classTransport)
		return nil, fmt.Errorf("%w: %w", ErrTransport, err)
	}
	return resp, nil
}

// reap closes the response of an abandoned job once it completes.
func reap(fut *worker.Future[*model.HopResponse]) {
	<-fut.Done()
	if resp, err := fut.Wait(context.Background()); err == nil && resp != nil {
		_ = resp.Body.Close()
	}
}

func (e *HopExecutor) countError(kind, class string) {
	if e.metrics != nil {
		e.metrics.HopErrors.WithLabelValues(kind, class).Inc()
	}
}

func buildFinalRequest(d *model.Descriptor, fp *fingerprint.Profile) (*client.Request, error) {
	target, err := url.Parse(d.URL)
	if err != nil {
		return nil, fmt.Errorf("parse url: %w", err)
	}
	if len(d.Params) > 0 {
		q := target.Query()
		for k, v := range d.Params {
			q.Set(k, v)
		}
		target.RawQuery = q.Encode()
	}

	header := make(http.Header, len(d.Headers)+2)
	for k, v := range d.Headers {
		header.Set(k, v)
	}
	if c := cookieHeader(d.Cookies); c != "" {
		if prev := header.Get("Cookie"); prev != "" {
			c = prev + "; " + c
		}
		header.Set("Cookie", c)
	}

	body, contentType, err := encodeData(d)
	if err != nil {
		return nil, err
	}
	if contentType != "" && header.Get("Content-Type") == "" {
		header.Set("Content-Type", contentType)
	}

	return &client.Request{
		Method:  string(d.Method),
		URL:     target.String(),
		Header:  header,
		Body:    body,
		Profile: fp,
		Proxies: d.Proxies,
		Timeout: d.Timeout(),
		Decode:  true,
		Kind:    metrics.HopFinal,
	}, nil
}

// encodeData places the descriptor payload in the request body. POST, PUT
// and PATCH send it as JSON. Other methods send a JSON object as a
// url-encoded form, a JSON string verbatim, and anything else as raw JSON.
func encodeData(d *model.Descriptor) (body []byte, contentType string, err error) {
	if !d.HasData() {
		return nil, "", nil
	}
	if d.Method.SendsJSON() {
		return []byte(d.Data), "application/json", nil
	}

	dec := json.NewDecoder(bytes.NewReader(d.Data))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, "", fmt.Errorf("decode data: %w", err)
	}

	switch val := v.(type) {
	case map[string]any:
		form := make(url.Values, len(val))
		for k, item := range val {
			s, err := formValue(item)
			if err != nil {
				return nil, "", err
			}
			form.Set(k, s)
		}
		return []byte(form.Encode()), "application/x-www-form-urlencoded", nil
	case string:
		return []byte(val), "", nil
	default:
		return []byte(d.Data), "", nil
	}
}

func formValue(v any) (string, error) {
	switch val := v.(type) {
	case string:
		return val, nil
	case json.Number:
		return val.String(), nil
	case nil:
		return "", nil
	default:
		b, err := json.Marshal(val)
		if err != nil {
			return "", fmt.Errorf("encode form value: %w", err)
		}
		return string(b), nil
	}
}

// cookieHeader renders cookies in name order as a Cookie header value.
func cookieHeader(cookies map[string]string) string {
	if len(cookies) == 0 {
		return ""
	}
	names := make([]string, 0, len(cookies))
	for name := range cookies {
		names = append(names, name)
	}
	slices.Sort(names)

	parts := make([]string, 0, len(names))
	for _, name := range names {
		if s := (&http.Cookie{Name: name, Value: cookies[name]}).String(); s != "" {
			parts = append(parts, s)
		}
	}
	return strings.Join(parts, "; ")
}
