// Package delivery defines the HTTP push collaborator used for federated
// fan-out: given a serialized activity payload and a destination URI, POST
// it with retries. The fan-out layer only depends on the Deliverer contract;
// the HTTP mechanics, backoff policy, and timeouts live here.
package delivery

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/zeebo/errs"
	"go.uber.org/zap"
)

// ErrDeliver wraps delivery failures after retries are exhausted.
var ErrDeliver = errs.Class("deliver")

// Deliverer posts a payload to a destination. Implementations own their
// retry and backoff policy; a returned error means the payload could not be
// delivered within that policy.
type Deliverer interface {
	Deliver(ctx context.Context, uri string, payload []byte) error
}

// HTTPConfig carries the HTTP deliverer settings.
type HTTPConfig struct {
	// RequestTimeout bounds each individual POST attempt.
	RequestTimeout time.Duration

	// MaxElapsedTime bounds the whole retry schedule for one delivery.
	MaxElapsedTime time.Duration

	// ContentType is sent with each POST. Defaults to an ActivityStreams
	// Atom entry when empty.
	ContentType string

	// UserAgent identifies this node to the remote endpoint.
	UserAgent string
}

// DefaultHTTPConfig returns an HTTPConfig with sensible defaults.
func DefaultHTTPConfig() HTTPConfig {
	return HTTPConfig{
		RequestTimeout: 10 * time.Second,
		MaxElapsedTime: 2 * time.Minute,
		ContentType:    "application/atom+xml",
		UserAgent:      "go-entity-store/1.0",
	}
}

// HTTPDeliverer delivers payloads over HTTP POST with exponential backoff.
// 4xx responses are treated as permanent (the remote rejected the payload;
// retrying the same bytes cannot help); 5xx and transport errors retry
// until MaxElapsedTime runs out.
type HTTPDeliverer struct {
	client *http.Client
	cfg    HTTPConfig
	log    *zap.Logger
}

// NewHTTP builds an HTTPDeliverer. A nil client selects one with the
// configured request timeout.
func NewHTTP(cfg HTTPConfig, client *http.Client, log *zap.Logger) *HTTPDeliverer {
	if cfg.ContentType == "" {
		cfg.ContentType = DefaultHTTPConfig().ContentType
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = DefaultHTTPConfig().RequestTimeout
	}
	if cfg.MaxElapsedTime <= 0 {
		cfg.MaxElapsedTime = DefaultHTTPConfig().MaxElapsedTime
	}
	if client == nil {
		client = &http.Client{Timeout: cfg.RequestTimeout}
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &HTTPDeliverer{client: client, cfg: cfg, log: log.Named("delivery")}
}

// Deliver implements Deliverer.
func (d *HTTPDeliverer) Deliver(ctx context.Context, uri string, payload []byte) error {
	attempt := 0
	op := func() error {
		attempt++
		err := d.post(ctx, uri, payload)
		if err != nil && !isPermanent(err) {
			d.log.Warn("delivery attempt failed, will retry",
				zap.String("uri", uri),
				zap.Int("attempt", attempt),
				zap.Error(err))
		}
		return err
	}

	policy := backoff.NewExponentialBackOff()
	policy.MaxElapsedTime = d.cfg.MaxElapsedTime

	if err := backoff.Retry(op, backoff.WithContext(policy, ctx)); err != nil {
		return ErrDeliver.Wrap(err)
	}
	return nil
}

func (d *HTTPDeliverer) post(ctx context.Context, uri string, payload []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, uri, bytes.NewReader(payload))
	if err != nil {
		return backoff.Permanent(err)
	}
	req.Header.Set("Content-Type", d.cfg.ContentType)
	if d.cfg.UserAgent != "" {
		req.Header.Set("User-Agent", d.cfg.UserAgent)
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return err
	}
	defer func() {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		_ = resp.Body.Close()
	}()

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return nil
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		return backoff.Permanent(errs.New("endpoint %s rejected payload: %s", uri, resp.Status))
	default:
		return errs.New("endpoint %s returned %s", uri, resp.Status)
	}
}

func isPermanent(err error) bool {
	var perm *backoff.PermanentError
	return errors.As(err, &perm)
}
