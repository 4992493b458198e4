package resilience

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

// HTTPClient wraps an http.Client with timeout, retry and circuit-breaker
// logic. Only idempotent methods are retried; a POST gets exactly one attempt
// so a submission is never replayed behind the caller's back.
type HTTPClient struct {
	Client      *http.Client
	Breaker     *Breaker
	Target      string
	BaseBackoff time.Duration
	MaxAttempts int
	Jitter      float64
	Timeout     time.Duration
}

// Do executes the request. 5xx responses count as failures; they are returned
// to the caller on the last attempt so the body can still be inspected.
func (cl HTTPClient) Do(ctx context.Context, req *http.Request) (*http.Response, error) {
	if cl.Client == nil {
		return nil, errors.New("resilience: http client not configured")
	}
	breaker := cl.Breaker
	attempts := cl.MaxAttempts
	if attempts <= 0 || !idempotent(req.Method) {
		attempts = 1
	}
	base := cl.BaseBackoff
	if base <= 0 {
		base = 100 * time.Millisecond
	}

	body, err := bufferBody(req)
	if err != nil {
		return nil, err
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if !breaker.Allow(ctx) {
			cl.count(req.Method, "circuit_open")
			return nil, ErrOpenCircuit
		}
		resp, err := cl.doOnce(ctx, cloneRequest(ctx, req, body))
		switch {
		case err != nil:
			lastErr = err
			cl.count(req.Method, "error")
		case resp.StatusCode >= http.StatusInternalServerError:
			lastErr = fmt.Errorf("resilience: upstream status %s", resp.Status)
			cl.count(req.Method, "server_error")
			if attempt == attempts {
				breaker.Report(ctx, false)
				return resp, nil
			}
			_, _ = io.Copy(io.Discard, resp.Body)
			_ = resp.Body.Close()
		default:
			cl.count(req.Method, "ok")
			breaker.Report(ctx, true)
			return resp, nil
		}
		breaker.Report(ctx, false)
		if attempt == attempts {
			break
		}
		timer := time.NewTimer(Backoff(base, attempt, cl.Jitter))
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
	}
	return nil, lastErr
}

func (cl HTTPClient) doOnce(ctx context.Context, req *http.Request) (*http.Response, error) {
	timeout := cl.Timeout
	if timeout <= 0 {
		return cl.Client.Do(req)
	}
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	resp, err := cl.Client.Do(req.WithContext(callCtx))
	if err != nil {
		cancel()
		return nil, err
	}
	// the body must stay readable after Do returns
	resp.Body = &cancelOnClose{ReadCloser: resp.Body, cancel: cancel}
	return resp, nil
}

func (cl HTTPClient) count(method, outcome string) {
	target := cl.Target
	if target == "" {
		target = "default"
	}
	UpstreamRequests.WithLabelValues(target, method, outcome).Inc()
}

type cancelOnClose struct {
	io.ReadCloser
	cancel context.CancelFunc
}

func (c *cancelOnClose) Close() error {
	err := c.ReadCloser.Close()
	c.cancel()
	return err
}

func idempotent(method string) bool {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodOptions, http.MethodPut, http.MethodDelete:
		return true
	default:
		return false
	}
}

func bufferBody(req *http.Request) ([]byte, error) {
	if req.Body == nil || req.Body == http.NoBody {
		return nil, nil
	}
	data, err := io.ReadAll(req.Body)
	if err != nil {
		return nil, err
	}
	_ = req.Body.Close()
	return data, nil
}

func cloneRequest(ctx context.Context, req *http.Request, body []byte) *http.Request {
	clone := req.Clone(ctx)
	if body != nil {
		clone.Body = io.NopCloser(bytes.NewReader(body))
		clone.GetBody = func() (io.ReadCloser, error) {
			return io.NopCloser(bytes.NewReader(body)), nil
		}
		clone.ContentLength = int64(len(body))
	}
	return clone
}
