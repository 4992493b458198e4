package common

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"time"

	redis "github.com/redis/go-redis/v9"
)

// HeaderIdempotencyKey carries the client supplied idempotency key.
const HeaderIdempotencyKey = "Idempotency-Key"

// Idem provides an Idempotency-Key middleware backed by Redis.
type Idem struct {
	R   *redis.Client
	TTL time.Duration
}

// hashKey scopes the key to the session and route so two shoppers can reuse a key.
func hashKey(session, path, key string) string {
	sum := sha256.Sum256([]byte(session + "\x00" + path + "\x00" + key))
	return "idem:" + hex.EncodeToString(sum[:])
}

func (i Idem) ttl() time.Duration {
	if i.TTL <= 0 {
		return 24 * time.Hour
	}
	return i.TTL
}

// retryable reports whether a response leaves the key free for another
// attempt: 5xx failures and 422 rejections (for example insufficient points)
// did not commit anything upstream.
func retryable(status int) bool {
	return status >= http.StatusInternalServerError || status == http.StatusUnprocessableEntity
}

// Middleware enforces idempotency semantics for write endpoints. A key whose
// request failed retryably is released so the client can resend it.
func (i Idem) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get(HeaderIdempotencyKey)
		if header == "" || i.R == nil {
			next.ServeHTTP(w, r)
			return
		}
		ctx := r.Context()
		sess, _ := SessionFrom(ctx)
		key := hashKey(sess.ID, r.URL.Path, header)
		ok, err := i.R.SetNX(ctx, key, "locked", i.ttl()).Result()
		if err != nil {
			JSONError(w, http.StatusInternalServerError, CodeInternal, "idempotency store error", nil)
			return
		}
		if !ok {
			JSONError(w, http.StatusConflict, "IDEMPOTENT_REPLAY", "duplicate request", nil)
			return
		}
		recorder := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		defer func() {
			if retryable(recorder.status) {
				_ = i.R.Del(context.WithoutCancel(ctx), key).Err()
			}
		}()
		next.ServeHTTP(recorder, r)
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (s *statusWriter) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}
