package middleware

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/angelmondragon/pharmacy-backend/api/responses"
	"github.com/angelmondragon/pharmacy-backend/api/validators"
	pkgerrors "github.com/angelmondragon/pharmacy-backend/pkg/errors"
	"github.com/angelmondragon/pharmacy-backend/pkg/logger"
	pkgredis "github.com/angelmondragon/pharmacy-backend/pkg/redis"
)

const (
	IdempotencyHeader = "Idempotency-Key"
	replayHeader      = "Idempotent-Replayed"

	// pendingTTL bounds how long a crashed request can hold its key.
	pendingTTL          = 2 * time.Minute
	defaultReplayTTL    = 24 * time.Hour
	stockMoveReplayTTL  = 7 * 24 * time.Hour
	idempotentRoutePart = 5 // api/v1/<resource>/<id>/<action>
)

// POST /api/v1/<resource>/{id}/<action> routes that require a key.
var idempotentActions = map[[2]string]time.Duration{
	{"prescriptions", "fulfill"}: stockMoveReplayTTL,
	{"prescriptions", "reject"}:  stockMoveReplayTTL,
	{"medications", "restock"}:   stockMoveReplayTTL,
	{"orders", "transition"}:     defaultReplayTTL,
	{"notifications", "read"}:    defaultReplayTTL,
}

type idempotencyRecord struct {
	RequestHash string `json:"request_hash"`
	Pending     bool   `json:"pending,omitempty"`
	Status      int    `json:"status,omitempty"`
	ContentType string `json:"content_type,omitempty"`
	Body        []byte `json:"body,omitempty"`
}

// Idempotency claims the Idempotency-Key before running the handler and
// stores the response afterwards, so a retried fulfill replays the first
// outcome instead of reserving stock twice. A second request arriving while
// the first is still running gets CONFLICT. 5xx responses release the claim.
func Idempotency(store pkgredis.IdempotencyStore, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if store == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ttl, ok := routeTTL(r.Method, r.URL.Path)
			if !ok {
				next.ServeHTTP(w, r)
				return
			}
			ctx := r.Context()

			clientKey := strings.TrimSpace(r.Header.Get(IdempotencyHeader))
			if clientKey == "" {
				responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeValidation, "Idempotency-Key header required"))
				return
			}

			body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, validators.MaxBodyBytes))
			if err != nil {
				var tooLarge *http.MaxBytesError
				if errors.As(err, &tooLarge) {
					responses.WriteError(ctx, logg, w, pkgerrors.Newf(pkgerrors.CodeValidation, "request body exceeds %d bytes", tooLarge.Limit))
					return
				}
				responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "read request"))
				return
			}
			r.Body = io.NopCloser(bytes.NewReader(body))

			hash := hashRequest(body)
			key := store.IdempotencyKey(buildScope(r), clientKey)

			claimed, err := claim(ctx, store, key, hash)
			if err != nil {
				responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "claim idempotency key"))
				return
			}
			if !claimed {
				replayOrReject(ctx, store, logg, w, key, hash)
				return
			}

			rec := &responseCapture{ResponseWriter: w}
			next.ServeHTTP(rec, r)

			status := rec.statusOrOK()
			if status >= http.StatusInternalServerError {
				if err := store.Del(context.WithoutCancel(ctx), key); err != nil {
					logError(ctx, logg, "release idempotency key", err)
				}
				return
			}

			payload, err := json.Marshal(idempotencyRecord{
				RequestHash: hash,
				Status:      status,
				ContentType: rec.Header().Get("Content-Type"),
				Body:        rec.body.Bytes(),
			})
			if err != nil {
				logError(ctx, logg, "marshal idempotency record", err)
				return
			}
			if err := store.Set(context.WithoutCancel(ctx), key, string(payload), ttl); err != nil {
				logError(ctx, logg, "persist idempotency record", err)
			}
		})
	}
}

func claim(ctx context.Context, store pkgredis.IdempotencyStore, key, hash string) (bool, error) {
	pending, err := json.Marshal(idempotencyRecord{RequestHash: hash, Pending: true})
	if err != nil {
		return false, err
	}
	return store.SetNX(ctx, key, string(pending), pendingTTL)
}

func replayOrReject(ctx context.Context, store pkgredis.IdempotencyStore, logg *logger.Logger, w http.ResponseWriter, key, hash string) {
	stored, err := store.Get(ctx, key)
	if errors.Is(err, redis.Nil) {
		// claim expired or was released between SetNX and Get
		responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeBusy, "idempotency key released, retry"))
		return
	}
	if err != nil {
		responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load idempotency record"))
		return
	}

	var record idempotencyRecord
	if err := json.Unmarshal([]byte(stored), &record); err != nil {
		responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decode idempotency record"))
		return
	}
	switch {
	case record.RequestHash != hash:
		responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeIdempotency, "idempotency key reused with different request body"))
	case record.Pending:
		responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeConflict, "request with this idempotency key is still in progress"))
	default:
		if record.ContentType != "" {
			w.Header().Set("Content-Type", record.ContentType)
		}
		w.Header().Set(replayHeader, "true")
		w.WriteHeader(record.Status)
		_, _ = w.Write(record.Body)
	}
}

// Keys are per staff member and per path; the same client key on another
// prescription is a different request.
func buildScope(r *http.Request) string {
	staff := "anonymous"
	if id, ok := StaffIDFromContext(r.Context()); ok {
		staff = id.String()
	}
	return staff + "|" + r.Method + "|" + r.URL.Path
}

func hashRequest(body []byte) string {
	sum := sha256.Sum256(body)
	return hex.EncodeToString(sum[:])
}

func routeTTL(method, path string) (time.Duration, bool) {
	if method != http.MethodPost {
		return 0, false
	}
	parts := strings.Split(strings.Trim(path, "/"), "/")
	if len(parts) != idempotentRoutePart || parts[0] != "api" || parts[1] != "v1" || parts[3] == "" {
		return 0, false
	}
	ttl, ok := idempotentActions[[2]string{parts[2], parts[4]}]
	return ttl, ok
}

type responseCapture struct {
	http.ResponseWriter
	body   bytes.Buffer
	status int
}

func (r *responseCapture) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *responseCapture) Write(b []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}
	r.body.Write(b)
	return r.ResponseWriter.Write(b)
}

func (r *responseCapture) statusOrOK() int {
	if r.status == 0 {
		return http.StatusOK
	}
	return r.status
}

func logError(ctx context.Context, logg *logger.Logger, msg string, err error) {
	if logg == nil || err == nil {
		return
	}
	logg.Error(ctx, msg, err)
}
