// Package speech holds the recognition, translation and synthesis adapters.
// The Google adapters use the Cloud client libraries (Speech-to-Text v1,
// Translation v2, Text-to-Speech v1) authenticated with an API key, or with
// application default credentials when no key is configured.
package speech

import (
	"context"
	"errors"
	"io"
	"net/http"
	"regexp"
	"strings"
	"sync"
	"time"

	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"dubbing-service/ddd/domain/fault"
)

const defaultRequestTimeout = 60 * time.Second

// clientOptions builds the SDK options shared by the three Google adapters.
// endpoint overrides the service address when set.
func clientOptions(apiKey, endpoint string) []option.ClientOption {
	var opts []option.ClientOption
	if apiKey != "" {
		opts = append(opts, option.WithAPIKey(apiKey))
	}
	if endpoint != "" {
		opts = append(opts, option.WithEndpoint(endpoint))
	}
	return opts
}

// lazyClient dials an SDK client on first use, so that a service which never
// reaches a Google stage (local runs, whisper transcription) needs no credentials.
type lazyClient[T io.Closer] struct {
	mu     sync.Mutex
	dial   func(ctx context.Context) (T, error)
	dialed bool
	client T
	err    error
}

func (l *lazyClient[T]) get(ctx context.Context, kind fault.Kind) (T, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.dialed {
		l.client, l.err = l.dial(context.WithoutCancel(ctx))
		l.dialed = true
	}
	if l.err != nil {
		var zero T
		return zero, fault.Wrap(kind, l.err, "create client")
	}
	return l.client, nil
}

// close releases the client if one was dialled successfully.
func (l *lazyClient[T]) close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.dialed || l.err != nil {
		return nil
	}
	l.dialed = false
	return l.client.Close()
}

// withTimeout bounds a single SDK call.
func withTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		timeout = defaultRequestTimeout
	}
	return context.WithTimeout(ctx, timeout)
}

// classify maps an SDK error onto kind. Unavailability, throttling and timeouts
// are transient; everything else is returned as a permanent failure of kind.
// A cancelled caller context is passed through unchanged.
func classify(ctx, callCtx context.Context, kind fault.Kind, apiKey, op string, err error) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	msg := truncate(redactSecrets(err.Error(), apiKey), 400)
	cause := errors.New(msg)
	if errors.Is(callCtx.Err(), context.DeadlineExceeded) {
		return fault.Transient(kind, cause, "%s timed out", op)
	}
	if retryable(err) {
		return fault.Transient(kind, cause, "%s", op)
	}
	return fault.Wrap(kind, &rejection{msg: msg, invalid: invalidArgument(err)}, "%s", op)
}

// rejection is a permanent API error; invalid marks a rejected request payload.
type rejection struct {
	msg     string
	invalid bool
}

func (r *rejection) Error() string { return r.msg }

// rejectedInput reports whether err is an invalid-argument rejection whose
// message mentions word.
func rejectedInput(err error, word string) bool {
	var r *rejection
	return errors.As(err, &r) && r.invalid && strings.Contains(strings.ToLower(r.msg), word)
}

func retryable(err error) bool {
	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		return gerr.Code == http.StatusTooManyRequests || gerr.Code >= 500
	}
	switch status.Code(err) {
	case codes.Unavailable, codes.ResourceExhausted, codes.DeadlineExceeded, codes.Aborted, codes.Internal:
		return true
	}
	return false
}

func invalidArgument(err error) bool {
	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		return gerr.Code == http.StatusBadRequest
	}
	return status.Code(err) == codes.InvalidArgument
}

var (
	keyParamRE = regexp.MustCompile(`(?i)(key=)[A-Za-z0-9_\-]+`)
	bearerRE   = regexp.MustCompile(`(?i)bearer\s+[A-Za-z0-9._\-]+`)
)

func redactSecrets(s, apiKey string) string {
	if apiKey != "" {
		s = strings.ReplaceAll(s, apiKey, "[REDACTED]")
	}
	s = keyParamRE.ReplaceAllString(s, "${1}[REDACTED]")
	return bearerRE.ReplaceAllString(s, "Bearer [REDACTED]")
}

func truncate(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
