package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"dubbing-service/ddd/domain/fault"
)

func TestRetryPolicy(t *testing.T) {
	t.Parallel()

	transient := fault.Transient(fault.SynthesisFailed, errors.New("429"), "synthesize")
	permanent := fault.New(fault.SynthesisMarkupRejected, "bad ssml")

	cases := []struct {
		name      string
		errs      []error
		wantCalls int
		wantErr   error
	}{
		{name: "first try", errs: []error{nil}, wantCalls: 1},
		{name: "recovers", errs: []error{transient, transient, nil}, wantCalls: 3},
		{name: "exhausted", errs: []error{transient, transient, transient, nil}, wantCalls: 3, wantErr: transient},
		{name: "permanent not retried", errs: []error{permanent, nil}, wantCalls: 1, wantErr: permanent},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			calls := 0
			err := RetryPolicy{Attempts: 3, Backoff: time.Millisecond}.Do(context.Background(), "op", func(context.Context) error {
				err := tc.errs[calls]
				calls++
				return err
			})
			if calls != tc.wantCalls {
				t.Fatalf("calls = %d, want %d", calls, tc.wantCalls)
			}
			if err != tc.wantErr {
				t.Fatalf("err = %v, want %v", err, tc.wantErr)
			}
		})
	}
}

func TestRetryStopsOnContextCancel(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	err := RetryPolicy{Attempts: 5, Backoff: time.Hour}.Do(ctx, "op", func(context.Context) error {
		calls++
		cancel()
		return fault.Transient(fault.StorageError, errors.New("timeout"), "put")
	})
	if !errors.Is(err, context.Canceled) || calls != 1 {
		t.Fatalf("err=%v calls=%d", err, calls)
	}
}
