package sender

import (
	"context"
	"errors"
	"net"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	tele "gopkg.in/telebot.v4"
)

func TestDispatcherRetriesTransientErrors(t *testing.T) {
	d := NewDispatcher(Options{Workers: 1, MaxRetries: 2, RetryBackoff: time.Millisecond})
	var calls atomic.Int32
	done := make(chan struct{})
	err := d.Enqueue(context.Background(), "send", 7, func() error {
		if calls.Add(1) < 3 {
			return &net.OpError{Op: "dial", Err: errors.New("refused")}
		}
		close(done)
		return nil
	})
	require.NoError(t, err)
	<-done
	d.Close()
	require.EqualValues(t, 3, calls.Load())
	require.Zero(t, d.ErrorCount())
}

func TestDispatcherDoesNotRetryPermanentErrors(t *testing.T) {
	d := NewDispatcher(Options{Workers: 1, MaxRetries: 3, RetryBackoff: time.Millisecond})
	var calls atomic.Int32
	require.NoError(t, d.Enqueue(context.Background(), "send", 7, func() error {
		calls.Add(1)
		return &tele.Error{Code: 400, Description: "Bad Request: chat not found"}
	}))
	d.Close()
	require.EqualValues(t, 1, calls.Load())
	require.EqualValues(t, 1, d.ErrorCount())
}

func TestDispatcherClosed(t *testing.T) {
	d := NewDispatcher(Options{})
	d.Close()
	require.ErrorIs(t, d.Enqueue(context.Background(), "send", 1, func() error { return nil }), ErrQueueClosed)
}

func TestClassifyError(t *testing.T) {
	require.Equal(t, "DIAL", classifyError(&net.OpError{Op: "dial", Err: errors.New("x")}))
	require.Equal(t, "HTTP_4XX", classifyError(&tele.Error{Code: 403}))
	require.Equal(t, "HTTP_5XX", classifyError(&tele.Error{Code: 502}))
	require.Equal(t, "TIMEOUT", classifyError(context.DeadlineExceeded))
	require.Equal(t, "UNKNOWN", classifyError(errors.New("x")))
	require.True(t, retryable(&tele.Error{Code: 502}))
	require.False(t, retryable(&tele.Error{Code: 400}))
}
