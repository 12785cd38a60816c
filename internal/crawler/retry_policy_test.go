package crawler

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/url"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "i/o timeout" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }

func TestCooldownRetryPolicyDecide(t *testing.T) {
	t.Parallel()

	refused := &url.Error{Op: "Get", URL: "https://tululu.org/", Err: &net.OpError{Op: "dial", Net: "tcp", Err: syscall.ECONNREFUSED}}
	tests := []struct {
		name    string
		err     error
		attempt int
		want    RetryDecision
	}{
		{name: "nil error", err: nil, attempt: 1, want: RetryDecision{}},
		{name: "timeout retries immediately", err: &url.Error{Op: "Get", URL: "u", Err: timeoutErr{}}, attempt: 1, want: RetryDecision{Retry: true, Reason: RetryReasonTimeout}},
		{name: "refused waits for cooldown", err: refused, attempt: 3, want: RetryDecision{Retry: true, Delay: time.Minute, Reason: RetryReasonConnection}},
		{name: "dial timeout waits for cooldown", err: &url.Error{Op: "Get", URL: "u", Err: &net.OpError{Op: "dial", Net: "tcp", Err: timeoutErr{}}}, attempt: 1, want: RetryDecision{Retry: true, Delay: time.Minute, Reason: RetryReasonConnection}},
		{name: "dns failure waits for cooldown", err: &url.Error{Op: "Get", URL: "u", Err: &net.OpError{Op: "dial", Net: "tcp", Err: &net.DNSError{Err: "no such host", Name: "tululu.org", IsTimeout: true}}}, attempt: 1, want: RetryDecision{Retry: true, Delay: time.Minute, Reason: RetryReasonConnection}},
		{name: "read timeout retries immediately", err: &url.Error{Op: "Get", URL: "u", Err: &net.OpError{Op: "read", Net: "tcp", Err: timeoutErr{}}}, attempt: 1, want: RetryDecision{Retry: true, Reason: RetryReasonTimeout}},
		{name: "reset", err: fmt.Errorf("read: %w", syscall.ECONNRESET), attempt: 1, want: RetryDecision{Retry: true, Delay: time.Minute, Reason: RetryReasonConnection}},
		{name: "unexpected eof", err: io.ErrUnexpectedEOF, attempt: 1, want: RetryDecision{Retry: true, Delay: time.Minute, Reason: RetryReasonConnection}},
		{name: "canceled", err: context.Canceled, attempt: 1, want: RetryDecision{}},
		{name: "non transport error", err: errors.New("boom"), attempt: 1, want: RetryDecision{}},
		{name: "redirect is not retried", err: &RedirectError{URL: "u", StatusCode: 302}, attempt: 1, want: RetryDecision{}},
	}

	policy := NewCooldownRetryPolicy(time.Minute, 0)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, policy.Decide(tt.err, tt.attempt))
		})
	}
}

func TestCooldownRetryPolicyUnboundedByDefault(t *testing.T) {
	t.Parallel()

	policy := NewCooldownRetryPolicy(0, 0)
	assert.Zero(t, policy.MaxAttempts())
	assert.True(t, policy.Decide(timeoutErr{}, 10_000).Retry)
}

func TestCooldownRetryPolicyCeiling(t *testing.T) {
	t.Parallel()

	policy := NewCooldownRetryPolicy(time.Second, 3)
	assert.True(t, policy.Decide(timeoutErr{}, 2).Retry)

	final := policy.Decide(timeoutErr{}, 3)
	assert.False(t, final.Retry)
	assert.Equal(t, RetryReasonTimeout, final.Reason)
}

func TestNewCooldownRetryPolicyClampsNegatives(t *testing.T) {
	t.Parallel()

	policy := NewCooldownRetryPolicy(-time.Second, -4)
	assert.Zero(t, policy.MaxAttempts())
	assert.Zero(t, policy.Decide(io.EOF, 1).Delay)
}
