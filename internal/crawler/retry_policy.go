package crawler

import (
	"context"
	"errors"
	"io"
	"net"
	"syscall"
	"time"
)

// DefaultCooldown is the pause after a connection failure.
const DefaultCooldown = 60 * time.Second

// Retry reasons reported in RetryDecision.Reason.
const (
	RetryReasonTimeout    = "timeout"
	RetryReasonConnection = "connection"
)

// RetryDecision tells the fetcher what to do after a failed attempt.
type RetryDecision struct {
	Retry  bool
	Delay  time.Duration
	Reason string
}

// CooldownRetryPolicy retries transport failures: timeouts immediately,
// connection failures after a fixed cool-down. HTTP-level outcomes never
// reach the policy. maxAttempts of zero means no ceiling.
type CooldownRetryPolicy struct {
	cooldown    time.Duration
	maxAttempts int
}

// NewCooldownRetryPolicy builds a policy. A negative cooldown is treated as zero.
func NewCooldownRetryPolicy(cooldown time.Duration, maxAttempts int) *CooldownRetryPolicy {
	if cooldown < 0 {
		cooldown = 0
	}
	if maxAttempts < 0 {
		maxAttempts = 0
	}
	return &CooldownRetryPolicy{
		cooldown:    cooldown,
		maxAttempts: maxAttempts,
	}
}

// MaxAttempts returns the configured ceiling (0 = unbounded).
func (p *CooldownRetryPolicy) MaxAttempts() int {
	return p.maxAttempts
}

// Decide classifies err for the given 1-based attempt number.
func (p *CooldownRetryPolicy) Decide(err error, attempt int) RetryDecision {
	if err == nil {
		return RetryDecision{}
	}
	if errors.Is(err, context.Canceled) {
		return RetryDecision{}
	}
	reason, ok := classifyTransportError(err)
	if !ok {
		return RetryDecision{}
	}
	if p.maxAttempts > 0 && attempt >= p.maxAttempts {
		return RetryDecision{Reason: reason}
	}
	decision := RetryDecision{Retry: true, Reason: reason}
	if reason == RetryReasonConnection {
		decision.Delay = p.cooldown
	}
	return decision
}

func classifyTransportError(err error) (string, bool) {
	// A host that cannot be reached is in cool-down even when the dial timed out.
	if isConnectFailure(err) {
		return RetryReasonConnection, true
	}
	if isTimeout(err) {
		return RetryReasonTimeout, true
	}
	var netErr net.Error
	switch {
	case errors.As(err, &netErr):
		return RetryReasonConnection, true
	case errors.Is(err, syscall.ECONNRESET),
		errors.Is(err, syscall.ECONNREFUSED),
		errors.Is(err, io.ErrUnexpectedEOF),
		errors.Is(err, io.EOF):
		return RetryReasonConnection, true
	}
	return "", false
}

func isTimeout(err error) bool {
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

func isConnectFailure(err error) bool {
	var opErr *net.OpError
	if errors.As(err, &opErr) && opErr.Op == "dial" {
		return true
	}
	var dnsErr *net.DNSError
	return errors.As(err, &dnsErr)
}
