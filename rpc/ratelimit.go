package rpc

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// senderLimiter rate-limits mempool admission per sender address; it is a
// per-sender token bucket checked before admission, not a worker pool. One
// golang.org/x/time/rate.Limiter per sender, matching the gateway's
// per-visitor limiter shape (gateway/middleware/ratelimit.go) but keyed on
// the transaction's recovered sender rather than client IP, since a single
// operator's dashboard can submit on behalf of many senders from one IP.
type senderLimiter struct {
	mu            sync.Mutex
	perSender     map[[20]byte]*rate.Limiter
	ratePerSecond float64
	burst         int
}

func newSenderLimiter(ratePerSecond float64, burst int) *senderLimiter {
	if ratePerSecond <= 0 {
		ratePerSecond = 5
	}
	if burst <= 0 {
		burst = 10
	}
	return &senderLimiter{
		perSender:     make(map[[20]byte]*rate.Limiter),
		ratePerSecond: ratePerSecond,
		burst:         burst,
	}
}

func (l *senderLimiter) allow(sender [20]byte) bool {
	l.mu.Lock()
	limiter, ok := l.perSender[sender]
	if !ok {
		limiter = rate.NewLimiter(rate.Limit(l.ratePerSecond), l.burst)
		l.perSender[sender] = limiter
	}
	l.mu.Unlock()
	return limiter.AllowN(time.Now(), 1)
}
