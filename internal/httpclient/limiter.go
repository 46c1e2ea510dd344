package httpclient

import (
	"context"
	"sync"

	"golang.org/x/time/rate"
)

// hostLimiters hands out one token bucket per remote host.
type hostLimiters struct {
	mu       sync.Mutex
	limit    rate.Limit
	burst    int
	limiters map[string]*rate.Limiter
}

func newHostLimiters(perSecond float64) *hostLimiters {
	burst := int(perSecond)
	if burst < 1 {
		burst = 1
	}
	return &hostLimiters{
		limit:    rate.Limit(perSecond),
		burst:    burst,
		limiters: make(map[string]*rate.Limiter),
	}
}

func (h *hostLimiters) get(host string) *rate.Limiter {
	if h.limit <= 0 {
		return nil
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	l, ok := h.limiters[host]
	if !ok {
		l = rate.NewLimiter(h.limit, h.burst)
		h.limiters[host] = l
	}
	return l
}

// wait blocks until a request to host is allowed.
func (h *hostLimiters) wait(ctx context.Context, host string) error {
	l := h.get(host)
	if l == nil {
		return nil
	}
	return l.Wait(ctx)
}
