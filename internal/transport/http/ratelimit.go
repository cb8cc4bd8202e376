package http

import (
	"math"

	"golang.org/x/time/rate"
)

// rateLimiter bounds inbound frames of one websocket connection. A nil limiter
// allows everything.
type rateLimiter struct {
	limiter *rate.Limiter
}

// newRateLimiter allows perSecond frames per second with an equal burst.
func newRateLimiter(perSecond float64) *rateLimiter {
	if perSecond <= 0 {
		return nil
	}
	burst := int(math.Ceil(perSecond))
	return &rateLimiter{limiter: rate.NewLimiter(rate.Limit(perSecond), burst)}
}

func (r *rateLimiter) allow() bool {
	if r == nil {
		return true
	}
	return r.limiter.Allow()
}
