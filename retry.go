package impersonate

import (
	"math"
	"math/rand/v2"
	"time"

	http "github.com/bogdanfinn/fhttp"
)

// BackoffStrategy defines a function that returns the delay before the next retry.
type BackoffStrategy func(attempt int) time.Duration

// DefaultBackoffStrategy provides a simple constant delay between retries.
func DefaultBackoffStrategy(delay time.Duration) BackoffStrategy {
	return func(int) time.Duration {
		return delay
	}
}

// LinearBackoffStrategy increases the delay linearly with each retry attempt.
func LinearBackoffStrategy(initialInterval time.Duration) BackoffStrategy {
	return func(attempt int) time.Duration {
		return initialInterval * time.Duration(attempt+1)
	}
}

// ExponentialBackoffStrategy increases the delay exponentially with each
// retry attempt, capped at maxBackoffTime.
func ExponentialBackoffStrategy(initialInterval time.Duration, multiplier float64, maxBackoffTime time.Duration) BackoffStrategy {
	return func(attempt int) time.Duration {
		delay := time.Duration(float64(initialInterval) * math.Pow(multiplier, float64(attempt)))
		if delay > maxBackoffTime || delay < 0 {
			return maxBackoffTime
		}
		return delay
	}
}

// JitterBackoffStrategy spreads the delays of base by up to fraction in
// either direction. Delays never go below zero.
func JitterBackoffStrategy(base BackoffStrategy, fraction float64) BackoffStrategy {
	return func(attempt int) time.Duration {
		delay := base(attempt)
		if fraction <= 0 || delay <= 0 {
			return delay
		}
		spread := float64(delay) * fraction
		jittered := time.Duration(float64(delay) + (rand.Float64()*2-1)*spread) //nolint:gosec
		return max(jittered, 0)
	}
}

// RetryIfFunc decides whether an attempt is retried. resp is nil when err
// is set.
type RetryIfFunc func(req *http.Request, resp *http.Response, err error) bool

// DefaultRetryIf retries transport errors and 5xx responses.
func DefaultRetryIf(_ *http.Request, resp *http.Response, err error) bool {
	return err != nil || (resp != nil && resp.StatusCode >= 500)
}
