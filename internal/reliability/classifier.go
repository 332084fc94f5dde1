package reliability

import "time"

// IsRetryableBrokerCode classifies AMQP reply codes after which a fresh
// connection may succeed.
func IsRetryableBrokerCode(code int) bool {
	switch code {
	case 320, 501, 504, 505, 506, 541:
		return true
	default:
		return false
	}
}

// IsRetryableCloseCode classifies websocket close codes after which an
// adapter is expected to reconnect.
func IsRetryableCloseCode(code int) bool {
	switch code {
	case 1001, 1006, 1011, 1012, 1013:
		return true
	default:
		return false
	}
}

// ExponentialBackoff computes a deterministic capped backoff duration.
func ExponentialBackoff(attempt int, base, cap time.Duration) time.Duration {
	if attempt <= 0 {
		return base
	}
	d := base
	for i := 0; i < attempt; i++ {
		d *= 2
		if d >= cap {
			return cap
		}
	}
	return d
}
