package recovery

import (
	"math"
	"time"
)

// Backoff 第 attempt 次重连前的等待时间
//
//	delay(n) = min(initial · multiplier^n, max)，n < 0 视为 0
func Backoff(attempt int, initial, max time.Duration, multiplier float64) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	if multiplier < 1 {
		multiplier = 1
	}
	d := float64(initial) * math.Pow(multiplier, float64(attempt))
	if math.IsInf(d, 0) || d > float64(max) {
		return max
	}
	return time.Duration(d)
}

// backoff 按配置计算
func (c Config) backoff(attempt int) time.Duration {
	return Backoff(attempt, c.InitialReconnectDelay, c.MaxReconnectDelay, c.BackoffMultiplier)
}
