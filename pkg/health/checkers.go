package health

import (
	"context"
	"runtime"

	"github.com/go-faster/errors"
)

// GoroutineCountCheck fails when more than threshold goroutines are running.
func GoroutineCountCheck(threshold int) CheckFunc {
	return func(_ context.Context) error {
		if n := runtime.NumGoroutine(); n > threshold {
			return errors.Errorf("goroutine count %d exceeds threshold %d", n, threshold)
		}
		return nil
	}
}

// Pinger is implemented by *pgxpool.Pool.
type Pinger interface {
	Ping(ctx context.Context) error
}

// PingCheck fails when the database does not answer a ping.
func PingCheck(p Pinger) CheckFunc {
	return func(ctx context.Context) error {
		if err := p.Ping(ctx); err != nil {
			return errors.Wrap(err, "ping")
		}
		return nil
	}
}

// PoolStats is implemented by *pgxpool.Stat.
type PoolStats interface {
	AcquiredConns() int32
	MaxConns() int32
}

// PoolSaturationCheck fails when every connection of the pool is acquired.
func PoolSaturationCheck(stat func() PoolStats) CheckFunc {
	return func(_ context.Context) error {
		s := stat()
		if s.MaxConns() > 0 && s.AcquiredConns() >= s.MaxConns() {
			return errors.Errorf("connection pool saturated: %d/%d acquired", s.AcquiredConns(), s.MaxConns())
		}
		return nil
	}
}
