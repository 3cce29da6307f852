package health

import (
	"context"
	"runtime"

	"github.com/go-faster/errors"
)

// GoroutineCountCheck flags a goroutine leak once the live goroutine count
// passes threshold.
func GoroutineCountCheck(threshold int) CheckFunc {
	return func(_ context.Context) error {
		if n := runtime.NumGoroutine(); n > threshold {
			return errors.Errorf("goroutine count %d exceeds threshold %d", n, threshold)
		}
		return nil
	}
}

// HeapAllocCheck flags memory pressure once the live heap passes maxBytes.
func HeapAllocCheck(maxBytes uint64) CheckFunc {
	return func(_ context.Context) error {
		var ms runtime.MemStats
		runtime.ReadMemStats(&ms)
		if ms.HeapAlloc > maxBytes {
			return errors.Errorf("heap alloc %d exceeds limit %d", ms.HeapAlloc, maxBytes)
		}
		return nil
	}
}
