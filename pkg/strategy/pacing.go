package strategy

import (
	"context"
	"time"
)

// Pacing holds the delays between steps. The zero value runs without
// delays.
type Pacing struct {
	// Settle precedes each one-by-one match call.
	Settle time.Duration
	// AfterFill follows a write; AfterMiss follows a field left empty.
	AfterFill time.Duration
	AfterMiss time.Duration
	// AfterClear follows removing a one-by-one highlight.
	AfterClear time.Duration

	// A cluster dwells ClusterBase plus ClusterPerField per field, at most
	// ClusterMax, then ClusterClear after its highlights are removed.
	ClusterBase     time.Duration
	ClusterPerField time.Duration
	ClusterMax      time.Duration
	ClusterClear    time.Duration
}

// DefaultPacing gives the page and the user time to follow each step.
func DefaultPacing() Pacing {
	return Pacing{
		Settle:          150 * time.Millisecond,
		AfterFill:       400 * time.Millisecond,
		AfterMiss:       200 * time.Millisecond,
		AfterClear:      250 * time.Millisecond,
		ClusterBase:     400 * time.Millisecond,
		ClusterPerField: 100 * time.Millisecond,
		ClusterMax:      800 * time.Millisecond,
		ClusterClear:    200 * time.Millisecond,
	}
}

// FastPacing keeps only a short settle before match calls.
func FastPacing() Pacing {
	return Pacing{Settle: 20 * time.Millisecond}
}

// PacingFor returns the pacing named "normal" or "fast". Anything else is
// normal.
func PacingFor(name string) Pacing {
	if name == "fast" {
		return FastPacing()
	}
	return DefaultPacing()
}

// clusterDwell is the pause after a cluster of n fields.
func (p Pacing) clusterDwell(n int) time.Duration {
	return min(p.ClusterMax, p.ClusterBase+time.Duration(n)*p.ClusterPerField)
}

// sleep waits for d or until ctx is done.
func sleep(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
	case <-ctx.Done():
	}
}
