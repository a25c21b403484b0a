package novograd

import (
	"runtime"
)

// kernelKind selects the per-group update implementation.
type kernelKind int

const (
	// kernelBLAS composes the update from blas32 primitives; used for small
	// groups where loop-fusion overhead is not worth it.
	kernelBLAS kernelKind = iota
	// kernelFused performs the whole group update in a single pass to reduce
	// memory traffic on large groups.
	kernelFused
)

// AdaptiveConfig holds thresholds for execution-strategy selection.
type AdaptiveConfig struct {
	// SmallGroupThreshold: groups with fewer elements use kernelBLAS.
	SmallGroupThreshold int
	// ParallelGroups: fan group updates out across goroutines when the
	// optimizer holds at least this many parameter groups...
	ParallelGroups int
	// ParallelElements: ...and the total element count is at least this.
	ParallelElements int
	// Workers caps the goroutine fan-out. Defaults to runtime.NumCPU().
	Workers int
}

// DefaultAdaptiveConfig returns sensible defaults for the current system.
func DefaultAdaptiveConfig() AdaptiveConfig {
	return AdaptiveConfig{
		SmallGroupThreshold: 512,
		ParallelGroups:      4,
		ParallelElements:    1 << 15,
		Workers:             runtime.NumCPU(),
	}
}

// selectKernel chooses the update kernel for a group of the given size.
func selectKernel(groupSize int, cfg AdaptiveConfig) kernelKind {
	if groupSize < cfg.SmallGroupThreshold {
		return kernelBLAS
	}
	return kernelFused
}

// useParallel reports whether group updates should run on multiple goroutines.
// Groups own disjoint state, so the only synchronization needed is the full
// barrier at the end of each step.
func useParallel(groups, totalElements int, cfg AdaptiveConfig) bool {
	if cfg.Workers <= 1 {
		return false
	}
	return groups >= cfg.ParallelGroups && totalElements >= cfg.ParallelElements
}
