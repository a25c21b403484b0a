package novograd

import (
	"math"

	"gonum.org/v1/gonum/blas/blas32"
)

// ---------- float32 math helpers ----------

func sqrt32(x float32) float32 { return float32(math.Sqrt(float64(x))) }

func isFinite32(x float32) bool {
	f := float64(x)
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}

// toVector creates a blas32.Vector from a float32 slice for BLAS operations
func toVector(data []float32) blas32.Vector {
	return blas32.Vector{N: len(data), Data: data, Inc: 1}
}

// BLAS-optimized vector operations
func scaleVector(alpha float32, x []float32) {
	blas32.Scal(alpha, toVector(x))
}

func axpyVector(alpha float32, x, y []float32) {
	// y = alpha*x + y
	blas32.Axpy(alpha, toVector(x), toVector(y))
}

// ---------- gradient statistics ----------

// statSquaredNorm computes the full squared L2 norm of the group gradient,
// sum(g[i]^2), reduced to a single scalar.
func statSquaredNorm(g []float32) float32 {
	v := toVector(g)
	return blas32.Dot(v, v)
}

// statNorm computes ||g||_p for p in {1, 2}.
func statNorm(g []float32, ord int) float32 {
	if ord == 1 {
		return blas32.Asum(toVector(g))
	}
	return blas32.Nrm2(toVector(g))
}

// ---------- per-group update kernels ----------
//
// Both kernels apply, for one parameter group:
//
//	g'  = factor * grad
//	g'' = g' + decay * param          (coupled weight decay; decay == 0 skips it)
//	param *= shrink                    (decoupled weight decay; shrink == 1 skips it)
//	m    = beta1 * m + g''
//	param -= lr * m
//
// The decoupled shrink happens before the momentum update. The caller's grad
// slice is never mutated. decay and shrink are mutually exclusive (at most one
// differs from its neutral value).

// updateGroupBLAS composes the update from blas32 primitives using a scratch
// buffer for the rescaled gradient.
func updateGroupBLAS(m, param, grad, scratch []float32, factor, decay, shrink, beta1, lr float32) {
	copy(scratch, grad)
	scaleVector(factor, scratch)
	if decay != 0 {
		axpyVector(decay, param, scratch)
	}
	if shrink != 1 {
		scaleVector(shrink, param)
	}
	scaleVector(beta1, m)
	axpyVector(1, scratch, m)
	axpyVector(-lr, m, param)
}

// updateGroupFused performs the same update in a single pass, reducing memory
// traffic for large groups.
func updateGroupFused(m, param, grad []float32, factor, decay, shrink, beta1, lr float32) {
	for j := range param {
		p := param[j]
		mj := beta1*m[j] + factor*grad[j] + decay*p
		m[j] = mj
		param[j] = p*shrink - lr*mj
	}
}
