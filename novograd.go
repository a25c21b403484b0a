// File: novograd.go
// Go 1.20+
//
// NovoGrad family of layer-wise adaptive momentum optimizers, per
// Ginsburg et al., "Stochastic Gradient Methods with Layer-wise Adaptive
// Moments" (arXiv:1905.11286):
//
//   - VariantSquaredNorm (NovoGrad2 / NovoGradW): per-layer EMA of the squared
//     gradient L2 norm, with coupled or decoupled weight decay
//   - VariantNorm (classic NovoGrad): per-layer EMA of the gradient L1/L2 norm
//   - VariantPlainNorm: instantaneous L2 norm, no persistent EMA
//
// All variants share the same skeleton: compute a scalar normalization factor
// per parameter group (layer), rescale the gradient, optionally blend in
// weight decay, then apply heavy-ball momentum (Nesterov disabled):
//
//	v_i <- stat                           (first non-zero step, "cold start")
//	v_i <- beta2*v_i + (1-beta2)*stat     (thereafter)
//	m_i <- beta1*m_i + g''
//	w_i <- w_i - lr_t*m_i
//
// Engineering hardening:
// - Strict hyperparameter validation (beta bounds, eps>0, alpha>0, wd>=0)
// - Group layout pinned at first Step; mismatches rejected before any mutation
// - Optional strict mode rejecting non-finite gradient statistics
// - Optional fine-grained per-group locking
//
// Concurrency: Step may update groups on multiple goroutines internally (each
// group owns disjoint state, and Step returns only after a full barrier), but
// the Optimizer itself is NOT goroutine-safe: concurrent Step calls, or
// external mutation of parameters during a Step, require UseLocking plus
// external synchronization.

package novograd

import (
	"fmt"
	"sync"
)

// Variant selects the gradient-normalization policy.
type Variant int

const (
	// VariantSquaredNorm maintains a per-group EMA of the squared L2 gradient
	// norm and rescales by (1-beta1)/sqrt(v+eps). This is the NovoGrad2 rule;
	// with Decoupled weight decay it is NovoGradW.
	VariantSquaredNorm Variant = iota
	// VariantNorm maintains a per-group EMA of the gradient norm (L1 or L2
	// per NormOrder) and rescales by beta1/(v+eps). Classic NovoGrad.
	VariantNorm
	// VariantPlainNorm rescales by beta1/(||g||_2+eps) using the instantaneous
	// norm. No persistent EMA state; useful when per-layer state memory is
	// undesirable.
	VariantPlainNorm
)

// Pair is one (gradient, parameter) group: a trainable tensor flattened to a
// float32 slice together with its shape-matched gradient. Gradients are read
// only; parameters are updated in place.
type Pair struct {
	Grad  []float32
	Param []float32
}

// State is a deep copy of the optimizer's persistent per-group state, for
// checkpoint save/restore by the caller. The optimizer itself does not
// implement persistence.
type State struct {
	Step     int64
	Ema      []float32
	Momentum [][]float32
}

// Options configures a new Optimizer. Zero-valued numeric fields take
// per-variant defaults; see New.
type Options struct {
	Variant     Variant
	Alpha       float32 // base learning rate, must be > 0
	Beta1       float32 // momentum / rescale coefficient, in [0,1)
	Beta2       float32 // EMA coefficient for the gradient statistic, in [0,1)
	Eps         float32 // stabilizer, must be > 0; added after the EMA update
	WeightDecay float32 // λ >= 0; 0 disables decay entirely
	// Decoupled applies weight decay as a separate parameter shrink,
	// param *= 1 - lr_t*λ, immediately before the momentum update (NovoGradW).
	// When false and WeightDecay > 0, decay is folded into the rescaled
	// gradient: g'' = g' + (1-beta1)*λ*param.
	Decoupled bool
	// NormOrder is the norm order for VariantNorm: 1 or 2 (default 2).
	// Other variants ignore it.
	NormOrder int
	// Schedule supplies the learning-rate multiplier η_t. Defaults to a fixed
	// multiplier of 1.
	Schedule Schedule
	// Groups optionally pins the expected parameter-group count upfront.
	// When 0 the count is pinned by the first Step call.
	Groups int
	// StrictFinite makes Step fail with ErrNumericalInstability when a
	// group's gradient statistic is NaN or Inf, before any state for that
	// group is written. By default non-finite statistics propagate into the
	// EMA unchanged.
	StrictFinite bool
	// UseLocking guards each group's read-modify-write with its own mutex.
	UseLocking bool
	// Adaptive overrides the execution-strategy thresholds.
	Adaptive *AdaptiveConfig
}

// Optimizer implements the NovoGrad update rules for a fixed list of
// parameter groups updated in place.
//
// Example usage:
//
//	opt, _ := novograd.New(novograd.Options{
//	    Variant:     novograd.VariantSquaredNorm,
//	    Alpha:       0.02,
//	    WeightDecay: 1e-3,
//	    Decoupled:   true, // NovoGradW
//	})
//	pairs := []novograd.Pair{{Grad: g1, Param: w1}, {Grad: g2, Param: w2}}
//	if err := opt.Step(pairs); err != nil { ... }
//
// The set and order of groups passed to Step must match the first call
// exactly; the per-group EMA and momentum state are indexed positionally.
type Optimizer struct {
	Variant      Variant
	Alpha        float32
	Beta1        float32
	Beta2        float32
	Eps          float32
	WeightDecay  float32
	Decoupled    bool
	NormOrder    int
	Schedule     Schedule
	StrictFinite bool
	UseLocking   bool

	// Internal state
	t       int64
	sizes   []int       // pinned group layout; nil until first Step
	ema     []float32   // v_i, one scalar per group; invariant: >= 0 for finite inputs
	warmed  []bool      // v_i != 0, i.e. the cold-start branch no longer applies
	m       [][]float32 // momentum buffers, shape-matched to the parameters
	scratch [][]float32 // rescaled-gradient working buffers
	kernels []kernelKind
	locks   []sync.Mutex
	errs    []error

	cfg          AdaptiveConfig
	parallel     bool
	workers      int
	expectGroups int
	initCalled   bool
}

// New constructs an Optimizer and validates its hyperparameters.
//
// Per-variant defaults (applied to zero-valued fields):
//
//	VariantSquaredNorm: Alpha=1.0,  Beta1=0.95, Beta2=0.98, Eps=1e-8
//	VariantNorm:        Alpha=1e-3, Beta1=0.9,  Beta2=0.95, Eps=1e-6, NormOrder=2
//	VariantPlainNorm:   Alpha=1e-3, Beta1=0.9,  Beta2=0.95, Eps=1e-5
func New(opt Options) (*Optimizer, error) {
	if opt.Variant < VariantSquaredNorm || opt.Variant > VariantPlainNorm {
		return nil, newConfigError("unknown variant")
	}

	defAlpha, defBeta1, defBeta2, defEps := variantDefaults(opt.Variant)
	o := &Optimizer{
		Variant:      opt.Variant,
		Alpha:        orDefault(opt.Alpha, defAlpha),
		Beta1:        orDefault(opt.Beta1, defBeta1),
		Beta2:        orDefault(opt.Beta2, defBeta2),
		Eps:          orDefault(opt.Eps, defEps),
		WeightDecay:  opt.WeightDecay,
		Decoupled:    opt.Decoupled,
		NormOrder:    opt.NormOrder,
		Schedule:     opt.Schedule,
		StrictFinite: opt.StrictFinite,
		UseLocking:   opt.UseLocking,
		expectGroups: opt.Groups,
	}
	if o.NormOrder == 0 {
		o.NormOrder = 2
	}

	// Strict validation per engineering hardening.
	if !(o.Beta1 >= 0.0 && o.Beta1 < 1.0) {
		return nil, newConfigError("beta1 must be in [0,1)")
	}
	if !(o.Beta2 >= 0.0 && o.Beta2 < 1.0) {
		return nil, newConfigError("beta2 must be in [0,1)")
	}
	if !(o.Alpha > 0.0) {
		return nil, newConfigError("alpha must be > 0")
	}
	if !(o.Eps > 0.0) {
		return nil, newConfigError("eps must be > 0")
	}
	if o.WeightDecay < 0 {
		return nil, newConfigError("weight decay must be >= 0")
	}
	if o.NormOrder != 1 && o.NormOrder != 2 {
		return nil, newConfigError("norm order must be 1 or 2")
	}
	if opt.Groups < 0 {
		return nil, newConfigError("groups must be >= 0")
	}

	if o.Schedule == nil {
		o.Schedule = NewFixedSchedule(1.0)
	}
	if opt.Adaptive != nil {
		o.cfg = *opt.Adaptive
		if o.cfg.Workers <= 0 {
			o.cfg.Workers = DefaultAdaptiveConfig().Workers
		}
	} else {
		o.cfg = DefaultAdaptiveConfig()
	}

	o.initCalled = true
	return o, nil
}

// orDefault substitutes def for a zero-valued option; negative values pass
// through so validation can reject them.
func orDefault(v, def float32) float32 {
	if v == 0 {
		return def
	}
	return v
}

func variantDefaults(v Variant) (alpha, beta1, beta2, eps float32) {
	switch v {
	case VariantNorm:
		return 1e-3, 0.9, 0.95, 1e-6
	case VariantPlainNorm:
		return 1e-3, 0.9, 0.95, 1e-5
	default: // VariantSquaredNorm
		return 1.0, 0.95, 0.98, 1e-8
	}
}

// ---------- Main update ----------

// Step performs one update over all parameter groups.
//
// The first call pins the group layout (count and per-group element counts);
// every later call must present the same layout in the same order, or Step
// returns ErrInvalidConfig without touching any state. Gradient slices are
// read only; parameters and internal state are mutated in place, and Step
// returns only after every group's update has committed.
//
// Cold start: a group whose EMA is exactly zero takes the statistic directly
// instead of blending, so the average is not biased toward zero on the first
// step. A statistic that is itself exactly zero leaves the group cold, so the
// cold-start branch re-triggers until a non-zero statistic arrives.
func (o *Optimizer) Step(pairs []Pair) error {
	if !o.initCalled {
		return newConfigError("optimizer not initialized")
	}
	if len(pairs) == 0 {
		return newConfigError("pairs must be non-empty")
	}
	if o.sizes == nil {
		if o.expectGroups > 0 && len(pairs) != o.expectGroups {
			return fmt.Errorf("%w: got %d parameter groups, configured for %d",
				ErrInvalidConfig, len(pairs), o.expectGroups)
		}
		if err := o.pin(pairs); err != nil {
			return err
		}
	} else if len(pairs) != len(o.sizes) {
		return fmt.Errorf("%w: got %d parameter groups, state holds %d",
			ErrInvalidConfig, len(pairs), len(o.sizes))
	}
	for i, p := range pairs {
		if len(p.Param) != o.sizes[i] {
			return fmt.Errorf("%w: group %d has %d elements, state holds %d",
				ErrInvalidConfig, i, len(p.Param), o.sizes[i])
		}
		if len(p.Grad) != len(p.Param) {
			return fmt.Errorf("%w: group %d gradient has %d elements, parameter has %d",
				ErrInvalidConfig, i, len(p.Grad), len(p.Param))
		}
	}

	eta := o.Schedule.Eta()
	if eta < 0 {
		eta = 0
	}
	lr := o.Alpha * eta

	if o.parallel {
		var wg sync.WaitGroup
		for w := 0; w < o.workers; w++ {
			wg.Add(1)
			go func(w int) {
				defer wg.Done()
				for i := w; i < len(pairs); i += o.workers {
					o.errs[i] = o.stepGroup(i, pairs[i].Grad, pairs[i].Param, lr)
				}
			}(w)
		}
		wg.Wait() // full barrier: every group commits before the step ends
		for i := range o.errs {
			if o.errs[i] != nil {
				return o.errs[i]
			}
		}
	} else {
		for i := range pairs {
			if err := o.stepGroup(i, pairs[i].Grad, pairs[i].Param, lr); err != nil {
				return err
			}
		}
	}

	o.t++
	o.Schedule.Tick()
	return nil
}

// StepFlat performs one update where parameters and gradients live in single
// contiguous buffers partitioned into groups by sizes.
func (o *Optimizer) StepFlat(params, grads []float32, sizes []int) error {
	pv, err := NewGroupView(params, sizes)
	if err != nil {
		return err
	}
	gv, err := NewGroupView(grads, sizes)
	if err != nil {
		return err
	}
	pairs, err := Pairs(gv, pv)
	if err != nil {
		return err
	}
	return o.Step(pairs)
}

// pin fixes the group layout and allocates all per-group state. Called once,
// on the first Step (or on ImportState into a fresh optimizer).
func (o *Optimizer) pin(pairs []Pair) error {
	for i, p := range pairs {
		if len(p.Param) == 0 {
			return fmt.Errorf("%w: parameter group %d is empty", ErrInvalidConfig, i)
		}
		if len(p.Grad) != len(p.Param) {
			return fmt.Errorf("%w: group %d gradient has %d elements, parameter has %d",
				ErrInvalidConfig, i, len(p.Grad), len(p.Param))
		}
	}
	sizes := make([]int, len(pairs))
	for i, p := range pairs {
		sizes[i] = len(p.Param)
	}
	o.pinSizes(sizes)
	return nil
}

func (o *Optimizer) pinSizes(sizes []int) {
	n := len(sizes)
	total := 0
	o.sizes = sizes
	o.ema = make([]float32, n)
	o.warmed = make([]bool, n)
	o.m = make([][]float32, n)
	o.scratch = make([][]float32, n)
	o.kernels = make([]kernelKind, n)
	o.errs = make([]error, n)
	for i, sz := range sizes {
		o.m[i] = make([]float32, sz)
		o.scratch[i] = make([]float32, sz)
		o.kernels[i] = selectKernel(sz, o.cfg)
		total += sz
	}
	if o.UseLocking {
		o.locks = make([]sync.Mutex, n)
	}
	o.parallel = useParallel(n, total, o.cfg)
	o.workers = o.cfg.Workers
	if o.workers > n {
		o.workers = n
	}
}

func (o *Optimizer) stepGroup(i int, grad, param []float32, lr float32) error {
	if o.UseLocking {
		o.locks[i].Lock()
		defer o.locks[i].Unlock()
	}
	return o.updateGroup(i, grad, param, lr)
}

// updateGroup runs the full recurrence for one group: statistic, EMA,
// rescale factor, weight decay, momentum, parameter write.
func (o *Optimizer) updateGroup(i int, grad, param []float32, lr float32) error {
	var stat float32
	switch o.Variant {
	case VariantNorm:
		stat = statNorm(grad, o.NormOrder)
	case VariantPlainNorm:
		stat = statNorm(grad, 2)
	default:
		stat = statSquaredNorm(grad)
	}
	if o.StrictFinite && !isFinite32(stat) {
		return fmt.Errorf("%w: group %d gradient statistic is non-finite", ErrNumericalInstability, i)
	}

	var factor float32
	switch o.Variant {
	case VariantNorm:
		factor = o.Beta1 / (o.blendEMA(i, stat) + o.Eps)
	case VariantPlainNorm:
		factor = o.Beta1 / (stat + o.Eps)
	default:
		factor = (1 - o.Beta1) / sqrt32(o.blendEMA(i, stat)+o.Eps)
	}

	decay := float32(0)
	shrink := float32(1)
	if o.WeightDecay > 0 {
		if o.Decoupled {
			shrink = 1 - lr*o.WeightDecay
		} else {
			decay = (1 - o.Beta1) * o.WeightDecay
		}
	}

	if o.kernels[i] == kernelFused {
		updateGroupFused(o.m[i], param, grad, factor, decay, shrink, o.Beta1, lr)
	} else {
		updateGroupBLAS(o.m[i], param, grad, o.scratch[i], factor, decay, shrink, o.Beta1, lr)
	}
	return nil
}

// blendEMA advances the per-group EMA with the new statistic and returns the
// updated value. Eps is NOT included here; it is added by the caller, after
// the EMA update.
func (o *Optimizer) blendEMA(i int, stat float32) float32 {
	v := o.ema[i]
	if o.warmed[i] {
		v = o.Beta2*v + (1-o.Beta2)*stat
	} else {
		v = stat // cold start: take the statistic directly
	}
	o.ema[i] = v
	o.warmed[i] = v != 0
	return v
}

// ---------- introspection & state ----------

// CurrentStep returns t (starting from 1 after the first successful Step).
func (o *Optimizer) CurrentStep() int64 { return o.t }

// ResetState clears the EMA and momentum state and counters, keeping the
// pinned group layout and hyperparameters.
func (o *Optimizer) ResetState() {
	for i := range o.ema {
		o.ema[i] = 0
		o.warmed[i] = false
		for j := range o.m[i] {
			o.m[i][j] = 0
		}
	}
	o.t = 0
	if o.Schedule != nil {
		o.Schedule.Reset()
	}
}

// ExportState returns a deep copy of the persistent state for checkpointing.
// Before the layout is pinned it carries only the step counter.
func (o *Optimizer) ExportState() State {
	s := State{Step: o.t}
	if o.sizes == nil {
		return s
	}
	s.Ema = make([]float32, len(o.ema))
	copy(s.Ema, o.ema)
	s.Momentum = make([][]float32, len(o.m))
	for i := range o.m {
		s.Momentum[i] = make([]float32, len(o.m[i]))
		copy(s.Momentum[i], o.m[i])
	}
	return s
}

// ImportState restores state captured by ExportState. On a fresh optimizer it
// also pins the group layout from the state; otherwise the layout must match.
func (o *Optimizer) ImportState(s State) error {
	if !o.initCalled {
		return newConfigError("optimizer not initialized")
	}
	if len(s.Ema) == 0 || len(s.Ema) != len(s.Momentum) {
		return newConfigError("state EMA and momentum group counts must match and be non-empty")
	}
	if o.sizes == nil {
		if o.expectGroups > 0 && len(s.Momentum) != o.expectGroups {
			return fmt.Errorf("%w: state holds %d parameter groups, configured for %d",
				ErrInvalidConfig, len(s.Momentum), o.expectGroups)
		}
		sizes := make([]int, len(s.Momentum))
		for i, m := range s.Momentum {
			if len(m) == 0 {
				return fmt.Errorf("%w: state momentum group %d is empty", ErrInvalidConfig, i)
			}
			sizes[i] = len(m)
		}
		o.pinSizes(sizes)
	} else {
		if len(s.Momentum) != len(o.sizes) {
			return fmt.Errorf("%w: state holds %d parameter groups, optimizer holds %d",
				ErrInvalidConfig, len(s.Momentum), len(o.sizes))
		}
		for i, m := range s.Momentum {
			if len(m) != o.sizes[i] {
				return fmt.Errorf("%w: state momentum group %d has %d elements, optimizer holds %d",
					ErrInvalidConfig, i, len(m), o.sizes[i])
			}
		}
	}
	o.t = s.Step
	copy(o.ema, s.Ema)
	for i := range s.Momentum {
		copy(o.m[i], s.Momentum[i])
	}
	for i := range o.ema {
		o.warmed[i] = o.ema[i] != 0
	}
	return nil
}
