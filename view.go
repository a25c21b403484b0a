package novograd

// GroupView partitions a single flat []float32 buffer into per-layer groups
// without copying data. Trainers that hold all parameters (or gradients) in
// one contiguous buffer can describe the layer boundaries once and hand out
// zero-copy subslices per group.
type GroupView struct {
	data    []float32
	offsets []int // cumulative offsets, len = groups+1
}

// NewGroupView creates a view of data split into len(sizes) groups, where
// group i holds sizes[i] consecutive elements. The sizes must cover the
// buffer exactly.
func NewGroupView(data []float32, sizes []int) (*GroupView, error) {
	if len(sizes) == 0 {
		return nil, newConfigError("sizes must be non-empty")
	}
	offsets := make([]int, len(sizes)+1)
	total := 0
	for i, sz := range sizes {
		if sz <= 0 {
			return nil, newConfigError("group sizes must be > 0")
		}
		offsets[i] = total
		total += sz
	}
	offsets[len(sizes)] = total
	if total != len(data) {
		return nil, newConfigError("group sizes must cover the buffer exactly")
	}
	return &GroupView{data: data, offsets: offsets}, nil
}

// Groups returns the number of groups in the view.
func (v *GroupView) Groups() int {
	return len(v.offsets) - 1
}

// Len returns the total number of elements across all groups.
func (v *GroupView) Len() int {
	return v.offsets[len(v.offsets)-1]
}

// Group returns the subslice for group i. The slice aliases the underlying
// buffer; writes through it are visible in the original data.
func (v *GroupView) Group(i int) []float32 {
	return v.data[v.offsets[i]:v.offsets[i+1]]
}

// Pairs combines a gradient view and a parameter view with identical layout
// into the pair list consumed by Step.
func Pairs(grads, params *GroupView) ([]Pair, error) {
	if grads.Groups() != params.Groups() {
		return nil, newConfigError("gradient and parameter views must have the same group count")
	}
	pairs := make([]Pair, grads.Groups())
	for i := range pairs {
		if len(grads.Group(i)) != len(params.Group(i)) {
			return nil, newConfigError("gradient and parameter views must have the same group sizes")
		}
		pairs[i] = Pair{Grad: grads.Group(i), Param: params.Group(i)}
	}
	return pairs, nil
}
