package domain

// PositionStep is the gap left between appended tasks so later drops can
// land between neighbors without renumbering them.
const PositionStep = 1000

// AllocatePosition computes the sort key for a task dropped at index into a
// column whose existing sibling positions are given in ascending order (with
// the moved task already removed). Appends extend past the last key,
// prepends halve the first key, and everything else takes the midpoint of
// its neighbors, so no other record ever needs rewriting.
//
// Repeated midpoint insertion between the same two neighbors halves the gap
// each time and can eventually exhaust float64 precision, at which point two
// tasks may collide on the same key. Accepted limitation; no renumbering
// pass is performed.
func AllocatePosition(ordered []float64, index int) float64 {
	if len(ordered) == 0 {
		return PositionStep
	}
	if index >= len(ordered) {
		return ordered[len(ordered)-1] + PositionStep
	}
	if index <= 0 {
		return ordered[0] / 2
	}
	return (ordered[index-1] + ordered[index]) / 2
}
