package request

// PriorityClass orders requests within a priority pool. Lower values run
// first.
type PriorityClass int16

const (
	// PriorityMaximum is reserved for work the node itself depends on.
	PriorityMaximum PriorityClass = 0
	// PriorityInteractive is for requests a human is waiting on.
	PriorityInteractive PriorityClass = 1
	// PrioritySemiInteractive is for fetches feeding a visible page.
	PrioritySemiInteractive PriorityClass = 2
	// PriorityUpdate is for background refreshes.
	PriorityUpdate PriorityClass = 3
	// PriorityBulk is the default for queued transfers.
	PriorityBulk PriorityClass = 4
	// PriorityPrefetch is for speculative fetches.
	PriorityPrefetch PriorityClass = 5
	// PriorityMinimum runs only when nothing else wants to.
	PriorityMinimum PriorityClass = 6
)

// Valid reports whether p lies in [PriorityMaximum, PriorityMinimum].
// Out-of-range values are rejected, never clamped.
func (p PriorityClass) Valid() bool {
	return p >= PriorityMaximum && p <= PriorityMinimum
}
