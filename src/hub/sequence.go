package hub

import "go.uber.org/atomic"

// Sequence issues process-wide strictly increasing event ids, starting at 1.
type Sequence struct {
	n atomic.Int64
}

// Next returns the next id. Safe for concurrent use.
func (s *Sequence) Next() int64 {
	return s.n.Inc()
}
