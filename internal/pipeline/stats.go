package pipeline

import (
	"sort"
	"sync"

	"github.com/chrissnell/globalbedo/internal/observation"
	"github.com/chrissnell/globalbedo/internal/types"
)

// Stats counts what happened to observations and pixels during a run.
type Stats struct {
	Observations int
	Rejected     map[observation.Reason]int

	Inversions int
	Valid      int
	Fallback   int
	UsedPrior  int
	NoData     int

	// Pixels and ValidPixels refer to the final product.
	Pixels      int
	ValidPixels int
}

func (s *Stats) countObservation(r observation.Reason) {
	s.Observations++
	if r == observation.Accepted {
		return
	}
	if s.Rejected == nil {
		s.Rejected = make(map[observation.Reason]int)
	}
	s.Rejected[r]++
}

func (s *Stats) countInversion(inv types.InversionResult) {
	s.Inversions++
	switch {
	case !inv.Valid:
		s.NoData++
		return
	case inv.Fallback:
		s.Fallback++
	}
	s.Valid++
	if inv.UsedPrior {
		s.UsedPrior++
	}
}

func (s *Stats) countProduct(a types.AlbedoResult) {
	s.Pixels++
	if a.DataMask > 0 {
		s.ValidPixels++
	}
}

// Add accumulates o into s.
func (s *Stats) Add(o Stats) {
	s.Observations += o.Observations
	for r, n := range o.Rejected {
		if s.Rejected == nil {
			s.Rejected = make(map[observation.Reason]int)
		}
		s.Rejected[r] += n
	}
	s.Inversions += o.Inversions
	s.Valid += o.Valid
	s.Fallback += o.Fallback
	s.UsedPrior += o.UsedPrior
	s.NoData += o.NoData
	s.Pixels += o.Pixels
	s.ValidPixels += o.ValidPixels
}

// Accepted returns the number of observations that passed the filters.
func (s *Stats) Accepted() int {
	n := s.Observations
	for _, r := range s.Rejected {
		n -= r
	}
	return n
}

// KeysAndValues renders s for structured logging.
func (s *Stats) KeysAndValues() []interface{} {
	kv := []interface{}{
		"observations", s.Observations,
		"accepted", s.Accepted(),
		"inversions", s.Inversions,
		"valid", s.Valid,
		"fallback", s.Fallback,
		"used_prior", s.UsedPrior,
		"nodata", s.NoData,
		"pixels", s.Pixels,
		"valid_pixels", s.ValidPixels,
	}

	reasons := make([]observation.Reason, 0, len(s.Rejected))
	for r := range s.Rejected {
		reasons = append(reasons, r)
	}
	sort.Slice(reasons, func(i, j int) bool { return reasons[i] < reasons[j] })
	for _, r := range reasons {
		kv = append(kv, "rejected "+r.String(), s.Rejected[r])
	}
	return kv
}

// syncStats guards a Stats shared by tile workers.
type syncStats struct {
	mu sync.Mutex
	s  Stats
}

func (ss *syncStats) add(o Stats) {
	ss.mu.Lock()
	ss.s.Add(o)
	ss.mu.Unlock()
}
