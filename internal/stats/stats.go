package stats

import (
	"fmt"
	"io"
	"math"
)

// Stats accumulates values over a fixed window. When the window fills, the
// min/mean/max/variance of that window become the current result and the
// accumulators start over.
type Stats struct {
	Name string
	Size int

	count int
	sum   int64
	sumSq float64
	min   int64
	max   int64

	Result Result
}

// Result is the summary of the last complete window.
type Result struct {
	Windows  uint64  `json:"windows"`
	Min      int64   `json:"min"`
	Mean     float64 `json:"mean"`
	Max      int64   `json:"max"`
	Variance float64 `json:"variance"`
}

// New creates a Stats with the given window size (minimum 1).
func New(name string, size int) *Stats {
	if size < 1 {
		size = 1
	}
	s := &Stats{Name: name, Size: size}
	s.clear()
	return s
}

func (s *Stats) clear() {
	s.count = 0
	s.sum = 0
	s.sumSq = 0
	s.min = math.MaxInt64
	s.max = math.MinInt64
}

// Add records v and reports whether it completed a window.
func (s *Stats) Add(v int64) bool {
	s.count++
	s.sum += v
	s.sumSq += float64(v) * float64(v)
	if v < s.min {
		s.min = v
	}
	if v > s.max {
		s.max = v
	}
	if s.count < s.Size {
		return false
	}

	n := float64(s.count)
	mean := float64(s.sum) / n
	variance := s.sumSq/n - mean*mean
	if variance < 0 {
		variance = 0
	}
	s.Result = Result{
		Windows:  s.Result.Windows + 1,
		Min:      s.min,
		Mean:     mean,
		Max:      s.max,
		Variance: variance,
	}
	s.clear()
	return true
}

// Reset drops the partial window and the last result.
func (s *Stats) Reset() {
	s.clear()
	s.Result = Result{}
}

// Pending returns the number of values in the current partial window.
func (s *Stats) Pending() int {
	return s.count
}

// Print writes the last result on one line.
func (s *Stats) Print(w io.Writer) {
	r := s.Result
	if r.Windows == 0 {
		fmt.Fprintf(w, "%s: no data (%d/%d)\n", s.Name, s.count, s.Size)
		return
	}
	fmt.Fprintf(w, "%s: min %d mean %.1f max %d variance %.1f (windows %d)\n",
		s.Name, r.Min, r.Mean, r.Max, r.Variance, r.Windows)
}
