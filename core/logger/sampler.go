package logger

import (
	"strconv"
	"strings"
	"sync/atomic"
)

// ratioSampler passes numerator out of every denominator calls.
// A zero ratio disables sampling and lets everything through.
type ratioSampler struct {
	// ratio packs numerator<<32 | denominator so both change together.
	ratio atomic.Uint64
	calls atomic.Uint64
}

func newRatioSampler(numerator, denominator int) *ratioSampler {
	s := &ratioSampler{}
	s.Set(numerator, denominator)
	return s
}

// Set replaces the ratio and restarts the cycle.
func (s *ratioSampler) Set(numerator, denominator int) {
	if numerator <= 0 || denominator <= 0 {
		numerator, denominator = 0, 0
	}
	if numerator > denominator {
		numerator = denominator
	}
	s.ratio.Store(uint64(uint32(numerator))<<32 | uint64(uint32(denominator)))
	s.calls.Store(0)
}

// Allow reports whether the current call falls inside the sampled share of the cycle.
func (s *ratioSampler) Allow() bool {
	r := s.ratio.Load()
	num, den := r>>32, r&0xffffffff
	if num == 0 || den == 0 {
		return true
	}
	n := s.calls.Add(1) - 1
	return n%den < num
}

// parseRatioSpec accepts "n/d", "d" (one in d) and "p%" (p in 100).
// Anything else yields 0, 0.
func parseRatioSpec(spec string) (int, int) {
	spec = strings.TrimSpace(spec)
	switch {
	case spec == "":
		return 0, 0
	case strings.HasSuffix(spec, "%"):
		p, err := strconv.Atoi(strings.TrimSpace(strings.TrimSuffix(spec, "%")))
		if err != nil || p <= 0 {
			return 0, 0
		}
		return p, 100
	case strings.Contains(spec, "/"):
		numStr, denStr, _ := strings.Cut(spec, "/")
		num, err1 := strconv.Atoi(strings.TrimSpace(numStr))
		den, err2 := strconv.Atoi(strings.TrimSpace(denStr))
		if err1 != nil || err2 != nil {
			return 0, 0
		}
		return num, den
	}
	v, err := strconv.Atoi(spec)
	if err != nil || v <= 0 {
		return 0, 0
	}
	return 1, v
}
