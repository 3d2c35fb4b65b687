package adbtransport

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// latencyWindowSize is how many recent samples are kept per (device,
// family, backend) tuple.
const latencyWindowSize = 20

// latencyAverageSize is how many of the most recent samples are averaged
// when comparing backends.
const latencyAverageSize = 10

// probeEveryNOps is how often, in completed operations, the selector
// probes the non-selected backend to collect fresh samples even after a
// preference has been established.
const probeEveryNOps = 50

// minSamplesBeforeSelecting is the number of samples each backend's window
// must hold before the selector trusts averages over alternation.
const minSamplesBeforeSelecting = 5

// hysteresisFactor requires a candidate backend to be at least this much
// faster than the current pick before switching, to prevent flapping
// between two similarly-performing backends.
const hysteresisFactor = 0.90 // candidate avg must be <= 90% of current avg

// deviceFamilyKey identifies one rolling-latency series.
type deviceFamilyKey struct {
	cid    string
	family PrimitiveFamily
}

// backendStats tracks rolling latency samples for one backend within one
// (device, family) series.
type backendStats struct {
	samples []latencySample
	ops     int
}

func (s *backendStats) record(d time.Duration) {
	s.samples = append(s.samples, latencySample{duration: d, at: time.Now()})
	if len(s.samples) > latencyWindowSize {
		s.samples = s.samples[len(s.samples)-latencyWindowSize:]
	}
	s.ops++
}

func (s *backendStats) average(n int) (time.Duration, bool) {
	if len(s.samples) < n {
		return 0, false
	}
	recent := s.samples[len(s.samples)-n:]
	var total time.Duration
	for _, sample := range recent {
		total += sample.duration
	}
	return total / time.Duration(len(recent)), true
}

// series holds per-backend stats for one (device, family) pair, plus the
// current alternation state used before enough samples exist.
type series struct {
	stats     map[BackendKind]*backendStats
	nextAlt   int // index into candidates for round-robin probing
	totalOps  int
	preferred BackendKind
	limiter   *rate.Limiter
}

// Selector picks, per device and per primitive family, which backend to
// use for the next operation, and records how long each attempt took so
// future choices improve.
//
// Selection converges once every candidate backend has at least
// minSamplesBeforeSelecting samples: the selector then prefers whichever
// backend's last-10 average is meaningfully faster, while still probing
// the loser periodically (every probeEveryNOps operations, throttled in
// wall-clock time by a rate limiter so a burst of rapid calls doesn't
// trigger a probe storm) so a backend that degrades gets detected.
type Selector struct {
	mu         sync.Mutex
	candidates []BackendKind
	series     map[deviceFamilyKey]*series
}

// NewSelector creates a Selector that alternates between the given
// candidate backends until it has enough data to prefer one.
func NewSelector(candidates ...BackendKind) *Selector {
	return &Selector{
		candidates: candidates,
		series:     make(map[deviceFamilyKey]*series),
	}
}

func (s *Selector) seriesFor(key deviceFamilyKey) *series {
	se, ok := s.series[key]
	if !ok {
		se = &series{
			stats:   make(map[BackendKind]*backendStats),
			limiter: rate.NewLimiter(rate.Every(time.Second), 1),
		}
		for _, c := range s.candidates {
			se.stats[c] = &backendStats{}
		}
		s.series[key] = se
	}
	return se
}

// Pick returns the backend to use for the next operation against cid for
// the given primitive family.
func (s *Selector) Pick(cid string, family PrimitiveFamily) BackendKind {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.candidates) == 1 {
		return s.candidates[0]
	}

	key := deviceFamilyKey{cid: cid, family: family}
	se := s.seriesFor(key)

	if se.preferred != "" {
		// Periodically probe the alternative, throttled so a burst of
		// fast-firing operations doesn't turn every 50th op into a probe
		// storm across many devices at once.
		se.totalOps++
		if se.totalOps%probeEveryNOps == 0 && se.limiter.Allow() {
			return s.otherThan(se.preferred)
		}
		return se.preferred
	}

	// Not enough data yet: round-robin to collect samples for every
	// candidate evenly.
	pick := s.candidates[se.nextAlt%len(s.candidates)]
	se.nextAlt++
	se.totalOps++
	return pick
}

func (s *Selector) otherThan(kind BackendKind) BackendKind {
	for _, c := range s.candidates {
		if c != kind {
			return c
		}
	}
	return kind
}

// Record stores how long an operation against cid/family took using the
// given backend, and re-evaluates the preferred backend if enough samples
// now exist for all candidates.
func (s *Selector) Record(cid string, family PrimitiveFamily, kind BackendKind, d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := deviceFamilyKey{cid: cid, family: family}
	se := s.seriesFor(key)
	stat, ok := se.stats[kind]
	if !ok {
		stat = &backendStats{}
		se.stats[kind] = stat
	}
	stat.record(d)

	s.reevaluate(se)
}

func (s *Selector) reevaluate(se *series) {
	avgs := make(map[BackendKind]time.Duration, len(s.candidates))
	for _, c := range s.candidates {
		stat, ok := se.stats[c]
		if !ok {
			return
		}
		avg, enough := stat.average(minSamplesBeforeSelecting)
		if !enough {
			return
		}
		if fullAvg, ok := stat.average(latencyAverageSize); ok {
			avg = fullAvg
		}
		avgs[c] = avg
	}

	var best BackendKind
	var bestAvg time.Duration
	first := true
	for kind, avg := range avgs {
		if first || avg < bestAvg {
			best, bestAvg = kind, avg
			first = false
		}
	}

	if se.preferred == "" {
		se.preferred = best
		return
	}
	if best == se.preferred {
		return
	}

	currentAvg := avgs[se.preferred]
	if currentAvg == 0 {
		se.preferred = best
		return
	}
	if float64(bestAvg) <= float64(currentAvg)*hysteresisFactor {
		se.preferred = best
	}
}
