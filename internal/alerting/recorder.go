package alerting

import (
	"sync"
	"time"
)

// retention bounds how far back observations are kept. It must cover the
// longest rule window (the 25h reconciliation-silence rule).
const retention = 26 * time.Hour

type observation struct {
	at    time.Time
	user  string
	value float64
}

// Recorder keeps windowed in-process metric observations for rule evaluation.
// It is a counter window, not a metrics backend; anything needing durable
// time series belongs in an external system.
type Recorder struct {
	mu       sync.Mutex
	series   map[Metric][]observation
	lastSeen map[Metric]time.Time
	clock    func() time.Time
}

func NewRecorder() *Recorder {
	return &Recorder{
		series:   make(map[Metric][]observation),
		lastSeen: make(map[Metric]time.Time),
		clock:    time.Now,
	}
}

func (r *Recorder) Observe(metric Metric, user string, value float64) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.clock()
	r.series[metric] = append(r.pruneLocked(metric, now), observation{at: now, user: user, value: value})
	r.lastSeen[metric] = now
}

// CountSince returns the number of observations of metric since the cutoff.
// A non-empty user restricts counting to that user's observations.
func (r *Recorder) CountSince(metric Metric, user string, since time.Time) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := 0
	for _, o := range r.series[metric] {
		if o.at.Before(since) {
			continue
		}
		if user != "" && o.user != user {
			continue
		}
		n++
	}
	return n
}

// LastSeen reports when metric was last observed.
func (r *Recorder) LastSeen(metric Metric) (time.Time, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.lastSeen[metric]
	return t, ok
}

func (r *Recorder) pruneLocked(metric Metric, now time.Time) []observation {
	obs := r.series[metric]
	cutoff := now.Add(-retention)
	i := 0
	for ; i < len(obs); i++ {
		if !obs[i].at.Before(cutoff) {
			break
		}
	}
	return obs[i:]
}
