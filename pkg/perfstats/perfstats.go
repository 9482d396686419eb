package perfstats

import (
	"sync"
	"time"
)

// Accumulate samples of how long something took
type TimeAccumulator struct {
	Samples int64
	Total   time.Duration
}

func (a *TimeAccumulator) Reset() {
	a.Samples = 0
	a.Total = 0
}

func (a *TimeAccumulator) AddSample(v time.Duration) {
	a.Samples++
	a.Total += v
}

func (a *TimeAccumulator) Average() time.Duration {
	if a.Samples == 0 {
		return 0
	}
	return time.Duration(a.Total.Nanoseconds() / a.Samples)
}

// Stages holds a TimeAccumulator for each named stage of a pipeline.
// It is safe to use from multiple threads.
type Stages struct {
	lock   sync.Mutex
	names  []string
	stages map[string]*TimeAccumulator
}

// StageSummary is a JSON-friendly snapshot of one stage
type StageSummary struct {
	Name      string  `json:"name"`
	Samples   int64   `json:"samples"`
	AverageMS float64 `json:"averageMS"`
}

func NewStages(names ...string) *Stages {
	s := &Stages{
		names:  append([]string(nil), names...),
		stages: map[string]*TimeAccumulator{},
	}
	for _, n := range names {
		s.stages[n] = &TimeAccumulator{}
	}
	return s
}

// Add a sample to the named stage. Unknown stages are created on demand.
func (s *Stages) AddSample(name string, v time.Duration) {
	s.lock.Lock()
	defer s.lock.Unlock()
	a := s.stages[name]
	if a == nil {
		a = &TimeAccumulator{}
		s.stages[name] = a
		s.names = append(s.names, name)
	}
	a.AddSample(v)
}

// Time adds the time elapsed since start to the named stage
func (s *Stages) Time(name string, start time.Time) {
	s.AddSample(name, time.Since(start))
}

func (s *Stages) Reset() {
	s.lock.Lock()
	defer s.lock.Unlock()
	for _, a := range s.stages {
		a.Reset()
	}
}

// Summary returns the stages in the order that they were first declared
func (s *Stages) Summary() []StageSummary {
	s.lock.Lock()
	defer s.lock.Unlock()
	out := make([]StageSummary, 0, len(s.names))
	for _, n := range s.names {
		a := s.stages[n]
		out = append(out, StageSummary{
			Name:      n,
			Samples:   a.Samples,
			AverageMS: float64(a.Average().Microseconds()) / 1000,
		})
	}
	return out
}
