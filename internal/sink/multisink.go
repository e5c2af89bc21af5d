package sink

import (
	"time"

	"github.com/livepeer/pipectl/internal/pipelinemodel"
)

// MultiSink fans one prediction batch out to every attached sink as a
// uniform Sink-of-Sinks.
type MultiSink struct {
	sinks []Sink
}

func NewMultiSink(sinks ...Sink) *MultiSink {
	return &MultiSink{sinks: sinks}
}

// Add attaches another sink to the fan-out set.
func (m *MultiSink) Add(s Sink) {
	m.sinks = append(m.sinks, s)
}

func (m *MultiSink) OnPrediction(item pipelinemodel.Batch) {
	for _, s := range m.sinks {
		s.OnPrediction(item)
	}
}

func (m *MultiSink) Close(timeout time.Duration) error {
	var firstErr error
	for _, s := range m.sinks {
		if err := s.Close(timeout); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (m *MultiSink) Counters() Counters {
	var total Counters
	for _, s := range m.sinks {
		c := s.Counters()
		total.Enqueued += c.Enqueued
		total.Dropped += c.Dropped
		total.Errors += c.Errors
		total.Processed += c.Processed
	}
	return total
}
