// ABOUTME: Lock-free performance telemetry written by the audio callback
// ABOUTME: Counters, peaks, callback duration history and CPU load estimate
package engine

import (
	"math"
	"sync/atomic"
	"time"
)

const durationHistory = 64

// loadSmoothing is the EWMA weight of the newest CPU load sample.
const loadSmoothing = 0.05

// stats is written by the callback and read by anyone. All fields are atomics.
type stats struct {
	callbacks        atomic.Uint64
	framesProcessed  atomic.Uint64
	blocksProcessed  atomic.Uint64
	underruns        atomic.Uint64
	overruns         atomic.Uint64
	inputUnderflows  atomic.Uint64
	inputOverflows   atomic.Uint64
	outputUnderflows atomic.Uint64
	outputOverflows  atomic.Uint64
	sanitized        atomic.Uint64
	processErrors    atomic.Uint64
	bufferFaults     atomic.Uint64

	peakIn  atomic.Uint32
	peakOut atomic.Uint32
	cpuLoad atomic.Uint64

	durations [durationHistory]atomic.Int64
	durIndex  atomic.Uint64

	restarts      atomic.Uint64
	bufferChanges atomic.Uint64
}

// classify counts device-reported starvation. Device underflow on the
// output and overflow on the input also count as engine underruns and
// overruns.
func (s *stats) classify(flags StatusFlags) {
	if flags == 0 {
		return
	}
	if flags&StatusInputUnderflow != 0 {
		s.inputUnderflows.Add(1)
	}
	if flags&StatusInputOverflow != 0 {
		s.inputOverflows.Add(1)
		s.overruns.Add(1)
	}
	if flags&StatusOutputUnderflow != 0 {
		s.outputUnderflows.Add(1)
		s.underruns.Add(1)
	}
	if flags&StatusOutputOverflow != 0 {
		s.outputOverflows.Add(1)
	}
}

// observePeak raises a float32 peak stored as bits.
func observePeak(peak *atomic.Uint32, v float32) {
	for {
		old := peak.Load()
		if v <= math.Float32frombits(old) {
			return
		}
		if peak.CompareAndSwap(old, math.Float32bits(v)) {
			return
		}
	}
}

// record stores one callback duration and folds its load into the EWMA.
// Only the callback goroutine calls it.
func (s *stats) record(d, period time.Duration) {
	i := s.durIndex.Add(1) - 1
	s.durations[i%durationHistory].Store(int64(d))
	if period <= 0 {
		return
	}
	load := float64(d) / float64(period)
	prev := math.Float64frombits(s.cpuLoad.Load())
	if i == 0 {
		prev = load
	}
	s.cpuLoad.Store(math.Float64bits(prev + loadSmoothing*(load-prev)))
}

// durationSummary returns mean and max over the recorded history.
func (s *stats) durationSummary() (mean, longest time.Duration) {
	n := s.durIndex.Load()
	if n == 0 {
		return 0, 0
	}
	count := min(n, durationHistory)
	var total time.Duration
	for i := uint64(0); i < count; i++ {
		d := time.Duration(s.durations[i].Load())
		total += d
		longest = max(longest, d)
	}
	return total / time.Duration(count), longest
}

func (s *stats) reset() {
	for _, c := range []*atomic.Uint64{
		&s.callbacks, &s.framesProcessed, &s.blocksProcessed, &s.underruns, &s.overruns,
		&s.inputUnderflows, &s.inputOverflows, &s.outputUnderflows, &s.outputOverflows,
		&s.sanitized, &s.processErrors, &s.bufferFaults, &s.cpuLoad, &s.durIndex,
		&s.restarts, &s.bufferChanges,
	} {
		c.Store(0)
	}
	s.peakIn.Store(0)
	s.peakOut.Store(0)
	for i := range s.durations {
		s.durations[i].Store(0)
	}
}

// Stats is a point-in-time snapshot of engine telemetry.
type Stats struct {
	State      State
	Recovery   RecoveryState
	Backend    string
	SampleRate int
	// ProcessingRate is the rate the Processor runs at.
	ProcessingRate int
	BufferSize     int

	Callbacks        uint64
	FramesProcessed  uint64
	BlocksProcessed  uint64
	Underruns        uint64
	Overruns         uint64
	InputUnderflows  uint64
	InputOverflows   uint64
	OutputUnderflows uint64
	OutputOverflows  uint64
	Sanitized        uint64
	ProcessErrors    uint64
	BufferFaults     uint64
	Restarts         uint64
	BufferChanges    uint64

	PeakInput    float32
	PeakOutput   float32
	CPULoad      float64
	MeanCallback time.Duration
	MaxCallback  time.Duration

	InputFill  float64
	OutputFill float64
}

// Latency is the nominal one-way block latency at the device rate.
func (s Stats) Latency() time.Duration {
	if s.SampleRate <= 0 {
		return 0
	}
	return time.Duration(s.BufferSize) * time.Second / time.Duration(s.SampleRate)
}

func (s *stats) snapshot() Stats {
	mean, longest := s.durationSummary()
	return Stats{
		Callbacks:        s.callbacks.Load(),
		FramesProcessed:  s.framesProcessed.Load(),
		BlocksProcessed:  s.blocksProcessed.Load(),
		Underruns:        s.underruns.Load(),
		Overruns:         s.overruns.Load(),
		InputUnderflows:  s.inputUnderflows.Load(),
		InputOverflows:   s.inputOverflows.Load(),
		OutputUnderflows: s.outputUnderflows.Load(),
		OutputOverflows:  s.outputOverflows.Load(),
		Sanitized:        s.sanitized.Load(),
		ProcessErrors:    s.processErrors.Load(),
		BufferFaults:     s.bufferFaults.Load(),
		Restarts:         s.restarts.Load(),
		BufferChanges:    s.bufferChanges.Load(),
		PeakInput:        math.Float32frombits(s.peakIn.Load()),
		PeakOutput:       math.Float32frombits(s.peakOut.Load()),
		CPULoad:          math.Float64frombits(s.cpuLoad.Load()),
		MeanCallback:     mean,
		MaxCallback:      longest,
	}
}
