// ABOUTME: Audio callback and the preallocated state it runs on
// ABOUTME: Decode, resample, ring-buffer handoff, inline processing and encode
package engine

import (
	"time"

	"github.com/Resonate-Protocol/resonate-binaural/pkg/audio/convert"
	"github.com/Resonate-Protocol/resonate-binaural/pkg/audio/resample"
	"github.com/Resonate-Protocol/resonate-binaural/pkg/ringbuffer"
)

// rtState is everything the callback touches. It is built before a stream
// is opened and replaced only while no stream is running.
type rtState struct {
	params    StreamParams
	procRate  int
	processor Processor
	kernels   *convert.Kernels

	// maxFrames is the largest chunk handled in one pass; longer callbacks
	// are split.
	maxFrames     int
	procBlock     int
	inFrameBytes  int
	outFrameBytes int

	decoded   []float32
	mono      []float32
	resampled []float32
	procIn    []float32
	procOut   []float32
	upsampled []float32
	stereo    []float32
	remixed   []float32

	// inRing holds mono samples at the processing rate, outRing stereo
	// frames at the device rate. The callback is their only producer and
	// consumer.
	inRing  *ringbuffer.RingBuffer[float32]
	outRing *ringbuffer.RingBuffer[float32]

	// inSRC and outSRC are nil when the device runs at the processing rate.
	inSRC  *resample.Resampler
	outSRC *resample.Resampler
}

func newRTState(params StreamParams, procRate, ringBlocks int, p Processor) *rtState {
	devRate := params.SampleRate
	maxFrames := params.FramesPerBuffer * 2
	procBlock := (params.FramesPerBuffer*procRate + devRate - 1) / devRate

	rt := &rtState{
		params:        params,
		procRate:      procRate,
		processor:     p,
		kernels:       convert.Active(),
		maxFrames:     maxFrames,
		procBlock:     procBlock,
		inFrameBytes:  params.InputFormat().FrameBytes(),
		outFrameBytes: params.OutputFormat().FrameBytes(),
		decoded:       make([]float32, maxFrames*params.InputChannels),
		mono:          make([]float32, maxFrames),
		procIn:        make([]float32, procBlock),
		procOut:       make([]float32, procBlock*2),
		stereo:        make([]float32, maxFrames*2),
		remixed:       make([]float32, maxFrames*params.OutputChannels),
	}

	captured := maxFrames
	if devRate != procRate {
		rt.inSRC = resample.New(devRate, procRate, 1)
		rt.outSRC = resample.New(procRate, devRate, 2)
		captured = rt.inSRC.MaxOutputFrames(maxFrames)
		rt.resampled = make([]float32, captured)
		rt.upsampled = make([]float32, rt.outSRC.MaxOutputFrames(procBlock)*2)
	}
	rendered := procBlock
	if rt.outSRC != nil {
		rendered = rt.outSRC.MaxOutputFrames(procBlock)
	}

	rt.inRing = ringbuffer.New[float32](ringBlocks*procBlock + captured)
	rt.outRing = ringbuffer.New[float32](ringBlocks * (maxFrames + rendered) * 2)
	return rt
}

// period is the wall-clock duration of frames at the device rate.
func (rt *rtState) period(frames int) time.Duration {
	return time.Duration(frames) * time.Second / time.Duration(rt.params.SampleRate)
}

// fill returns the fill ratio of the input and output rings.
func (rt *rtState) fill() (in, out float64) {
	in = float64(rt.inRing.AvailableToRead()) / float64(rt.inRing.Capacity())
	out = float64(rt.outRing.AvailableToRead()) / float64(rt.outRing.Capacity())
	return in, out
}

// reset clears buffered audio and resampler history. The stream must be stopped.
func (rt *rtState) reset() {
	rt.inRing.Reset()
	rt.outRing.Reset()
	if rt.inSRC != nil {
		rt.inSRC.Reset()
		rt.outSRC.Reset()
	}
}

// callback is handed to the backend. It never blocks, allocates or logs.
func (e *Engine) callback(input, output []byte, frames int, flags StatusFlags) {
	start := time.Now()
	e.stats.callbacks.Add(1)
	e.stats.classify(flags)

	rt := e.rt.Load()
	if rt == nil || frames <= 0 {
		clear(output)
		return
	}
	if len(output) < frames*rt.outFrameBytes {
		e.stats.bufferFaults.Add(1)
		e.ReportFault(FaultInvalidBuffer)
		clear(output)
		return
	}
	haveInput := len(input) >= frames*rt.inFrameBytes
	if !haveInput {
		e.stats.bufferFaults.Add(1)
		e.ReportFault(FaultInvalidBuffer)
	}

	for done := 0; done < frames; {
		n := min(frames-done, rt.maxFrames)
		var in []byte
		if haveInput {
			in = input[done*rt.inFrameBytes : (done+n)*rt.inFrameBytes]
		}
		e.capture(rt, in, n)
		e.render(rt, output[done*rt.outFrameBytes:(done+n)*rt.outFrameBytes], n)
		done += n
	}

	e.stats.record(time.Since(start), rt.period(frames))
}

// capture decodes n frames, folds them to mono and queues them at the
// processing rate. A nil input is captured as silence.
func (e *Engine) capture(rt *rtState, input []byte, n int) {
	mono := rt.mono[:n]
	if input == nil {
		clear(mono)
	} else {
		samples := rt.decoded[:n*rt.params.InputChannels]
		if _, bad := rt.kernels.Decode(samples, input, rt.params.Format); bad > 0 {
			e.stats.sanitized.Add(uint64(bad))
		}
		convert.Downmix(mono, samples, rt.params.InputChannels)
	}
	observePeak(&e.stats.peakIn, peak(mono))

	block := mono
	if rt.inSRC != nil {
		k := rt.inSRC.Resample(mono, rt.resampled)
		block = rt.resampled[:k]
	}
	if w := rt.inRing.Write(block); w < len(block) {
		e.stats.overruns.Add(1)
	}
}

// render fills out with n frames, running the processor on queued input
// whenever the output ring is short. Without enough input it emits
// silence and counts an underrun.
func (e *Engine) render(rt *rtState, out []byte, n int) {
	need := n * 2
	for rt.outRing.AvailableToRead() < need && rt.inRing.AvailableToRead() >= rt.procBlock {
		rt.inRing.Read(rt.procIn)
		if err := rt.processor.Process(rt.procIn, rt.procOut, rt.procBlock, 1); err != nil {
			e.stats.processErrors.Add(1)
			clear(rt.procOut)
		}
		e.stats.blocksProcessed.Add(1)

		block := rt.procOut
		if rt.outSRC != nil {
			k := rt.outSRC.Resample(rt.procOut, rt.upsampled)
			block = rt.upsampled[:k]
		}
		if w := rt.outRing.Write(block); w < len(block) {
			e.stats.overruns.Add(1)
		}
	}

	if rt.outRing.AvailableToRead() < need {
		clear(out)
		e.stats.underruns.Add(1)
		return
	}
	stereo := rt.stereo[:need]
	rt.outRing.Read(stereo)
	observePeak(&e.stats.peakOut, peak(stereo))

	samples := stereo
	if ch := rt.params.OutputChannels; ch != 2 {
		convert.Remix(rt.remixed, stereo, 2, ch, n)
		samples = rt.remixed[:n*ch]
	}
	rt.kernels.Encode(out, samples, rt.params.Format)
	e.stats.framesProcessed.Add(uint64(n))
}

func peak(buf []float32) float32 {
	var p float32
	for _, v := range buf {
		if v < 0 {
			v = -v
		}
		if v > p {
			p = v
		}
	}
	return p
}
