// ABOUTME: Channel layout conversion for interleaved float32 buffers
// ABOUTME: Mono/stereo folding plus generic N-to-M remixing
package convert

// MonoToStereo duplicates each mono sample into both channels of dst.
func MonoToStereo(dst, src []float32) int {
	n := min(len(src), len(dst)/2)
	for i := 0; i < n; i++ {
		dst[2*i] = src[i]
		dst[2*i+1] = src[i]
	}
	return n
}

// StereoToMono averages the two channels of each frame.
func StereoToMono(dst, src []float32) int {
	n := min(len(dst), len(src)/2)
	for i := 0; i < n; i++ {
		dst[i] = 0.5 * (src[2*i] + src[2*i+1])
	}
	return n
}

// Downmix averages all channels of each interleaved frame into dst.
func Downmix(dst, src []float32, channels int) int {
	switch channels {
	case 1:
		return copy(dst, src)
	case 2:
		return StereoToMono(dst, src)
	}
	if channels < 1 {
		return 0
	}
	n := min(len(dst), len(src)/channels)
	inv := 1 / float32(channels)
	for i := 0; i < n; i++ {
		var sum float32
		frame := src[i*channels : (i+1)*channels]
		for _, v := range frame {
			sum += v
		}
		dst[i] = sum * inv
	}
	return n
}

// Interleave writes left and right into a stereo interleaved buffer.
func Interleave(dst, left, right []float32) int {
	n := min(len(left), len(right), len(dst)/2)
	for i := 0; i < n; i++ {
		dst[2*i] = left[i]
		dst[2*i+1] = right[i]
	}
	return n
}

// Remix converts frames interleaved frames from inCh to outCh channels.
// Mono sources are copied to every output channel, mono destinations
// receive the average, and otherwise channels map one to one with any
// extra output channels left silent.
func Remix(dst, src []float32, inCh, outCh, frames int) int {
	if inCh < 1 || outCh < 1 {
		return 0
	}
	frames = min(frames, len(src)/inCh, len(dst)/outCh)
	switch {
	case inCh == outCh:
		copy(dst[:frames*outCh], src[:frames*inCh])
	case inCh == 1 && outCh == 2:
		MonoToStereo(dst[:2*frames], src[:frames])
	case inCh == 1:
		for i := 0; i < frames; i++ {
			v := src[i]
			out := dst[i*outCh : (i+1)*outCh]
			for c := range out {
				out[c] = v
			}
		}
	case outCh == 1:
		Downmix(dst[:frames], src[:frames*inCh], inCh)
	default:
		shared := min(inCh, outCh)
		for i := 0; i < frames; i++ {
			in := src[i*inCh : (i+1)*inCh]
			out := dst[i*outCh : (i+1)*outCh]
			copy(out[:shared], in[:shared])
			for c := shared; c < outCh; c++ {
				out[c] = 0
			}
		}
	}
	return frames
}
