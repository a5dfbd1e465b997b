// ABOUTME: Mono-to-binaural convolution engines
// ABOUTME: Direct time-domain and FFT overlap-save behind a common interface
// Package convolve renders a mono signal through a stereo HRTF filter.
//
// Two engines implement the Engine interface. TimeDomain evaluates the
// convolution sum directly against a persistent circular history and suits
// short filters and small blocks. OverlapSave transforms blocks with an
// in-place radix-2 FFT and caches filter spectra by filter identity, which
// pays off for long filters. New picks one once, at construction.
//
// Neither engine allocates in Process or ProcessBlend, so both may run
// inside an audio callback.
package convolve
