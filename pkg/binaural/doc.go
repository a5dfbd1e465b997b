// ABOUTME: Binaural spatializer combining filter bank, smoothing and convolution
// ABOUTME: The processing stage the audio engine drives on every block
// Package binaural renders mono or stereo input as a binaural stereo signal
// whose direction and distance follow a pair of tracked poses.
//
// A Spatializer owns an HRTF bank, a target smoother and a convolution
// engine. UpdateSpatialPosition may be called from any goroutine at any
// rate. Process runs on the audio thread and never allocates or blocks.
//
// Example:
//
//	s := binaural.New(binaural.DefaultConfig(), logger)
//	if err := s.Initialize(ctx, ""); err != nil { // synthesise filters
//	    return err
//	}
//	s.UpdateSpatialPosition(listener, source)
//	err := s.Process(mic, stereo, frames, 1)
package binaural
