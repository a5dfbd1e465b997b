// ABOUTME: Listener-relative direction and distance from world poses
// ABOUTME: Lock-free target smoothing between the pose and audio threads
// Package spatial turns listener and source poses into the azimuth,
// elevation and distance that drive HRTF selection, and smooths those
// values so a pose stream at any rate produces steady audio.
//
// Poses follow the usual VR convention: -Z is forward, +Y is up and +X is
// right. Azimuth is measured clockwise from straight ahead, so a source on
// the listener's right is at +90 degrees.
package spatial
