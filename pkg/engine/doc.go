// ABOUTME: Real-time audio engine driving the spatializer from a device callback
// ABOUTME: Lock-free buffering, adaptive block size, telemetry and fault recovery
// Package engine connects an audio backend to a Processor.
//
// The device callback decodes captured samples, resamples them to the
// processing rate when the device runs at a different rate, queues them in
// a lock-free ring, and fills its output from a second ring, running the
// Processor inline whenever the output ring is short. It never blocks,
// allocates or logs; every event is counted with atomics.
//
// A monitor goroutine wakes once per interval, drains reported faults into
// the recovery state machine and lets the BufferController resize the
// stream. Every change of stream parameters is a full stop, rebuild, reset
// and restart; parameters never change while a stream is running.
//
// State machine:
//
//	Uninitialized -> Initialized -> Running -> Stopped -> Initialized
package engine
