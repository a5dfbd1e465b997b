// ABOUTME: Pose transport for the binaural engine
// ABOUTME: Websocket server and client, observer hub, clock tracking and an orbit generator
// Package pose carries listener and source poses from trackers into the
// renderer.
//
// A tracker connects to Server over a websocket at /pose and sends JSON
// pose/update messages. Each session gets a uuid and a ClockTracker that
// maps the sender's timestamps onto the local clock and drops stale or
// reordered updates. Accepted updates go to a Hub, whose single observer
// (normally Spatializer.UpdateSpatialPosition) is swapped atomically.
//
// Message flow:
//
//	client                         server
//	  |  ---- websocket /pose ---->  |
//	  |  <--- pose/hello ----------  |  session id
//	  |  ---- pose/update -------->  |  clock check, Hub.Publish
//	  |  ---- pose/update -------->  |
//
// Orbit generates a deterministic trajectory for tests, the offline
// renderer and the pose-sim tool.
package pose
