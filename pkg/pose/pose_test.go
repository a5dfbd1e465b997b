// ABOUTME: Tests for pose hub, clock tracking, orbit and the websocket transport
// ABOUTME: Transport tests run a real server on a loopback port
package pose

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Resonate-Protocol/resonate-binaural/pkg/spatial"
)

func TestHubSwapsObserver(t *testing.T) {
	hub := NewHub()
	_, ok := hub.Last()
	assert.False(t, ok)

	assert.False(t, hub.Publish(Update{Seq: 1}))

	var first, second atomic.Int32
	hub.SetObserver(func(listener, source spatial.Pose) { first.Add(1) })
	assert.True(t, hub.Publish(Update{Seq: 2}))

	hub.SetObserver(func(listener, source spatial.Pose) { second.Add(1) })
	hub.Publish(Update{Seq: 3})

	hub.SetObserver(nil)
	hub.Publish(Update{Seq: 4})

	assert.Equal(t, int32(1), first.Load())
	assert.Equal(t, int32(1), second.Load())
	published, dropped := hub.Counts()
	assert.Equal(t, uint64(2), published)
	assert.Equal(t, uint64(2), dropped)

	last, ok := hub.Last()
	require.True(t, ok)
	assert.Equal(t, uint64(4), last.Seq)
}

func TestHubConcurrentSwap(t *testing.T) {
	hub := NewHub()
	var calls atomic.Int64
	obs := func(listener, source spatial.Pose) { calls.Add(1) }

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < 1000; i++ {
			hub.Publish(Update{Seq: uint64(i)})
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < 1000; i++ {
			if i%2 == 0 {
				hub.SetObserver(obs)
			} else {
				hub.SetObserver(nil)
			}
		}
	}()
	wg.Wait()

	published, dropped := hub.Counts()
	assert.Equal(t, uint64(1000), published+dropped)
	assert.Equal(t, int64(published), calls.Load())
}

func TestClockTracker(t *testing.T) {
	const base = int64(1_000_000_000)
	ms := int64(1000)

	t.Run("accepts steady stream", func(t *testing.T) {
		c := NewClockTracker(DefaultClockConfig(), nil)
		for i := int64(0); i < 10; i++ {
			// Sender clock is 2 s behind with 3 ms transit.
			require.NoError(t, c.Observe(base+i*20*ms, base+2000*ms+i*20*ms+3*ms))
		}
		offset, age, q := c.Stats()
		assert.InDelta(t, float64(2003*time.Millisecond), float64(offset), float64(time.Millisecond))
		assert.Less(t, age, time.Millisecond)
		assert.Equal(t, QualityGood, q)
		assert.Equal(t, time.UnixMicro(base+2003*ms), c.ToLocal(base))
	})

	t.Run("rejects reordered", func(t *testing.T) {
		c := NewClockTracker(DefaultClockConfig(), nil)
		require.NoError(t, c.Observe(base+100*ms, base+100*ms))
		assert.ErrorIs(t, c.Observe(base+50*ms, base+120*ms), ErrOutOfOrder)
	})

	t.Run("rejects stale then reseeds", func(t *testing.T) {
		c := NewClockTracker(DefaultClockConfig(), nil)
		require.NoError(t, c.Observe(base, base))
		require.NoError(t, c.Observe(base+10*ms, base+10*ms))

		// Arrives 800 ms late.
		assert.ErrorIs(t, c.Observe(base+20*ms, base+820*ms), ErrStale)
		assert.ErrorIs(t, c.Observe(base+30*ms, base+830*ms), ErrStale)
		// The third consecutive jump is taken as a clock change.
		require.NoError(t, c.Observe(base+40*ms, base+840*ms))
		offset, _, _ := c.Stats()
		assert.Equal(t, 800*time.Millisecond, offset)
		require.NoError(t, c.Observe(base+50*ms, base+850*ms))
	})

	t.Run("moderate delay does not move estimate", func(t *testing.T) {
		c := NewClockTracker(DefaultClockConfig(), nil)
		require.NoError(t, c.Observe(base, base))
		require.NoError(t, c.Observe(base+10*ms, base+110*ms))
		offset, age, _ := c.Stats()
		assert.Equal(t, time.Duration(0), offset)
		assert.Equal(t, 100*time.Millisecond, age)
	})

	t.Run("quality decays", func(t *testing.T) {
		c := NewClockTracker(DefaultClockConfig(), nil)
		assert.Equal(t, QualityLost, c.CheckQuality(time.UnixMicro(base)))
		require.NoError(t, c.Observe(base, base))
		assert.Equal(t, QualityGood, c.CheckQuality(time.UnixMicro(base+time.Second.Microseconds())))
		assert.Equal(t, QualityLost, c.CheckQuality(time.UnixMicro(base+6*time.Second.Microseconds())))
		assert.Equal(t, "lost", QualityLost.String())
	})
}

func TestOrbit(t *testing.T) {
	o := Orbit{Radius: 2, Period: 4 * time.Second, Start: time.Unix(100, 0)}

	tests := []struct {
		at      time.Duration
		azimuth float64
	}{
		{0, 0},
		{time.Second, 90},
		{2 * time.Second, 180},
		{3 * time.Second, 270},
		{5 * time.Second, 90},
	}

	for _, tt := range tests {
		listener, source := o.At(tt.at)
		target, ok := spatial.TargetFromPoses(listener, source)
		require.True(t, ok)
		assert.InDelta(t, 0, spatial.ShortestDelta(tt.azimuth, target.Azimuth), 1e-6, "t=%s", tt.at)
		assert.InDelta(t, 0, target.Elevation, 1e-6)
		assert.InDelta(t, 2, target.Distance, 1e-9)
		assert.Equal(t, o.Start.Add(tt.at), source.Timestamp)
	}

	o.Elevation = 30
	listener, source := o.At(0)
	target, _ := spatial.TargetFromPoses(listener, source)
	assert.InDelta(t, 30, target.Elevation, 1e-6)
}

func startServer(t *testing.T, hub *Hub) *Server {
	t.Helper()
	cfg := DefaultServerConfig()
	cfg.Addr = "127.0.0.1:0"
	srv := NewServer(cfg, hub, nil)
	require.NoError(t, srv.Start())
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		srv.Stop(ctx)
	})
	return srv
}

func TestServerClientRoundTrip(t *testing.T) {
	hub := NewHub()
	received := make(chan spatial.Pose, 8)
	hub.SetObserver(func(listener, source spatial.Pose) {
		received <- source
	})

	srv := startServer(t, hub)
	assert.ErrorIs(t, srv.Start(), ErrServerRunning)

	client := NewClient(ClientConfig{ServerAddr: srv.Addr().String()}, nil)
	assert.ErrorIs(t, client.Send(spatial.Pose{}, spatial.Pose{}), ErrNotConnected)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, client.Connect(ctx))
	defer client.Close()
	assert.NotEmpty(t, client.SessionID())

	orbit := DefaultOrbit()
	for i := 0; i < 3; i++ {
		listener, source := orbit.At(time.Duration(i) * time.Second)
		require.NoError(t, client.Send(listener, source))
	}

	for i := 0; i < 3; i++ {
		select {
		case src := <-received:
			_, want := orbit.At(time.Duration(i) * time.Second)
			assert.InDelta(t, want.Position.X, src.Position.X, 1e-9)
			assert.InDelta(t, want.Position.Z, src.Position.Z, 1e-9)
		case <-time.After(2 * time.Second):
			t.Fatalf("update %d not delivered", i)
		}
	}

	require.Eventually(t, func() bool {
		sessions := srv.Sessions()
		return len(sessions) == 1 && sessions[0].Accepted == 3
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, client.SessionID(), srv.Sessions()[0].ID)

	require.NoError(t, client.Close())
	require.Eventually(t, func() bool { return len(srv.Sessions()) == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestServerRejectsBadMessages(t *testing.T) {
	hub := NewHub()
	srv := startServer(t, hub)

	conn, _, err := websocket.DefaultDialer.Dial("ws://"+srv.Addr().String()+"/pose", nil)
	require.NoError(t, err)
	defer conn.Close()

	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	msg, err := decode(data)
	require.NoError(t, err)
	require.IsType(t, Hello{}, msg)

	valid := spatial.Pose{Valid: true, Orientation: spatial.Identity}
	send := func(payload []byte) {
		require.NoError(t, conn.WriteMessage(websocket.TextMessage, payload))
	}
	update := func(seq uint64) []byte {
		b, err := encode(TypeUpdate, Update{Listener: valid, Source: valid, Seq: seq})
		require.NoError(t, err)
		return b
	}

	send([]byte("{not json"))
	send([]byte(`{"type":"pose/unknown","payload":{}}`))
	send(update(5))
	send(update(4))
	send(update(6))
	require.NoError(t, conn.WriteMessage(websocket.BinaryMessage, []byte{1, 2}))

	require.Eventually(t, func() bool {
		s := srv.Sessions()
		return len(s) == 1 && s[0].Accepted == 2 && s[0].Rejected == 4
	}, 2*time.Second, 10*time.Millisecond)

	last, ok := hub.Last()
	require.True(t, ok)
	assert.Equal(t, uint64(6), last.Seq)
}

func TestDecodeMessages(t *testing.T) {
	tests := []struct {
		name string
		data string
		want any
	}{
		{"hello", `{"type":"pose/hello","payload":{"session_id":"abc","server":"s","max_age_ms":500}}`, Hello{SessionID: "abc", Server: "s", MaxAgeMs: 500}},
		{"update", `{"type":"pose/update","payload":{"seq":7,"sent":42}}`, Update{Seq: 7, Sent: 42}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := decode([]byte(tt.data))
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := decode([]byte(`{"type":"pose/update","payload":"nope"}`))
	assert.ErrorIs(t, err, ErrInvalidMessage)
}
