// ABOUTME: Simulated head tracker
// ABOUTME: Streams an orbiting source pose to a renderer's pose server
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/Resonate-Protocol/resonate-binaural/internal/discovery"
	"github.com/Resonate-Protocol/resonate-binaural/pkg/pose"
	"github.com/Resonate-Protocol/resonate-binaural/pkg/spatial"
)

var (
	serverAddr = flag.String("server", "", "Pose server address host:port (default: discover via mDNS)")
	path       = flag.String("path", "/pose", "Websocket path when -server is given")
	rateHz     = flag.Float64("rate", 60, "Updates per second")
	period     = flag.Duration("period", 8*time.Second, "Orbit period")
	radius     = flag.Float64("radius", 2, "Orbit radius in metres")
	elevation  = flag.Float64("elevation", 0, "Orbit elevation in degrees")
	headYaw    = flag.Float64("head-yaw", 0, "Listener yaw in degrees (positive turns left)")
	discoverT  = flag.Duration("discover-timeout", 5*time.Second, "mDNS browse timeout")
	logLevel   = flag.String("log-level", "info", "Log level")
)

func main() {
	flag.Parse()

	logger := logrus.New()
	if level, err := logrus.ParseLevel(*logLevel); err == nil {
		logger.SetLevel(level)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg := pose.ClientConfig{ServerAddr: *serverAddr, Path: *path}
	if cfg.ServerAddr == "" {
		logger.Info("Discovering pose server...")
		disc := discovery.NewManager(discovery.Config{}, logger)
		server, err := disc.First(ctx, *discoverT)
		if err != nil {
			logger.WithError(err).Fatal("No pose server found")
		}
		cfg.ServerAddr, cfg.Path = server.Addr(), server.Path
		logger.WithFields(logrus.Fields{"name": server.Name, "addr": cfg.ServerAddr}).Info("Discovered pose server")
	}

	client := pose.NewClient(cfg, logger)
	if err := client.Connect(ctx); err != nil {
		logger.WithError(err).Fatal("Connection failed")
	}
	defer client.Close()

	if err := run(ctx, client, logger); err != nil {
		logger.WithError(err).Error("Stopped")
		os.Exit(1)
	}
}

func run(ctx context.Context, client *pose.Client, logger logrus.FieldLogger) error {
	orbit := pose.Orbit{Radius: *radius, Period: *period, Elevation: *elevation, Start: time.Now()}
	yaw := spatial.FromYaw(*headYaw)

	interval := time.Duration(float64(time.Second) / max(*rateHz, 1))
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	report := time.NewTicker(time.Second)
	defer report.Stop()

	sent := 0
	for {
		select {
		case <-ctx.Done():
			logger.WithField("sent", sent).Info("Shutting down")
			return nil
		case err := <-client.Done():
			return fmt.Errorf("server closed connection: %w", err)
		case <-report.C:
			logger.WithFields(logrus.Fields{
				"sent":    sent,
				"azimuth": fmt.Sprintf("%.1f", orbit.Azimuth(time.Since(orbit.Start))),
			}).Debug("Streaming poses")
		case now := <-ticker.C:
			listener, source := orbit.At(now.Sub(orbit.Start))
			listener.Orientation = yaw
			if err := client.Send(listener, source); err != nil {
				return err
			}
			sent++
		}
	}
}
