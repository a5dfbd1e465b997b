//go:build !portaudio

// ABOUTME: PortAudio stub when library not available
// ABOUTME: Keeps the backend name registered so selection fails with a clear error
package device

import (
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/Resonate-Protocol/resonate-binaural/pkg/engine"
)

func init() {
	register("portaudio", func(o Options, l logrus.FieldLogger) (engine.Backend, error) {
		return nil, fmt.Errorf("%w: PortAudio support not enabled (build with -tags portaudio)", ErrNotSupported)
	})
}
