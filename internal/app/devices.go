// ABOUTME: Device listing for the -list-devices flag
// ABOUTME: Prints every device a backend reports with its capabilities
package app

import (
	"fmt"
	"io"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/Resonate-Protocol/resonate-binaural/pkg/audio/device"
)

// ListDevices writes the devices of the named backend to w
func ListDevices(w io.Writer, backendName string, logger logrus.FieldLogger) error {
	backend, err := device.New(backendName, device.Options{}, logger)
	if err != nil {
		return err
	}
	defer backend.Close()

	devices, err := backend.Devices()
	if err != nil {
		return fmt.Errorf("failed to enumerate %s devices: %w", backendName, err)
	}

	fmt.Fprintf(w, "%s: %d device(s)\n", backend.Name(), len(devices))
	for _, d := range devices {
		var marks []string
		if d.IsDefaultInput {
			marks = append(marks, "default in")
		}
		if d.IsDefaultOutput {
			marks = append(marks, "default out")
		}
		suffix := ""
		if len(marks) > 0 {
			suffix = " [" + strings.Join(marks, ", ") + "]"
		}
		fmt.Fprintf(w, "  %-12s %s (%s)%s\n", d.ID, d.Name, d.HostAPI, suffix)
		fmt.Fprintf(w, "               in %d  out %d  default %d Hz", d.MaxInputChannels, d.MaxOutputChannels, d.DefaultSampleRate)
		if len(d.SampleRates) > 0 {
			fmt.Fprintf(w, "  rates %v", d.SampleRates)
		}
		fmt.Fprintln(w)
	}
	return nil
}
