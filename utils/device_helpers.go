package utils

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/notargets/gocca"
)

// ErrNoDevice is returned when none of the requested device properties
// produced a device
var ErrNoDevice = errors.New("no OCCA device could be created")

// AccelerantDevices lists the parallel OCCA backends in preference order
var AccelerantDevices = []string{
	`{"mode": "CUDA", "device_id": 0}`,
	`{"mode": "HIP", "device_id": 0}`,
	`{"mode": "OpenCL", "platform_id": 0, "device_id": 0}`,
	`{"mode": "Metal", "device_id": 0}`,
	`{"mode": "OpenMP"}`,
}

// DeviceProps returns the OCCA property string for a bare mode name
func DeviceProps(mode string) string {
	switch mode {
	case "CUDA", "HIP", "Metal":
		return fmt.Sprintf(`{"mode": "%s", "device_id": 0}`, mode)
	case "OpenCL":
		return `{"mode": "OpenCL", "platform_id": 0, "device_id": 0}`
	default:
		return fmt.Sprintf(`{"mode": "%s"}`, mode)
	}
}

// OpenDevice tries each property string in order and returns the first
// device that can be created
func OpenDevice(logger *slog.Logger, props ...string) (*gocca.OCCADevice, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if len(props) == 0 {
		return nil, ErrNoDevice
	}
	var errs []error
	for _, p := range props {
		device, err := gocca.NewDevice(p)
		if err == nil && device != nil {
			logger.Debug("created device", "mode", device.Mode(), "props", p)
			return device, nil
		}
		if err == nil {
			err = fmt.Errorf("nil device")
		}
		logger.Debug("device unavailable", "props", p, "err", err)
		errs = append(errs, fmt.Errorf("%s: %w", p, err))
	}
	return nil, fmt.Errorf("%w: %w", ErrNoDevice, errors.Join(errs...))
}

// CreateTestDevice creates a Device for testing, preferring parallel backends
func CreateTestDevice() *gocca.OCCADevice {
	backends := []string{
		`{"mode": "OpenMP"}`,
		`{"mode": "CUDA", "device_id": 0}`,
		`{"mode": "Serial"}`,
	}

	device, err := OpenDevice(nil, backends...)
	if err != nil {
		// Serial is always built into OCCA
		panic(fmt.Sprintf("Failed to create any Device: %v", err))
	}
	return device
}
