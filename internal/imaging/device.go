package imaging

import (
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"time"
)

// DeviceSource reads frames from a sensor bridge exposed as a character device.
// Each capture writes a 4-byte little-endian integration time in microseconds,
// then reads one frame of Pixels bytes.
type DeviceSource struct {
	rw     io.ReadWriteCloser
	pixels int
	req    [4]byte
}

// OpenDevice opens the bridge at path.
func OpenDevice(path string, pixels int) (*DeviceSource, error) {
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return nil, fmt.Errorf("open frame device: %w", err)
	}
	return NewDeviceSource(f, pixels), nil
}

// NewDeviceSource wraps an already open bridge connection.
func NewDeviceSource(rw io.ReadWriteCloser, pixels int) *DeviceSource {
	return &DeviceSource{rw: rw, pixels: pixels}
}

// Pixels returns the frame size.
func (d *DeviceSource) Pixels() int {
	return d.pixels
}

// Capture requests and reads one frame.
func (d *DeviceSource) Capture(dst []byte, integration time.Duration) error {
	binary.LittleEndian.PutUint32(d.req[:], uint32(integration/time.Microsecond))
	if _, err := d.rw.Write(d.req[:]); err != nil {
		return fmt.Errorf("request frame: %w", err)
	}
	if _, err := io.ReadFull(d.rw, dst[:d.pixels]); err != nil {
		return fmt.Errorf("read frame: %w", err)
	}
	return nil
}

// Close closes the device.
func (d *DeviceSource) Close() error {
	return d.rw.Close()
}
