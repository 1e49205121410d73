package analog

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// DefaultIIODir is where the kernel exposes industrial I/O devices.
const DefaultIIODir = "/sys/bus/iio/devices"

// IIOADC reads one channel of a Linux industrial I/O ADC through sysfs.
type IIOADC struct {
	f    *os.File
	bits int
	buf  []byte
}

// OpenIIO opens in_voltage<channel>_raw of iio:device<device> under dir.
func OpenIIO(dir string, device, channel, bits int) (*IIOADC, error) {
	if dir == "" {
		dir = DefaultIIODir
	}
	path := filepath.Join(dir, fmt.Sprintf("iio:device%d", device), fmt.Sprintf("in_voltage%d_raw", channel))
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open adc channel: %w", err)
	}
	return &IIOADC{f: f, bits: bits, buf: make([]byte, 16)}, nil
}

// Read triggers and returns one conversion. sysfs attributes are re-read from offset 0.
func (a *IIOADC) Read() (int, error) {
	n, err := a.f.ReadAt(a.buf, 0)
	if n == 0 && err != nil {
		return 0, fmt.Errorf("read %s: %w", a.f.Name(), err)
	}
	v, err := strconv.Atoi(strings.TrimSpace(string(a.buf[:n])))
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", a.f.Name(), err)
	}
	return v, nil
}

// Bits returns the configured resolution.
func (a *IIOADC) Bits() int {
	return a.bits
}

// Close closes the attribute file.
func (a *IIOADC) Close() error {
	return a.f.Close()
}
