// Package gpio delivers edge events from the two channels of a quadrature sensor.
// The real implementation uses the Linux GPIO character device.
// The fake implementation allows testing without hardware.
package gpio

// Channel indexes.
const (
	ChannelA = 0
	ChannelB = 1
)

// Default pins (BCM numbering).
const (
	PinA = 23
	PinB = 24
)

// EdgeHandler is called for every level change. Calls are serialized on the
// watcher's event goroutine and must return quickly.
type EdgeHandler func(channel int, level bool)

// EdgeWatcher watches the A and B lines of a quadrature sensor.
type EdgeWatcher interface {
	// Watch starts delivering edges to h. It may be called once.
	Watch(h EdgeHandler) error

	// Levels returns the current logical levels of A and B.
	// Only valid after Watch.
	Levels() (a, b bool, err error)

	// Close stops event delivery and releases the lines.
	Close() error
}
