//go:build linux

package gpio

import (
	"errors"
	"fmt"

	"github.com/warthog618/go-gpiocdev"
)

// RealWatcher watches two lines on a GPIO chip.
type RealWatcher struct {
	chip   string
	pins   [2]int
	pullUp bool
	lines  *gpiocdev.Lines
}

// NewRealWatcher creates a watcher for pinA and pinB on chip (e.g. "gpiochip0").
// Lines are not requested until Watch. pullUp selects the bias for open-collector
// sensor outputs; otherwise lines are pulled down to match Pi boot defaults.
func NewRealWatcher(chip string, pinA, pinB int, pullUp bool) *RealWatcher {
	return &RealWatcher{chip: chip, pins: [2]int{pinA, pinB}, pullUp: pullUp}
}

// Watch requests both lines with edge detection on both edges.
func (w *RealWatcher) Watch(h EdgeHandler) error {
	if w.lines != nil {
		return errors.New("gpio: already watching")
	}
	bias := gpiocdev.WithPullDown
	if w.pullUp {
		bias = gpiocdev.WithPullUp
	}
	handler := func(evt gpiocdev.LineEvent) {
		ch := ChannelA
		if evt.Offset == w.pins[ChannelB] {
			ch = ChannelB
		}
		h(ch, evt.Type == gpiocdev.LineEventRisingEdge)
	}
	lines, err := gpiocdev.RequestLines(w.chip, w.pins[:],
		gpiocdev.AsInput,
		bias,
		gpiocdev.WithBothEdges,
		gpiocdev.WithEventHandler(handler))
	if err != nil {
		return fmt.Errorf("request pins %d,%d on %s: %w", w.pins[0], w.pins[1], w.chip, err)
	}
	w.lines = lines
	return nil
}

// Levels reads both lines.
func (w *RealWatcher) Levels() (bool, bool, error) {
	if w.lines == nil {
		return false, false, errors.New("gpio: not watching")
	}
	vals := make([]int, 2)
	if err := w.lines.Values(vals); err != nil {
		return false, false, fmt.Errorf("read pins: %w", err)
	}
	return vals[ChannelA] != 0, vals[ChannelB] != 0, nil
}

// Close releases the lines.
// Lines are reconfigured to input with pull-down first, matching Pi boot
// defaults, so attached hardware cannot hold them in an odd state across a reboot.
func (w *RealWatcher) Close() error {
	if w.lines == nil {
		return nil
	}
	var errs []error
	if err := w.lines.Reconfigure(gpiocdev.AsInput, gpiocdev.WithPullDown); err != nil {
		errs = append(errs, fmt.Errorf("reconfigure pins: %w", err))
	}
	if err := w.lines.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close pins: %w", err))
	}
	w.lines = nil

	if len(errs) > 0 {
		return fmt.Errorf("close errors: %v", errs)
	}
	return nil
}
