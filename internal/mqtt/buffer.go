package mqtt

// bufferedMsg is a serialized message waiting to be published.
type bufferedMsg struct {
	topic    string
	payload  []byte
	qos      byte
	retained bool
}

// backlog holds firing events, calibration results and system messages
// published while the broker is unreachable, in publish order. A retained
// message supersedes any queued retained message on the same topic, since
// subscribers only ever see the last one. Once full, the oldest entry is
// discarded. Readings never reach the backlog.
//
// The caller synchronizes access.
type backlog struct {
	msgs     []bufferedMsg
	capacity int
	dropping bool // set from the first discard until the next drain
}

func newBacklog(capacity int) *backlog {
	return &backlog{
		msgs:     make([]bufferedMsg, 0, capacity),
		capacity: capacity,
	}
}

// push queues m. It reports true only for the first discard since the last
// drain so the caller can warn once per outage.
func (b *backlog) push(m bufferedMsg) bool {
	if m.retained {
		if i := b.indexRetained(m.topic); i >= 0 {
			b.remove(i)
		}
	}

	first := false
	if len(b.msgs) == b.capacity {
		b.remove(0)
		first = !b.dropping
		b.dropping = true
	}
	b.msgs = append(b.msgs, m)
	return first
}

func (b *backlog) indexRetained(topic string) int {
	for i, q := range b.msgs {
		if q.retained && q.topic == topic {
			return i
		}
	}
	return -1
}

func (b *backlog) remove(i int) {
	copy(b.msgs[i:], b.msgs[i+1:])
	b.msgs[len(b.msgs)-1] = bufferedMsg{}
	b.msgs = b.msgs[:len(b.msgs)-1]
}

// drainAll returns the queued messages oldest first and empties the backlog.
func (b *backlog) drainAll() []bufferedMsg {
	if len(b.msgs) == 0 {
		return nil
	}
	out := make([]bufferedMsg, len(b.msgs))
	copy(out, b.msgs)
	b.msgs = b.msgs[:0]
	b.dropping = false
	return out
}

func (b *backlog) len() int {
	return len(b.msgs)
}
