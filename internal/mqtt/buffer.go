package mqtt

import "github.com/rs/zerolog/log"

// outbound is a formatted record or system event waiting for the broker.
type outbound struct {
	topic    string
	payload  []byte
	qos      byte
	retained bool
}

// republishQueue holds what a host session produced while the broker was
// unreachable. When full it drops the oldest entry: downloaded records are
// already archived in SQLite, while the newest system events describe the
// session that is still running. Callers hold RealPublisher.mu.
type republishQueue struct {
	msgs    []outbound
	limit   int
	dropped int // since the last take
}

func newRepublishQueue(limit int) *republishQueue {
	if limit <= 0 {
		limit = 1
	}
	return &republishQueue{msgs: make([]outbound, 0, limit), limit: limit}
}

func (q *republishQueue) add(msg outbound) {
	if len(q.msgs) == q.limit {
		if q.dropped == 0 {
			log.Warn().Int("limit", q.limit).Msg("Republish queue full, dropping oldest")
		}
		q.dropped++
		copy(q.msgs, q.msgs[1:])
		q.msgs = q.msgs[:len(q.msgs)-1]
	}
	q.msgs = append(q.msgs, msg)
}

// take empties the queue and returns its contents oldest first.
func (q *republishQueue) take() []outbound {
	if len(q.msgs) == 0 {
		return nil
	}
	if q.dropped > 0 {
		log.Warn().Int("dropped", q.dropped).Msg("Republish queue lost messages while disconnected")
	}
	out := q.msgs
	q.msgs = make([]outbound, 0, q.limit)
	q.dropped = 0
	return out
}

func (q *republishQueue) len() int {
	return len(q.msgs)
}
