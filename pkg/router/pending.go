package router

import (
	"time"

	"github.com/giongto35/rtc-canary/pkg/signaling"
)

// pendingQueue keeps early messages of a peer without a session.
type pendingQueue struct {
	created  time.Time
	messages []signaling.Message
}

// pendingQueues holds at most one queue per peer id.
// Expired queues are treated as absent by every call.
type pendingQueues struct {
	ttl    time.Duration
	limit  int
	queues map[string]*pendingQueue
}

func newPendingQueues(ttl time.Duration, limit int) *pendingQueues {
	return &pendingQueues{ttl: ttl, limit: limit, queues: make(map[string]*pendingQueue)}
}

func (p *pendingQueues) expired(q *pendingQueue, now time.Time) bool {
	return p.ttl > 0 && now.Sub(q.created) > p.ttl
}

func (p *pendingQueues) get(id string, now time.Time) *pendingQueue {
	q, ok := p.queues[id]
	if !ok {
		return nil
	}
	if p.expired(q, now) {
		delete(p.queues, id)
		return nil
	}
	return q
}

// push appends the message, the queue is created on the first one.
func (p *pendingQueues) push(id string, msg signaling.Message, now time.Time) (created bool, err error) {
	q := p.get(id, now)
	if q == nil {
		q = &pendingQueue{created: now}
		p.queues[id] = q
		created = true
	}
	if p.limit > 0 && len(q.messages) >= p.limit {
		return created, ErrQueueFull
	}
	q.messages = append(q.messages, msg)
	return created, nil
}

// take removes the queue and returns its messages in arrival order.
func (p *pendingQueues) take(id string, now time.Time) []signaling.Message {
	q := p.get(id, now)
	if q == nil {
		return nil
	}
	delete(p.queues, id)
	return q.messages
}

func (p *pendingQueues) evict(id string) bool {
	_, ok := p.queues[id]
	delete(p.queues, id)
	return ok
}

// expire drops all the queues older than the TTL.
func (p *pendingQueues) expire(now time.Time) (n int) {
	for id, q := range p.queues {
		if p.expired(q, now) {
			delete(p.queues, id)
			n++
		}
	}
	return
}

func (p *pendingQueues) len(id string, now time.Time) int {
	if q := p.get(id, now); q != nil {
		return len(q.messages)
	}
	return 0
}

func (p *pendingQueues) count() int { return len(p.queues) }
