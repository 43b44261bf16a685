// Package progress streams per-job pipeline events to subscribers.
//
// Events for a job are sequenced under a per-job lock, buffered in a
// bounded backlog that is replayed to late subscribers, and fanned out to
// per-subscriber channels that drop their oldest event rather than block
// the pipeline.
package progress

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/agentra/factcheck/internal/model"
)

const (
	// DefaultBacklog is how many recent events a job retains for replay.
	DefaultBacklog = 64
	// DefaultSubscriberBuffer is each subscriber's channel capacity.
	DefaultSubscriberBuffer = 16
)

// Publisher manages one topic per job.
type Publisher struct {
	mu        sync.Mutex
	topics    map[string]*topic
	backlog   int
	subBuffer int
	logger    *zap.Logger
	now       func() time.Time
}

type topic struct {
	mu      sync.Mutex
	jobID   string
	seq     uint64
	backlog []model.ProgressEvent // ring, oldest first, len <= cap
	maxLog  int
	subs    map[int]*subscriber
	nextSub int
	closed  bool
}

type subscriber struct {
	ch chan model.ProgressEvent
}

// NewPublisher creates a publisher with the given backlog and subscriber
// buffer sizes; non-positive values take the defaults.
func NewPublisher(backlog, subBuffer int, logger *zap.Logger) *Publisher {
	if backlog <= 0 {
		backlog = DefaultBacklog
	}
	if subBuffer <= 0 {
		subBuffer = DefaultSubscriberBuffer
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Publisher{
		topics:    make(map[string]*topic),
		backlog:   backlog,
		subBuffer: subBuffer,
		logger:    logger,
		now:       time.Now,
	}
}

func (p *Publisher) topicFor(jobID string, create bool) *topic {
	p.mu.Lock()
	defer p.mu.Unlock()
	t, ok := p.topics[jobID]
	if !ok && create {
		t = &topic{
			jobID:  jobID,
			maxLog: p.backlog,
			subs:   make(map[int]*subscriber),
		}
		p.topics[jobID] = t
	}
	return t
}

// Publish appends an event to the job's stream. The sequence number and
// timestamp are assigned here so ordering is authoritative per job.
// Publishing to a closed or unknown job is a no-op.
func (p *Publisher) Publish(jobID, stage, claimID, message string, payload map[string]interface{}) {
	t := p.topicFor(jobID, true)

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return
	}

	t.seq++
	event := model.ProgressEvent{
		JobID:   jobID,
		Seq:     t.seq,
		Stage:   stage,
		ClaimID: claimID,
		Message: message,
		Payload: payload,
		At:      p.now(),
	}

	t.backlog = append(t.backlog, event)
	if len(t.backlog) > t.maxLog {
		t.backlog = t.backlog[1:]
	}

	for _, sub := range t.subs {
		deliver(sub.ch, event)
	}
}

// deliver never blocks: a full subscriber drops its oldest event first.
func deliver(ch chan model.ProgressEvent, event model.ProgressEvent) {
	for {
		select {
		case ch <- event:
			return
		default:
		}
		select {
		case <-ch:
		default:
		}
	}
}

// Subscribe returns a channel of the job's events, starting with a replay
// of the retained backlog. Cancel detaches the subscriber and closes the
// channel. Subscribing to a closed job replays the backlog and closes.
func (p *Publisher) Subscribe(jobID string) (<-chan model.ProgressEvent, func()) {
	t := p.topicFor(jobID, true)

	t.mu.Lock()
	defer t.mu.Unlock()

	buffer := p.subBuffer
	if n := len(t.backlog); n > buffer {
		buffer = n
	}
	ch := make(chan model.ProgressEvent, buffer)
	for _, event := range t.backlog {
		ch <- event
	}

	if t.closed {
		close(ch)
		return ch, func() {}
	}

	id := t.nextSub
	t.nextSub++
	t.subs[id] = &subscriber{ch: ch}

	cancel := func() {
		t.mu.Lock()
		defer t.mu.Unlock()
		if sub, ok := t.subs[id]; ok {
			delete(t.subs, id)
			close(sub.ch)
		}
	}
	return ch, cancel
}

// CloseJob marks the job's stream finished. Subscriber channels are closed
// after any buffered events drain; later Publish calls are ignored.
func (p *Publisher) CloseJob(jobID string) {
	t := p.topicFor(jobID, false)
	if t == nil {
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return
	}
	t.closed = true
	for id, sub := range t.subs {
		delete(t.subs, id)
		close(sub.ch)
	}
}

// Drop removes all state for a job, including its backlog. Call after the
// result has been consumed.
func (p *Publisher) Drop(jobID string) {
	p.CloseJob(jobID)
	p.mu.Lock()
	delete(p.topics, jobID)
	p.mu.Unlock()
}
