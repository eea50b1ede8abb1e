package league

import (
	"errors"
	"fmt"
	"log"
	"net/url"
	"sync"
	"time"

	"github.com/google/uuid"
)

// JobKind identifies which consumer a job's outcome belongs to
type JobKind string

const (
	JobMatchReport JobKind = "matchReport"
	JobTeamQuery   JobKind = "teamQuery"
)

var (
	// ErrTransportUnavailable is returned by Submit when the league
	// transport is not configured or has been shut down
	ErrTransportUnavailable = errors.New("league transport unavailable")

	// ErrQueueDesync means the transport resolved a job that is not the
	// head of the queue. The queue and the transport no longer agree on
	// ordering and no further outcome can be trusted.
	ErrQueueDesync = errors.New("job resolution does not match queue head")
)

// Job is one outstanding request to the league service
type Job struct {
	Handle      string
	Kind        JobKind
	Payload     url.Values
	SubmittedAt time.Time
}

// Consumer receives the outcome of jobs of one kind. Exactly one of the
// three methods is invoked per job, in submission order.
type Consumer interface {
	OnComplete(job Job, body []byte)
	OnTimeout(job Job)
	OnError(job Job, code int, message string)
}

// Transport delivers jobs to the league service and reports each outcome
// back through the Resolver it was started with, strictly in delivery order.
// A Deliver error means the job was never accepted and will not resolve.
type Transport interface {
	Available() bool
	Deliver(job Job) error
}

// Queue is a FIFO of outstanding league requests. The transport carries no
// job correlation of its own, so the queue matches every resolution against
// its head: a resolution for any other job is a protocol violation and is
// escalated through the fatal callback rather than reordered.
type Queue struct {
	mu        sync.Mutex
	transport Transport
	consumers map[JobKind]Consumer
	pending   []Job
	fatal     func(error)
}

// NewQueue creates a queue bound to a transport. fatal is invoked when the
// queue detects it has desynchronized from the transport; it must not
// return control to the queue expecting further progress.
func NewQueue(transport Transport, fatal func(error)) *Queue {
	if fatal == nil {
		fatal = func(err error) { log.Fatalf("league: %v", err) }
	}
	return &Queue{
		transport: transport,
		consumers: make(map[JobKind]Consumer),
		fatal:     fatal,
	}
}

// Register attaches the consumer for one job kind
func (q *Queue) Register(kind JobKind, c Consumer) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.consumers[kind] = c
}

// Submit enqueues a job and hands it to the transport. It returns the job's
// handle, or ErrTransportUnavailable when the league service cannot be
// reached at all.
func (q *Queue) Submit(kind JobKind, payload url.Values) (string, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.transport == nil || !q.transport.Available() {
		return "", ErrTransportUnavailable
	}

	job := Job{
		Handle:      uuid.NewString(),
		Kind:        kind,
		Payload:     payload,
		SubmittedAt: time.Now(),
	}
	// A refused delivery never resolves, so it must not enter the queue
	if err := q.transport.Deliver(job); err != nil {
		log.Printf("league: %v", err)
		return "", ErrTransportUnavailable
	}
	q.pending = append(q.pending, job)
	return job.Handle, nil
}

// Pending returns the number of unresolved jobs
func (q *Queue) Pending() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

// Drain drops all unresolved jobs without invoking their consumers. Used at
// process shutdown; outcomes for dropped jobs are lost deliberately.
func (q *Queue) Drain() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if n := len(q.pending); n > 0 {
		log.Printf("league: dropping %d unresolved job(s) at shutdown", n)
	}
	q.pending = nil
}

// Complete delivers a successful response body for a job
func (q *Queue) Complete(handle string, body []byte) {
	job, c, ok := q.pop(handle)
	if !ok {
		return
	}
	if c != nil {
		c.OnComplete(job, body)
	}
}

// Timeout delivers a timed-out outcome for a job
func (q *Queue) Timeout(handle string) {
	job, c, ok := q.pop(handle)
	if !ok {
		return
	}
	if c != nil {
		c.OnTimeout(job)
	}
}

// Error delivers a failed outcome for a job
func (q *Queue) Error(handle string, code int, message string) {
	job, c, ok := q.pop(handle)
	if !ok {
		return
	}
	if c != nil {
		c.OnError(job, code, message)
	}
}

// pop removes and returns the head job after verifying the resolution
// belongs to it. A mismatch trips the fatal path.
func (q *Queue) pop(handle string) (Job, Consumer, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.pending) == 0 {
		q.fatal(fmt.Errorf("%w: resolution %s arrived on an empty queue", ErrQueueDesync, handle))
		return Job{}, nil, false
	}
	head := q.pending[0]
	if head.Handle != handle {
		q.fatal(fmt.Errorf("%w: expected %s (%s), got %s", ErrQueueDesync, head.Handle, head.Kind, handle))
		return Job{}, nil, false
	}
	q.pending = q.pending[1:]
	return head, q.consumers[head.Kind], true
}
