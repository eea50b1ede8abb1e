package league

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"
)

const (
	transportQueueDepth   = 64
	defaultReportTimeout  = 15 * time.Second
	maxResponseBodyLength = 1 << 20
)

// Resolver receives the outcome of each delivered job, in delivery order
type Resolver interface {
	Complete(handle string, body []byte)
	Timeout(handle string)
	Error(handle string, code int, message string)
}

// HTTPTransport posts jobs to the league service as URL-encoded forms. A
// single worker goroutine processes deliveries one at a time, so outcomes
// reach the resolver in exactly the order jobs were delivered. Reports and
// team queries may target different endpoints.
type HTTPTransport struct {
	reportURL string
	queryURL  string
	client    *http.Client

	jobs    chan Job
	done    chan struct{}
	stopped chan struct{}

	mu      sync.Mutex
	running bool
}

// NewHTTPTransport creates a transport for the given league endpoints. With
// both endpoints empty the transport reports itself unavailable. A zero
// timeout uses the default.
func NewHTTPTransport(reportURL, queryURL string, timeout time.Duration) *HTTPTransport {
	if timeout <= 0 {
		timeout = defaultReportTimeout
	}
	if queryURL == "" {
		queryURL = reportURL
	}
	return &HTTPTransport{
		reportURL: reportURL,
		queryURL:  queryURL,
		client:    &http.Client{Timeout: timeout},
		jobs:      make(chan Job, transportQueueDepth),
		done:      make(chan struct{}),
		stopped:   make(chan struct{}),
	}
}

func (t *HTTPTransport) endpointFor(kind JobKind) string {
	if kind == JobTeamQuery {
		return t.queryURL
	}
	return t.reportURL
}

// Available reports whether jobs can currently be delivered
func (t *HTTPTransport) Available() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return (t.reportURL != "" || t.queryURL != "") && t.running
}

// Start launches the worker loop, reporting outcomes to the resolver
func (t *HTTPTransport) Start(resolver Resolver) {
	t.mu.Lock()
	if t.running || (t.reportURL == "" && t.queryURL == "") {
		t.mu.Unlock()
		return
	}
	t.running = true
	t.mu.Unlock()

	go t.run(resolver)
}

// Close stops the worker and waits for the job in flight, if any, to
// resolve. Buffered jobs that never reached the worker are abandoned.
func (t *HTTPTransport) Close() {
	t.mu.Lock()
	if !t.running {
		t.mu.Unlock()
		return
	}
	t.running = false
	t.mu.Unlock()

	close(t.done)
	<-t.stopped
}

func (t *HTTPTransport) run(resolver Resolver) {
	defer close(t.stopped)
	for {
		select {
		case <-t.done:
			return
		case job := <-t.jobs:
			t.deliver(resolver, job)
		}
	}
}

// Deliver hands a job to the worker. A full delivery buffer refuses the
// job so the caller never waits on an outcome that will not come.
func (t *HTTPTransport) Deliver(job Job) error {
	select {
	case t.jobs <- job:
		return nil
	default:
		return fmt.Errorf("delivery buffer full, job %s refused", job.Handle)
	}
}

func (t *HTTPTransport) deliver(resolver Resolver, job Job) {
	endpoint := t.endpointFor(job.Kind)
	if endpoint == "" {
		resolver.Error(job.Handle, 0, fmt.Sprintf("no endpoint configured for %s jobs", job.Kind))
		return
	}

	req, err := http.NewRequestWithContext(context.Background(), http.MethodPost,
		endpoint, strings.NewReader(job.Payload.Encode()))
	if err != nil {
		resolver.Error(job.Handle, 0, err.Error())
		return
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := t.client.Do(req)
	if err != nil {
		if isTimeout(err) {
			resolver.Timeout(job.Handle)
			return
		}
		resolver.Error(job.Handle, 0, err.Error())
		return
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBodyLength))
	if err != nil {
		resolver.Error(job.Handle, resp.StatusCode, fmt.Sprintf("reading response: %v", err))
		return
	}

	if resp.StatusCode != http.StatusOK {
		message := strings.TrimSpace(string(body))
		if message == "" {
			message = resp.Status
		}
		resolver.Error(job.Handle, resp.StatusCode, message)
		return
	}

	resolver.Complete(job.Handle, body)
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr interface{ Timeout() bool }
	return errors.As(err, &netErr) && netErr.Timeout()
}
