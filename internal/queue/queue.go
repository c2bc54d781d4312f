// Package queue holds enrichment jobs and their status state machine.
//
// A job moves pending -> processing -> completed | failed. At most one job
// per (tenant, contact) is in flight at a time; enqueueing while one exists
// returns the existing job. Terminal jobs leave the in-flight set and are
// kept in a bounded history for status reads.
package queue

import (
	"container/heap"
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/rotisserie/eris"

	"github.com/sells-group/leadscore/internal/model"
)

// DefaultHistorySize bounds the number of terminal jobs kept for status reads.
const DefaultHistorySize = 10_000

// ErrClosed is returned by Dequeue after Close.
var ErrClosed = eris.New("queue: closed")

// Observer receives queue events.
type Observer interface {
	JobEnqueued(created bool)
	JobFinished(status model.JobStatus, elapsed time.Duration)
	QueueDepth(pending, processing int)
}

// Stats is a point-in-time view of the queue.
type Stats struct {
	Pending    int    `json:"pending"`
	Processing int    `json:"processing"`
	Completed  uint64 `json:"completed"`
	Failed     uint64 `json:"failed"`
}

// BatchResult reports how many contacts a batch enqueue actually queued.
type BatchResult struct {
	Queued  int                   `json:"queued_count"`
	Skipped int                   `json:"skipped_count"`
	Jobs    []model.EnrichmentJob `json:"-"`
}

// Options configures a Queue.
type Options struct {
	HistorySize int
	Observer    Observer
	Now         func() time.Time
}

type record struct {
	job  *model.EnrichmentJob
	seq  uint64
	done chan struct{}
	idx  int
}

// Queue is a priority queue of enrichment jobs guarded by a single mutex.
type Queue struct {
	mu       sync.Mutex
	pending  pendingHeap
	inflight map[model.JobKey]*record
	byID     map[string]*record
	history  *lru.Cache[string, model.EnrichmentJob]
	latest   map[model.JobKey]string
	wake     chan struct{}
	seq      uint64
	closed   bool

	processing int
	completed  uint64
	failed     uint64

	obs Observer
	now func() time.Time
}

// New creates an empty queue.
func New(opts Options) (*Queue, error) {
	size := opts.HistorySize
	if size <= 0 {
		size = DefaultHistorySize
	}
	q := &Queue{
		inflight: make(map[model.JobKey]*record),
		byID:     make(map[string]*record),
		latest:   make(map[model.JobKey]string),
		wake:     make(chan struct{}),
		obs:      opts.Observer,
		now:      opts.Now,
	}
	if q.now == nil {
		q.now = time.Now
	}
	history, err := lru.NewWithEvict(size, func(_ string, job model.EnrichmentJob) {
		if q.latest[job.Key()] == job.ID {
			delete(q.latest, job.Key())
		}
	})
	if err != nil {
		return nil, eris.Wrap(err, "queue: create history")
	}
	q.history = history
	return q, nil
}

// Enqueue adds a pending job for the contact. If the contact already has a
// pending or processing job, that job is returned with created=false.
func (q *Queue) Enqueue(tenantID, contactID string, priority int) (model.EnrichmentJob, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	job, created := q.enqueueLocked(tenantID, contactID, priority)
	if created {
		q.broadcastLocked()
	}
	q.reportDepthLocked()
	return job, created
}

// EnqueueBatch enqueues every contact with the same dedupe rule as Enqueue.
// Repeated ids within the batch count as skipped.
func (q *Queue) EnqueueBatch(tenantID string, contactIDs []string, priority int) BatchResult {
	q.mu.Lock()
	defer q.mu.Unlock()

	var res BatchResult
	for _, id := range contactIDs {
		job, created := q.enqueueLocked(tenantID, id, priority)
		if !created {
			res.Skipped++
			continue
		}
		res.Queued++
		res.Jobs = append(res.Jobs, job)
	}
	if res.Queued > 0 {
		q.broadcastLocked()
	}
	q.reportDepthLocked()
	return res
}

func (q *Queue) enqueueLocked(tenantID, contactID string, priority int) (model.EnrichmentJob, bool) {
	key := model.JobKey{TenantID: tenantID, ContactID: contactID}
	if r, ok := q.inflight[key]; ok {
		if q.obs != nil {
			q.obs.JobEnqueued(false)
		}
		return *r.job, false
	}

	q.seq++
	r := &record{
		job: &model.EnrichmentJob{
			ID:          uuid.NewString(),
			TenantID:    tenantID,
			ContactID:   contactID,
			Priority:    priority,
			Status:      model.JobStatusPending,
			RequestedAt: q.now().UTC(),
		},
		seq:  q.seq,
		done: make(chan struct{}),
	}
	q.inflight[key] = r
	q.byID[r.job.ID] = r
	q.latest[key] = r.job.ID
	heap.Push(&q.pending, r)

	if q.obs != nil {
		q.obs.JobEnqueued(true)
	}
	return *r.job, true
}

// Dequeue removes the highest-priority pending job, marks it processing and
// returns it. Equal priorities are served in enqueue order. It blocks until
// a job is available, ctx is done, or the queue is closed.
func (q *Queue) Dequeue(ctx context.Context) (model.EnrichmentJob, error) {
	for {
		q.mu.Lock()
		if q.closed {
			q.mu.Unlock()
			return model.EnrichmentJob{}, ErrClosed
		}
		if job, ok := q.popLocked(); ok {
			q.mu.Unlock()
			return job, nil
		}
		wake := q.wake
		q.mu.Unlock()

		select {
		case <-ctx.Done():
			return model.EnrichmentJob{}, ctx.Err()
		case <-wake:
		}
	}
}

// TryDequeue is the non-blocking form of Dequeue.
func (q *Queue) TryDequeue() (model.EnrichmentJob, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return model.EnrichmentJob{}, false
	}
	return q.popLocked()
}

func (q *Queue) popLocked() (model.EnrichmentJob, bool) {
	if q.pending.Len() == 0 {
		return model.EnrichmentJob{}, false
	}
	r := heap.Pop(&q.pending).(*record)
	now := q.now().UTC()
	r.job.Status = model.JobStatusProcessing
	r.job.StartedAt = &now
	q.processing++
	q.reportDepthLocked()
	return *r.job, true
}

// Complete marks the contact's processing job completed. It returns false,
// changing nothing, when the contact has no processing job.
func (q *Queue) Complete(tenantID, contactID string, facts *model.EnrichmentFacts, scores []model.ScoreResult, costUSD float64) bool {
	return q.finish(tenantID, contactID, func(j *model.EnrichmentJob) {
		j.Status = model.JobStatusCompleted
		j.Facts = facts
		j.Scores = scores
		j.CostUSD = costUSD
	})
}

// Fail marks the contact's processing job failed with reason. It returns
// false, changing nothing, when the contact has no processing job.
func (q *Queue) Fail(tenantID, contactID, reason string, costUSD float64) bool {
	return q.finish(tenantID, contactID, func(j *model.EnrichmentJob) {
		j.Status = model.JobStatusFailed
		j.Error = reason
		j.CostUSD = costUSD
	})
}

func (q *Queue) finish(tenantID, contactID string, apply func(*model.EnrichmentJob)) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	key := model.JobKey{TenantID: tenantID, ContactID: contactID}
	r, ok := q.inflight[key]
	if !ok || r.job.Status != model.JobStatusProcessing {
		return false
	}

	apply(r.job)
	now := q.now().UTC()
	r.job.FinishedAt = &now

	delete(q.inflight, key)
	delete(q.byID, r.job.ID)
	q.history.Add(r.job.ID, *r.job)
	q.processing--
	if r.job.Status == model.JobStatusCompleted {
		q.completed++
	} else {
		q.failed++
	}
	close(r.done)

	if q.obs != nil {
		var elapsed time.Duration
		if r.job.StartedAt != nil {
			elapsed = now.Sub(*r.job.StartedAt)
		}
		q.obs.JobFinished(r.job.Status, elapsed)
	}
	q.reportDepthLocked()
	return true
}

// Status returns a snapshot of the contact's current or most recent job.
func (q *Queue) Status(tenantID, contactID string) (model.EnrichmentJob, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	key := model.JobKey{TenantID: tenantID, ContactID: contactID}
	if r, ok := q.inflight[key]; ok {
		return *r.job, true
	}
	if id, ok := q.latest[key]; ok {
		return q.history.Peek(id)
	}
	return model.EnrichmentJob{}, false
}

// Job returns a snapshot of the job with the given id.
func (q *Queue) Job(id string) (model.EnrichmentJob, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if r, ok := q.byID[id]; ok {
		return *r.job, true
	}
	return q.history.Peek(id)
}

// Done returns a channel that is closed when the job reaches a terminal
// status. Jobs already in history get a closed channel. ok is false for
// unknown ids.
func (q *Queue) Done(jobID string) (<-chan struct{}, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if r, ok := q.byID[jobID]; ok {
		return r.done, true
	}
	if q.history.Contains(jobID) {
		ch := make(chan struct{})
		close(ch)
		return ch, true
	}
	return nil, false
}

// Stats returns the current queue counters.
func (q *Queue) Stats() Stats {
	q.mu.Lock()
	defer q.mu.Unlock()
	return Stats{
		Pending:    q.pending.Len(),
		Processing: q.processing,
		Completed:  q.completed,
		Failed:     q.failed,
	}
}

// Close wakes every blocked Dequeue with ErrClosed. Jobs already processing
// can still be completed or failed.
func (q *Queue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.closed = true
	q.broadcastLocked()
}

func (q *Queue) broadcastLocked() {
	close(q.wake)
	q.wake = make(chan struct{})
}

func (q *Queue) reportDepthLocked() {
	if q.obs != nil {
		q.obs.QueueDepth(q.pending.Len(), q.processing)
	}
}

// pendingHeap orders records by priority (highest first), then by sequence.
type pendingHeap []*record

func (h pendingHeap) Len() int { return len(h) }

func (h pendingHeap) Less(i, j int) bool {
	if h[i].job.Priority != h[j].job.Priority {
		return h[i].job.Priority > h[j].job.Priority
	}
	return h[i].seq < h[j].seq
}

func (h pendingHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].idx = i
	h[j].idx = j
}

func (h *pendingHeap) Push(x any) {
	r := x.(*record)
	r.idx = len(*h)
	*h = append(*h, r)
}

func (h *pendingHeap) Pop() any {
	old := *h
	n := len(old)
	r := old[n-1]
	old[n-1] = nil
	r.idx = -1
	*h = old[:n-1]
	return r
}
