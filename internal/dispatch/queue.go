package dispatch

import (
	"log/slog"
	"sync"

	"i2v-dispatch/internal/assets"
)

// JobQueue is a FIFO of pending jobs shared by all workers of a run. It is
// filled once before any worker starts. Each pop hands a job to exactly one
// worker, which must call Done once it has finished with it.
type JobQueue struct {
	mu       sync.Mutex
	jobs     []assets.Job
	next     int
	inFlight int
}

func NewJobQueue(jobs ...assets.Job) *JobQueue {
	q := &JobQueue{}
	for _, job := range jobs {
		q.Push(job)
	}
	return q
}

func (q *JobQueue) Push(job assets.Job) {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.jobs = append(q.jobs, job)
}

// TryPop removes the next job. It never blocks: ok is false as soon as the
// queue is empty.
func (q *JobQueue) TryPop() (job assets.Job, ok bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.next >= len(q.jobs) {
		return assets.Job{}, false
	}

	job = q.jobs[q.next]
	q.jobs[q.next] = assets.Job{}
	q.next++
	q.inFlight++

	return job, true
}

// Done signals that a popped job has completed, successfully or not.
func (q *JobQueue) Done() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.inFlight == 0 {
		slog.Error("job queue completion signalled with no job in flight")
		return
	}
	q.inFlight--
}

// Len is the number of jobs not yet popped.
func (q *JobQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()

	return len(q.jobs) - q.next
}

// IsDrained is true once the queue is empty and every popped job is Done.
func (q *JobQueue) IsDrained() bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	return q.next >= len(q.jobs) && q.inFlight == 0
}
