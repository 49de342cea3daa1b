package domain

import (
	"sync"
	"time"
)

// AnalysisTask is the unit of background work for one document.
// Text is set for in-process dispatch; TextKey points at the extracted text in
// object storage when the task crosses a process boundary.
type AnalysisTask struct {
	DocumentID string    `json:"document_id"`
	Text       string    `json:"-"`
	TextKey    string    `json:"text_key,omitempty"`
	EnqueuedAt time.Time `json:"enqueued_at"`
}

// JobHandle is the completion signal of a dispatched task.
type JobHandle struct {
	DocumentID string

	done chan struct{}
	once sync.Once
	mu   sync.Mutex
	err  error
}

func NewJobHandle(documentID string) *JobHandle {
	return &JobHandle{DocumentID: documentID, done: make(chan struct{})}
}

// Finish records the outcome and closes Done. Later calls are ignored.
func (h *JobHandle) Finish(err error) {
	h.once.Do(func() {
		h.mu.Lock()
		h.err = err
		h.mu.Unlock()
		close(h.done)
	})
}

func (h *JobHandle) Done() <-chan struct{} {
	return h.done
}

// Err returns the task error once Done is closed.
func (h *JobHandle) Err() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.err
}
