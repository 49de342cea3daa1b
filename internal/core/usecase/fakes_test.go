package usecase

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sync"
	"time"

	"github.com/kirillkom/medscript-analyzer/internal/core/domain"
)

type recordStoreFake struct {
	mu        sync.Mutex
	jobs      map[string]*domain.AnalysisJob
	createErr error
	getErr    error
	// updateErrs is consumed one entry per Update call; nil entries succeed.
	updateErrs []error
	updates    []domain.JobUpdate
}

func newRecordStoreFake() *recordStoreFake {
	return &recordStoreFake{jobs: map[string]*domain.AnalysisJob{}}
}

func (f *recordStoreFake) Create(_ context.Context, job *domain.AnalysisJob) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return f.createErr
	}
	copyJob := *job
	f.jobs[job.DocumentID] = &copyJob
	return nil
}

func (f *recordStoreFake) GetByID(_ context.Context, id string) (*domain.AnalysisJob, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getErr != nil {
		return nil, f.getErr
	}
	job, ok := f.jobs[id]
	if !ok {
		return nil, domain.ErrDocumentNotFound
	}
	copyJob := *job
	return &copyJob, nil
}

func (f *recordStoreFake) Update(_ context.Context, id string, update domain.JobUpdate) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.updates = append(f.updates, update)
	if len(f.updateErrs) > 0 {
		err := f.updateErrs[0]
		f.updateErrs = f.updateErrs[1:]
		if err != nil {
			return err
		}
	}
	job, ok := f.jobs[id]
	if !ok {
		return domain.ErrDocumentNotFound
	}
	return update.Apply(job, time.Now().UTC())
}

func (f *recordStoreFake) job(id string) *domain.AnalysisJob {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.jobs[id]
}

type storageFake struct {
	mu      sync.Mutex
	objects map[string][]byte
	saveErr error
	openErr error
}

func newStorageFake() *storageFake {
	return &storageFake{objects: map[string][]byte{}}
}

func (f *storageFake) Save(_ context.Context, key, _ string, data io.Reader) (string, error) {
	if f.saveErr != nil {
		return "", f.saveErr
	}
	raw, err := io.ReadAll(data)
	if err != nil {
		return "", err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.objects[key] = raw
	return "mem://" + key, nil
}

func (f *storageFake) Open(_ context.Context, key string) (io.ReadCloser, error) {
	if f.openErr != nil {
		return nil, f.openErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	raw, ok := f.objects[key]
	if !ok {
		return nil, domain.ErrDocumentNotFound
	}
	return io.NopCloser(bytes.NewReader(raw)), nil
}

type extractorFake struct {
	text        string
	err         error
	contentType string
}

func (f *extractorFake) Extract(_ context.Context, content []byte, contentType string) (string, error) {
	f.contentType = contentType
	if f.err != nil {
		return "", f.err
	}
	if f.text != "" {
		return f.text, nil
	}
	return string(content), nil
}

type dispatcherFake struct {
	tasks []domain.AnalysisTask
	err   error
}

func (f *dispatcherFake) Dispatch(_ context.Context, task domain.AnalysisTask) (*domain.JobHandle, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.tasks = append(f.tasks, task)
	handle := domain.NewJobHandle(task.DocumentID)
	handle.Finish(nil)
	return handle, nil
}

type analyzerFake struct {
	result domain.AnalysisResult
	err    error
	panic  any
	block  bool
	text   string
}

func (f *analyzerFake) Analyze(ctx context.Context, text string) (domain.AnalysisResult, error) {
	f.text = text
	if f.panic != nil {
		panic(f.panic)
	}
	if f.block {
		<-ctx.Done()
		return domain.AnalysisResult{}, ctx.Err()
	}
	if f.err != nil {
		return domain.AnalysisResult{}, f.err
	}
	return f.result, nil
}

type retrierFake struct {
	attempts int
	calls    int
}

func (f *retrierFake) Do(ctx context.Context, _ string, fn func(context.Context) error) error {
	var err error
	for i := 0; i < f.attempts; i++ {
		f.calls++
		if err = fn(ctx); err == nil {
			return nil
		}
	}
	return err
}

var errStoreDown = errors.New("store unavailable")

func sampleResult() domain.AnalysisResult {
	return domain.AnalysisResult{
		DocumentType:       "prescription",
		ConfidenceScore:    0.85,
		ExtractedEntities:  []domain.MedicalEntity{{EntityType: "medication", EntityValue: "Metformin", ConfidenceScore: 0.9}},
		RetrievedKnowledge: []string{"Knowledge about Metformin"},
		Summary:            "summary",
		KeyFindings:        []string{"finding"},
		SafetyAssessment:   []domain.SafetyAlert{{Severity: domain.SeverityLow, Title: "ok"}},
	}
}

func seedJob(store *recordStoreFake, id string, status domain.ProcessingStatus) {
	store.jobs[id] = &domain.AnalysisJob{DocumentID: id, Status: status}
}
