package usecase

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/kirillkom/medscript-analyzer/internal/core/domain"
	"github.com/kirillkom/medscript-analyzer/internal/core/ports"
)

const (
	MessageUploaded = "Document uploaded. AI analysis queued."

	extractedTextName = "extracted.txt"
)

type UploadDocumentUseCase struct {
	repo       ports.RecordStore
	storage    ports.ObjectStorage
	extractor  ports.TextExtractor
	dispatcher ports.JobDispatcher
	logger     *slog.Logger
}

func NewUploadDocumentUseCase(
	repo ports.RecordStore,
	storage ports.ObjectStorage,
	extractor ports.TextExtractor,
	dispatcher ports.JobDispatcher,
	logger *slog.Logger,
) *UploadDocumentUseCase {
	if logger == nil {
		logger = slog.Default()
	}
	return &UploadDocumentUseCase{
		repo:       repo,
		storage:    storage,
		extractor:  extractor,
		dispatcher: dispatcher,
		logger:     logger,
	}
}

// Upload validates and persists the document, extracts its text, creates the
// job record and dispatches background analysis. No record exists when it
// returns a validation error.
func (uc *UploadDocumentUseCase) Upload(
	ctx context.Context,
	filename, contentType string,
	body io.Reader,
) (*domain.AnalysisJob, error) {
	contentType = domain.ResolveContentType(contentType, filename)
	if !domain.IsSupportedContentType(contentType) {
		return nil, domain.WrapError(domain.ErrUnsupportedMediaType, "upload document", fmt.Errorf("content type %q", contentType))
	}

	data, err := io.ReadAll(body)
	if err != nil {
		return nil, domain.WrapError(domain.ErrInvalidInput, "read upload body", err)
	}
	if len(data) == 0 {
		return nil, domain.WrapError(domain.ErrInvalidInput, "upload document", errors.New("empty file"))
	}

	id := uuid.NewString()
	storageKey := fmt.Sprintf("uploads/%s/%s", id, sanitizeFilename(filename))
	now := time.Now().UTC()

	location, err := uc.storage.Save(ctx, storageKey, contentType, bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("save to object storage: %w", err)
	}

	text, err := uc.extractor.Extract(ctx, data, contentType)
	if err != nil {
		return nil, fmt.Errorf("extract text: %w", err)
	}

	textKey := fmt.Sprintf("uploads/%s/%s", id, extractedTextName)
	if _, err := uc.storage.Save(ctx, textKey, domain.ContentTypeText, strings.NewReader(text)); err != nil {
		return nil, fmt.Errorf("save extracted text: %w", err)
	}

	job := &domain.AnalysisJob{
		DocumentID:         id,
		FileName:           filename,
		ContentType:        contentType,
		StoragePath:        location,
		ExtractedTextPath:  textKey,
		Status:             domain.StatusProcessing,
		Message:            MessageUploaded,
		ExtractedEntities:  []domain.MedicalEntity{},
		RetrievedKnowledge: []string{},
		KeyFindings:        []string{},
		SafetyAssessment:   []domain.SafetyAlert{},
		UploadedAt:         now,
		UpdatedAt:          now,
	}
	if err := uc.repo.Create(ctx, job); err != nil {
		return nil, fmt.Errorf("create analysis record: %w", err)
	}

	task := domain.AnalysisTask{DocumentID: id, Text: text, TextKey: textKey, EnqueuedAt: now}
	if _, err := uc.dispatcher.Dispatch(ctx, task); err != nil {
		uc.markDispatchFailed(ctx, job, err)
		return nil, domain.WrapError(domain.ErrTemporary, "dispatch analysis", err)
	}

	uc.logger.Info("document_uploaded",
		"document_id", id,
		"content_type", contentType,
		"bytes", len(data),
		"text_runes", len([]rune(text)),
	)
	return job, nil
}

func (uc *UploadDocumentUseCase) markDispatchFailed(ctx context.Context, job *domain.AnalysisJob, dispatchErr error) {
	message := failureMessage(dispatchErr)
	if err := uc.repo.Update(context.WithoutCancel(ctx), job.DocumentID, domain.FailUpdate(message, time.Now().UTC())); err != nil {
		uc.logger.Error("analysis_status_update_failed",
			"document_id", job.DocumentID,
			"status", domain.StatusFailed,
			"error", err,
		)
	}
}

func sanitizeFilename(name string) string {
	base := filepath.Base(strings.ReplaceAll(name, "\\", "/"))
	base = strings.ReplaceAll(base, " ", "_")
	base = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z':
			return r
		case r >= 'A' && r <= 'Z':
			return r
		case r >= '0' && r <= '9':
			return r
		case r == '.', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, base)
	if base == "" || base == "." || base == ".." {
		return "document.bin"
	}
	return base
}
