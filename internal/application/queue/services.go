package queue

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/labstack/gommon/log"

	"github.com/bryanwahyu/sitesafe/internal/application"
	appai "github.com/bryanwahyu/sitesafe/internal/application/ai"
	domai "github.com/bryanwahyu/sitesafe/internal/domain/ai"
	"github.com/bryanwahyu/sitesafe/internal/domain/reports"
	"github.com/bryanwahyu/sitesafe/internal/domain/uploads"
)

const MessageEmpty = "No pending uploads to process."

// Generator drafts the report texts for a document.
type Generator interface {
	Generate(ctx context.Context, doc domai.Document) appai.Draft
}

// Service processes one queued upload per call. Concurrent callers may pick the same
// row; nothing here locks it.
type Service struct {
	Uploads   uploads.Repository
	Files     uploads.FileStore
	Extractor uploads.TextExtractor
	Reports   reports.Repository
	Generator Generator
	Clock     application.Clock
}

// Result of one ProcessNext call.
type Result struct {
	Message  string         `json:"message"`
	UploadID string         `json:"uploadId,omitempty"`
	Status   uploads.Status `json:"status,omitempty"`
	ReportID string         `json:"reportId,omitempty"`
	// ModelError is set when the report was stored with error texts.
	ModelError string `json:"modelError,omitempty"`
}

// ProcessNext selects the oldest PENDING upload and runs it to COMPLETED or FAILED.
// Processing errors end in FAILED and are not returned; only failures to read or
// write the queue state itself are.
func (s *Service) ProcessNext(ctx context.Context) (Result, error) {
	next, err := s.Uploads.OldestPending(ctx)
	if errors.Is(err, uploads.ErrNotFound) {
		return Result{Message: MessageEmpty}, nil
	}
	if err != nil {
		return Result{}, fmt.Errorf("select pending upload: %w", err)
	}
	res, err := s.process(ctx, next.ID)
	res.Message = fmt.Sprintf("Processed upload: %s", next.ID)
	res.UploadID = next.ID
	return res, err
}

func (s *Service) process(ctx context.Context, id string) (Result, error) {
	// a started run finishes even if the caller goes away
	ctx = context.WithoutCancel(ctx)
	log.Infof("processing upload: %s", id)
	up, err := s.Uploads.Get(ctx, id)
	if err != nil {
		return Result{}, err
	}
	if up.Status != uploads.StatusPending {
		log.Infof("upload %s status is %s, skipping", id, up.Status)
		return Result{Status: up.Status}, nil
	}
	if err := s.Uploads.UpdateStatus(ctx, id, uploads.StatusProcessing); err != nil {
		return Result{}, err
	}

	rep, draft, err := s.generate(ctx, up)
	if err != nil {
		log.Errorf("error processing upload %s: %v", id, err)
		if uerr := s.Uploads.UpdateStatus(ctx, id, uploads.StatusFailed); uerr != nil {
			return Result{Status: uploads.StatusProcessing}, fmt.Errorf("mark upload %s failed: %w", id, uerr)
		}
		return Result{Status: uploads.StatusFailed}, nil
	}

	if err := s.Uploads.UpdateStatus(ctx, id, uploads.StatusCompleted); err != nil {
		return Result{Status: uploads.StatusProcessing, ReportID: rep.ID}, err
	}
	res := Result{Status: uploads.StatusCompleted, ReportID: rep.ID}
	if draft.Err != nil {
		res.ModelError = draft.Err.Error()
	}
	log.Infof("generated report %s for upload %s", rep.ID, id)
	return res, nil
}

// generate downloads, extracts, drafts and stores the report.
func (s *Service) generate(ctx context.Context, up *uploads.Upload) (*reports.Report, appai.Draft, error) {
	data, err := s.Files.Get(ctx, up.StoragePath)
	if err != nil {
		return nil, appai.Draft{}, fmt.Errorf("failed to download file %s: %w", up.StoragePath, err)
	}
	text, err := s.Extractor.Extract(ctx, up.Filetype, data)
	if err != nil {
		return nil, appai.Draft{}, fmt.Errorf("extract %s: %w", up.Filetype, err)
	}

	draft := s.Generator.Generate(ctx, domai.Document{FileName: up.Filename, ExtractedText: text})

	now := s.Clock.Now()
	rep := &reports.Report{
		ID:                 uuid.New().String(),
		UserID:             up.UserID,
		Title:              Title(up.Filename, now),
		Summary:            draft.Summary,
		FullReportMarkdown: draft.Markdown,
		RiskFlags:          draft.RiskFlags,
		SourceUploadIDs:    []string{up.ID},
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	if err := s.Reports.Create(ctx, rep); err != nil {
		return nil, appai.Draft{}, fmt.Errorf("save report: %w", err)
	}
	return rep, draft, nil
}
