package pipeline

import (
	"context"
	"fmt"
	"log/slog"

	"memo-backend/internal/database"
	"memo-backend/internal/messaging"
	"memo-backend/internal/storage"
	"memo-backend/internal/transcribe"

	"gorm.io/gorm"
)

// TranscriptionStage starts a transcription job for each new audio object.
// It does not wait for the job: the transcription service writes the
// transcript object itself, which re-enters the pipeline as a fresh event.
// A redelivered audio event starts a second, uniquely named job; the
// duplicate transcript then drives a duplicate task and email downstream,
// the accepted at-least-once tradeoff.
type TranscriptionStage struct {
	db          *gorm.DB
	store       storage.ObjectStore
	transcriber transcribe.Transcriber
}

var _ Stage = (*TranscriptionStage)(nil)

func NewTranscriptionStage(db *gorm.DB, store storage.ObjectStore, transcriber transcribe.Transcriber) *TranscriptionStage {
	return &TranscriptionStage{db: db, store: store, transcriber: transcriber}
}

func (s *TranscriptionStage) Handle(ctx context.Context, rec messaging.ObjectRecord) error {
	jobName := NewJobName()

	req := transcribe.Request{
		JobName:   jobName,
		MediaURI:  s.store.ObjectURI(rec.Key),
		MediaKey:  rec.Key,
		OutputKey: TranscriptKey(jobName),
	}

	if err := s.transcriber.Start(ctx, req); err != nil {
		return fmt.Errorf("failed to start transcription for %s: %w", rec.Key, err)
	}

	slog.Info("started transcription job", "job_name", jobName, "audio_key", rec.Key)

	if s.db != nil {
		if id, err := SubmissionIdFromAudioKey(rec.Key); err == nil {
			database.MarkTranscriptionRequested(ctx, s.db, id, jobName) //nolint:errcheck
		}
	}

	return nil
}
