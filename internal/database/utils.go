package database

import (
	"context"
	"log/slog"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Status updates are best-effort: stage handlers remain pure functions of the
// triggering object plus the store, so a failed bookkeeping write is logged
// and never fails the stage. Callers must not propagate these errors into
// ack/nack decisions.

func UpdateSubmissionStatus(ctx context.Context, txn *gorm.DB, id uuid.UUID, status string) error {
	if err := txn.WithContext(ctx).Model(&Submission{Id: id}).Updates(map[string]any{"status": status}).Error; err != nil {
		slog.Error("error updating submission status", "submission_id", id, "status", status, "error", err)
		return err
	}
	return nil
}

func MarkTranscriptionRequested(ctx context.Context, txn *gorm.DB, id uuid.UUID, jobName string) error {
	updates := map[string]any{
		"status":   SubmissionTranscriptionRequested,
		"job_name": jobName,
	}
	if err := txn.WithContext(ctx).Model(&Submission{Id: id}).Updates(updates).Error; err != nil {
		slog.Error("error recording transcription job", "submission_id", id, "job_name", jobName, "error", err)
		return err
	}
	return nil
}

func MarkTranscribed(ctx context.Context, txn *gorm.DB, jobName, transcriptKey string) error {
	updates := map[string]any{
		"status":         SubmissionTranscribed,
		"transcript_key": transcriptKey,
	}
	if err := txn.WithContext(ctx).Model(&Submission{}).Where("job_name = ?", jobName).Updates(updates).Error; err != nil {
		slog.Error("error recording transcript arrival", "job_name", jobName, "error", err)
		return err
	}
	return nil
}

func MarkTasksExtracted(ctx context.Context, txn *gorm.DB, jobName, transcriptKey, taskKey string) error {
	updates := map[string]any{
		"status":         SubmissionTasksExtracted,
		"transcript_key": transcriptKey,
		"task_key":       taskKey,
	}
	if err := txn.WithContext(ctx).Model(&Submission{}).Where("job_name = ?", jobName).Updates(updates).Error; err != nil {
		slog.Error("error recording extracted tasks", "job_name", jobName, "error", err)
		return err
	}
	return nil
}

func MarkNotified(ctx context.Context, txn *gorm.DB, jobName string) error {
	if err := txn.WithContext(ctx).Model(&Submission{}).Where("job_name = ?", jobName).Updates(map[string]any{"status": SubmissionNotified}).Error; err != nil {
		slog.Error("error recording notification", "job_name", jobName, "error", err)
		return err
	}
	return nil
}
