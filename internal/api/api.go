package api

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"memo-backend/internal/database"
	"memo-backend/internal/pipeline"
	"memo-backend/internal/storage"
	pub "memo-backend/pkg/api"

	"github.com/go-chi/chi/v5"
	"gorm.io/gorm"
)

type UploadService struct {
	db    *gorm.DB
	store storage.ObjectStore
}

func NewUploadService(db *gorm.DB, store storage.ObjectStore) *UploadService {
	return &UploadService{db: db, store: store}
}

func (s *UploadService) AddRoutes(r chi.Router) {
	r.Get("/health", RestHandler(func(r *http.Request) (any, error) { return nil, nil }))
	r.Post("/upload", RestHandler(s.UploadAudio))
	r.Route("/submissions", func(r chi.Router) {
		r.Get("/", RestHandler(s.ListSubmissions))
		r.Get("/{submission_id}", RestHandler(s.GetSubmission))
	})
}

// UploadAudio decodes the base64 memo and writes it under a fresh audio key.
// The handler is fire-and-forget with respect to the rest of the pipeline:
// success means the audio object is durable, nothing more. Malformed input
// answers 500, not 400, matching the long-standing behavior clients depend
// on.
func (s *UploadService) UploadAudio(r *http.Request) (any, error) {
	var req pub.UploadRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		slog.Error("error parsing upload request body", "error", err)
		return nil, CodedErrorf(http.StatusInternalServerError, "unable to parse request body: %v", err)
	}

	audio, err := base64.StdEncoding.DecodeString(req.Body)
	if err != nil {
		slog.Error("error decoding audio payload", "error", err)
		return nil, CodedErrorf(http.StatusInternalServerError, "unable to decode audio payload: %v", err)
	}
	if len(audio) == 0 {
		slog.Error("upload request contains no audio payload")
		return nil, CodedErrorf(http.StatusInternalServerError, "request contains no audio payload")
	}

	ctx := r.Context()

	audioKey := pipeline.NewAudioKey()
	if err := s.store.PutObject(ctx, audioKey, bytes.NewReader(audio)); err != nil {
		slog.Error("error storing audio object", "audio_key", audioKey, "error", err)
		return nil, CodedErrorf(http.StatusInternalServerError, "failed to store audio")
	}

	slog.Info("audio uploaded", "audio_key", audioKey, "size_bytes", len(audio))

	if s.db != nil {
		if id, err := pipeline.SubmissionIdFromAudioKey(audioKey); err == nil {
			submission := database.Submission{
				Id:           id,
				AudioKey:     audioKey,
				Status:       database.SubmissionUploaded,
				CreationTime: time.Now().UTC(),
			}
			if err := s.db.WithContext(ctx).Create(&submission).Error; err != nil {
				// Bookkeeping only; the audio object is already durable.
				slog.Error("error creating submission record", "submission_id", id, "error", err)
			}
		}
	}

	return pub.UploadResponse{Message: "Audio successfully uploaded", AudioKey: audioKey}, nil
}

func (s *UploadService) GetSubmission(r *http.Request) (any, error) {
	id, err := URLParamUUID(r, "submission_id")
	if err != nil {
		return nil, err
	}

	ctx := r.Context()

	var submission database.Submission
	if err := s.db.WithContext(ctx).First(&submission, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, CodedErrorf(http.StatusNotFound, "submission not found")
		}
		slog.Error("error getting submission", "error", err)
		return nil, CodedErrorf(http.StatusInternalServerError, "error retrieving submission record")
	}

	return convertSubmission(submission), nil
}

func (s *UploadService) ListSubmissions(r *http.Request) (any, error) {
	query, err := ParseRequestQueryParams[pub.ListSubmissionsQuery](r)
	if err != nil {
		return nil, err
	}

	ctx := r.Context()

	txn := s.db.WithContext(ctx).Order("creation_time DESC")
	if query.Status != "" {
		txn = txn.Where("status = ?", query.Status)
	}
	if query.Limit > 0 {
		txn = txn.Limit(query.Limit)
	}

	var submissions []database.Submission
	if err := txn.Find(&submissions).Error; err != nil {
		slog.Error("error listing submissions", "error", err)
		return nil, CodedErrorf(http.StatusInternalServerError, "error listing submission records")
	}

	result := make([]pub.Submission, 0, len(submissions))
	for _, submission := range submissions {
		result = append(result, convertSubmission(submission))
	}
	return result, nil
}

func convertSubmission(s database.Submission) pub.Submission {
	return pub.Submission{
		Id:            s.Id,
		AudioKey:      s.AudioKey,
		JobName:       s.JobName,
		TranscriptKey: s.TranscriptKey,
		TaskKey:       s.TaskKey,
		Status:        s.Status,
		CreationTime:  s.CreationTime,
		UpdatedTime:   s.UpdatedTime,
	}
}
