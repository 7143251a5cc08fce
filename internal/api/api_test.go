package api_test

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"regexp"
	"testing"

	"memo-backend/internal/api"
	"memo-backend/internal/database"
	"memo-backend/internal/storage"
	pub "memo-backend/pkg/api"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func createDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, database.GetMigrator(db).Migrate())

	return db
}

type countingStore struct {
	storage.ObjectStore
	puts int
}

func (s *countingStore) PutObject(ctx context.Context, key string, data io.Reader) error {
	s.puts++
	return s.ObjectStore.PutObject(ctx, key, data)
}

func createServer(t *testing.T) (*httptest.Server, *countingStore, *gorm.DB) {
	t.Helper()

	local, err := storage.NewLocalObjectStore(t.TempDir())
	require.NoError(t, err)
	store := &countingStore{ObjectStore: local}

	db := createDB(t)

	router := chi.NewRouter()
	api.NewUploadService(db, store).AddRoutes(router)

	server := httptest.NewServer(router)
	t.Cleanup(server.Close)

	return server, store, db
}

func postJSON(t *testing.T, url, body string) (*http.Response, []byte) {
	t.Helper()

	res, err := http.Post(url, "application/json", bytes.NewReader([]byte(body)))
	require.NoError(t, err)
	defer res.Body.Close()

	data, err := io.ReadAll(res.Body)
	require.NoError(t, err)
	return res, data
}

var audioKeyPattern = regexp.MustCompile(`^audio/[0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12}\.m4a$`)

func TestUploadAudio(t *testing.T) {
	server, store, db := createServer(t)

	payload := base64.StdEncoding.EncodeToString([]byte("fake m4a bytes"))
	res, data := postJSON(t, server.URL+"/upload", fmt.Sprintf(`{"body": %q}`, payload))
	require.Equal(t, http.StatusOK, res.StatusCode)

	var uploaded pub.UploadResponse
	require.NoError(t, json.Unmarshal(data, &uploaded))

	assert.Equal(t, "Audio successfully uploaded", uploaded.Message)
	assert.Regexp(t, audioKeyPattern, uploaded.AudioKey)
	assert.Equal(t, 1, store.puts)

	obj, err := store.GetObject(context.Background(), uploaded.AudioKey)
	require.NoError(t, err)
	defer obj.Close()
	content, err := io.ReadAll(obj)
	require.NoError(t, err)
	assert.Equal(t, "fake m4a bytes", string(content))

	var submission database.Submission
	require.NoError(t, db.First(&submission, "audio_key = ?", uploaded.AudioKey).Error)
	assert.Equal(t, database.SubmissionUploaded, submission.Status)
}

func TestUploadAudioUniqueKeys(t *testing.T) {
	server, _, _ := createServer(t)

	payload := base64.StdEncoding.EncodeToString([]byte("same bytes"))
	body := fmt.Sprintf(`{"body": %q}`, payload)

	seen := make(map[string]bool)
	for i := 0; i < 5; i++ {
		res, data := postJSON(t, server.URL+"/upload", body)
		require.Equal(t, http.StatusOK, res.StatusCode)

		var uploaded pub.UploadResponse
		require.NoError(t, json.Unmarshal(data, &uploaded))
		assert.False(t, seen[uploaded.AudioKey], "identical payloads must still get distinct keys")
		seen[uploaded.AudioKey] = true
	}
}

func TestUploadAudioMalformedJson(t *testing.T) {
	server, store, _ := createServer(t)

	res, data := postJSON(t, server.URL+"/upload", `{"body": `)
	assert.Equal(t, http.StatusInternalServerError, res.StatusCode)

	var errRes pub.ErrorResponse
	require.NoError(t, json.Unmarshal(data, &errRes))
	assert.Contains(t, errRes.Error, "unable to parse request body")
	assert.Equal(t, 0, store.puts, "malformed requests must not write to the store")
}

func TestUploadAudioMalformedBase64(t *testing.T) {
	server, store, _ := createServer(t)

	res, data := postJSON(t, server.URL+"/upload", `{"body": "not!!base64??"}`)
	assert.Equal(t, http.StatusInternalServerError, res.StatusCode)

	var errRes pub.ErrorResponse
	require.NoError(t, json.Unmarshal(data, &errRes))
	assert.Contains(t, errRes.Error, "unable to decode audio payload")
	assert.Equal(t, 0, store.puts)
}

func TestUploadAudioEmptyPayload(t *testing.T) {
	server, store, _ := createServer(t)

	for _, body := range []string{`{}`, `{"body": ""}`} {
		res, data := postJSON(t, server.URL+"/upload", body)
		assert.Equal(t, http.StatusInternalServerError, res.StatusCode)

		var errRes pub.ErrorResponse
		require.NoError(t, json.Unmarshal(data, &errRes))
		assert.Contains(t, errRes.Error, "no audio payload")
	}
	assert.Equal(t, 0, store.puts, "empty payloads must not write to the store")
}

func TestHealth(t *testing.T) {
	server, _, _ := createServer(t)

	res, err := http.Get(server.URL + "/health")
	require.NoError(t, err)
	defer res.Body.Close()
	assert.Equal(t, http.StatusOK, res.StatusCode)
}

func TestGetSubmission(t *testing.T) {
	server, _, db := createServer(t)

	id := uuid.New()
	require.NoError(t, db.Create(&database.Submission{
		Id:       id,
		AudioKey: fmt.Sprintf("audio/%s.m4a", id),
		Status:   database.SubmissionUploaded,
	}).Error)

	res, err := http.Get(server.URL + "/submissions/" + id.String())
	require.NoError(t, err)
	defer res.Body.Close()
	require.Equal(t, http.StatusOK, res.StatusCode)

	var submission pub.Submission
	require.NoError(t, json.NewDecoder(res.Body).Decode(&submission))
	assert.Equal(t, id, submission.Id)
	assert.Equal(t, database.SubmissionUploaded, submission.Status)
}

func TestGetSubmissionNotFound(t *testing.T) {
	server, _, _ := createServer(t)

	res, err := http.Get(server.URL + "/submissions/" + uuid.NewString())
	require.NoError(t, err)
	defer res.Body.Close()
	assert.Equal(t, http.StatusNotFound, res.StatusCode)
}

func TestGetSubmissionInvalidId(t *testing.T) {
	server, _, _ := createServer(t)

	res, err := http.Get(server.URL + "/submissions/not-a-uuid")
	require.NoError(t, err)
	defer res.Body.Close()
	assert.Equal(t, http.StatusBadRequest, res.StatusCode)
}

func TestListSubmissions(t *testing.T) {
	server, _, db := createServer(t)

	statuses := []string{
		database.SubmissionUploaded,
		database.SubmissionTranscribed,
		database.SubmissionNotified,
	}
	for _, status := range statuses {
		id := uuid.New()
		require.NoError(t, db.Create(&database.Submission{
			Id:       id,
			AudioKey: fmt.Sprintf("audio/%s.m4a", id),
			Status:   status,
		}).Error)
	}

	getSubmissions := func(query string) []pub.Submission {
		res, err := http.Get(server.URL + "/submissions/" + query)
		require.NoError(t, err)
		defer res.Body.Close()
		require.Equal(t, http.StatusOK, res.StatusCode)

		var submissions []pub.Submission
		require.NoError(t, json.NewDecoder(res.Body).Decode(&submissions))
		return submissions
	}

	assert.Len(t, getSubmissions(""), 3)
	assert.Len(t, getSubmissions("?limit=2"), 2)

	notified := getSubmissions("?status=" + database.SubmissionNotified)
	require.Len(t, notified, 1)
	assert.Equal(t, database.SubmissionNotified, notified[0].Status)
}
