package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"memo-backend/cmd"
	"memo-backend/internal/api"
	"memo-backend/internal/database"
	"memo-backend/internal/mail"
	"memo-backend/internal/messaging"
	"memo-backend/internal/pipeline"
	"memo-backend/internal/storage"
	"memo-backend/internal/textgen"
	"memo-backend/internal/transcribe"

	"github.com/caarlos0/env/v11"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// Single-process mode: local filesystem store, in-memory event queue, a
// whisper server for transcription, and the task list printed to the log
// instead of emailed.
type Config struct {
	Root        string `env:"ROOT" envDefault:"./memo-data"`
	Port        int    `env:"PORT" envDefault:"3001"`
	WhisperURL  string `env:"WHISPER_URL,notEmpty,required"`
	OpenAIModel string `env:"OPENAI_MODEL" envDefault:"gpt-4o-mini"`
	Recipient   string `env:"RECIPIENT_EMAIL" envDefault:"inbox@localhost"`
}

func createDatabase(root string) *gorm.DB {
	path := filepath.Join(root, "db", "memo-backend.db")
	if err := os.MkdirAll(filepath.Dir(path), os.ModePerm); err != nil {
		log.Fatalf("Failed to create database directory: %v", err)
	}

	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{})
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}

	if err := database.GetMigrator(db).Migrate(); err != nil {
		log.Fatalf("Failed to migrate database: %v", err)
	}

	return db
}

func createServer(db *gorm.DB, store storage.ObjectStore, port int) *http.Server {
	r := chi.NewRouter()

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
		AllowCredentials: true,
		MaxAge:           300,
	}))
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	api.NewUploadService(db, store).AddRoutes(r)

	return &http.Server{
		Addr:    fmt.Sprintf(":%d", port),
		Handler: r,
	}
}

func main() {
	cmd.LoadEnvFile()

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		log.Fatalf("error parsing config: %v", err)
	}

	db := createDatabase(cfg.Root)

	local, err := storage.NewLocalObjectStore(filepath.Join(cfg.Root, "objects"))
	if err != nil {
		log.Fatalf("Failed to create object store: %v", err)
	}

	queue := messaging.NewInMemoryQueue()
	store := storage.NewNotifyingStore(local, queue)

	dispatcher := pipeline.NewDispatcher(queue)
	dispatcher.Subscribe(pipeline.AudioPrefix, "", pipeline.NewTranscriptionStage(db, store, transcribe.NewWhisperTranscriber(cfg.WhisperURL, store)))
	dispatcher.Subscribe(pipeline.TranscriptsPrefix, "", pipeline.NewTaskExtractionStage(db, store, textgen.NewOpenAI(cfg.OpenAIModel)))
	dispatcher.Subscribe(pipeline.TasksPrefix, pipeline.TaskSuffix, pipeline.NewNotificationStage(db, store, &mail.LogMailer{Recipient: cfg.Recipient}))

	go dispatcher.Start()

	server := createServer(db, store, cfg.Port)

	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		<-quit
		log.Println("Shutting down...")

		dispatcher.Stop()

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := server.Shutdown(ctx); err != nil {
			log.Fatalf("Server forced to shutdown: %v", err)
		}
	}()

	log.Printf("Listening on port %d", cfg.Port)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatalf("Could not listen on %d: %v", cfg.Port, err)
	}

	log.Println("Stopped.")
}
