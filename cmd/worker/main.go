package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"memo-backend/cmd"
	"memo-backend/internal/database"
	"memo-backend/internal/mail"
	"memo-backend/internal/messaging"
	"memo-backend/internal/pipeline"
	"memo-backend/internal/storage"
	"memo-backend/internal/textgen"
	"memo-backend/internal/transcribe"

	"github.com/caarlos0/env/v11"
)

type WorkerConfig struct {
	DatabaseURL       string `env:"DATABASE_URL,notEmpty,required"`
	BucketName        string `env:"BUCKET_NAME,notEmpty,required"`
	S3EndpointURL     string `env:"S3_ENDPOINT_URL" envDefault:""`
	S3AccessKeyID     string `env:"AWS_ACCESS_KEY_ID" envDefault:""`
	S3SecretAccessKey string `env:"AWS_SECRET_ACCESS_KEY" envDefault:""`
	S3Region          string `env:"AWS_REGION" envDefault:"us-east-1"`

	// Exactly one event source: SQS when the bucket delivers notifications
	// natively, RabbitMQ when the service announces writes itself.
	SQSQueueURL string `env:"SQS_QUEUE_URL" envDefault:""`
	RabbitMQURL string `env:"RABBITMQ_URL" envDefault:""`

	// Empty means AWS Transcribe; otherwise a whisper server endpoint.
	WhisperURL string `env:"WHISPER_URL" envDefault:""`

	Generator   string `env:"GENERATOR" envDefault:"bedrock"`
	OpenAIModel string `env:"OPENAI_MODEL" envDefault:"gpt-4o-mini"`

	SenderEmail    string `env:"SENDER_EMAIL,notEmpty,required"`
	RecipientEmail string `env:"RECIPIENT_EMAIL,notEmpty,required"`
}

func main() {
	log.Println("Starting Worker Process...")

	cmd.LoadEnvFile()

	var cfg WorkerConfig
	if err := env.Parse(&cfg); err != nil {
		log.Fatalf("error parsing config: %v", err)
	}

	ctx := context.Background()

	db, err := database.NewDatabase(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}

	var store storage.ObjectStore
	store, err = storage.NewS3ObjectStore(storage.S3Config{
		EndpointURL:     cfg.S3EndpointURL,
		AccessKeyID:     cfg.S3AccessKeyID,
		SecretAccessKey: cfg.S3SecretAccessKey,
		Region:          cfg.S3Region,
		Bucket:          cfg.BucketName,
	})
	if err != nil {
		log.Fatalf("Failed to create object store: %v", err)
	}

	var receiver messaging.Receiver
	switch {
	case cfg.SQSQueueURL != "":
		receiver, err = messaging.NewSQSReceiver(ctx, cfg.S3Region, cfg.SQSQueueURL)
		if err != nil {
			log.Fatalf("Failed to create SQS receiver: %v", err)
		}
	case cfg.RabbitMQURL != "":
		receiver, err = messaging.NewRabbitMQReceiver(cfg.RabbitMQURL)
		if err != nil {
			log.Fatalf("Failed to connect to RabbitMQ: %v", err)
		}

		// Without native bucket notifications the worker's own writes
		// (transcripts from whisper, task objects) must be announced too.
		publisher, err := messaging.NewRabbitMQPublisher(cfg.RabbitMQURL)
		if err != nil {
			log.Fatalf("Failed to connect to RabbitMQ: %v", err)
		}
		defer publisher.Close()
		store = storage.NewNotifyingStore(store, publisher)
	default:
		log.Fatalf("either SQS_QUEUE_URL or RABBITMQ_URL must be set")
	}

	var transcriber transcribe.Transcriber
	if cfg.WhisperURL != "" {
		transcriber = transcribe.NewWhisperTranscriber(cfg.WhisperURL, store)
	} else {
		transcriber, err = transcribe.NewAWSTranscriber(ctx, cfg.S3Region, cfg.BucketName)
		if err != nil {
			log.Fatalf("Failed to create transcriber: %v", err)
		}
	}

	var generator textgen.Generator
	switch cfg.Generator {
	case "bedrock":
		generator, err = textgen.NewBedrock(ctx, cfg.S3Region)
		if err != nil {
			log.Fatalf("Failed to create generator: %v", err)
		}
	case "openai":
		generator = textgen.NewOpenAI(cfg.OpenAIModel)
	default:
		log.Fatalf("unknown generator %q (expected bedrock or openai)", cfg.Generator)
	}

	mailer, err := mail.NewSESMailer(ctx, cfg.S3Region, cfg.SenderEmail, cfg.RecipientEmail)
	if err != nil {
		log.Fatalf("Failed to create mailer: %v", err)
	}

	dispatcher := pipeline.NewDispatcher(receiver)
	dispatcher.Subscribe(pipeline.AudioPrefix, "", pipeline.NewTranscriptionStage(db, store, transcriber))
	dispatcher.Subscribe(pipeline.TranscriptsPrefix, "", pipeline.NewTaskExtractionStage(db, store, generator))
	dispatcher.Subscribe(pipeline.TasksPrefix, pipeline.TaskSuffix, pipeline.NewNotificationStage(db, store, mailer))

	go dispatcher.Start()

	log.Println("Worker started. Waiting for events. Press Ctrl+C to exit.")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutdown signal received, stopping dispatcher...")
	dispatcher.Stop()

	log.Println("Worker process stopped.")
}
