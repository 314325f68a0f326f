package main

import (
	"context"
	"errors"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/LeonardoBeccarini/smart_irrigation/internal/decision"
	"github.com/LeonardoBeccarini/smart_irrigation/internal/store"
	"github.com/LeonardoBeccarini/smart_irrigation/internal/trainer"
)

func env(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Printf("warning: .env not loaded: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	dbPath := env("DB_PATH", "db.sqlite3")
	modelPath := env("MODEL_PATH", "pump_decision_model.pb")

	log.Printf("trainer: loading data from %s ...", dbPath)
	st, err := store.OpenExisting(dbPath)
	if err != nil {
		log.Fatalf("trainer: %v", err)
	}
	defer st.Close()

	log.Println("trainer: training KMeans (unsupervised) model ...")
	artifact, err := trainer.New(st, trainer.Config{KMeans: trainer.DefaultKMeansConfig()}).Train(ctx)
	if err != nil {
		log.Fatalf("trainer: %v", err)
	}

	if err := decision.SaveArtifact(modelPath, artifact); err != nil {
		log.Fatalf("trainer: %v", err)
	}
	log.Printf("trainer: model saved to %s, ON cluster label: %d (lower soil moisture)", modelPath, artifact.OnLabel)
}
