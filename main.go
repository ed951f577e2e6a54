package main

import (
	"log"
	"os"

	"streetlegacy/combat"
	"streetlegacy/database"
	"streetlegacy/scheduler"
	"streetlegacy/web"

	"github.com/jmoiron/sqlx"
	"github.com/joho/godotenv"
	_ "github.com/mattn/go-sqlite3"
)

func main() {
	// Load environment variables
	if err := godotenv.Load(); err != nil {
		log.Printf("Warning: Could not load .env file: %v", err)
	}

	// Connect to database
	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		dbURL = "./streetlegacy.db"
	}

	db, err := sqlx.Connect("sqlite3", dbURL)
	if err != nil {
		log.Fatal("Failed to connect to database:", err)
	}
	defer db.Close()

	if err := database.Migrate(db); err != nil {
		log.Fatal("Failed to migrate database:", err)
	}

	// Combat tuning: compiled defaults, optionally overlaid from YAML
	tuning, err := combat.LoadTuning(os.Getenv("COMBAT_TUNING"))
	if err != nil {
		log.Fatal("Failed to load combat tuning:", err)
	}

	repo := database.NewRepository(db)
	service := combat.NewService(repo, tuning)

	// Forfeit idle sessions in the background
	sweeper := scheduler.NewSweeper(service)
	sweeper.Start()
	defer sweeper.Stop()

	sessionSecret := os.Getenv("SESSION_SECRET")
	if sessionSecret == "" {
		log.Fatal("SESSION_SECRET environment variable is required")
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	log.Printf("🥊 Street Legacy combat service ready")

	server := web.NewServer(repo, service, sessionSecret)
	if err := server.Start(port); err != nil {
		log.Fatal("Failed to start web server:", err)
	}
}
