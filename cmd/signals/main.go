package main

import (
	"flag"
	"log"
	"os"

	"github.com/joho/godotenv"

	"github.com/tadams95/4ex.ninja-sub006/internal/di"
	"github.com/tadams95/4ex.ninja-sub006/pkg/config"
)

func main() {
	configPath := flag.String("config", "config/config.yaml", "config file path")
	envFile := flag.String("env", "", "optional .env file with overrides")
	flag.Parse()

	if *envFile != "" {
		if err := godotenv.Load(*envFile); err != nil {
			log.Fatalf("env file load failed: %v", err)
		}
	}

	cfg, err := config.LoadWithEnv(*configPath)
	if err != nil {
		log.Fatalf("config load failed: %v", err)
	}

	log.Printf("env=%s ws=%s prefs=%s", cfg.Environment, cfg.WS.BaseURL, cfg.Preferences.Storage)

	app, err := di.InitializeApp(cfg)
	if err != nil {
		log.Fatalf("app initialization failed: %v", err)
	}

	if err := app.Run(); err != nil {
		log.Printf("app error: %v", err)
		os.Exit(1)
	}
}
