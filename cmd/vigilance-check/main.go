// vigilance-check runs one alert cycle from the command line and prints the
// summary as JSON. With -reset it clears the dedup state instead.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"

	"github.com/lverdier/meteo-vigilance/internal/alert"
	"github.com/lverdier/meteo-vigilance/internal/config"
	"github.com/lverdier/meteo-vigilance/internal/delivery"
	"github.com/lverdier/meteo-vigilance/internal/logging"
	"github.com/lverdier/meteo-vigilance/internal/observability"
	"github.com/lverdier/meteo-vigilance/internal/repository"
	"github.com/lverdier/meteo-vigilance/internal/weather"
)

func main() {
	reset := flag.Bool("reset", false, "clear the alert dedup state and exit")
	flag.Parse()

	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		logging.Fatalf("Fatal while loading config: %v", err)
	}
	logging.Setup(cfg.Logging.Level, cfg.Logging.Format)

	db, err := repository.NewSQLiteDB(cfg.DB.Path)
	if err != nil {
		logging.Fatalf("Failed to initialize database: %v", err)
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	sms := delivery.NewBrevoSMS(cfg.Brevo)
	email := delivery.NewBrevoEmail(cfg.Brevo)
	weatherClient := weather.NewClient(cfg.Weather)

	engine := alert.NewEngine(weatherClient, db, db, sms, email, cfg.Worker.Count,
		observability.NewMetrics(), cfg.Alert)
	if err := engine.LoadState(ctx); err != nil {
		logging.Fatalf("Failed to load alert state: %v", err)
	}

	if *reset {
		if err := engine.ResetState(ctx); err != nil {
			logging.Fatalf("Failed to reset alert state: %v", err)
		}
		fmt.Println(`{"reset": true}`)
		return
	}

	summary, err := engine.CheckAndBroadcast(ctx)
	if err != nil {
		logging.Fatalf("Cycle failed: %v", err)
	}

	out, _ := json.MarshalIndent(summary, "", "  ")
	fmt.Println(string(out))

	if summary.Status == alert.StatusAlertsSent && summary.TotalSent == 0 {
		os.Exit(1)
	}
}
