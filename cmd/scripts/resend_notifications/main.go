package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/regdesk/backend/internal/config"
	"github.com/regdesk/backend/internal/models"
	"github.com/regdesk/backend/internal/services"
	"github.com/regdesk/backend/internal/storage"

	_ "time/tzdata"
)

// Re-sends decision emails for one team or for every team whose delivery
// failed or got stuck. Runs against the same config as the server.
func main() {
	teamID := flag.String("team", "", "team id to re-send")
	all := flag.Bool("all", false, "re-send every failed or stale delivery")
	force := flag.Bool("force", false, "re-send even if the last delivery succeeded (requires -team)")
	actor := flag.String("actor", services.ActorSystem, "name recorded in the audit log")
	dryRun := flag.Bool("dry-run", false, "list the teams without sending")
	flag.Parse()

	if (*teamID == "") == !*all {
		fmt.Fprintln(os.Stderr, "exactly one of -team or -all is required")
		flag.Usage()
		os.Exit(2)
	}
	if *force && *all {
		log.Fatalf("-force is only allowed together with -team")
	}

	cfg, err := config.Load(os.Getenv("CONFIG_PATH"))
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	db, err := models.Open(&cfg.Database)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	fmt.Println("Connected to database successfully!")

	var targets []string
	if *teamID != "" {
		targets = []string{*teamID}
	} else {
		teams, err := services.NewRetryService(db, nil, cfg.Workflow).FindUndelivered()
		if err != nil {
			log.Fatalf("Failed to query undelivered teams: %v", err)
		}
		for _, t := range teams {
			targets = append(targets, t.ID)
		}
	}

	fmt.Printf("Teams to re-send: %d\n", len(targets))
	if *dryRun || len(targets) == 0 {
		for _, id := range targets {
			fmt.Println("  " + id)
		}
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	blobs, err := storage.New(ctx, &cfg.Storage)
	if err != nil {
		log.Fatalf("Failed to initialize storage: %v", err)
	}
	defer blobs.Close()

	settings := services.NewEventSettingService(db, cfg.Workflow.EventTimezone)
	snapshot, err := settings.Snapshot()
	if err != nil {
		log.Fatalf("Failed to load event settings: %v", err)
	}
	verifier := services.NewVerificationService(services.NewGormTeamStore(db), blobs, services.NewEmailService(&cfg.SMTP), cfg.Workflow)

	var sent, skipped, failed int
	for _, id := range targets {
		result, err := verifier.ResendNotification(context.Background(), id, *actor, *force, snapshot)
		switch {
		case errors.Is(err, services.ErrNothingToResend), errors.Is(err, services.ErrInvalidStateTransition):
			skipped++
			fmt.Printf("%-36s skipped: %v\n", id, err)
		case err != nil:
			failed++
			fmt.Printf("%-36s error: %v\n", id, err)
		case result.Notified:
			sent++
			fmt.Printf("%-36s sent\n", id)
		default:
			failed++
			fmt.Printf("%-36s failed: %v\n", id, result.Issues)
		}
	}

	fmt.Println("")
	fmt.Printf("Sent: %d, skipped: %d, failed: %d\n", sent, skipped, failed)
	if failed > 0 {
		os.Exit(1)
	}
}
