package main

import (
	"context"
	"flag"
	"log"
	"log/slog"
	"strings"

	"github.com/ncecere/viberank/internal/config"
	"github.com/ncecere/viberank/internal/database"
	"github.com/ncecere/viberank/internal/submissions"
	"github.com/ncecere/viberank/internal/validation"
)

func main() {
	configFile := flag.String("config", "", "path to viberank config file")
	pattern := flag.String("pattern", "", "username glob to delete, e.g. spam-bot-*")
	dryRun := flag.Bool("dry-run", false, "list matches without deleting")
	flag.Parse()

	if strings.TrimSpace(*pattern) == "" {
		log.Fatalf("-pattern is required")
	}

	cfg, err := config.Load(config.Options{ConfigFile: *configFile})
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	ctx := context.Background()
	st, closeStore, err := database.OpenStore(ctx, cfg.Database)
	if err != nil {
		log.Fatalf("open store: %v", err)
	}
	defer closeStore()

	svc := submissions.NewService(st, validation.New(validation.DefaultLimits()), slog.Default())
	result, err := svc.Purge(ctx, *pattern, *dryRun)
	if err != nil {
		log.Fatalf("purge: %v", err)
	}

	verb := "deleted"
	if result.DryRun {
		verb = "would delete"
	}
	for _, username := range result.Usernames {
		log.Printf("%s submissions for %s", verb, username)
	}
	log.Printf("%s %d submissions and %d profiles", verb, result.SubmissionsDeleted, result.ProfilesDeleted)
}
