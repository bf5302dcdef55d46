package main

import (
	"encoding/json"
	"flag"
	"log"
	"os"

	"github.com/ncecere/viberank/internal/config"
)

func main() {
	configFile := flag.String("config", "", "path to viberank config file")
	flag.Parse()

	cfg, err := config.Load(config.Options{ConfigFile: *configFile})
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	if cfg.Auth.Session.JWTSecret != "" {
		cfg.Auth.Session.JWTSecret = "[redacted]"
	}
	if cfg.Auth.GitHub.ClientSecret != "" {
		cfg.Auth.GitHub.ClientSecret = "[redacted]"
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(cfg); err != nil {
		log.Fatalf("encode config: %v", err)
	}
}
