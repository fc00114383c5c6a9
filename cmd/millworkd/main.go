// Command millworkd runs the millwork daemon: the dispatch trigger plus the
// HTTP API, holding the single-instance lock until terminated.
package main

import (
	"context"
	"flag"
	"log"

	"millwork/internal/config"
	"millwork/internal/daemonrun"
)

func main() {
	configPath := flag.String("config", "", "configuration file path")
	logLevel := flag.String("log-level", "", "override the configured log level")
	flag.Parse()

	cfg, _, _, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	if err := cfg.EnsureDirectories(); err != nil {
		log.Fatalf("ensure directories: %v", err)
	}

	if err := daemonrun.Run(context.Background(), cfg, daemonrun.Options{LogLevel: *logLevel}); err != nil {
		log.Fatalf("millworkd: %v", err)
	}
}
