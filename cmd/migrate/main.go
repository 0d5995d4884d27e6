// Command migrate applies the embedded auth schema migrations.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/canvasforge/authcore/internal/config"
	"github.com/canvasforge/authcore/postgres"
)

func main() {
	direction := flag.String("direction", "up", "migration direction: up or down")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	if err := postgres.Migrate(cfg.DatabaseURL, *direction); err != nil {
		fmt.Fprintf(os.Stderr, "migrate: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("migrations %s: ok\n", *direction)
}
