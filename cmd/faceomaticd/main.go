// Command faceomaticd runs the faceomatic daemon with the default
// configuration lookup. It is the entry point used by service managers.
package main

import (
	"context"
	"errors"
	"log"
	"os"

	"faceomatic/internal/config"
	"faceomatic/internal/daemonrun"
)

func main() {
	cfg, _, _, err := config.Load(os.Getenv("FACEOMATIC_CONFIG"))
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	if err := daemonrun.Run(context.Background(), cfg, daemonrun.Options{}); err != nil && !errors.Is(err, context.Canceled) {
		log.Fatalf("daemon: %v", err)
	}
}
