// The worker binary drains the transactional outbox and prunes expired
// replay nonces. It shares bootstrap wiring with the API server so both
// binaries read one configuration.
package main

import (
	"context"
	"log"
	"os"

	"github.com/bubblehq/bubble-backend/internal/app/bootstrap"
)

func main() {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "configs/default.yaml"
	}

	ctx := context.Background()
	rt, err := bootstrap.NewRuntime(ctx, configPath)
	if err != nil {
		log.Fatalf("worker bootstrap failed: %v", err)
	}
	if err := rt.RunWorker(ctx); err != nil {
		log.Fatalf("worker stopped: %v", err)
	}
}
