// The server binary hosts the public HTTP API and the internal gRPC surface.
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
		log.Fatalf("server bootstrap failed: %v", err)
	}
	if err := rt.RunAPI(ctx); err != nil {
		log.Fatalf("server stopped: %v", err)
	}
}
