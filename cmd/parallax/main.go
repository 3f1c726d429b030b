package main

import (
	"github.com/joho/godotenv"

	// Import all available connectors to register them
	_ "github.com/parallaxworks/parallax/pkg/connector/destinations/jsonl"
	_ "github.com/parallaxworks/parallax/pkg/connector/sources/amazonads"
)

func main() {
	// Load .env file if it exists
	_ = godotenv.Load()

	Execute()
}
