package main

import (
	"os"

	"github.com/joho/godotenv"

	"github.com/nowwclub/companion-memory/internal/cli"
)

func main() {
	// Optional .env for API keys and paths; absence is fine.
	godotenv.Load()

	if err := cli.RootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
