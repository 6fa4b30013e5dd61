// Package cli implements the companion-memory CLI commands.
package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/nowwclub/companion-memory/memory"
	chromemstore "github.com/nowwclub/companion-memory/memory/store/chromem"
	"github.com/nowwclub/companion-memory/memory/store/fallback"
	"github.com/nowwclub/companion-memory/memory/store/sqlite"
)

var (
	dbPath    string
	vectorDir string
	userID    string
)

// RootCmd is the top-level command.
var RootCmd = &cobra.Command{
	Use:   "companion-memory",
	Short: "Tiered conversational memory for companion agents",
	Long: "Records conversation turns into a short-term buffer, a semantic vector store,\n" +
		"an episodic flow log and a consolidated user profile, and assembles bounded\n" +
		"context strings for prompting. SQLite and chromem backed, single binary.",
}

func init() {
	RootCmd.PersistentFlags().StringVar(&dbPath, "db", "", "SQLite path (default: $COMPANION_MEMORY_DB or ~/.companion-memory/memory.db)")
	RootCmd.PersistentFlags().StringVar(&vectorDir, "vector-dir", "", "Vector store dir (default: $COMPANION_MEMORY_VECTORS or ~/.companion-memory/vectors)")
	RootCmd.PersistentFlags().StringVarP(&userID, "user", "u", "", "User id (required)")
	RootCmd.MarkPersistentFlagRequired("user")
}

func getDBPath() string {
	if dbPath != "" {
		return dbPath
	}
	if env := os.Getenv("COMPANION_MEMORY_DB"); env != "" {
		return env
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".companion-memory", "memory.db")
}

func getVectorDir() string {
	if vectorDir != "" {
		return vectorDir
	}
	if env := os.Getenv("COMPANION_MEMORY_VECTORS"); env != "" {
		return env
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".companion-memory", "vectors")
}

// openManager wires the durable backends and provider clients from the
// environment. Without API keys it falls back to the deterministic mock
// embedder and runs without a summarizer.
func openManager() (*memory.Manager, *sqlite.Store, error) {
	durable, err := sqlite.New(getDBPath())
	if err != nil {
		return nil, nil, fmt.Errorf("open sqlite: %w", err)
	}

	var semantic memory.SemanticStore
	semantic, err = chromemstore.NewPersistent(getVectorDir())
	if err != nil {
		// Vector storage is not worth aborting over: memories written
		// through the fallback just do not survive this process.
		fmt.Fprintf(os.Stderr, "warning: vector store unavailable, using in-process fallback: %v\n", err)
		semantic = fallback.New()
	}

	emb, err := buildEmbedder()
	if err != nil {
		durable.Close()
		return nil, nil, err
	}

	mgr, err := memory.NewManager(semantic, durable, emb, buildSummarizer(), nil)
	if err != nil {
		durable.Close()
		return nil, nil, err
	}
	return mgr, durable, nil
}

func exitErr(msg string, err error) {
	fmt.Fprintf(os.Stderr, "error: %s: %v\n", msg, err)
	os.Exit(1)
}
