package memory

import "time"

// Config holds the tunables of the memory core. The threshold and TTL
// defaults are empirically chosen starting points, not contracts.
type Config struct {
	// ImportanceThreshold gates writes into the semantic tier.
	// Exchanges scoring at or above it are retained long-term.
	ImportanceThreshold float64

	// Window is the number of verbatim turns the short-term buffer
	// holds before folding the oldest into the rolling summary.
	Window int

	// ConsolidateEvery triggers a profile consolidation after this
	// many recorded exchanges for a user.
	ConsolidateEvery int

	// CacheTTL bounds how long an assembled context may be served
	// from cache. Sensible values are 3 to 10 minutes.
	CacheTTL time.Duration

	// ContextBudget is the maximum length in bytes of an assembled
	// context string.
	ContextBudget int

	// SearchK is how many semantic matches a context build requests.
	SearchK int

	// CallTimeout bounds every call to an external collaborator
	// (embedder, summarizer, backing store).
	CallTimeout time.Duration

	// LengthThreshold is the human-message length above which an
	// exchange earns the length bonus.
	LengthThreshold int
}

// DefaultConfig returns the defaults used when NewManager receives a
// nil config.
var DefaultConfig = &Config{
	ImportanceThreshold: 0.3,
	Window:              12,
	ConsolidateEvery:    10,
	CacheTTL:            5 * time.Minute,
	ContextBudget:       4000,
	SearchK:             4,
	CallTimeout:         5 * time.Second,
	LengthThreshold:     50,
}

// withDefaults fills zero fields from DefaultConfig so partially
// populated configs behave sensibly.
func (c *Config) withDefaults() *Config {
	out := *c
	if out.ImportanceThreshold == 0 {
		out.ImportanceThreshold = DefaultConfig.ImportanceThreshold
	}
	if out.Window == 0 {
		out.Window = DefaultConfig.Window
	}
	if out.ConsolidateEvery == 0 {
		out.ConsolidateEvery = DefaultConfig.ConsolidateEvery
	}
	if out.CacheTTL == 0 {
		out.CacheTTL = DefaultConfig.CacheTTL
	}
	if out.ContextBudget == 0 {
		out.ContextBudget = DefaultConfig.ContextBudget
	}
	if out.SearchK == 0 {
		out.SearchK = DefaultConfig.SearchK
	}
	if out.CallTimeout == 0 {
		out.CallTimeout = DefaultConfig.CallTimeout
	}
	if out.LengthThreshold == 0 {
		out.LengthThreshold = DefaultConfig.LengthThreshold
	}
	return &out
}
