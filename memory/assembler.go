package memory

import (
	"context"
	"fmt"
	"log"
	"sort"
	"strings"
	"unicode/utf8"
)

// topicalKeywords route a message to the episodic and semantic tiers:
// these are the subjects guided flows collect literal statements about.
var topicalKeywords = []string{
	"vision", "goal", "dream", "habit", "reminder", "aspiration",
	"remember", "recall", "mentioned", "told you",
}

var interrogativePrefixes = []string{
	"what", "how", "why", "when", "where", "who", "which",
	"do ", "did ", "can ", "could ", "would ", "should ",
}

// classifyMessage buckets a message with cheap heuristics. Simple
// messages are answered from the buffer and profile alone; complex and
// topical ones additionally pay for semantic search and episodic
// lookups. The category doubles as the cache key suffix.
func classifyMessage(msg string) messageCategory {
	lower := strings.ToLower(strings.TrimSpace(msg))

	for _, kw := range topicalKeywords {
		if strings.Contains(lower, kw) {
			return categoryTopical
		}
	}

	if strings.Contains(lower, "?") || len(strings.Fields(lower)) > 5 {
		return categoryComplex
	}
	for _, p := range interrogativePrefixes {
		if strings.HasPrefix(lower, p) {
			return categoryComplex
		}
	}
	return categorySimple
}

// contextSection is one tier's contribution, listed in priority order.
type contextSection struct {
	title string
	body  string
}

// BuildContext assembles the bounded context string for the user's next
// response. The result is cached per (user, category) under the
// configured TTL; Record invalidates the entries so a hit never
// predates the latest exchange. Tier failures degrade the context
// instead of failing the build — the error return only covers invalid
// arguments.
func (m *Manager) BuildContext(ctx context.Context, userID, message string) (string, error) {
	if userID == "" {
		return "", fmt.Errorf("memory: user id is required")
	}

	cat := classifyMessage(message)
	if cached, ok := m.cache.get(userID, cat); ok {
		return cached, nil
	}

	gen := m.cacheGeneration(userID)

	buf := m.buffers.get(userID)
	var sections []contextSection

	if state := buf.SummaryState(userID); state.RollingSummary != "" {
		sections = append(sections, contextSection{"Recent Conversation Summary", state.RollingSummary})
	}

	if recent := buf.Recent(m.cfg.Window); len(recent) > 0 {
		var sb strings.Builder
		for _, t := range recent {
			label := "Human"
			if t.Role == RoleAgent {
				label = "Agent"
			}
			fmt.Fprintf(&sb, "%s: %s\n", label, t.Text)
		}
		sections = append(sections, contextSection{"Recent Messages", strings.TrimRight(sb.String(), "\n")})
	}

	if cat != categorySimple {
		if body := m.semanticSection(ctx, userID, message); body != "" {
			sections = append(sections, contextSection{"Relevant Memories", body})
		}
		if body := m.episodicSection(ctx, userID); body != "" {
			sections = append(sections, contextSection{"Flow Highlights", body})
		}
	}

	if body := m.profileSection(ctx, userID); body != "" {
		sections = append(sections, contextSection{"User Profile", body})
	}

	text := assembleBounded(sections, m.cfg.ContextBudget)

	// Cache only if no Record landed while the tiers were being read,
	// and re-check afterwards: a bump racing the set means the entry
	// may predate the newest turn, so it is dropped either way.
	if m.cacheGeneration(userID) == gen {
		m.cache.set(userID, cat, text)
		if m.cacheGeneration(userID) != gen {
			m.cache.invalidateUser(userID)
		}
	}
	return text, nil
}

// semanticSection runs the long-term search, degrading to nothing on
// failure so the build continues with short-term context only.
func (m *Manager) semanticSection(ctx context.Context, userID, message string) string {
	records, err := m.Search(ctx, userID, message, m.cfg.SearchK)
	if err != nil {
		log.Printf("[MEMORY] Semantic tier unavailable for user=%s, using short-term only: %v", userID, err)
		return ""
	}
	var lines []string
	for _, r := range records {
		lines = append(lines, "- "+r.Text)
	}
	return strings.Join(lines, "\n")
}

// episodicSection surfaces the most recent flow records. Episodic
// entries hold the user's literal words, so they are preferred over
// paraphrased aggregates by downstream generation.
func (m *Manager) episodicSection(ctx context.Context, userID string) string {
	sctx, cancel := m.timeout(ctx)
	defer cancel()
	episodes, err := m.durable.Episodes(sctx, userID, "")
	if err != nil {
		log.Printf("[MEMORY] Episodic tier unavailable for user=%s: %v", userID, err)
		return ""
	}
	const maxHighlights = 5
	if len(episodes) > maxHighlights {
		episodes = episodes[len(episodes)-maxHighlights:]
	}
	var lines []string
	for _, e := range episodes {
		lines = append(lines, fmt.Sprintf("- [%s #%d] %s", e.Theme, e.SequenceNo, e.RawText))
	}
	return strings.Join(lines, "\n")
}

// profileSection renders consolidated traits, preferences and goals.
// Map iteration order is sorted so repeated builds are byte-identical
// and cacheable.
func (m *Manager) profileSection(ctx context.Context, userID string) string {
	sctx, cancel := m.timeout(ctx)
	defer cancel()
	p, err := m.durable.Profile(sctx, userID)
	if err != nil {
		log.Printf("[MEMORY] Profile tier unavailable for user=%s: %v", userID, err)
		return ""
	}
	if p == nil {
		return ""
	}

	var lines []string
	if len(p.Traits) > 0 {
		lines = append(lines, "Traits: "+joinSorted(p.Traits))
	}
	if len(p.Preferences) > 0 {
		lines = append(lines, "Preferences: "+joinSorted(p.Preferences))
	}
	if len(p.Goals) > 0 {
		lines = append(lines, "Goals: "+strings.Join(p.Goals, "; "))
	}
	return strings.Join(lines, "\n")
}

func joinSorted(m map[string]string) string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+m[k])
	}
	return strings.Join(parts, ", ")
}

// assembleBounded joins the sections in priority order, dropping whole
// sections from the lowest-priority end until the budget fits, then
// hard-trimming as a last resort.
func assembleBounded(sections []contextSection, budget int) string {
	render := func(ss []contextSection) string {
		parts := make([]string, 0, len(ss))
		for _, s := range ss {
			parts = append(parts, "## "+s.title+"\n"+s.body)
		}
		return strings.Join(parts, "\n\n")
	}

	text := render(sections)
	for len(text) > budget && len(sections) > 1 {
		sections = sections[:len(sections)-1]
		text = render(sections)
	}
	if len(text) > budget {
		// Back up to a rune boundary so the trim never emits a split
		// multi-byte character.
		cut := budget
		for cut > 0 && !utf8.RuneStart(text[cut]) {
			cut--
		}
		text = text[:cut]
	}
	return text
}
