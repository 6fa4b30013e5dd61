package memory

import "strings"

// significanceKeywords are the markers of an exchange worth retaining
// long-term. Each match adds keywordBonus, capped at keywordBonusCap.
var significanceKeywords = []string{
	"remember", "important", "preference", "like", "dislike", "goal",
	"plan", "schedule", "appointment", "birthday", "anniversary",
	"family", "work", "hobby", "interest", "problem", "issue",
}

const (
	baseImportance  = 0.5
	keywordBonus    = 0.1
	keywordBonusCap = 0.3
	lengthBonus     = 0.1
	importantBonus  = 0.3
)

// scoreImportance computes the deterministic retention score for an
// exchange: base 0.5, +0.1 per matched significance keyword (capped at
// +0.3), +0.1 when the human message exceeds the length threshold,
// +0.3 when metadata marks the exchange important, clamped to [0,1].
func scoreImportance(humanText, agentText string, meta *TurnMetadata, lengthThreshold int) float64 {
	importance := baseImportance

	text := strings.ToLower(humanText + " " + agentText)
	var bonus float64
	for _, kw := range significanceKeywords {
		if strings.Contains(text, kw) {
			bonus += keywordBonus
		}
	}
	if bonus > keywordBonusCap {
		bonus = keywordBonusCap
	}
	importance += bonus

	if len(humanText) > lengthThreshold {
		importance += lengthBonus
	}

	if meta != nil && meta.Important {
		importance += importantBonus
	}

	return clamp01(importance)
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
