package memory

import "testing"

func TestScoreImportance_Base(t *testing.T) {
	got := scoreImportance("hello there", "hi", nil, 50)
	if got != 0.5 {
		t.Errorf("expected base score 0.5, got %v", got)
	}
}

func TestScoreImportance_KeywordBonus(t *testing.T) {
	// One keyword: +0.1.
	got := scoreImportance("remember this", "ok", nil, 50)
	if got != 0.6 {
		t.Errorf("expected 0.6 for one keyword, got %v", got)
	}

	// Two keywords across both texts: +0.2.
	got = scoreImportance("remember my goal", "ok", nil, 50)
	if got != 0.7 {
		t.Errorf("expected 0.7 for two keywords, got %v", got)
	}
}

func TestScoreImportance_KeywordBonusCap(t *testing.T) {
	// Five keywords still cap at +0.3.
	got := scoreImportance("remember my goal and plan", "noted your preference and hobby", nil, 50)
	if got != 0.8 {
		t.Errorf("expected keyword bonus capped at 0.8, got %v", got)
	}
}

func TestScoreImportance_LengthBonus(t *testing.T) {
	long := "this message is deliberately padded until it exceeds the length threshold"
	got := scoreImportance(long, "ok", nil, 50)
	if got != 0.6 {
		t.Errorf("expected 0.6 with length bonus, got %v", got)
	}

	// The agent reply length does not count.
	got = scoreImportance("hi", long, nil, 50)
	if got != 0.5 {
		t.Errorf("agent length should not add bonus, got %v", got)
	}
}

func TestScoreImportance_ImportantMetadata(t *testing.T) {
	meta := &TurnMetadata{Kind: MetaKindPlain, Important: true}
	got := scoreImportance("hello", "hi", meta, 50)
	if got != 0.8 {
		t.Errorf("expected 0.8 with important metadata, got %v", got)
	}
}

func TestScoreImportance_ClampedAtOne(t *testing.T) {
	long := "remember my goal and plan for the family birthday schedule, this is long enough for the bonus too"
	meta := &TurnMetadata{Kind: MetaKindPlain, Important: true}
	got := scoreImportance(long, "noted", meta, 50)
	if got != 1.0 {
		t.Errorf("expected clamp at 1.0, got %v", got)
	}
}

func TestScoreImportance_CaseInsensitive(t *testing.T) {
	got := scoreImportance("REMEMBER this", "ok", nil, 50)
	if got != 0.6 {
		t.Errorf("expected case-insensitive keyword match, got %v", got)
	}
}
