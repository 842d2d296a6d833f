package transcript

import (
	"errors"
	"strings"
	"testing"
	"time"
)

func TestNormalize_ClampsAndDefaults(t *testing.T) {
	segment := STTSegment{
		SpeakerID:  " spk-1 ",
		Text:       "  hello there  ",
		StartMS:    2000,
		EndMS:      1000,
		Confidence: 1.7,
	}
	u, err := Normalize(segment, 5)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if u.ID != 5 {
		t.Errorf("expected id 5, got %d", u.ID)
	}
	if u.Text != "hello there" {
		t.Errorf("expected trimmed text, got %q", u.Text)
	}
	if u.Confidence != 1 {
		t.Errorf("expected confidence clamped to 1, got %f", u.Confidence)
	}
	if u.EndMS != u.StartMS {
		t.Errorf("expected end clamped to start, got %d", u.EndMS)
	}
	if u.SpeakerName != "spk-1" {
		t.Errorf("expected speaker name fallback, got %q", u.SpeakerName)
	}
	if u.Timestamp.IsZero() {
		t.Error("expected timestamp to be filled")
	}
	if u.TopicID != -1 {
		t.Errorf("expected unassigned topic, got %d", u.TopicID)
	}
}

func TestNormalize_RejectsEmptyText(t *testing.T) {
	_, err := Normalize(STTSegment{Text: "   "}, 1)
	if !errors.Is(err, ErrEmptyText) {
		t.Fatalf("expected ErrEmptyText, got %v", err)
	}
}

func TestNormalize_KeepsProvidedTimestamp(t *testing.T) {
	ts := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	u, err := Normalize(STTSegment{Text: "ok", Timestamp: ts}, 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !u.Timestamp.Equal(ts) {
		t.Errorf("expected %v, got %v", ts, u.Timestamp)
	}
}

func TestEstimateTokens_MonotonicInLength(t *testing.T) {
	previous := 0
	text := ""
	for i := 0; i < 40; i++ {
		text += "word "
		estimate := EstimateTokens(text)
		if estimate < previous {
			t.Fatalf("estimate decreased from %d to %d at length %d", previous, estimate, len(text))
		}
		previous = estimate
	}
}

func TestEstimateTokens_EmptyIsZero(t *testing.T) {
	if got := EstimateTokens("   "); got != 0 {
		t.Fatalf("expected 0, got %d", got)
	}
}

func TestEstimateTokens_Deterministic(t *testing.T) {
	text := strings.Repeat("alpha beta gamma ", 10)
	first := EstimateTokens(text)
	for i := 0; i < 5; i++ {
		if EstimateTokens(text) != first {
			t.Fatal("estimate is not deterministic")
		}
	}
}
