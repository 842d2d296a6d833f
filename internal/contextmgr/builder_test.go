package contextmgr

import (
	"errors"
	"strings"
	"testing"

	"github.com/parleyhq/parley/internal/transcript"
)

func sampleSnapshot() ContextSnapshot {
	return ContextSnapshot{
		MeetingID: "m-1",
		State:     StateActive,
		Window: []transcript.Utterance{
			makeUtterance(4, "we agreed to ship on friday"),
			makeUtterance(5, "bob will own the rollout"),
		},
		WindowTokens: 12,
		Segments: []TopicSegment{
			{
				ID: 1, Name: "Planning", StartUtteranceID: 1, EndUtteranceID: 3,
				Summary:      "planned the release",
				KeyDecisions: []string{"ship on friday"},
				PendingItems: []string{"confirm QA signoff"},
				Keywords:     []string{"release", "friday"},
			},
			{
				ID: 2, Name: "Rollout", StartUtteranceID: 4, EndUtteranceID: -1,
				Summary:   "discussing rollout ownership",
				KeyPoints: []string{"bob owns rollout"},
			},
		},
		ActiveTopic: "Rollout",
		Speakers:    []string{"Alice", "Bob"},
	}
}

func TestBuild_Deterministic(t *testing.T) {
	snap := sampleSnapshot()
	for _, callType := range []CallType{CallImmediateResponse, CallSummary, CallActionExtraction, CallSearch} {
		first, err := Build(snap, callType)
		if err != nil {
			t.Fatalf("%s: %v", callType, err)
		}
		second, err := Build(snap, callType)
		if err != nil {
			t.Fatal(err)
		}
		if first.Text != second.Text {
			t.Errorf("%s: rendering is not deterministic", callType)
		}
		if first.Tokens == 0 {
			t.Errorf("%s: expected a nonzero token estimate", callType)
		}
		if first.TopicCount != 2 {
			t.Errorf("%s: expected topic count 2, got %d", callType, first.TopicCount)
		}
	}
}

func TestBuild_ImmediateResponsePayload(t *testing.T) {
	payload, err := Build(sampleSnapshot(), CallImmediateResponse)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(payload.Text, "bob will own the rollout") {
		t.Error("immediate payload must carry the raw window")
	}
	if !strings.Contains(payload.Text, "discussing rollout ownership") {
		t.Error("immediate payload must carry the active topic summary")
	}
	if strings.Contains(payload.Text, "planned the release") {
		t.Error("immediate payload must not carry closed topic summaries")
	}
}

func TestBuild_SummaryPayload(t *testing.T) {
	payload, err := Build(sampleSnapshot(), CallSummary)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(payload.Text, "planned the release") {
		t.Error("summary payload must include every topic summary")
	}
	if !strings.Contains(payload.Text, "turns 4..now") {
		t.Error("open topics must render with an open range")
	}
	if strings.Contains(payload.Text, "Recent transcript") {
		t.Error("summary payload must not carry the raw window")
	}
}

func TestBuild_ActionExtractionPayload(t *testing.T) {
	payload, err := Build(sampleSnapshot(), CallActionExtraction)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(payload.Text, "we agreed to ship on friday") {
		t.Error("action payload must carry the raw window")
	}
	if !strings.Contains(payload.Text, "Planning: confirm QA signoff") {
		t.Error("action payload must carry pending items from earlier topics")
	}
}

func TestBuild_SearchPayload(t *testing.T) {
	payload, err := Build(sampleSnapshot(), CallSearch)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(payload.Text, "[release, friday]") {
		t.Error("search payload must carry topic keywords")
	}
	if strings.Contains(payload.Text, "bob will own the rollout") {
		t.Error("search payload must not carry transcript text")
	}
}

func TestBuild_UnknownCallType(t *testing.T) {
	_, err := Build(sampleSnapshot(), CallType("bogus"))
	if !errors.Is(err, ErrUnknownCallType) {
		t.Fatalf("expected ErrUnknownCallType, got %v", err)
	}
}
