package contextmgr

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/parleyhq/parley/internal/llm"
	"github.com/parleyhq/parley/internal/prompts"
	"github.com/parleyhq/parley/internal/transcript"
)

// Decision is the detector's verdict for a single utterance.
type Decision struct {
	Changed  bool
	Name     string
	Keywords []string
}

// defaultMarkers are phrases that strongly signal an explicit topic
// transition. The quick check is case-insensitive substring matching.
var defaultMarkers = []string{
	"moving on",
	"next topic",
	"next item",
	"let's switch",
	"lets switch",
	"switching gears",
	"on another note",
	"next on the agenda",
	"that wraps up",
	"let's talk about",
	"lets talk about",
}

// Detector decides when the conversation has moved to a new topic. It runs
// two tiers: a cheap keyword check on every utterance, and an LLM check
// every checkInterval turns. Any LLM failure resolves to "no transition"
// so a flaky model can never fragment the topic timeline.
type Detector struct {
	client        llm.Client
	library       *prompts.Library
	logger        *slog.Logger
	markers       []string
	checkInterval int
	quickEnabled  bool

	turnsSinceCheck int
}

type DetectorConfig struct {
	CheckIntervalTurns int
	QuickCheckEnabled  bool
	ExtraMarkers       []string
}

func NewDetector(client llm.Client, library *prompts.Library, logger *slog.Logger, cfg DetectorConfig) *Detector {
	if cfg.CheckIntervalTurns < 1 {
		cfg.CheckIntervalTurns = 10
	}
	markers := make([]string, 0, len(defaultMarkers)+len(cfg.ExtraMarkers))
	markers = append(markers, defaultMarkers...)
	for _, marker := range cfg.ExtraMarkers {
		marker = strings.ToLower(strings.TrimSpace(marker))
		if marker != "" {
			markers = append(markers, marker)
		}
	}
	return &Detector{
		client:        client,
		library:       library,
		logger:        logger,
		markers:       markers,
		checkInterval: cfg.CheckIntervalTurns,
		quickEnabled:  cfg.QuickCheckEnabled,
	}
}

// Check evaluates the newest utterance against the current topic. window is
// the recent raw context, newest last.
func (d *Detector) Check(ctx context.Context, currentTopic string, u transcript.Utterance, window []transcript.Utterance) Decision {
	if d.quickEnabled && d.quickCheck(u.Text) {
		d.turnsSinceCheck = 0
		return d.llmConfirm(ctx, currentTopic, window, true)
	}

	d.turnsSinceCheck++
	if d.turnsSinceCheck < d.checkInterval {
		return Decision{}
	}
	d.turnsSinceCheck = 0
	return d.llmConfirm(ctx, currentTopic, window, false)
}

func (d *Detector) quickCheck(text string) bool {
	lowered := strings.ToLower(text)
	for _, marker := range d.markers {
		if strings.Contains(lowered, marker) {
			return true
		}
	}
	return false
}

type topicCheckReply struct {
	SameTopic bool     `json:"same_topic"`
	Name      string   `json:"name"`
	Keywords  []string `json:"keywords"`
}

// llmConfirm asks the model whether the topic changed. markerHit biases
// nothing in the prompt; it only affects what we do when the model cannot
// be reached: even an explicit marker does not force a transition without
// confirmation, because markers misfire on quoted or hypothetical speech.
func (d *Detector) llmConfirm(ctx context.Context, currentTopic string, window []transcript.Utterance, markerHit bool) Decision {
	prompt := d.library.Render(prompts.TopicCheck, currentTopic, renderTurns(window))
	raw, err := d.client.Complete(ctx, llm.Request{Prompt: prompt, MaxTokens: 300})
	if err != nil {
		d.logger.Warn("topic check unavailable, keeping current topic",
			"topic", currentTopic, "marker_hit", markerHit, "error", err)
		return Decision{}
	}

	var reply topicCheckReply
	if err := llm.DecodeJSON(raw, &reply); err != nil {
		d.logger.Warn("topic check reply unparseable, keeping current topic",
			"topic", currentTopic, "error", err)
		return Decision{}
	}
	if reply.SameTopic {
		return Decision{}
	}
	name := strings.TrimSpace(reply.Name)
	if name == "" {
		name = "Untitled topic"
	}
	return Decision{Changed: true, Name: name, Keywords: reply.Keywords}
}

func renderTurns(window []transcript.Utterance) string {
	var b strings.Builder
	for _, u := range window {
		fmt.Fprintf(&b, "[%d] %s: %s\n", u.ID, u.SpeakerName, u.Text)
	}
	return b.String()
}
