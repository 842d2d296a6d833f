package prompts

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// Template names. On-disk overrides are resolved as <name>.md under the
// prompts directory.
const (
	TopicCheck        = "topic_check"
	SummaryFirstPass  = "summary_first_pass"
	SummaryMerge      = "summary_merge"
	MentionSystem     = "mention_system"
	MentionValidate   = "mention_validate"
	ActionExtract     = "action_extract"
	ActionEvaluate    = "action_evaluate"
	MinutesExtract    = "minutes_extract"
	MinutesMergeChunk = "minutes_merge_chunk"
	OrchestratePlan   = "orchestrate_plan"
	OrchestrateAnswer = "orchestrate_answer"
)

var builtin = map[string]string{
	TopicCheck: `You monitor a live meeting transcript for topic changes.
Current topic: %q

Recent turns:
%s

Decide whether the most recent turns are still about the current topic.
Respond with JSON only:
{"same_topic": true|false, "name": "<new topic name if changed>", "keywords": ["..."]}`,

	SummaryFirstPass: `Summarize this meeting discussion segment.

Topic: %q
Transcript:
%s

Respond with JSON only:
{"summary": "...", "key_points": ["..."], "key_decisions": ["..."], "pending_items": ["..."], "participants": ["..."], "keywords": ["..."]}
Keep at most %d items per list. Keep the summary under %d tokens.`,

	SummaryMerge: `Update a running meeting-topic summary with new turns.

Topic: %q
Previous summary:
%s

Previously captured key points:
%s

New transcript turns:
%s

Merge the new turns into the summary. Deduplicate, compress, and drop
anything superseded. Respond with JSON only:
{"summary": "...", "key_points": ["..."], "key_decisions": ["..."], "pending_items": ["..."], "participants": ["..."], "keywords": ["..."]}
Keep at most %d items per list. Keep the summary under %d tokens.`,

	MentionSystem: `You are the meeting assistant for this live meeting. Answer the
participant who mentioned you using only the meeting context provided.
Be concise and concrete. If the context does not contain the answer, say so.`,

	MentionValidate: `Check a drafted assistant reply for a live meeting.

Question: %s
Draft reply:
%s

Meeting context:
%s

Respond with JSON only:
{"valid": true|false, "reason": "..."}
A reply is invalid if it contradicts the context, invents facts, or
ignores the question.`,

	ActionExtract: `Extract action items from this meeting discussion.

%s

Respond with JSON only:
{"items": [{"description": "...", "owner": "...", "due": "...", "source_utterance_id": <id>}]}
Only include items the transcript explicitly supports. Use an empty string
when an owner or due date was not stated.`,

	ActionEvaluate: `Evaluate extracted action items against the source discussion.

Discussion:
%s

Extracted items:
%s

Respond with JSON only:
{"passed": true|false, "reason": "..."}
Fail when an item is unsupported by the discussion, duplicates another,
or is missing an actionable description.`,

	MinutesExtract: `Write meeting minutes for the following discussion.

%s

Respond with JSON only:
{"title": "...", "overview": "...", "sections": [{"topic": "...", "summary": "...", "decisions": ["..."], "evidence_utterance_ids": [<id>, ...]}]}
Every section must cite evidence_utterance_ids taken from the transcript.`,

	MinutesMergeChunk: `Combine per-topic meeting-minute drafts into one document.

Drafts:
%s

Respond with JSON only, keeping every section's evidence_utterance_ids:
{"title": "...", "overview": "...", "sections": [{"topic": "...", "summary": "...", "decisions": ["..."], "evidence_utterance_ids": [<id>, ...]}]}`,

	OrchestratePlan: `You are planning how to answer a request about a meeting.

Request: %s

Meeting context:
%s

Available tools:
%s

Respond with JSON only:
{"needs_tools": true|false, "tool_calls": [{"tool": "...", "args": {...}}], "rationale": "..."}`,

	OrchestrateAnswer: `Answer the request using the meeting context and tool results.

Request: %s

Meeting context:
%s

Tool results:
%s

Reply with the final answer as plain text.`,
}

// Library resolves prompt templates, preferring on-disk overrides so
// operators can tune prompts without a rebuild. Reload is safe to call
// concurrently with Get.
type Library struct {
	mu        sync.RWMutex
	overrides map[string]string
}

func NewLibrary() *Library {
	return &Library{overrides: map[string]string{}}
}

func (l *Library) Get(name string) string {
	l.mu.RLock()
	override, ok := l.overrides[name]
	l.mu.RUnlock()
	if ok {
		return override
	}
	return builtin[name]
}

// Render formats the named template with args.
func (l *Library) Render(name string, args ...any) string {
	template := l.Get(name)
	if template == "" {
		return ""
	}
	if len(args) == 0 {
		return template
	}
	return fmt.Sprintf(template, args...)
}

// Reload replaces the override set with the .md files found in dir.
// A missing directory clears all overrides.
func (l *Library) Reload(dir string) error {
	loaded := map[string]string{}
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			l.mu.Lock()
			l.overrides = loaded
			l.mu.Unlock()
			return nil
		}
		return fmt.Errorf("read prompts dir: %w", err)
	}
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".md" {
			continue
		}
		name := strings.TrimSuffix(entry.Name(), ".md")
		if _, known := builtin[name]; !known {
			continue
		}
		data, err := os.ReadFile(filepath.Join(dir, entry.Name()))
		if err != nil {
			return fmt.Errorf("read prompt override %s: %w", entry.Name(), err)
		}
		content := strings.TrimSpace(string(data))
		if content != "" {
			loaded[name] = content
		}
	}
	l.mu.Lock()
	l.overrides = loaded
	l.mu.Unlock()
	return nil
}
