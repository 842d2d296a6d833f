package contextmgr

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/parleyhq/parley/internal/events"
	"github.com/parleyhq/parley/internal/transcript"
)

type State int

const (
	StateUninitialized State = iota
	StateActive
	StateEnded
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateActive:
		return "active"
	case StateEnded:
		return "ended"
	default:
		return "unknown"
	}
}

var (
	ErrNotActive    = errors.New("meeting is not active")
	ErrAlreadyBegun = errors.New("meeting already started")
)

// Store is the persistence surface the manager needs. The sqlite layer
// implements it; tests supply fakes.
type Store interface {
	SaveUtterance(ctx context.Context, meetingID string, u transcript.Utterance) error
	SaveSegment(ctx context.Context, segment *TopicSegment) error
	RecentUtterances(ctx context.Context, meetingID string, limit int) ([]transcript.Utterance, error)
	SegmentsForMeeting(ctx context.Context, meetingID string) ([]TopicSegment, error)
}

// Options bundles the tunables for a single meeting's context engine.
type Options struct {
	L0MaxTurns            int
	L0MaxTokens           int
	TopicBufferMaxTurns   int
	TopicBufferMaxTokens  int
	L1UpdateTurnThreshold int
	L1UpdateInterval      time.Duration
	L1MinNewUtterances    int
	SpeakerBufferMaxTurns int
	SpeakerBufferTokens   int
}

// Manager owns all live context for one meeting: the L0 raw window, the
// topic timeline with its recursive summaries, and the per-speaker state.
// Every mutation goes through the meeting mutex, so ingestion, scheduled
// summarization and context reads are serialized per meeting while
// distinct meetings proceed in parallel.
type Manager struct {
	meetingID  string
	opts       Options
	store      Store
	detector   *Detector
	summarizer *Summarizer
	publisher  events.Publisher
	logger     *slog.Logger

	mu              sync.Mutex
	state           State
	window          *Window
	speakers        *SpeakerTracker
	closed          []TopicSegment
	active          *activeSegment
	nextUtteranceID int64
	nextSegmentID   int64
	startedAt       time.Time
}

func NewManager(meetingID string, store Store, detector *Detector, summarizer *Summarizer, publisher events.Publisher, logger *slog.Logger, opts Options) *Manager {
	return &Manager{
		meetingID:  meetingID,
		opts:       opts,
		store:      store,
		detector:   detector,
		summarizer: summarizer,
		publisher:  publisher,
		logger:     logger.With("meeting_id", meetingID),
		window:     NewWindow(opts.L0MaxTurns, opts.L0MaxTokens),
		speakers:   NewSpeakerTracker(opts.SpeakerBufferMaxTurns, opts.SpeakerBufferTokens),
	}
}

func (m *Manager) MeetingID() string {
	return m.meetingID
}

func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Start activates a fresh meeting. It fails if the meeting was already
// started or recovered.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != StateUninitialized {
		return ErrAlreadyBegun
	}
	m.state = StateActive
	m.startedAt = time.Now()
	m.logger.Info("meeting context started")
	return nil
}

// AddUtterance runs the full ingestion pipeline for one STT segment:
// normalize, detect topic transitions, update L0, speakers and the active
// topic buffer, persist, and fire any summary refresh the turn threshold
// calls for. The returned utterance carries its assigned ID and topic.
func (m *Manager) AddUtterance(ctx context.Context, seg transcript.STTSegment) (transcript.Utterance, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != StateActive {
		return transcript.Utterance{}, fmt.Errorf("add utterance to %s meeting: %w", m.state, ErrNotActive)
	}

	u, err := transcript.Normalize(seg, m.nextUtteranceID+1)
	if err != nil {
		return transcript.Utterance{}, err
	}
	m.nextUtteranceID = u.ID

	if m.active == nil {
		m.openSegmentLocked(ctx, u.ID, "General discussion", nil)
	} else {
		decision := m.detector.Check(ctx, m.active.segment.Name, u, append(m.window.Snapshot(), u))
		if decision.Changed {
			// The transition utterance belongs to the new topic; the old
			// segment closes on the turn before it.
			m.closeActiveLocked(ctx, u.ID-1)
			m.openSegmentLocked(ctx, u.ID, decision.Name, decision.Keywords)
		}
	}

	u.TopicID = m.active.segment.ID
	m.window.Add(u)
	m.speakers.Observe(u)
	m.active.add(u)

	if m.store != nil {
		if err := m.store.SaveUtterance(ctx, m.meetingID, u); err != nil {
			// Ingestion keeps going on a write failure; the in-memory
			// context is already consistent and recovery is best effort.
			m.logger.Warn("persist utterance failed", "utterance_id", u.ID, "error", err)
		}
	}

	if m.active.pending.Len() >= m.opts.L1UpdateTurnThreshold {
		m.refreshActiveLocked(ctx)
	}
	return u, nil
}

// MaybeSummarize refreshes the active topic summary when enough time has
// passed and enough new turns accumulated. The scheduler calls this
// periodically for every registered meeting.
func (m *Manager) MaybeSummarize(ctx context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != StateActive || m.active == nil {
		return
	}
	if m.active.pending.Len() < m.opts.L1MinNewUtterances {
		return
	}
	if time.Since(m.active.lastSummaryAt) < m.opts.L1UpdateInterval {
		return
	}
	m.refreshActiveLocked(ctx)
}

// End closes the meeting: the open segment gets a final summary refresh,
// is persisted and published, and further ingestion is rejected.
func (m *Manager) End(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != StateActive {
		return fmt.Errorf("end %s meeting: %w", m.state, ErrNotActive)
	}
	if m.active != nil {
		m.closeActiveLocked(ctx, m.nextUtteranceID)
	}
	m.state = StateEnded
	m.logger.Info("meeting context ended",
		"utterances", m.nextUtteranceID, "topics", len(m.closed))
	return nil
}

// LoadFromStore rebuilds a meeting's context from persisted utterances and
// segments, then activates it. Only an uninitialized manager can recover.
func (m *Manager) LoadFromStore(ctx context.Context, utteranceLimit int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != StateUninitialized {
		return ErrAlreadyBegun
	}
	if m.store == nil {
		return errors.New("recovery requires a store")
	}

	segments, err := m.store.SegmentsForMeeting(ctx, m.meetingID)
	if err != nil {
		return fmt.Errorf("recover segments: %w", err)
	}
	utterances, err := m.store.RecentUtterances(ctx, m.meetingID, utteranceLimit)
	if err != nil {
		return fmt.Errorf("recover utterances: %w", err)
	}

	var open *TopicSegment
	for i := range segments {
		if segments[i].Open() {
			if open == nil || segments[i].ID > open.ID {
				open = &segments[i]
			}
			continue
		}
		m.closed = append(m.closed, segments[i])
		if segments[i].ID > m.nextSegmentID {
			m.nextSegmentID = segments[i].ID
		}
	}
	if open != nil {
		m.active = newActiveSegment(open, m.opts.TopicBufferMaxTurns, m.opts.TopicBufferMaxTokens)
		if open.ID > m.nextSegmentID {
			m.nextSegmentID = open.ID
		}
	}

	for _, u := range utterances {
		m.window.Add(u)
		m.speakers.Observe(u)
		if u.ID > m.nextUtteranceID {
			m.nextUtteranceID = u.ID
		}
		// Turns in the open segment re-enter its pending buffer; the merge
		// pass deduplicates anything that was already summarized.
		if m.active != nil && u.TopicID == m.active.segment.ID {
			m.active.pending.Add(u)
		}
	}

	m.state = StateActive
	m.startedAt = time.Now()
	m.logger.Info("meeting context recovered",
		"utterances", len(utterances), "segments", len(segments))
	return nil
}

// Snapshot returns a point-in-time copy of everything the context builder
// needs. The copy is safe to read after the lock is released.
func (m *Manager) Snapshot() ContextSnapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	snap := ContextSnapshot{
		MeetingID:    m.meetingID,
		State:        m.state,
		Window:       m.window.Snapshot(),
		WindowTokens: m.window.TokenCount(),
		Speakers:     m.speakers.Names(),
		StartedAt:    m.startedAt,
	}
	snap.Segments = make([]TopicSegment, len(m.closed))
	copy(snap.Segments, m.closed)
	if m.active != nil {
		snap.Segments = append(snap.Segments, cloneSegment(m.active.segment))
		snap.ActiveTopic = m.active.segment.Name
		snap.UnsummarizedTurns = m.active.pending.Snapshot()
	}
	return snap
}

func (m *Manager) openSegmentLocked(ctx context.Context, startID int64, name string, keywords []string) {
	m.nextSegmentID++
	segment := &TopicSegment{
		ID:               m.nextSegmentID,
		MeetingID:        m.meetingID,
		Name:             name,
		Keywords:         keywords,
		StartUtteranceID: startID,
		EndUtteranceID:   -1,
		UpdatedAt:        time.Now(),
	}
	m.active = newActiveSegment(segment, m.opts.TopicBufferMaxTurns, m.opts.TopicBufferMaxTokens)
	m.persistSegmentLocked(ctx, segment)
	m.logger.Info("topic opened", "topic_id", segment.ID, "topic", name, "start_utterance", startID)
}

func (m *Manager) closeActiveLocked(ctx context.Context, endID int64) {
	active := m.active
	active.segment.EndUtteranceID = endID
	if err := m.summarizer.Refresh(ctx, active); err != nil {
		// The segment still closes; its last summary stands and the
		// unsummarized tail is reflected in the raw transcript only.
		m.logger.Warn("final summary failed on topic close",
			"topic_id", active.segment.ID, "error", err)
	}
	m.persistSegmentLocked(ctx, active.segment)
	m.publishLocked(ctx, active.segment)
	m.closed = append(m.closed, cloneSegment(active.segment))
	m.active = nil
	m.logger.Info("topic closed",
		"topic_id", active.segment.ID, "topic", active.segment.Name, "end_utterance", endID)
}

func (m *Manager) refreshActiveLocked(ctx context.Context) {
	if err := m.summarizer.Refresh(ctx, m.active); err != nil {
		m.logger.Warn("summary refresh failed, buffer retained",
			"topic_id", m.active.segment.ID, "error", err)
		return
	}
	m.persistSegmentLocked(ctx, m.active.segment)
	m.publishLocked(ctx, m.active.segment)
}

func (m *Manager) persistSegmentLocked(ctx context.Context, segment *TopicSegment) {
	if m.store == nil {
		return
	}
	if err := m.store.SaveSegment(ctx, segment); err != nil {
		m.logger.Warn("persist segment failed", "topic_id", segment.ID, "error", err)
	}
}

func (m *Manager) publishLocked(ctx context.Context, segment *TopicSegment) {
	if m.publisher == nil {
		return
	}
	update := events.TopicUpdate{
		MeetingID:    m.meetingID,
		TopicID:      segment.ID,
		TopicName:    segment.Name,
		Summary:      segment.Summary,
		Keywords:     segment.Keywords,
		KeyPoints:    segment.KeyPoints,
		KeyDecisions: segment.KeyDecisions,
		PendingItems: segment.PendingItems,
		Participants: segment.Participants,
		UpdatedAt:    segment.UpdatedAt,
	}
	if err := m.publisher.Publish(ctx, update); err != nil {
		m.logger.Warn("publish topic update failed", "topic_id", segment.ID, "error", err)
	}
}

func cloneSegment(segment *TopicSegment) TopicSegment {
	clone := *segment
	clone.Keywords = append([]string(nil), segment.Keywords...)
	clone.KeyPoints = append([]string(nil), segment.KeyPoints...)
	clone.KeyDecisions = append([]string(nil), segment.KeyDecisions...)
	clone.PendingItems = append([]string(nil), segment.PendingItems...)
	clone.Participants = append([]string(nil), segment.Participants...)
	return clone
}
