package transcript

import (
	"errors"
	"strings"
	"time"
)

var ErrEmptyText = errors.New("utterance text is empty")

// Utterance is one transcribed speech turn. It is never mutated after
// Normalize returns it; topic assignment happens on copies held by the
// context manager.
type Utterance struct {
	ID          int64
	SpeakerID   string
	SpeakerName string
	Text        string
	StartMS     int64
	EndMS       int64
	Confidence  float64
	Timestamp   time.Time
	TopicID     int64
}

// STTSegment is the raw payload the speech-to-text provider hands us.
type STTSegment struct {
	SpeakerID   string
	SpeakerName string
	Text        string
	StartMS     int64
	EndMS       int64
	Confidence  float64
	Timestamp   time.Time
}

// Normalize turns a raw STT segment into an immutable utterance record.
// nextID is the meeting-scoped monotonic id assigned by the caller.
func Normalize(segment STTSegment, nextID int64) (Utterance, error) {
	text := strings.TrimSpace(segment.Text)
	if text == "" {
		return Utterance{}, ErrEmptyText
	}
	confidence := segment.Confidence
	if confidence < 0 {
		confidence = 0
	}
	if confidence > 1 {
		confidence = 1
	}
	endMS := segment.EndMS
	if endMS < segment.StartMS {
		endMS = segment.StartMS
	}
	timestamp := segment.Timestamp.UTC()
	if timestamp.IsZero() {
		timestamp = time.Now().UTC()
	}
	speakerID := strings.TrimSpace(segment.SpeakerID)
	if speakerID == "" {
		speakerID = "unknown"
	}
	speakerName := strings.TrimSpace(segment.SpeakerName)
	if speakerName == "" {
		speakerName = speakerID
	}
	return Utterance{
		ID:          nextID,
		SpeakerID:   speakerID,
		SpeakerName: speakerName,
		Text:        text,
		StartMS:     segment.StartMS,
		EndMS:       endMS,
		Confidence:  confidence,
		Timestamp:   timestamp,
		TopicID:     -1,
	}, nil
}

// DurationMS reports the spoken duration of the utterance.
func (u Utterance) DurationMS() int64 {
	if u.EndMS <= u.StartMS {
		return 0
	}
	return u.EndMS - u.StartMS
}
