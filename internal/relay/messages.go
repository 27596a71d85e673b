package relay

import (
	"encoding/json"

	"github.com/classlive/platform/internal/errors"
)

// MessageKind discriminates server messages on the relay control plane.
type MessageKind int

const (
	KindReady MessageKind = iota
	KindError
	KindClosed
	KindTranscript
)

func (k MessageKind) String() string {
	switch k {
	case KindReady:
		return "ready"
	case KindError:
		return "error"
	case KindClosed:
		return "closed"
	case KindTranscript:
		return "transcript"
	default:
		return "unknown"
	}
}

// ServerMessage is the decoded form of one relay message. Kind selects
// which fields are populated.
type ServerMessage struct {
	Kind MessageKind

	// KindError
	ErrorMessage string
	CanRetry     bool

	// KindClosed
	CloseReason string

	// KindTranscript
	Transcript *TranscriptEvent
}

// SpeakerSegment is one speaker's contiguous run within a transcript event.
type SpeakerSegment struct {
	SpeakerID     int
	Text          string
	AvgConfidence float64
}

// TranscriptEvent is a transcription result from the relay. Only final
// events become lecture content; interim events are display-only.
type TranscriptEvent struct {
	Text       string
	IsFinal    bool
	Confidence float64
	Speakers   []SpeakerSegment
}

// Wire shapes. Control messages carry a type tag; transcript events have
// no tag and are recognized by their channel/is_final fields.
type wireMessage struct {
	Type     string `json:"type"`
	Message  string `json:"message"`
	CanRetry bool   `json:"canRetry"`

	IsFinal *bool        `json:"is_final"`
	Channel *wireChannel `json:"channel"`
}

type wireChannel struct {
	Alternatives []wireAlternative `json:"alternatives"`
}

type wireAlternative struct {
	Transcript string     `json:"transcript"`
	Confidence float64    `json:"confidence"`
	Words      []wireWord `json:"words"`
}

type wireWord struct {
	Word       string  `json:"word"`
	Speaker    int     `json:"speaker"`
	Confidence float64 `json:"confidence"`
}

// DecodeServerMessage parses one relay message into its tagged form.
func DecodeServerMessage(data []byte) (ServerMessage, error) {
	var w wireMessage
	if err := json.Unmarshal(data, &w); err != nil {
		return ServerMessage{}, errors.Wrap(err, errors.CodeInvalidArgument, "malformed relay message")
	}

	switch w.Type {
	case "ready":
		return ServerMessage{Kind: KindReady}, nil
	case "error":
		return ServerMessage{Kind: KindError, ErrorMessage: w.Message, CanRetry: w.CanRetry}, nil
	case "closed":
		return ServerMessage{Kind: KindClosed, CloseReason: w.Message}, nil
	case "":
		if w.Channel != nil || w.IsFinal != nil {
			return ServerMessage{Kind: KindTranscript, Transcript: decodeTranscript(w)}, nil
		}
	}
	return ServerMessage{}, errors.Newf(errors.CodeInvalidArgument, "unrecognized relay message type %q", w.Type)
}

func decodeTranscript(w wireMessage) *TranscriptEvent {
	ev := &TranscriptEvent{}
	if w.IsFinal != nil {
		ev.IsFinal = *w.IsFinal
	}
	if w.Channel == nil || len(w.Channel.Alternatives) == 0 {
		return ev
	}

	alt := w.Channel.Alternatives[0]
	ev.Text = alt.Transcript
	ev.Confidence = alt.Confidence
	ev.Speakers = groupSpeakers(alt.Words)
	return ev
}

// groupSpeakers folds the word stream into per-speaker runs, averaging
// word confidence per run.
func groupSpeakers(words []wireWord) []SpeakerSegment {
	var segments []SpeakerSegment
	var counts []int
	for _, word := range words {
		n := len(segments)
		if n == 0 || segments[n-1].SpeakerID != word.Speaker {
			segments = append(segments, SpeakerSegment{
				SpeakerID:     word.Speaker,
				Text:          word.Word,
				AvgConfidence: word.Confidence,
			})
			counts = append(counts, 1)
			continue
		}
		seg := &segments[n-1]
		c := float64(counts[n-1])
		seg.AvgConfidence = (seg.AvgConfidence*c + word.Confidence) / (c + 1)
		seg.Text += " " + word.Word
		counts[n-1]++
	}
	return segments
}

// EncodeCloseStream returns the graceful shutdown request sent to the relay.
func EncodeCloseStream() []byte {
	return []byte(`{"type":"CloseStream"}`)
}
