package relay

import (
	"testing"
)

func TestDecodeReady(t *testing.T) {
	msg, err := DecodeServerMessage([]byte(`{"type":"ready"}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if msg.Kind != KindReady {
		t.Errorf("expected KindReady, got %v", msg.Kind)
	}
}

func TestDecodeRetryableError(t *testing.T) {
	msg, err := DecodeServerMessage([]byte(`{"type":"error","message":"upstream busy","canRetry":true}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if msg.Kind != KindError {
		t.Fatalf("expected KindError, got %v", msg.Kind)
	}
	if !msg.CanRetry {
		t.Error("expected canRetry to be set")
	}
	if msg.ErrorMessage != "upstream busy" {
		t.Errorf("expected message %q, got %q", "upstream busy", msg.ErrorMessage)
	}
}

func TestDecodeClosed(t *testing.T) {
	msg, err := DecodeServerMessage([]byte(`{"type":"closed","message":"session ended"}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if msg.Kind != KindClosed {
		t.Fatalf("expected KindClosed, got %v", msg.Kind)
	}
	if msg.CloseReason != "session ended" {
		t.Errorf("expected reason %q, got %q", "session ended", msg.CloseReason)
	}
}

func TestDecodeTranscript(t *testing.T) {
	payload := []byte(`{
		"is_final": true,
		"channel": {
			"alternatives": [{
				"transcript": "mitochondria produce ATP",
				"confidence": 0.93,
				"words": [
					{"word": "mitochondria", "speaker": 0, "confidence": 0.95},
					{"word": "produce", "speaker": 0, "confidence": 0.91},
					{"word": "ATP", "speaker": 1, "confidence": 0.88}
				]
			}]
		}
	}`)

	msg, err := DecodeServerMessage(payload)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if msg.Kind != KindTranscript {
		t.Fatalf("expected KindTranscript, got %v", msg.Kind)
	}
	ev := msg.Transcript
	if ev == nil {
		t.Fatal("expected transcript event")
	}
	if ev.Text != "mitochondria produce ATP" {
		t.Errorf("unexpected text %q", ev.Text)
	}
	if !ev.IsFinal {
		t.Error("expected final transcript")
	}
	if ev.Confidence != 0.93 {
		t.Errorf("expected confidence 0.93, got %v", ev.Confidence)
	}
	if len(ev.Speakers) != 2 {
		t.Fatalf("expected 2 speaker segments, got %d", len(ev.Speakers))
	}
	if ev.Speakers[0].SpeakerID != 0 || ev.Speakers[0].Text != "mitochondria produce" {
		t.Errorf("unexpected first segment: %+v", ev.Speakers[0])
	}
	if ev.Speakers[1].SpeakerID != 1 || ev.Speakers[1].Text != "ATP" {
		t.Errorf("unexpected second segment: %+v", ev.Speakers[1])
	}
	want := (0.95 + 0.91) / 2
	if diff := ev.Speakers[0].AvgConfidence - want; diff > 1e-9 || diff < -1e-9 {
		t.Errorf("expected avg confidence %v, got %v", want, ev.Speakers[0].AvgConfidence)
	}
}

func TestDecodeInterimTranscript(t *testing.T) {
	payload := []byte(`{"is_final":false,"channel":{"alternatives":[{"transcript":"mito","confidence":0.4}]}}`)
	msg, err := DecodeServerMessage(payload)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if msg.Kind != KindTranscript {
		t.Fatalf("expected KindTranscript, got %v", msg.Kind)
	}
	if msg.Transcript.IsFinal {
		t.Error("expected interim transcript")
	}
}

func TestDecodeUnknown(t *testing.T) {
	if _, err := DecodeServerMessage([]byte(`{"type":"metadata"}`)); err == nil {
		t.Error("expected error for unknown message type")
	}
	if _, err := DecodeServerMessage([]byte(`not json`)); err == nil {
		t.Error("expected error for malformed payload")
	}
}

func TestEncodeCloseStream(t *testing.T) {
	got := string(EncodeCloseStream())
	if got != `{"type":"CloseStream"}` {
		t.Errorf("unexpected close frame: %s", got)
	}
}
