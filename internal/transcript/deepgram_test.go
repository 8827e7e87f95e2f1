package transcript

import (
	"encoding/binary"
	"testing"
	"time"
)

func TestConnect_RequiresAPIKey(t *testing.T) {
	s := NewDeepgramService("")
	if err := s.Connect(); err == nil {
		t.Fatalf("expected error with empty API key")
	}
}

func TestDetectVoiceActivity_SetsLastVoiceOnLoudFrame(t *testing.T) {
	s := NewDeepgramService("test")
	samples := make([]byte, 160*2)
	for i := 0; i < 160; i++ {
		binary.LittleEndian.PutUint16(samples[i*2:(i+1)*2], 3000)
	}
	s.detectVoiceActivity(samples)
	if !s.RecentlyDetectedVoice(time.Second) {
		t.Fatalf("expected voice detected after loud frame")
	}
}

func TestDetectVoiceActivity_IgnoresSilence(t *testing.T) {
	s := NewDeepgramService("test")
	s.accMu.Lock()
	s.lastVoiceTime = time.Now().Add(-time.Hour)
	s.accMu.Unlock()
	silence := make([]byte, 160*2)
	s.detectVoiceActivity(silence)
	if s.RecentlyDetectedVoice(time.Minute) {
		t.Fatalf("silence must not register as voice")
	}
}

func TestProcessMessage_FinalSegmentsFlushOnSpeechFinal(t *testing.T) {
	s := NewDeepgramService("test")

	partial := `{"type":"Results","is_final":false,"speech_final":false,"channel":{"alternatives":[{"transcript":"my name"}]}}`
	s.processMessage([]byte(partial))
	select {
	case got := <-s.transcripts:
		if got != "my name" {
			t.Fatalf("partial mismatch: %q", got)
		}
	default:
		t.Fatalf("expected a partial transcript")
	}
	select {
	case got := <-s.finalizeCh:
		t.Fatalf("unexpected finalization from partial: %q", got)
	default:
	}

	final1 := `{"type":"Results","is_final":true,"speech_final":false,"channel":{"alternatives":[{"transcript":"my name is"}]}}`
	final2 := `{"type":"Results","is_final":true,"speech_final":true,"channel":{"alternatives":[{"transcript":"Jane Doe"}]}}`
	s.processMessage([]byte(final1))
	s.processMessage([]byte(final2))

	select {
	case got := <-s.finalizeCh:
		if got != "my name is Jane Doe" {
			t.Fatalf("utterance mismatch: %q", got)
		}
	case <-time.After(time.Second):
		t.Fatalf("expected finalized utterance")
	}
}

func TestProcessMessage_UtteranceEndFlushes(t *testing.T) {
	s := NewDeepgramService("test")
	final := `{"type":"Results","is_final":true,"speech_final":false,"channel":{"alternatives":[{"transcript":"hello there"}]}}`
	s.processMessage([]byte(final))
	s.processMessage([]byte(`{"type":"UtteranceEnd"}`))
	select {
	case got := <-s.finalizeCh:
		if got != "hello there" {
			t.Fatalf("utterance mismatch: %q", got)
		}
	case <-time.After(time.Second):
		t.Fatalf("expected finalized utterance on UtteranceEnd")
	}
}

func TestProcessMessage_EmptyAlternativesIgnored(t *testing.T) {
	s := NewDeepgramService("test")
	s.processMessage([]byte(`{"type":"Results","is_final":true,"speech_final":true,"channel":{"alternatives":[]}}`))
	s.processMessage([]byte(`{"type":"UtteranceEnd"}`))
	select {
	case got := <-s.finalizeCh:
		t.Fatalf("unexpected utterance: %q", got)
	default:
	}
}
