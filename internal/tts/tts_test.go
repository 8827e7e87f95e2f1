package tts

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

// This is a smoke test for StreamPCM48k without an API key; it should error quickly
func TestDeepgram_StreamPCM48k_NoKey(t *testing.T) {
	d := NewDeepgramClient("", "")
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	pcmCh, errCh := d.StreamPCM48k(ctx, "hello")
	select {
	case err := <-errCh:
		if err == nil {
			t.Fatalf("expected error when api key missing")
		}
	case <-pcmCh:
		// ignore
	case <-time.After(300 * time.Millisecond):
		t.Fatalf("timeout waiting for error")
	}
}

func TestMurf_StreamPCM48k_NoKey(t *testing.T) {
	m := NewMurfClient("", "", "")
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	pcmCh, errCh := m.StreamPCM48k(ctx, "hello")
	select {
	case err := <-errCh:
		if err == nil {
			t.Fatalf("expected error when api key missing")
		}
	case <-pcmCh:
		// ignore
	case <-time.After(300 * time.Millisecond):
		t.Fatalf("timeout waiting for error")
	}
}

func TestMurf_StreamPCM48k_StreamsBody(t *testing.T) {
	audio := bytes.Repeat([]byte{0x01, 0x02}, 4096)
	var gotBody map[string]interface{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("api-key") != "test-key" {
			t.Errorf("api-key header = %q", r.Header.Get("api-key"))
		}
		body, _ := io.ReadAll(r.Body)
		if err := json.Unmarshal(body, &gotBody); err != nil {
			t.Errorf("request body not JSON: %v", err)
		}
		w.WriteHeader(http.StatusOK)
		w.Write(audio)
	}))
	defer srv.Close()

	m := NewMurfClient("test-key", "", "")
	m.BaseURL = srv.URL
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	pcmCh, errCh := m.StreamPCM48k(ctx, "Hello there")

	var got []byte
	for chunk := range pcmCh {
		got = append(got, chunk...)
	}
	if err := <-errCh; err != nil {
		t.Fatalf("stream error: %v", err)
	}
	if !bytes.Equal(got, audio) {
		t.Fatalf("streamed %d bytes, want %d", len(got), len(audio))
	}

	if gotBody["voiceId"] != "en-US-ryan" {
		t.Errorf("voiceId = %v, want en-US-ryan", gotBody["voiceId"])
	}
	if gotBody["style"] != "Conversational" {
		t.Errorf("style = %v", gotBody["style"])
	}
	if gotBody["format"] != "PCM" {
		t.Errorf("format = %v", gotBody["format"])
	}
	if rate, _ := gotBody["sampleRate"].(float64); int(rate) != 48000 {
		t.Errorf("sampleRate = %v, want 48000", gotBody["sampleRate"])
	}
	if gotBody["text"] != "Hello there" {
		t.Errorf("text = %v", gotBody["text"])
	}
}

func TestMurf_StreamPCM48k_NonOKStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad key", http.StatusUnauthorized)
	}))
	defer srv.Close()

	m := NewMurfClient("wrong", "", "")
	m.BaseURL = srv.URL
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	pcmCh, errCh := m.StreamPCM48k(ctx, "Hello")
	for range pcmCh {
	}
	if err := <-errCh; err == nil {
		t.Fatalf("expected error for non-OK status")
	}
}

func TestMurf_StreamPCM48k_EmptyText(t *testing.T) {
	m := NewMurfClient("test-key", "", "")
	ctx := context.Background()
	pcmCh, errCh := m.StreamPCM48k(ctx, "   ")
	for range pcmCh {
		t.Fatalf("expected no audio for empty text")
	}
	if err := <-errCh; err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
