// Package tts synthesizes agent speech as 48kHz PCM mono streams.
// Murf is the primary voice; Deepgram Aura serves as fallback when no
// Murf key is configured.
package tts

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strings"
)

// MurfClient streams speech from Murf's HTTP streaming endpoint.
type MurfClient struct {
	APIKey  string
	VoiceID string
	Style   string
	// BaseURL overrides the API host, for tests.
	BaseURL string
}

// NewMurfClient constructs a Murf TTS client. Voice defaults to the
// en-US-ryan conversational voice.
func NewMurfClient(apiKey, voiceID, style string) *MurfClient {
	if voiceID == "" {
		voiceID = "en-US-ryan"
	}
	if style == "" {
		style = "Conversational"
	}
	return &MurfClient{APIKey: apiKey, VoiceID: voiceID, Style: style}
}

// StreamPCM48k streams 48kHz PCM mono audio for the given text.
func (m *MurfClient) StreamPCM48k(ctx context.Context, text string) (<-chan []byte, <-chan error) {
	pcmCh := make(chan []byte, 4096)
	errCh := make(chan error, 1)
	go func() {
		defer close(pcmCh)
		defer close(errCh)
		if m.APIKey == "" {
			errCh <- fmt.Errorf("murf: api key missing")
			return
		}
		text = strings.TrimSpace(text)
		if text == "" {
			return
		}
		if err := m.httpStream(ctx, text, pcmCh); err != nil {
			errCh <- err
		}
	}()
	return pcmCh, errCh
}

func (m *MurfClient) httpStream(ctx context.Context, text string, pcmCh chan<- []byte) error {
	base := m.BaseURL
	if base == "" {
		base = "https://api.murf.ai"
	}
	u, err := url.Parse(base + "/v1/speech/stream")
	if err != nil {
		return fmt.Errorf("murf: bad base url: %w", err)
	}

	body := map[string]any{
		"voiceId":     m.VoiceID,
		"style":       m.Style,
		"text":        text,
		"format":      "PCM",
		"sampleRate":  48000,
		"channelType": "MONO",
	}
	buf, _ := json.Marshal(body)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.String(), bytes.NewReader(buf))
	if err != nil {
		return err
	}
	req.Header.Set("api-key", m.APIKey)
	req.Header.Set("Content-Type", "application/json")

	client := &http.Client{Timeout: 0}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("murf http stream error: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("murf http status=%d body=%s", resp.StatusCode, string(b))
	}

	chunk := make([]byte, 4096)
	logged := false
	for {
		n, rerr := resp.Body.Read(chunk)
		if n > 0 {
			if !logged {
				log.Printf("murf http: receiving audio stream (%d bytes first chunk)", n)
				logged = true
			}
			out := make([]byte, n)
			copy(out, chunk[:n])
			select {
			case pcmCh <- out:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		if rerr != nil {
			if rerr == io.EOF {
				return nil
			}
			return fmt.Errorf("murf http read error: %w", rerr)
		}
	}
}
