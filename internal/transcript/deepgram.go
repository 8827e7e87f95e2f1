// Package transcript streams call audio to Deepgram's live API and
// emits partial and finalized utterances.
package transcript

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"log"
	"math"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// keepAliveInterval paces KeepAlive frames so Deepgram does not close
// the socket during long customer silences.
const keepAliveInterval = 5 * time.Second

// DeepgramService is a realtime STT session over Deepgram's listen
// websocket (nova-3, 16kHz linear16 mono).
type DeepgramService struct {
	apiKey      string
	model       string
	language    string
	transcripts chan string
	finalizeCh  chan string
	audioData   chan []byte
	stopCh      chan struct{}
	mu          sync.RWMutex
	conn        *websocket.Conn
	connected   bool

	// utterance accumulation: is_final segments collect here until a
	// speech_final or UtteranceEnd event flushes them downstream.
	accMu         sync.Mutex
	segments      []string
	lastVoiceTime time.Time
}

// Deepgram live message shapes (subset we consume).
type resultsMessage struct {
	Type        string `json:"type"`
	IsFinal     bool   `json:"is_final"`
	SpeechFinal bool   `json:"speech_final"`
	Channel     struct {
		Alternatives []struct {
			Transcript string  `json:"transcript"`
			Confidence float64 `json:"confidence"`
		} `json:"alternatives"`
	} `json:"channel"`
}

type metadataMessage struct {
	Type      string  `json:"type"`
	RequestID string  `json:"request_id"`
	Duration  float64 `json:"duration"`
}

// NewDeepgramService creates a transcription service. Model defaults to
// nova-3 in US English.
func NewDeepgramService(apiKey string) *DeepgramService {
	return &DeepgramService{
		apiKey:      apiKey,
		model:       "nova-3",
		language:    "en-US",
		transcripts: make(chan string, 100),
		finalizeCh:  make(chan string, 10),
		audioData:   make(chan []byte, 1000),
		stopCh:      make(chan struct{}),
	}
}

// Finalize returns a channel signaling end-of-utterance with the utterance text.
func (s *DeepgramService) Finalize() <-chan string { return s.finalizeCh }

// GetTranscripts returns the channel for receiving live partials.
func (s *DeepgramService) GetTranscripts() <-chan string { return s.transcripts }

// Connect establishes the websocket connection to Deepgram.
func (s *DeepgramService) Connect() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.connected {
		return nil
	}
	if s.apiKey == "" {
		return fmt.Errorf("deepgram API key is empty")
	}

	params := url.Values{}
	params.Set("model", s.model)
	params.Set("language", s.language)
	params.Set("encoding", "linear16")
	params.Set("sample_rate", "16000")
	params.Set("channels", "1")
	params.Set("interim_results", "true")
	params.Set("punctuate", "true")
	params.Set("endpointing", "700")

	wsURL := fmt.Sprintf("wss://api.deepgram.com/v1/listen?%s", params.Encode())
	headers := map[string][]string{
		"Authorization": {"Token " + s.apiKey},
	}
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}

	log.Printf("Connecting to Deepgram live at: %s", wsURL)
	conn, resp, err := dialer.Dial(wsURL, headers)
	if err != nil {
		if resp != nil {
			log.Printf("Deepgram connection failed with status: %d", resp.StatusCode)
		}
		return fmt.Errorf("failed to connect to Deepgram: %w", err)
	}

	s.conn = conn
	s.connected = true
	s.accMu.Lock()
	s.lastVoiceTime = time.Now()
	s.accMu.Unlock()

	go s.handleMessages()
	go s.sendAudioData()

	log.Println("Successfully connected to Deepgram live transcription")
	return nil
}

// SendPCM16KLE queues 16kHz little-endian mono PCM for transcription.
func (s *DeepgramService) SendPCM16KLE(pcm []byte) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.connected {
		return fmt.Errorf("not connected to Deepgram")
	}
	s.detectVoiceActivity(pcm)
	select {
	case s.audioData <- pcm:
		return nil
	default:
		log.Println("Audio buffer full, dropping packet")
		return nil
	}
}

// detectVoiceActivity updates lastVoiceTime if the PCM buffer carries
// voice energy above a conservative RMS threshold.
func (s *DeepgramService) detectVoiceActivity(pcm []byte) {
	const minSamples = 160 // 10ms at 16kHz
	if len(pcm) < minSamples*2 {
		return
	}
	step := 2
	if len(pcm) > 3200 {
		step = 4
	}
	var sumSquares float64
	count := 0
	for i := 0; i+1 < len(pcm); i += 2 * step {
		v := int16(binary.LittleEndian.Uint16(pcm[i : i+2]))
		sumSquares += float64(v) * float64(v)
		count++
	}
	if count == 0 {
		return
	}
	rms := math.Sqrt(sumSquares / float64(count))
	const voiceRMS = 250.0
	if rms >= voiceRMS {
		s.accMu.Lock()
		s.lastVoiceTime = time.Now()
		s.accMu.Unlock()
	}
}

// RecentlyDetectedVoice reports whether non-silent voice energy was observed within the given window.
func (s *DeepgramService) RecentlyDetectedVoice(window time.Duration) bool {
	s.accMu.Lock()
	last := s.lastVoiceTime
	s.accMu.Unlock()
	return time.Since(last) <= window
}

// Close terminates the stream and closes all channels.
func (s *DeepgramService) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.connected {
		return nil
	}
	close(s.stopCh)
	if s.conn != nil {
		_ = s.conn.WriteJSON(map[string]string{"type": "CloseStream"})
		_ = s.conn.Close()
	}
	s.connected = false
	s.conn = nil
	s.flushPendingUtterance()
	close(s.audioData)
	close(s.transcripts)
	close(s.finalizeCh)
	log.Println("Deepgram connection closed")
	return nil
}

func (s *DeepgramService) handleMessages() {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("Recovered from panic in handleMessages: %v", r)
		}
	}()
	for {
		select {
		case <-s.stopCh:
			return
		default:
			s.mu.RLock()
			conn := s.conn
			s.mu.RUnlock()
			if conn == nil {
				return
			}
			_, message, err := conn.ReadMessage()
			if err != nil {
				log.Printf("Error reading message: %v", err)
				return
			}
			s.processMessage(message)
		}
	}
}

func (s *DeepgramService) processMessage(message []byte) {
	var base struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(message, &base); err != nil {
		log.Printf("Error unmarshaling message: %v", err)
		return
	}
	switch base.Type {
	case "Results":
		var msg resultsMessage
		if err := json.Unmarshal(message, &msg); err != nil {
			log.Printf("Error unmarshaling Results message: %v", err)
			return
		}
		if len(msg.Channel.Alternatives) == 0 {
			return
		}
		text := strings.TrimSpace(msg.Channel.Alternatives[0].Transcript)
		if text == "" {
			return
		}
		// stream partials for UI / barge-in token growth
		select {
		case s.transcripts <- text:
		default:
		}
		if msg.IsFinal {
			s.accMu.Lock()
			s.segments = append(s.segments, text)
			s.accMu.Unlock()
		}
		if msg.SpeechFinal {
			s.flushPendingUtterance()
		}
	case "UtteranceEnd":
		s.flushPendingUtterance()
	case "Metadata":
		var msg metadataMessage
		if err := json.Unmarshal(message, &msg); err != nil {
			log.Printf("Error unmarshaling Metadata message: %v", err)
			return
		}
		log.Printf("Deepgram session metadata: RequestID=%s, AudioDuration=%.2fs", msg.RequestID, msg.Duration)
	case "SpeechStarted":
		// voice energy is tracked locally; nothing to do
	default:
		log.Printf("Unknown message type: %s", base.Type)
	}
}

// flushPendingUtterance joins accumulated final segments and delivers
// them as one finalized utterance.
func (s *DeepgramService) flushPendingUtterance() {
	s.accMu.Lock()
	utterance := strings.TrimSpace(strings.Join(s.segments, " "))
	s.segments = s.segments[:0]
	s.accMu.Unlock()
	if utterance == "" {
		return
	}
	select {
	case <-s.stopCh:
	case s.finalizeCh <- utterance:
	case <-time.After(200 * time.Millisecond):
		log.Printf("Deepgram flush: timed out delivering final utterance")
	}
}

// sendAudioData forwards queued audio frames and paces KeepAlive frames
// through customer silences.
func (s *DeepgramService) sendAudioData() {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("Recovered from panic in sendAudioData: %v", r)
		}
	}()
	keepAlive := time.NewTicker(keepAliveInterval)
	defer keepAlive.Stop()
	for {
		select {
		case <-s.stopCh:
			return
		case <-keepAlive.C:
			s.mu.RLock()
			conn := s.conn
			s.mu.RUnlock()
			if conn != nil {
				if err := conn.WriteJSON(map[string]string{"type": "KeepAlive"}); err != nil {
					log.Printf("Error sending keepalive: %v", err)
					return
				}
			}
		case audioData, ok := <-s.audioData:
			if !ok {
				return
			}
			s.mu.RLock()
			conn := s.conn
			s.mu.RUnlock()
			if conn != nil {
				if err := conn.WriteMessage(websocket.BinaryMessage, audioData); err != nil {
					log.Printf("Error sending audio data: %v", err)
					return
				}
			}
		}
	}
}
