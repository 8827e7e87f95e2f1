// Package rtc terminates WebRTC calls and assembles the per-call agent
// pipeline: Opus decode, transcription, the fraud-alert tool loop, TTS
// and the paced outbound track.
package rtc

import (
	"context"
	"encoding/binary"
	"errors"
	"log"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/hraban/opus"
	"github.com/pion/interceptor"
	"github.com/pion/webrtc/v3"

	"github.com/securebank/fraudcall/internal/agent"
	"github.com/securebank/fraudcall/internal/audit"
	"github.com/securebank/fraudcall/internal/casestore"
	"github.com/securebank/fraudcall/internal/fraud"
	"github.com/securebank/fraudcall/internal/llm"
	"github.com/securebank/fraudcall/internal/metrics"
	"github.com/securebank/fraudcall/internal/transcript"
	"github.com/securebank/fraudcall/internal/tts"
	"github.com/securebank/fraudcall/internal/vad"
)

// SessionDescription is a small DTO so transport packages don't import webrtc.
type SessionDescription struct {
	Type string `json:"type"`
	SDP  string `json:"sdp"`
}

// Handler builds a fresh agent pipeline for every accepted offer. Each
// call gets its own fraud.CallSession; nothing is shared between calls
// except the case store.
type Handler struct {
	store *casestore.Store

	deepgramAPIKey string

	llmAPIKey  string
	llmBaseURL string
	llmModel   string

	murfAPIKey   string
	murfVoiceID  string
	murfStyle    string
	dgVoiceModel string

	auditor *audit.Uploader
}

func NewHandler(store *casestore.Store, deepgramAPIKey string) *Handler {
	return &Handler{store: store, deepgramAPIKey: deepgramAPIKey}
}

func (h *Handler) WithLLM(apiKey, baseURL, model string) *Handler {
	h.llmAPIKey, h.llmBaseURL, h.llmModel = apiKey, baseURL, model
	return h
}

func (h *Handler) WithTTS(murfAPIKey, voiceID, style, deepgramModel string) *Handler {
	h.murfAPIKey, h.murfVoiceID, h.murfStyle, h.dgVoiceModel = murfAPIKey, voiceID, style, deepgramModel
	return h
}

func (h *Handler) WithAuditor(a *audit.Uploader) *Handler {
	h.auditor = a
	return h
}

// newTTS picks Murf when a key is configured, Deepgram Aura otherwise.
func (h *Handler) newTTS() agent.TTS {
	if h.murfAPIKey != "" {
		return tts.NewMurfClient(h.murfAPIKey, h.murfVoiceID, h.murfStyle)
	}
	return tts.NewDeepgramClient(h.deepgramAPIKey, h.dgVoiceModel)
}

// HandleOffer accepts an SDP offer and returns an SDP answer with the
// call pipeline attached.
func (h *Handler) HandleOffer(ctx context.Context, offer SessionDescription) (SessionDescription, error) {
	if offer.Type != "offer" || offer.SDP == "" {
		return SessionDescription{}, errors.New("invalid offer")
	}

	callID := uuid.NewString()[:8]
	metrics.CallsStarted.Inc()
	startedAt := time.Now()

	mediaEngine := &webrtc.MediaEngine{}
	if err := mediaEngine.RegisterDefaultCodecs(); err != nil {
		return SessionDescription{}, err
	}
	ir := &interceptor.Registry{}
	if err := webrtc.RegisterDefaultInterceptors(mediaEngine, ir); err != nil {
		return SessionDescription{}, err
	}
	api := webrtc.NewAPI(webrtc.WithMediaEngine(mediaEngine), webrtc.WithInterceptorRegistry(ir))

	peerConnection, err := api.NewPeerConnection(webrtc.Configuration{ICEServers: []webrtc.ICEServer{{URLs: []string{"stun:stun.l.google.com:19302"}}}})
	if err != nil {
		return SessionDescription{}, err
	}

	outTrack, err := webrtc.NewTrackLocalStaticSample(webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus, ClockRate: 48000, Channels: 1}, "agent-audio", "agent")
	if err != nil {
		_ = peerConnection.Close()
		return SessionDescription{}, err
	}
	if _, err := peerConnection.AddTrack(outTrack); err != nil {
		_ = peerConnection.Close()
		return SessionDescription{}, err
	}

	transcriber := transcript.NewDeepgramService(h.deepgramAPIKey)
	caseSession := fraud.NewCallSession(h.store, callID)
	llmClient := llm.NewClient(h.llmAPIKey, h.llmBaseURL, h.llmModel, fraud.ToolDefinitions())
	ttsClient := h.newTTS()

	var (
		transcriptMu sync.Mutex
		turns        []audit.TurnRecord
	)

	var sessPtr atomic.Pointer[agent.Session]
	var pacedPtr atomic.Pointer[OpusPacedWriter]

	var shutdownOnce sync.Once
	shutdown := func() {
		shutdownOnce.Do(func() {
			if s := sessPtr.Load(); s != nil {
				log.Printf("[%s] usage: %s", callID, s.Usage().Summary())
			}
			disposition := "unresolved"
			var caseName, outcome string
			if c := caseSession.CurrentCase(); c != nil {
				caseName = c.UserName
				outcome = c.Outcome
				if c.Status != casestore.StatusUnset {
					disposition = string(c.Status)
				}
			}
			if caseSession.State() == fraud.StateVerificationFailed {
				disposition = "verification_failed"
			}
			log.Printf("[%s] call ended: case=%q disposition=%s", callID, caseName, disposition)

			transcriptMu.Lock()
			rec := audit.Record{
				CallID:      callID,
				CaseName:    caseName,
				Disposition: disposition,
				Outcome:     outcome,
				Turns:       append([]audit.TurnRecord(nil), turns...),
				StartedAt:   startedAt,
				EndedAt:     time.Now(),
			}
			log.Printf("[%s] transcript (%d turns):", callID, len(turns))
			for i, t := range turns {
				log.Printf("[%s] %02d %s: %s", callID, i+1, strings.ToUpper(t.Role), t.Text)
			}
			transcriptMu.Unlock()

			if h.auditor != nil {
				upCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				defer cancel()
				if err := h.auditor.Upload(upCtx, rec); err != nil {
					log.Printf("[%s] audit upload failed: %v", callID, err)
				}
			}
			_ = transcriber.Close()
			_ = peerConnection.Close()
		})
	}

	peerConnection.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		log.Printf("[%s] PeerConnection state: %s", callID, state.String())
		switch state {
		case webrtc.PeerConnectionStateFailed, webrtc.PeerConnectionStateClosed, webrtc.PeerConnectionStateDisconnected:
			shutdown()
		}
	})

	// A control data channel lets the client force barge-in explicitly.
	peerConnection.OnDataChannel(func(dc *webrtc.DataChannel) {
		if dc.Label() != "control" {
			return
		}
		log.Printf("[%s] control channel opened", callID)
		dc.OnMessage(func(msg webrtc.DataChannelMessage) {
			cmd := strings.TrimSpace(strings.ToLower(string(msg.Data)))
			switch cmd {
			case "stop", "stop-speaking", "cancel", "barge-in":
				if s := sessPtr.Load(); s != nil {
					s.BargeIn()
				}
				if p := pacedPtr.Load(); p != nil {
					p.Reset()
				}
			}
		})
	})
	peerConnection.OnICEConnectionStateChange(func(state webrtc.ICEConnectionState) {
		log.Printf("[%s] ICE state: %s", callID, state.String())
	})

	peerConnection.OnTrack(func(remote *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
		if remote.Kind() != webrtc.RTPCodecTypeAudio {
			return
		}
		log.Printf("[%s] remote audio track: codec=%s", callID, remote.Codec().MimeType)

		paced, err := NewOpusPacedWriter(outTrack)
		if err != nil {
			log.Printf("[%s] opus encoder error: %v", callID, err)
			return
		}
		pacedPtr.Store(paced)

		sess := agent.NewSession(transcriber, llmClient, caseSession, ttsClient, paced, fraud.Instructions, fraud.Greeting)
		sess.OnTurn(func(user, assistantSpoken string) {
			transcriptMu.Lock()
			turns = append(turns, audit.TurnRecord{Role: "user", Text: user, At: time.Now()})
			if assistantSpoken != "" {
				turns = append(turns, audit.TurnRecord{Role: "assistant", Text: assistantSpoken, At: time.Now()})
			}
			transcriptMu.Unlock()
			if assistantSpoken != "" {
				log.Printf("[%s] SPOKEN assistant: %s", callID, assistantSpoken)
			}
		})
		sessPtr.Store(sess)

		detector := vad.NewDetector(vad.Default(), vad.Events{
			OnInterrupt: func(ts time.Time, preRoll []byte) {
				log.Printf("[%s] barge-in: caller speech detected, canceling TTS", callID)
				sess.BargeIn()
				paced.Reset()
				if len(preRoll) > 0 {
					// replay the lead-in so the transcriber catches the first word
					if err := transcriber.SendPCM16KLE(preRoll); err != nil {
						log.Printf("[%s] pre-roll send error: %v", callID, err)
					}
				}
			},
		})
		paced.SetPlaybackTap(detector.FeedPlayback)

		const pcm16kChunkBytes = 3200
		pcm16kBuf := make([]byte, 0, pcm16kChunkBytes*4)

		startMicReader := func(dec *opus.Decoder) {
			go func() {
				pcmSamples := make([]int16, 1920)
				for {
					pkt, _, readErr := remote.ReadRTP()
					if readErr != nil {
						log.Printf("[%s] RTP read error: %v", callID, readErr)
						return
					}
					if len(pkt.Payload) == 0 {
						continue
					}
					n, decErr := dec.Decode(pkt.Payload, pcmSamples)
					if decErr != nil {
						log.Printf("[%s] opus decode error: %v", callID, decErr)
						continue
					}
					startLen := len(pcm16kBuf)
					need := n * 2
					if cap(pcm16kBuf)-len(pcm16kBuf) < need {
						tmp := make([]byte, len(pcm16kBuf), len(pcm16kBuf)+need+pcm16kChunkBytes)
						copy(tmp, pcm16kBuf)
						pcm16kBuf = tmp
					}
					pcm16kBuf = pcm16kBuf[:len(pcm16kBuf)+need]
					o := pcm16kBuf[startLen:]
					for i := 0; i < n; i++ {
						binary.LittleEndian.PutUint16(o[i*2:(i+1)*2], uint16(pcmSamples[i]))
					}
					for len(pcm16kBuf) >= pcm16kChunkBytes {
						chunk := pcm16kBuf[:pcm16kChunkBytes]
						detector.FeedInbound(chunk)
						if err := transcriber.SendPCM16KLE(chunk); err != nil {
							log.Printf("[%s] transcriber send error: %v", callID, err)
						}
						copy(pcm16kBuf, pcm16kBuf[pcm16kChunkBytes:])
						pcm16kBuf = pcm16kBuf[:len(pcm16kBuf)-pcm16kChunkBytes]
					}
				}
			}()
		}

		if err := transcriber.Connect(); err != nil {
			log.Printf("[%s] transcriber connect failed (agent replies disabled): %v", callID, err)
			return
		}
		dec, derr := opus.NewDecoder(16000, 1)
		if derr != nil {
			log.Printf("[%s] opus decoder error: %v", callID, derr)
			return
		}
		startMicReader(dec)

		ctxSess, cancelSess := context.WithCancel(context.Background())
		stop, err := sess.Start(ctxSess)
		if err != nil {
			log.Printf("[%s] session start error: %v", callID, err)
		}

		// keep the detector's speaking gate in sync with the session
		go func() {
			t := time.NewTicker(20 * time.Millisecond)
			defer t.Stop()
			prev := false
			for {
				select {
				case <-ctxSess.Done():
					return
				case <-t.C:
					cur := sess.IsSpeaking()
					if cur != prev {
						detector.SetAgentSpeaking(cur)
						prev = cur
					}
				}
			}
		}()

		peerConnection.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
			if state == webrtc.PeerConnectionStateClosed || state == webrtc.PeerConnectionStateFailed || state == webrtc.PeerConnectionStateDisconnected {
				cancelSess()
				if stop != nil {
					stop()
				}
				paced.FlushTail()
				time.AfterFunc(400*time.Millisecond, func() { paced.Close() })
				shutdown()
			}
		})
	})

	remoteOffer := webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: offer.SDP}
	if err := peerConnection.SetRemoteDescription(remoteOffer); err != nil {
		_ = peerConnection.Close()
		return SessionDescription{}, err
	}
	answer, err := peerConnection.CreateAnswer(nil)
	if err != nil {
		_ = peerConnection.Close()
		return SessionDescription{}, err
	}
	gatherComplete := webrtc.GatheringCompletePromise(peerConnection)
	if err := peerConnection.SetLocalDescription(answer); err != nil {
		_ = peerConnection.Close()
		return SessionDescription{}, err
	}
	<-gatherComplete
	local := peerConnection.LocalDescription()
	if local == nil {
		_ = peerConnection.Close()
		return SessionDescription{}, errors.New("no local description")
	}
	log.Printf("[%s] answer ready", callID)
	return SessionDescription{Type: "answer", SDP: local.SDP}, nil
}
