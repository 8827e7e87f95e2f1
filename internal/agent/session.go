package agent

import (
	"context"
	"log"
	"strings"
	"sync"
	"time"
)

// maxToolRounds bounds how many tool round-trips one utterance may
// trigger before the session gives up and waits for the next turn.
const maxToolRounds = 6

// chunkReply splits an assistant reply into sentence-like chunks to allow
// committing transcript increments only after corresponding audio is emitted.
// Heuristic: split on '.', '?', '!' and newlines, retaining punctuation.
func chunkReply(reply string) []string {
	txt := strings.TrimSpace(reply)
	if txt == "" {
		return nil
	}
	var chunks []string
	var b strings.Builder
	for _, r := range txt {
		switch r {
		case '.', '!', '?':
			b.WriteRune(r)
			chunk := strings.TrimSpace(b.String())
			if chunk != "" {
				chunks = append(chunks, chunk)
			}
			b.Reset()
		case '\n', '\r':
			chunk := strings.TrimSpace(b.String())
			if chunk != "" {
				chunks = append(chunks, chunk)
			}
			b.Reset()
		default:
			b.WriteRune(r)
		}
	}
	tail := strings.TrimSpace(b.String())
	if tail != "" {
		chunks = append(chunks, tail)
	}
	return chunks
}

// Session orchestrates one fraud-alert call: STT -> LLM tool loop ->
// TTS. The external LLM decides, turn by turn, which of the fraud
// tools to invoke; the session only moves audio and text.
type Session struct {
	transcriber  Transcriber
	llm          LLM
	tools        ToolRunner
	tts          TTS
	sink         PCM48kSink
	usage        *UsageCollector
	greeting     string
	onTranscript func(text string)
	// onTurn is invoked when a user utterance completes and the assistant has
	// spoken back some or all of its reply. The assistant text provided is
	// exactly what was actually spoken (possibly truncated if interrupted).
	onTurn func(user string, assistantSpoken string)

	mu               sync.Mutex
	speaking         bool
	ttsCancel        context.CancelFunc
	bargeInRequested bool

	// full conversation including system prompt and tool exchanges
	history []Turn
}

// NewSession constructs a Session. systemPrompt seeds the conversation;
// greeting, if non-empty, is spoken as soon as the session starts.
func NewSession(t Transcriber, llm LLM, tools ToolRunner, tts TTS, sink PCM48kSink, systemPrompt, greeting string) *Session {
	if sink == nil {
		sink = nopSink{}
	}
	s := &Session{
		transcriber: t,
		llm:         llm,
		tools:       tools,
		tts:         tts,
		sink:        sink,
		usage:       NewUsageCollector(),
		greeting:    greeting,
	}
	if systemPrompt != "" {
		s.history = append(s.history, Turn{Role: RoleSystem, Text: systemPrompt})
	}
	return s
}

// OnTranscript sets the live-partial callback.
func (s *Session) OnTranscript(fn func(string)) { s.onTranscript = fn }

// OnTurn sets the completed-turn callback.
func (s *Session) OnTurn(fn func(user, assistantSpoken string)) { s.onTurn = fn }

// Usage returns the session's usage collector for the shutdown summary.
func (s *Session) Usage() *UsageCollector { return s.usage }

// Start connects the transcriber and begins processing. It returns a stop function.
func (s *Session) Start(ctx context.Context) (func(), error) {
	if err := s.transcriber.Connect(); err != nil {
		return nil, err
	}

	// Speak the scripted greeting before the customer says anything.
	if s.greeting != "" {
		go func() {
			spoken, _ := s.speak(ctx, s.greeting)
			if spoken != "" {
				s.appendHistory(Turn{Role: RoleAssistant, Text: spoken})
				if s.onTurn != nil {
					s.onTurn("", spoken)
				}
			}
		}()
	}

	// Stream live transcripts (optional UI)
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case t, ok := <-s.transcriber.GetTranscripts():
				if !ok {
					return
				}
				if s.onTranscript != nil && t != "" {
					s.onTranscript(t)
				}
			}
		}
	}()

	// On finalized utterance -> LLM tool loop -> TTS -> sink
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case utterance, ok := <-s.transcriber.Finalize():
				if !ok {
					return
				}
				prompt := strings.TrimSpace(utterance)
				if prompt == "" {
					continue
				}
				log.Printf("heard(final): %s", prompt)
				s.usage.addUtterance()

				// Ensure sustained silence from the user before the agent
				// speaks, to avoid talking over them.
				waitCtx, waitCancel := context.WithTimeout(ctx, 3*time.Second)
				for waitCtx.Err() == nil {
					if !s.transcriber.RecentlyDetectedVoice(500 * time.Millisecond) {
						break
					}
					time.Sleep(50 * time.Millisecond)
				}
				waitCancel()

				reply, turns, err := s.generateTurn(ctx, prompt)
				if err != nil {
					log.Printf("llm error: %v", err)
					continue
				}
				reply = strings.TrimSpace(reply)
				if reply == "" {
					// all-tool turn with nothing to say; keep the exchanges for context
					s.appendHistory(turns...)
					continue
				}

				spokenText, wasBarged := s.speak(ctx, reply)
				if wasBarged {
					if len(spokenText) > 0 {
						spokenText = spokenText + " [INTERRUPTED BY USER]"
					} else {
						spokenText = "[INTERRUPTED BY USER]"
					}
				}
				// History keeps the full reply so the model has complete
				// context even when the customer cut it off.
				s.appendHistory(turns...)
				s.appendHistory(Turn{Role: RoleAssistant, Text: reply})
				if s.onTurn != nil {
					s.onTurn(prompt, spokenText)
				}
			}
		}
	}()

	stop := func() {
		_ = s.transcriber.Close()
	}
	return stop, nil
}

// generateTurn runs the LLM until it produces spoken text, executing
// any tool calls it requests along the way. It returns the final reply
// text plus the intermediate turns (user, assistant tool requests, tool
// results) to append to history.
func (s *Session) generateTurn(ctx context.Context, userText string) (string, []Turn, error) {
	pending := []Turn{{Role: RoleUser, Text: userText}}
	for round := 0; round < maxToolRounds; round++ {
		conv := s.snapshotHistory()
		conv = append(conv, pending...)

		ctxLLM, cancel := context.WithTimeout(ctx, 20*time.Second)
		s.usage.addLLMRequest()
		reply, err := s.llm.Generate(ctxLLM, conv)
		cancel()
		if err != nil {
			return "", nil, err
		}
		if len(reply.ToolCalls) == 0 {
			return reply.Text, pending, nil
		}

		pending = append(pending, Turn{Role: RoleAssistant, Text: reply.Text, ToolCalls: reply.ToolCalls})
		for _, tc := range reply.ToolCalls {
			log.Printf("tool call: %s(%s)", tc.Name, tc.Arguments)
			s.usage.addToolCall(tc.Name)
			result := s.tools.Run(ctx, tc.Name, tc.Arguments)
			pending = append(pending, Turn{Role: RoleTool, Text: result, ToolCallID: tc.ID})
		}
	}
	log.Printf("tool round limit reached; ending turn without reply")
	return "", pending, nil
}

// speak streams reply through TTS in sentence chunks, committing each
// chunk to the spoken transcript only after its audio was emitted.
// Returns what was actually spoken and whether the user barged in.
func (s *Session) speak(ctx context.Context, reply string) (string, bool) {
	ctxTTS, cancelTTS := context.WithCancel(ctx)
	s.mu.Lock()
	s.speaking = true
	s.ttsCancel = cancelTTS
	s.bargeInRequested = false
	s.mu.Unlock()

	var spokenBuilder strings.Builder
	chunks := chunkReply(reply)
CHUNK_LOOP:
	for i, chunk := range chunks {
		s.mu.Lock()
		barged := s.bargeInRequested
		s.mu.Unlock()
		if barged {
			break CHUNK_LOOP
		}

		s.usage.addTTSChars(len(chunk))
		pcmCh, errCh := s.tts.StreamPCM48k(ctxTTS, chunk)
		openPCM, openErr := true, true
		for openPCM || openErr {
			select {
			case b, ok := <-pcmCh:
				if ok {
					if len(b) > 0 {
						s.mu.Lock()
						drop := s.bargeInRequested
						s.mu.Unlock()
						if !drop {
							s.sink.WritePCM(b)
						}
					}
				} else {
					openPCM = false
				}
			case e, ok := <-errCh:
				if ok && e != nil {
					log.Printf("tts stream error: %v", e)
				}
				openErr = false
			case <-ctx.Done():
				openPCM, openErr = false, false
			}
		}
		s.mu.Lock()
		barged = s.bargeInRequested
		s.mu.Unlock()
		if barged {
			break CHUNK_LOOP
		}
		spokenBuilder.WriteString(strings.TrimSpace(chunk))
		if i < len(chunks)-1 {
			spokenBuilder.WriteString(" ")
		}
	}

	s.mu.Lock()
	wasBarged := s.bargeInRequested
	s.speaking = false
	s.ttsCancel = nil
	s.bargeInRequested = false
	s.mu.Unlock()
	cancelTTS()
	if !wasBarged {
		s.sink.FlushTail()
	}
	return strings.TrimSpace(spokenBuilder.String()), wasBarged
}

func (s *Session) snapshotHistory() []Turn {
	s.mu.Lock()
	defer s.mu.Unlock()
	conv := make([]Turn, len(s.history))
	copy(conv, s.history)
	return conv
}

func (s *Session) appendHistory(turns ...Turn) {
	s.mu.Lock()
	s.history = append(s.history, turns...)
	s.mu.Unlock()
}

// FeedPCM16KLE sends input audio to the transcriber.
func (s *Session) FeedPCM16KLE(pcm []byte) {
	_ = s.transcriber.SendPCM16KLE(pcm)
}

type nopSink struct{}

func (nopSink) WritePCM(_ []byte) {}
func (nopSink) FlushTail()        {}
func (nopSink) Reset()            {}

// IsSpeaking reports whether TTS is currently active for this session.
func (s *Session) IsSpeaking() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.speaking
}

// BargeIn cancels current TTS streaming and prevents further audio from being written to the sink.
func (s *Session) BargeIn() {
	s.mu.Lock()
	cancel := s.ttsCancel
	if s.speaking {
		s.bargeInRequested = true
	}
	s.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	// Drop any queued audio immediately to ensure interruption feels instant
	s.sink.Reset()
}
