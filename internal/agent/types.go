package agent

import (
	"context"
	"time"
)

// Conversation roles, mirroring chat-completions wire roles.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

// Turn is one entry in the conversation history handed to the LLM.
type Turn struct {
	Role string
	Text string
	// ToolCalls is set on assistant turns that requested tools.
	ToolCalls []ToolCall
	// ToolCallID links a tool-result turn to the call it answers.
	ToolCallID string
}

// ToolCall is a single tool invocation requested by the model.
type ToolCall struct {
	ID        string
	Name      string
	Arguments string
}

// Reply is the model's output for one generation: spoken text, tool
// calls, or both.
type Reply struct {
	Text      string
	ToolCalls []ToolCall
}

// Transcriber is the minimal interface for realtime STT.
// It must accept PCM 16kHz little-endian mono buffers and emit live and finalized text.
type Transcriber interface {
	Connect() error
	SendPCM16KLE(pcm []byte) error
	GetTranscripts() <-chan string
	Finalize() <-chan string
	// RecentlyDetectedVoice returns true if voice energy was seen within the given window.
	RecentlyDetectedVoice(window time.Duration) bool
	Close() error
}

// LLM generates the next reply for a conversation. The conversation
// includes any pending tool-result turns from the current round.
type LLM interface {
	Generate(ctx context.Context, conversation []Turn) (Reply, error)
}

// ToolRunner executes one tool requested by the model and returns the
// result text to feed back to the conversation. Failures come back as
// text by contract; the dialogue model relays them to the caller.
type ToolRunner interface {
	Run(ctx context.Context, name string, arguments string) string
}

// TTS streams 48kHz PCM mono audio for the given text.
type TTS interface {
	StreamPCM48k(ctx context.Context, text string) (<-chan []byte, <-chan error)
}

// PCM48kSink consumes 48kHz PCM bytes and performs delivery (e.g., Opus encode to WebRTC).
// Implementations should buffer internally and pace delivery.
type PCM48kSink interface {
	WritePCM(pcm []byte)
	FlushTail()
	// Reset drops any queued frames immediately (used for barge-in).
	Reset()
}
