package agent

import (
	"fmt"
	"sync"
)

// UsageCollector accumulates per-call usage for the shutdown summary:
// how many utterances were heard, how many LLM generations and tool
// invocations ran, and how much text was synthesized.
type UsageCollector struct {
	mu          sync.Mutex
	utterances  int
	llmRequests int
	toolCalls   map[string]int
	ttsChars    int
}

// NewUsageCollector returns an empty collector.
func NewUsageCollector() *UsageCollector {
	return &UsageCollector{toolCalls: make(map[string]int)}
}

func (u *UsageCollector) addUtterance() {
	u.mu.Lock()
	u.utterances++
	u.mu.Unlock()
}

func (u *UsageCollector) addLLMRequest() {
	u.mu.Lock()
	u.llmRequests++
	u.mu.Unlock()
}

func (u *UsageCollector) addToolCall(name string) {
	u.mu.Lock()
	u.toolCalls[name]++
	u.mu.Unlock()
}

func (u *UsageCollector) addTTSChars(n int) {
	u.mu.Lock()
	u.ttsChars += n
	u.mu.Unlock()
}

// Summary renders the collected counters as a single log line.
func (u *UsageCollector) Summary() string {
	u.mu.Lock()
	defer u.mu.Unlock()
	total := 0
	for _, n := range u.toolCalls {
		total += n
	}
	return fmt.Sprintf("utterances=%d llm_requests=%d tool_calls=%d tts_chars=%d", u.utterances, u.llmRequests, total, u.ttsChars)
}

// ToolCallCount returns how many times the named tool ran.
func (u *UsageCollector) ToolCallCount(name string) int {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.toolCalls[name]
}
