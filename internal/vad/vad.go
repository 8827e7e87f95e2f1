// Package vad detects caller speech in the inbound audio path so the
// agent can stop talking when interrupted. Detection is energy based
// with a majority-vote window and a playback-echo discount; a pre-roll
// ring preserves the audio leading up to the interruption so the
// transcriber does not lose the first syllables.
package vad

import (
	"encoding/binary"
	"log"
	"math"
	"sync"
	"time"
)

// Config holds detector thresholds. Zero values are replaced by
// Default() equivalents in NewDetector.
type Config struct {
	SampleRate      int     // inbound rate, 16000 typical
	EnergyThreshold float64 // RMS floor for a frame to count as voiced
	VoteWindowMs    int     // sliding window over 10ms frames
	TriggerRatio    float64 // fraction of voiced frames that fires OnInterrupt
	HysteresisMs    int     // quiet window that re-arms the detector
	PreRollMs       int     // audio kept before the trigger point
}

// Default returns thresholds tuned for telephone-grade 16kHz audio.
func Default() Config {
	return Config{
		SampleRate:      16000,
		EnergyThreshold: 300,
		VoteWindowMs:    150,
		TriggerRatio:    2.0 / 3.0,
		HysteresisMs:    200,
		PreRollMs:       220,
	}
}

// Events lets the host react when the caller talks over the agent.
type Events struct {
	// OnInterrupt fires once per armed period when the vote window
	// crosses TriggerRatio while the agent is speaking. preRoll holds
	// the last PreRollMs of inbound audio as PCM16LE.
	OnInterrupt func(ts time.Time, preRoll []byte)
}

// Detector consumes inbound audio in arbitrary-length PCM16LE buffers
// and segments it into 10ms frames internally. Safe for one feeder
// goroutine plus concurrent SetAgentSpeaking/Reset callers.
type Detector struct {
	cfg Config
	ev  Events

	mu            sync.Mutex
	agentSpeaking bool
	armed         bool
	votes         []bool
	quiet         []bool
	playbackRMS   float64

	preRoll *pcmRing
	pending []byte
}

func NewDetector(cfg Config, ev Events) *Detector {
	def := Default()
	if cfg.SampleRate == 0 {
		cfg.SampleRate = def.SampleRate
	}
	if cfg.EnergyThreshold == 0 {
		cfg.EnergyThreshold = def.EnergyThreshold
	}
	if cfg.VoteWindowMs == 0 {
		cfg.VoteWindowMs = def.VoteWindowMs
	}
	if cfg.TriggerRatio == 0 {
		cfg.TriggerRatio = def.TriggerRatio
	}
	if cfg.HysteresisMs == 0 {
		cfg.HysteresisMs = def.HysteresisMs
	}
	if cfg.PreRollMs == 0 {
		cfg.PreRollMs = def.PreRollMs
	}
	return &Detector{
		cfg:     cfg,
		ev:      ev,
		armed:   true,
		preRoll: newPCMRing(cfg.PreRollMs+100, cfg.SampleRate),
	}
}

// SetAgentSpeaking toggles detection. Interrupts only fire while the
// agent has the floor.
func (d *Detector) SetAgentSpeaking(on bool) {
	d.mu.Lock()
	d.agentSpeaking = on
	if on {
		d.armed = true
		d.votes = d.votes[:0]
		d.quiet = d.quiet[:0]
	}
	d.mu.Unlock()
}

// Reset clears vote state and the pre-roll ring between utterances.
func (d *Detector) Reset() {
	d.mu.Lock()
	d.armed = true
	d.votes = d.votes[:0]
	d.quiet = d.quiet[:0]
	d.pending = d.pending[:0]
	d.mu.Unlock()
	d.preRoll.Clear()
}

// FeedInbound accepts caller audio as PCM16LE at cfg.SampleRate.
func (d *Detector) FeedInbound(pcm []byte) {
	d.mu.Lock()
	d.pending = append(d.pending, pcm...)
	frameBytes := d.cfg.SampleRate / 100 * 2
	var frames [][]byte
	for len(d.pending) >= frameBytes {
		f := make([]byte, frameBytes)
		copy(f, d.pending[:frameBytes])
		d.pending = d.pending[frameBytes:]
		frames = append(frames, f)
	}
	d.mu.Unlock()
	for _, f := range frames {
		d.onFrame(f)
	}
}

// FeedPlayback accepts the agent's outbound audio as PCM16LE at 48kHz.
// Its energy level discounts echo picked up by the caller's line.
func (d *Detector) FeedPlayback(pcm48k []byte) {
	rms := rmsOf(pcm48k)
	d.mu.Lock()
	// exponential smoothing so short gaps in playback don't zero the discount
	d.playbackRMS = 0.7*d.playbackRMS + 0.3*rms
	d.mu.Unlock()
}

func (d *Detector) onFrame(frame []byte) {
	d.preRoll.Write(frame)

	rms := rmsOf(frame)
	d.mu.Lock()
	threshold := d.cfg.EnergyThreshold
	if d.playbackRMS > 0 {
		// raise the floor while the agent is audibly playing back
		threshold += d.playbackRMS * 0.15
	}
	voiced := rms >= threshold

	maxVotes := d.cfg.VoteWindowMs / 10
	d.votes = append(d.votes, voiced)
	if len(d.votes) > maxVotes {
		d.votes = d.votes[len(d.votes)-maxVotes:]
	}
	maxQuiet := d.cfg.HysteresisMs / 10
	d.quiet = append(d.quiet, !voiced)
	if len(d.quiet) > maxQuiet {
		d.quiet = d.quiet[len(d.quiet)-maxQuiet:]
	}

	if !d.agentSpeaking {
		d.mu.Unlock()
		return
	}

	if !d.armed {
		if ratio(d.quiet) >= 0.9 && len(d.quiet) == maxQuiet {
			d.armed = true
			d.votes = d.votes[:0]
		}
		d.mu.Unlock()
		return
	}

	if len(d.votes) == maxVotes && ratio(d.votes) >= d.cfg.TriggerRatio {
		d.armed = false
		d.votes = d.votes[:0]
		cb := d.ev.OnInterrupt
		preMs := d.cfg.PreRollMs
		d.mu.Unlock()
		if cb != nil {
			cb(time.Now(), d.preRoll.LastMs(preMs))
		}
		return
	}
	d.mu.Unlock()
}

func ratio(win []bool) float64 {
	if len(win) == 0 {
		return 0
	}
	var t int
	for _, b := range win {
		if b {
			t++
		}
	}
	return float64(t) / float64(len(win))
}

func rmsOf(pcm []byte) float64 {
	n := len(pcm) / 2
	if n == 0 {
		return 0
	}
	var sum float64
	for i := 0; i < n; i++ {
		s := float64(int16(binary.LittleEndian.Uint16(pcm[i*2 : i*2+2])))
		sum += s * s
	}
	return math.Sqrt(sum / float64(n))
}

// pcmRing is a fixed-capacity ring of PCM16LE bytes.
type pcmRing struct {
	mu       sync.Mutex
	buf      []byte
	writePos int
	filled   int
	sr       int
}

func newPCMRing(capacityMs, sampleRate int) *pcmRing {
	n := capacityMs * sampleRate / 1000 * 2
	if n < sampleRate/10*2 {
		n = sampleRate / 10 * 2
	}
	return &pcmRing{buf: make([]byte, n), sr: sampleRate}
}

func (r *pcmRing) Write(pcm []byte) {
	r.mu.Lock()
	for _, b := range pcm {
		r.buf[r.writePos] = b
		r.writePos = (r.writePos + 1) % len(r.buf)
	}
	r.filled += len(pcm)
	if r.filled > len(r.buf) {
		r.filled = len(r.buf)
	}
	r.mu.Unlock()
}

func (r *pcmRing) LastMs(ms int) []byte {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := ms * r.sr / 1000 * 2
	if n > r.filled {
		n = r.filled
	}
	// keep sample alignment
	n -= n % 2
	out := make([]byte, n)
	start := (r.writePos - n + len(r.buf)) % len(r.buf)
	for i := 0; i < n; i++ {
		out[i] = r.buf[(start+i)%len(r.buf)]
	}
	return out
}

func (r *pcmRing) Clear() {
	r.mu.Lock()
	for i := range r.buf {
		r.buf[i] = 0
	}
	r.writePos = 0
	r.filled = 0
	r.mu.Unlock()
}

var prewarmOnce sync.Once

// Prewarm allocates detector scratch state once per process so the
// first call does not pay the warm-up cost. Safe to call repeatedly.
func Prewarm() {
	prewarmOnce.Do(func() {
		d := NewDetector(Default(), Events{})
		silence := make([]byte, d.cfg.SampleRate/100*2*10)
		d.FeedInbound(silence)
		log.Printf("vad: prewarmed detector (sampleRate=%d window=%dms)", d.cfg.SampleRate, d.cfg.VoteWindowMs)
	})
}
