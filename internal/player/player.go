// Package player implements the playback queue state machine: a linear
// queue with shuffle and repeat modes driving a single audio output.
package player

import (
	"errors"
	"math/rand"
	"sync"
	"time"

	"go.uber.org/zap"

	"chorus/internal/core"
)

// RepeatMode selects the wrap behavior at queue boundaries.
type RepeatMode int

const (
	// RepeatNone stops advancing at queue boundaries
	RepeatNone RepeatMode = iota
	// RepeatOne replays the current track when it ends
	RepeatOne
	// RepeatAll wraps around at queue boundaries
	RepeatAll
)

// Clamp ranges for playback parameters.
const (
	minVolume = 0.0
	maxVolume = 1.0
	minRate   = 0.25
	maxRate   = 3.0
	// restartThreshold is how far into a track Previous restarts it
	// instead of moving back.
	restartThreshold = 3.0
)

// ErrNoAudioSource is reported when a queued track carries no audio URL.
var ErrNoAudioSource = errors.New("track has no audio source")

// Output is the single audio sink owned by the player. All play,
// pause, and seek commands are serialized through the player; nothing
// else may command the sink.
type Output interface {
	Load(url string) (duration float64, err error)
	Play() error
	Pause() error
	Stop() error
	Seek(position float64) error
	SetVolume(volume float64) error
	SetRate(rate float64) error
}

// State is a copy of the player's observable state.
type State struct {
	Current  *core.Track
	Queue    []core.Track
	Index    int
	Shuffle  bool
	Repeat   RepeatMode
	Playing  bool
	Position float64
	Duration float64
	Volume   float64
	Rate     float64
	Err      error
}

// Player holds the playback queue and drives the output. It is
// explicitly constructed and carries no package-level state, so tests
// can run independent instances.
type Player struct {
	output Output
	logger *zap.Logger
	rng    *rand.Rand

	mutex    sync.Mutex
	queue    []core.Track
	index    int
	shuffle  bool
	repeat   RepeatMode
	playing  bool
	position float64
	duration float64
	volume   float64
	rate     float64
	err      error
}

// New creates an idle player commanding the given output.
func New(output Output, logger *zap.Logger) *Player {
	return &Player{
		output: output,
		logger: logger,
		rng:    rand.New(rand.NewSource(time.Now().UnixNano())),
		index:  -1,
		volume: maxVolume,
		rate:   1.0,
	}
}

// PlayTrack replaces the queue and starts the given track. When queue
// is nil, or the track is not in it, the track plays as a singleton
// queue.
func (p *Player) PlayTrack(track core.Track, queue []core.Track) {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	index := -1
	for i, t := range queue {
		if t.Author == track.Author && t.Identifier == track.Identifier {
			index = i
			break
		}
	}

	if index < 0 {
		queue = []core.Track{track}
		index = 0
	}

	p.queue = queue
	p.loadAndPlay(index)
}

// PlayQueue loads the queue and starts playback at startIndex, clamped
// into the queue bounds. An empty queue is a no-op.
func (p *Player) PlayQueue(queue []core.Track, startIndex int) {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	if len(queue) == 0 {
		return
	}

	if startIndex < 0 {
		startIndex = 0
	}
	if startIndex > len(queue)-1 {
		startIndex = len(queue) - 1
	}

	p.queue = queue
	p.loadAndPlay(startIndex)
}

// Next advances to the following track under the current shuffle and
// repeat modes. At the queue end, RepeatAll wraps to the start and
// RepeatNone stays put.
func (p *Player) Next() {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	if next, ok := p.nextIndex(); ok {
		p.loadAndPlay(next)
	}
}

// Previous restarts the current track when more than a few seconds
// have elapsed; otherwise it moves back, wrapping only under RepeatAll.
func (p *Player) Previous() {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	if p.index < 0 {
		return
	}

	if p.position > restartThreshold {
		p.position = 0
		if err := p.output.Seek(0); err != nil {
			p.logger.Warn("Restart seek failed", zap.Error(err))
		}
		return
	}

	prev := p.index - 1
	if prev < 0 {
		if p.repeat != RepeatAll {
			return
		}
		prev = len(p.queue) - 1
	}
	p.loadAndPlay(prev)
}

// Ended reports that the current track finished naturally. RepeatOne
// replays it; otherwise playback advances like Next, stopping at the
// queue end under RepeatNone.
func (p *Player) Ended() {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	if p.index < 0 {
		return
	}

	if p.repeat == RepeatOne {
		p.loadAndPlay(p.index)
		return
	}

	if next, ok := p.nextIndex(); ok && next != p.index {
		p.loadAndPlay(next)
		return
	}

	p.playing = false
	if err := p.output.Stop(); err != nil {
		p.logger.Warn("Stop failed", zap.Error(err))
	}
}

// Pause suspends playback without losing position.
func (p *Player) Pause() {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	if !p.playing {
		return
	}
	p.playing = false
	if err := p.output.Pause(); err != nil {
		p.logger.Warn("Pause failed", zap.Error(err))
	}
}

// Resume continues playback of the current track.
func (p *Player) Resume() {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	if p.playing || p.index < 0 || p.err != nil {
		return
	}
	p.playing = true
	if err := p.output.Play(); err != nil {
		p.logger.Warn("Resume failed", zap.Error(err))
	}
}

// Seek moves the playhead, clamped into [0, duration].
func (p *Player) Seek(position float64) {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	position = clamp(position, 0, p.duration)
	p.position = position
	if err := p.output.Seek(position); err != nil {
		p.logger.Warn("Seek failed", zap.Error(err))
	}
}

// SetVolume adjusts the output volume, clamped into [0, 1]. Out-of-range
// values are clamped silently, never rejected.
func (p *Player) SetVolume(volume float64) {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	p.volume = clamp(volume, minVolume, maxVolume)
	if err := p.output.SetVolume(p.volume); err != nil {
		p.logger.Warn("SetVolume failed", zap.Error(err))
	}
}

// SetRate adjusts the playback rate, clamped into [0.25, 3].
func (p *Player) SetRate(rate float64) {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	p.rate = clamp(rate, minRate, maxRate)
	if err := p.output.SetRate(p.rate); err != nil {
		p.logger.Warn("SetRate failed", zap.Error(err))
	}
}

// SetShuffle toggles shuffle mode.
func (p *Player) SetShuffle(on bool) {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	p.shuffle = on
}

// SetRepeat selects the repeat mode.
func (p *Player) SetRepeat(mode RepeatMode) {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	p.repeat = mode
}

// UpdatePosition is called by the output as playback progresses.
func (p *Player) UpdatePosition(position float64) {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	p.position = position
}

// State returns a copy of the observable player state.
func (p *Player) State() State {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	state := State{
		Queue:    append([]core.Track(nil), p.queue...),
		Index:    p.index,
		Shuffle:  p.shuffle,
		Repeat:   p.repeat,
		Playing:  p.playing,
		Position: p.position,
		Duration: p.duration,
		Volume:   p.volume,
		Rate:     p.rate,
		Err:      p.err,
	}
	if p.index >= 0 && p.index < len(p.queue) {
		track := p.queue[p.index]
		state.Current = &track
	}
	return state
}

// nextIndex computes the index Next would move to. The second return
// is false when playback should stay where it is.
func (p *Player) nextIndex() (int, bool) {
	if p.index < 0 || len(p.queue) == 0 {
		return 0, false
	}

	if p.shuffle && len(p.queue) > 1 {
		// Uniform among queue positions excluding the current one.
		next := p.rng.Intn(len(p.queue) - 1)
		if next >= p.index {
			next++
		}
		return next, true
	}

	next := p.index + 1
	if next >= len(p.queue) {
		if p.repeat != RepeatAll {
			return p.index, false
		}
		next = 0
	}
	return next, true
}

// loadAndPlay switches the output to the track at index. A source that
// fails to load surfaces the error and stops playback; it never
// auto-advances. Callers must hold the mutex.
func (p *Player) loadAndPlay(index int) {
	track := p.queue[index]
	p.index = index
	p.position = 0
	p.err = nil

	if track.AudioURL == "" {
		p.failPlayback(track, ErrNoAudioSource)
		return
	}

	duration, err := p.output.Load(track.AudioURL)
	if err != nil {
		p.failPlayback(track, err)
		return
	}
	p.duration = duration

	if err := p.output.Play(); err != nil {
		p.failPlayback(track, err)
		return
	}

	p.playing = true
	p.logger.Debug("Playing track",
		zap.String("identifier", track.Identifier),
		zap.String("title", track.Title),
		zap.Int("queueIndex", index))
}

func (p *Player) failPlayback(track core.Track, err error) {
	p.err = err
	p.playing = false
	p.logger.Warn("Playback failed",
		zap.String("identifier", track.Identifier),
		zap.Error(err))
}

func clamp(value, low, high float64) float64 {
	if value < low {
		return low
	}
	if value > high {
		return high
	}
	return value
}
