package claim

import "time"

const (
	DefaultSoundInterval = 2 * time.Second
	DefaultSoundSettle   = 20 * time.Millisecond

	soundKey = "sound:last"
)

// SoundGate limits alert sounds to one per interval across all contexts,
// whatever notification triggered them.
type SoundGate struct {
	store    Storage
	interval time.Duration
	settle   time.Duration
	now      func() time.Time
}

func NewSoundGate(s Storage, interval, settle time.Duration) *SoundGate {
	if interval <= 0 {
		interval = DefaultSoundInterval
	}
	if settle <= 0 {
		settle = DefaultSoundSettle
	}
	return &SoundGate{store: s, interval: interval, settle: settle, now: time.Now}
}

// Allow reports whether this context may play a sound now.
func (g *SoundGate) Allow() (bool, error) {
	won, _, err := settle(g.store, soundKey, g.settle, g.now, func(last Record) bool {
		return g.now().Sub(last.WrittenAt) < g.interval
	})
	return won, err
}
