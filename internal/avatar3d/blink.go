package avatar3d

import (
	"fmt"
	"math/rand"
	"strings"
	"time"
)

type BlinkState int

const (
	BlinkStateOpen BlinkState = iota
	BlinkStateClosing
)

func (s BlinkState) String() string {
	if s == BlinkStateClosing {
		return "closing"
	}
	return "open"
}

type EyelidSide int

const (
	EyelidLeft EyelidSide = iota
	EyelidRight
)

func (s EyelidSide) String() string {
	if s == EyelidRight {
		return "right"
	}
	return "left"
}

func ParseEyelidSide(s string) (EyelidSide, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "left", "l":
		return EyelidLeft, nil
	case "right", "r":
		return EyelidRight, nil
	default:
		return 0, fmt.Errorf("avatar3d: unknown eyelid side %q", s)
	}
}

// BlinkLoop cycles Open -> Closing -> Open forever: the eyes stay open for a
// random gap, then close for a fixed duration.
type BlinkLoop struct {
	state    BlinkState
	until    time.Time
	minGap   time.Duration
	maxGap   time.Duration
	closeFor time.Duration
	rng      *rand.Rand
}

func NewBlinkLoop(minGap, maxGap, closeFor time.Duration, rng *rand.Rand) *BlinkLoop {
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	if minGap < 0 {
		minGap = 0
	}
	if maxGap < minGap {
		maxGap = minGap
	}
	if closeFor <= 0 {
		closeFor = time.Nanosecond
	}
	return &BlinkLoop{
		minGap:   minGap,
		maxGap:   maxGap,
		closeFor: closeFor,
		rng:      rng,
	}
}

func (b *BlinkLoop) State() BlinkState { return b.state }

// Step advances the loop to now and reports whether the eyelids should be
// closed.
func (b *BlinkLoop) Step(now time.Time) bool {
	if b.until.IsZero() {
		b.until = now.Add(b.randomGap())
	}
	// A loop that fell more than a full cycle behind restarts at now.
	if now.Sub(b.until) > b.maxGap+b.closeFor {
		b.until = now
	}
	for !now.Before(b.until) {
		switch b.state {
		case BlinkStateOpen:
			b.state = BlinkStateClosing
			b.until = b.until.Add(b.closeFor)
		case BlinkStateClosing:
			b.state = BlinkStateOpen
			b.until = b.until.Add(b.randomGap())
		}
	}
	return b.state == BlinkStateClosing
}

func (b *BlinkLoop) randomGap() time.Duration {
	return randomDuration(b.rng, b.minGap, b.maxGap)
}

func randomDuration(rng *rand.Rand, min, max time.Duration) time.Duration {
	if max <= min {
		return min
	}
	return min + time.Duration(rng.Int63n(int64(max-min)+1))
}
