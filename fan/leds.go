package fan

import (
	"sync"
	"time"

	"github.com/warthog618/gpiod"
)

type Led int

const (
	LedGreen Led = iota
	LedOrange
	LedRed
	LedBlue
	ledCount
)

// LedPins names the chip offsets of the four status LEDs.
type LedPins struct {
	Green, Orange, Red, Blue int
}

// Leds drives the status LEDs. A nil *Leds is valid and does nothing, so
// boards without the indicator header run unchanged.
type Leds struct {
	mu    sync.Mutex
	lines [ledCount]outputLine
	state [ledCount]bool
}

func NewLeds(chip *gpiod.Chip, pins LedPins) (*Leds, error) {
	l := &Leds{}
	offsets := [ledCount]int{pins.Green, pins.Orange, pins.Red, pins.Blue}
	for i, offset := range offsets {
		line, err := chip.RequestLine(offset, gpiod.AsOutput(0))
		if err != nil {
			l.Close()
			return nil, err
		}
		l.lines[i] = line
	}
	return l, nil
}

func (l *Leds) Set(led Led, on bool) {
	if l == nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.set(led, on)
}

func (l *Leds) set(led Led, on bool) {
	if l.lines[led] == nil || l.state[led] == on {
		return
	}
	v := 0
	if on {
		v = 1
	}
	if l.lines[led].SetValue(v) == nil {
		l.state[led] = on
	}
}

func (l *Leds) Toggle(led Led) {
	if l == nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.set(led, !l.state[led])
}

// Flash blinks a LED once, blocking for the on time.
func (l *Leds) Flash(led Led, d time.Duration) {
	if l == nil {
		return
	}
	l.Set(led, true)
	time.Sleep(d)
	l.Set(led, false)
}

func (l *Leds) AllOff() {
	if l == nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	for i := Led(0); i < ledCount; i++ {
		l.set(i, false)
	}
}

func (l *Leds) Close() {
	if l == nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	for i, line := range l.lines {
		if line != nil {
			_ = line.SetValue(0)
			_ = line.Close()
			l.lines[i] = nil
		}
	}
}
