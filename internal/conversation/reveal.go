// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package conversation

import (
	"sync"
	"time"
)

// DefaultRevealInterval is the pause between successive reveal steps.
const DefaultRevealInterval = 20 * time.Millisecond

// Revealer simulates streaming for a fully-buffered response: it emits the
// body one rune at a time as RevealTick events, each tick carrying the full
// prefix revealed so far. One revealer drives one message.
type Revealer struct {
	messageID string
	runes     []rune
	interval  time.Duration
	emit      func(Event)

	stopOnce sync.Once
	stop     chan struct{}
	done     chan struct{}
}

// NewRevealer creates a revealer for the given message body. An interval
// of zero or less falls back to DefaultRevealInterval. Events are delivered
// through emit from the revealer's own goroutine.
func NewRevealer(messageID, body string, interval time.Duration, emit func(Event)) *Revealer {
	if interval <= 0 {
		interval = DefaultRevealInterval
	}
	return &Revealer{
		messageID: messageID,
		runes:     []rune(body),
		interval:  interval,
		emit:      emit,
		stop:      make(chan struct{}),
		done:      make(chan struct{}),
	}
}

// Start launches the reveal goroutine. The first rune is emitted after one
// interval; the final tick carries the full body with Done set.
func (r *Revealer) Start() {
	go r.run()
}

// Stop cancels the reveal and blocks until the goroutine has exited, so no
// tick is emitted after Stop returns. Safe to call more than once.
func (r *Revealer) Stop() {
	r.stopOnce.Do(func() { close(r.stop) })
	<-r.done
}

func (r *Revealer) run() {
	defer close(r.done)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for i := 1; i <= len(r.runes); i++ {
		select {
		case <-r.stop:
			return
		case <-ticker.C:
		}
		r.emit(RevealTick{
			MessageID: r.messageID,
			Body:      string(r.runes[:i]),
			Done:      i == len(r.runes),
		})
	}
}
