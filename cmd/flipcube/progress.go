package main

import (
	"fmt"
	"io"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/term"
)

const (
	progressUpdateInterval = 100 * time.Millisecond
	clearLineSequence      = "\r\033[K"
)

// ProgressPrinter keeps one status line updated on a terminal while a slow BLE step
// runs. When the output is not a terminal it prints nothing.
//
// A ProgressPrinter is single-use: Start once, Stop at least once.
type ProgressPrinter struct {
	out      io.Writer
	enabled  bool
	prefix   string
	phase    atomic.Value // string
	deadline time.Duration

	startTime time.Time
	started   atomic.Bool
	stopOnce  sync.Once
	stopChan  chan struct{}
	done      chan struct{}
}

// NewProgressPrinter creates a printer showing elapsed seconds
func NewProgressPrinter(out io.Writer, prefix, phase string) *ProgressPrinter {
	p := &ProgressPrinter{
		out:      out,
		enabled:  isTerminal(out),
		prefix:   prefix,
		stopChan: make(chan struct{}),
		done:     make(chan struct{}),
	}
	p.phase.Store(phase)
	return p
}

// NewCountdownProgressPrinter creates a printer showing the seconds left of duration
func NewCountdownProgressPrinter(out io.Writer, prefix, phase string, duration time.Duration) *ProgressPrinter {
	p := NewProgressPrinter(out, prefix, phase)
	p.deadline = duration
	return p
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

// Start begins updating the line in a background goroutine
func (p *ProgressPrinter) Start() {
	if !p.started.CompareAndSwap(false, true) {
		panic("ProgressPrinter.Start called more than once")
	}
	p.startTime = time.Now()
	if !p.enabled {
		close(p.done)
		return
	}

	go func() {
		defer close(p.done)
		ticker := time.NewTicker(progressUpdateInterval)
		defer ticker.Stop()

		for {
			p.print()
			select {
			case <-p.stopChan:
				return
			case <-ticker.C:
			}
		}
	}()
}

func (p *ProgressPrinter) print() {
	phase := p.phase.Load().(string)
	elapsed := time.Since(p.startTime)

	seconds := int(elapsed.Seconds())
	if p.deadline > 0 {
		seconds = max(int((p.deadline-elapsed).Seconds()+0.5), 0)
	}
	fmt.Fprintf(p.out, "\r%s (%s %ds)   ", p.prefix, phase, seconds)
}

// Callback returns a phase setter suitable for scanner and command progress hooks
func (p *ProgressPrinter) Callback() func(phase string) {
	return func(phase string) { p.phase.Store(phase) }
}

// Stop ends the updates and clears the line. Safe to call more than once.
func (p *ProgressPrinter) Stop() {
	if !p.started.Load() {
		return
	}
	p.stopOnce.Do(func() {
		close(p.stopChan)
		<-p.done
		if p.enabled {
			fmt.Fprint(p.out, clearLineSequence)
		}
	})
}
