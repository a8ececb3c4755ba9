package img2bag

import (
	"github.com/pterm/pterm"
)

// Progress observes a conversion. It never influences scheduling.
type Progress interface {
	// Start announces a stream of total frames.
	Start(title string, total int)
	Increment()
	Stop()
}

type nopProgress struct{}

func (nopProgress) Start(string, int) {}
func (nopProgress) Increment()        {}
func (nopProgress) Stop()             {}

// NopProgress discards progress updates.
var NopProgress Progress = nopProgress{}

// TerminalProgress draws one progress bar per stream.
type TerminalProgress struct {
	bar *pterm.ProgressbarPrinter
}

// NewTerminalProgress returns a Progress that renders to the terminal.
func NewTerminalProgress() *TerminalProgress {
	return &TerminalProgress{}
}

func (p *TerminalProgress) Start(title string, total int) {
	bar, err := pterm.DefaultProgressbar.
		WithTotal(total).
		WithTitle(title).
		WithRemoveWhenDone(false).
		Start()
	if err != nil {
		// the bar is cosmetic
		p.bar = nil
		return
	}
	p.bar = bar
}

func (p *TerminalProgress) Increment() {
	if p.bar != nil {
		p.bar.Increment()
	}
}

func (p *TerminalProgress) Stop() {
	if p.bar != nil {
		_, _ = p.bar.Stop()
		p.bar = nil
	}
}
