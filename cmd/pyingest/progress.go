package main

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/schollz/progressbar/v3"

	"github.com/dshills/pyingest/pkg/types"
)

// barSink draws a progress bar over the files of a run
type barSink struct {
	out     io.Writer
	noColor bool

	mu  sync.Mutex
	bar *progressbar.ProgressBar
}

// newBarSink returns nil when progress should not be drawn: JSON output or
// a stderr that is not a terminal
func newBarSink(jsonOutput bool) *barSink {
	if jsonOutput || !isatty.IsTerminal(os.Stderr.Fd()) {
		return nil
	}
	return &barSink{out: os.Stderr, noColor: globals.noColor}
}

func (b *barSink) OnDiscovery(ev types.DiscoveryEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.bar = progressbar.NewOptions(ev.FilesToProcess,
		progressbar.OptionSetDescription("Ingesting"),
		progressbar.OptionSetWriter(b.out),
		progressbar.OptionShowCount(),
		progressbar.OptionSetPredictTime(true),
		progressbar.OptionClearOnFinish(),
		progressbar.OptionSetWidth(40),
		progressbar.OptionEnableColorCodes(!b.noColor),
		progressbar.OptionThrottle(65*time.Millisecond),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "=",
			SaucerHead:    ">",
			SaucerPadding: " ",
			BarStart:      "[",
			BarEnd:        "]",
		}),
	)
}

func (b *barSink) OnFile(ev types.FileEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.bar == nil {
		return
	}
	b.bar.Describe(fmt.Sprintf("Ingesting (%d chunks)", ev.Chunks))
	_ = b.bar.Add(1)
}

func (b *barSink) OnRunComplete(types.RunEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.bar != nil {
		_ = b.bar.Finish()
		b.bar = nil
	}
}
