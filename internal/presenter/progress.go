package presenter

import (
	"fmt"
	"io"

	"github.com/fatih/color"
	"github.com/schollz/progressbar/v3"
)

// Progress tracks a batch of generation runs.
type Progress struct {
	bar *progressbar.ProgressBar
}

// NewProgress creates a progress bar for total items, drawn on w.
func NewProgress(w io.Writer, total int) *Progress {
	bar := progressbar.NewOptions(total,
		progressbar.OptionSetDescription(describe(0, 0)),
		progressbar.OptionSetWidth(40),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        color.CyanString("█"),
			SaucerHead:    color.CyanString("█"),
			SaucerPadding: "░",
			BarStart:      "│",
			BarEnd:        "│",
		}),
		progressbar.OptionEnableColorCodes(true),
		progressbar.OptionSetWriter(w),
		progressbar.OptionOnCompletion(func() {
			fmt.Fprint(w, "\n")
		}),
		progressbar.OptionSetRenderBlankState(true),
	)
	return &Progress{bar: bar}
}

// Update moves the bar to done+failed and refreshes the counts.
func (p *Progress) Update(done, failed int) {
	_ = p.bar.Set(done + failed)
	p.bar.Describe(describe(done, failed))
}

func (p *Progress) Finish() {
	_ = p.bar.Finish()
}

func describe(done, failed int) string {
	return color.CyanString("Generating: ") +
		color.GreenString("[done: %d", done) +
		" | " +
		color.RedString("failed: %d]", failed)
}
