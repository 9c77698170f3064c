package analysis

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/tphakala/withu/internal/classifier"
)

const (
	meterWidth    = 30
	meterInterval = 250 * time.Millisecond
)

func formatDetection(ev classifier.DetectionEvent) string {
	return fmt.Sprintf("%s  %-15s %5.1f%%  level %5.1f  %s",
		ev.Timestamp.Format("15:04:05.000"),
		ev.Type,
		ev.Confidence*100,
		ev.SoundLevel,
		ev.Type.Title())
}

// renderMeter draws level (0..100) as a fixed-width bar.
func renderMeter(level float64) string {
	if level < 0 {
		level = 0
	}
	if level > 100 {
		level = 100
	}
	filled := int(level / 100 * meterWidth)
	return fmt.Sprintf("\r[%s%s] %5.1f", strings.Repeat("#", filled), strings.Repeat(" ", meterWidth-filled), level)
}

// runLevelMeter redraws the meter from levels at most once per every until
// ctx is done or levels is closed.
func runLevelMeter(ctx context.Context, levels <-chan float64, w io.Writer, every time.Duration) {
	limiter := rate.NewLimiter(rate.Every(every), 1)
	for {
		select {
		case <-ctx.Done():
			return
		case level, ok := <-levels:
			if !ok {
				return
			}
			if !limiter.Allow() {
				continue
			}
			if _, err := io.WriteString(w, renderMeter(level)); err != nil {
				return
			}
		}
	}
}
