package collab

import "time"

// Rate-limit tuning.
const (
	MaxMessagesPerWindow = 20
	RateWindow           = time.Second
	MaxRateWarnings      = 3
)

// rateWindow is a fixed-window message counter with a warning escalation.
// Not safe for concurrent use; the hub mutex guards it.
type rateWindow struct {
	windowStart time.Time
	count       int
	warnings    int
}

// rateVerdict is the outcome of admitting one message.
type rateVerdict int

const (
	rateOK rateVerdict = iota
	rateWarn
	rateDisconnect
)

// admit counts one message at now. Over-limit messages escalate a warning;
// the warning after the last allowed one demands a disconnect. The counter
// and warnings reset when the window ages out.
func (w *rateWindow) admit(now time.Time) (rateVerdict, int) {
	if now.Sub(w.windowStart) >= RateWindow {
		w.windowStart = now
		w.count = 0
		w.warnings = 0
	}
	w.count++
	if w.count <= MaxMessagesPerWindow {
		return rateOK, 0
	}
	if w.warnings < MaxRateWarnings {
		w.warnings++
		return rateWarn, w.warnings
	}
	return rateDisconnect, w.warnings
}
