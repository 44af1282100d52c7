package research

import (
	"log/slog"
)

// ProgressEvent is an advisory status update. Percent is nil when the step has
// no meaningful position; values are heuristic and may exceed 100.
type ProgressEvent struct {
	Message  string
	Percent  *int
	Metadata map[string]any
}

// ProgressObserver receives progress events. Implementations must not block.
type ProgressObserver interface {
	OnProgress(ev ProgressEvent)
}

// ProgressFunc adapts a function to ProgressObserver.
type ProgressFunc func(ev ProgressEvent)

func (f ProgressFunc) OnProgress(ev ProgressEvent) { f(ev) }

// Percent returns a pointer to n for ProgressEvent.Percent.
func Percent(n int) *int { return &n }

// SlogProgress logs every event at info level.
func SlogProgress(logger *slog.Logger) ProgressObserver {
	return ProgressFunc(func(ev ProgressEvent) {
		args := make([]any, 0, 2+2*len(ev.Metadata))
		if ev.Percent != nil {
			args = append(args, "percent", *ev.Percent)
		}
		for k, v := range ev.Metadata {
			args = append(args, k, v)
		}
		logger.Info(ev.Message, args...)
	})
}

// MultiProgress fans events out to several observers in order.
func MultiProgress(observers ...ProgressObserver) ProgressObserver {
	return ProgressFunc(func(ev ProgressEvent) {
		for _, o := range observers {
			if o != nil {
				o.OnProgress(ev)
			}
		}
	})
}

func (e *ResearchEngine) report(message string, percent *int, metadata map[string]any) {
	if e.Progress == nil {
		return
	}
	if metadata == nil {
		metadata = map[string]any{}
	}
	e.Progress.OnProgress(ProgressEvent{Message: message, Percent: percent, Metadata: metadata})
}
