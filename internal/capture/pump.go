package capture

import (
	"context"
	"log/slog"

	"github.com/CyanAutomation/motion-in-ocean/internal/filter"
	"github.com/CyanAutomation/motion-in-ocean/internal/framesink"
)

// Pump drains frames from the provider channel into the sink, applying
// the optional filter in between. It is the single producer context the
// sink's contract assumes.
//
// A filter failure downgrades that frame to pass-through; it never stops
// the pipeline. Pump returns when ctx is cancelled or frames closes.
func Pump(ctx context.Context, frames <-chan Frame, filt filter.Filter, sink *framesink.Sink) {
	for {
		select {
		case <-ctx.Done():
			return
		case frame, ok := <-frames:
			if !ok {
				return
			}

			data := frame.Data
			if filt != nil {
				filtered, err := filt.Apply(data)
				if err != nil {
					slog.Warn("frame filter failed, publishing unfiltered",
						"seq", frame.Seq,
						"trace_id", frame.TraceID,
						"error", err,
					)
				} else {
					data = filtered
				}
			}

			sink.Publish(data)
		}
	}
}
