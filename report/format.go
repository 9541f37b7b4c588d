package report

import (
	"fmt"
	"io"
	"os"
	"strings"
)

// writeText renders view in the single-fwrite text layout of
// formatter.cpp's ada_metrics_formatter_write_text: one summary line
// followed by one line per thread snapshot, 2-decimal precision on
// every rate/percentage field.
func writeText(w io.Writer, view ReportView) error {
	var b strings.Builder
	fmt.Fprintf(&b, "[metrics][%s] ts=%d total_events=%d dropped=%d filtered=%d bytes=%d active_threads=%d eps=%.2f bps=%.2f window_ns=%d\n",
		view.Kind, view.TimestampNs,
		view.Totals.EventsWritten, view.Totals.EventsDropped, view.Totals.EventsFiltered,
		view.Totals.BytesWritten, view.Totals.ActiveThreadCount,
		view.Rates.EventsPerSecond, view.Rates.BytesPerSecond, view.Rates.WindowNs)

	for _, s := range view.Snapshots {
		fmt.Fprintf(&b, "  thread=%d slot=%d events=%d dropped=%d filtered=%d bytes=%d eps=%.2f bps=%.2f drop%%=%.2f swaps=%d swaps_per_s=%.2f avg_swap_ns=%d\n",
			s.ThreadID, s.SlotIndex, s.EventsWritten, s.EventsDropped, s.EventsFiltered,
			s.BytesWritten, s.EventsPerSecond, s.BytesPerSecond, s.DropRatePercent,
			s.SwapCount, s.SwapsPerSecond, s.AvgSwapDurationNs)
	}

	_, err := io.WriteString(w, b.String())
	return err
}

// renderJSON renders view as a single JSON object line, matching
// ada_metrics_formatter_write_json's manual field ordering and
// 6-decimal precision on rate/percentage fields — hand-built rather
// than encoding/json-marshaled so the wire layout matches the original
// byte for byte.
func renderJSON(view ReportView) string {
	var b strings.Builder
	fmt.Fprintf(&b, `{"kind":"%s","timestamp_ns":%d,"totals":{"events_written":%d,"events_dropped":%d,"events_filtered":%d,"bytes_written":%d,"active_threads":%d},"rates":{"events_per_second":%.6f,"bytes_per_second":%.6f,"window_ns":%d},"threads":[`,
		view.Kind, view.TimestampNs,
		view.Totals.EventsWritten, view.Totals.EventsDropped, view.Totals.EventsFiltered,
		view.Totals.BytesWritten, view.Totals.ActiveThreadCount,
		view.Rates.EventsPerSecond, view.Rates.BytesPerSecond, view.Rates.WindowNs)

	for i, s := range view.Snapshots {
		if i != 0 {
			b.WriteByte(',')
		}
		fmt.Fprintf(&b, `{"thread_id":%d,"slot_index":%d,"events_written":%d,"events_dropped":%d,"events_filtered":%d,"bytes_written":%d,"events_per_second":%.6f,"bytes_per_second":%.6f,"drop_rate_percent":%.6f,"swap_count":%d,"swaps_per_second":%.6f,"avg_swap_duration_ns":%d}`,
			s.ThreadID, s.SlotIndex, s.EventsWritten, s.EventsDropped, s.EventsFiltered,
			s.BytesWritten, s.EventsPerSecond, s.BytesPerSecond, s.DropRatePercent,
			s.SwapCount, s.SwapsPerSecond, s.AvgSwapDurationNs)
	}
	b.WriteString("]}\n")
	return b.String()
}

// appendJSON appends one rendered report line to path, creating it if
// necessary. Every call opens and closes the file, matching the
// original's fopen(path, "a") per report rather than holding a
// long-lived handle.
func appendJSON(path string, view ReportView) error {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = io.WriteString(f, renderJSON(view))
	return err
}
