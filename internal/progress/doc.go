// Package progress carries per-item and per-run crawl events from workers to
// pluggable sinks. Emit never blocks: events are buffered, batched on a
// background goroutine and dropped under backpressure.
package progress
