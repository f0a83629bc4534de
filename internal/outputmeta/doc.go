// Package outputmeta keeps per-output frame history for the frame sinks.
//
// FrameInfo is one completed frame: the finalized header, its buffer
// descriptors, and the time it was received.
//
// Manager provides command-query separation:
//
// Queries (read-only):
//   - Get(output) - Most recent frame
//   - Frames(output) - Frames produced so far
//   - GetIssues(output) - Pending anomalies
//   - Outputs() - Outputs seen so far
//
// Commands (mutations):
//   - Record(frame) - Store a frame, returning the one it replaces
//   - AddIssue(output, issue) - Add an anomaly
//   - TakeIssues(output) - Consume pending anomalies
//   - Delete(output) - Forget an output
//
// Thread-safe with RWMutex for concurrent access.
package outputmeta
