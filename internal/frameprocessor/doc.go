// Package frameprocessor turns completed frames into per-output history and
// routes them to the frame sinks.
//
// Architecture:
//
//	┌─────────────────────────────────────────┐
//	│   framestream (destination regions)     │
//	└─────────────────┬───────────────────────┘
//	                  │ HandleRegion(output, frame)
//	                  ▼
//	┌─────────────────────────────────────────┐
//	│   frameprocessor                        │
//	│   - Stamps domain and receive time      │
//	│   - Records history in outputmeta       │
//	│   - Flags anomalies                     │
//	└─────────────────┬───────────────────────┘
//	                  │ HandleFrame(frame, previous)
//	                  ▼
//	┌─────────────────────────────────────────┐
//	│   output sinks (spans, CBOR dump)       │
//	└─────────────────────────────────────────┘
//
// Anomalies are stored as outputmeta issues: a header naming a different
// output than the region it was written to, a sequence number that does not
// advance, and buffers without a hyper_dmabuf id.
package frameprocessor
