// Package output provides the frame sinks.
//
// OTELFormatter is a pure formatting layer that:
//   - Receives processed frames and their predecessors
//   - Creates one OpenTelemetry span per frame
//   - Sets span attributes from frame data and custom expressions
//
// DumpWriter appends each frame to a stream of CBOR data items.
//
// Multi fans a frame out to several sinks.
//
// Sinks do not read the channel or touch destination regions. They receive
// fully-processed frames through the FrameHandler interface:
//   - attributes: Expression evaluation
//   - outputmeta: Frame history and anomalies
package output
