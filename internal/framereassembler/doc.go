// Package framereassembler folds hyper_dmabuf event records into complete
// per-output frame descriptors.
//
// Records carry no end-of-frame marker. A frame ends either when a record from
// a different frame shows up (its sequence number differs) or when the number
// of buffers folded reaches the count declared in the frame header, whichever
// comes first. The record that revealed the boundary is carried over and
// starts the next frame on the following call.
//
// State machine (one in-progress frame per tracking slot):
//
//	┌──────┐
//	│ Idle │ ◄─────────────────────────────┐
//	└──┬───┘                               │
//	   │ record (valid output)             │
//	   ▼                                   │
//	┌──────────────┐  same counter   ┌─────┴────┐
//	│ Accumulating │ ───────────────►│   Emit   │
//	└──┬───────┬───┘  count reached  └─────▲────┘
//	   │       │                           │
//	   │       │ different counter/output  │
//	   │       └── carry record over ──────┘
//	   │
//	   │ same counter, count not reached
//	   └──► append descriptor, stay
//
// Records whose output index is out of range are dropped before they reach
// the state machine.
//
// Destination layout per output:
//
//	offset 0                 FrameHeader (BufferCount = buffers folded)
//	offset HeaderSize        BufferDescriptor #0
//	offset HeaderSize + 160  BufferDescriptor #1
//	...
//
// Emission writes the header last and rewinds the output's cursor to
// HeaderSize. Callers must size each region for their worst-case frame;
// a fold that would overflow fails with ErrDestinationFull.
package framereassembler
