package outputmeta

import (
	"testing"
	"time"

	"github.com/mrzor/vmdisplay-receiver/internal/record"
)

func frameAt(output int, counter int32, at time.Time) *FrameInfo {
	return &FrameInfo{
		Domain:     1,
		Output:     output,
		Header:     record.FrameHeader{Output: int32(output), Counter: counter, BufferCount: 1},
		Buffers:    make([]record.BufferDescriptor, 1),
		ReceivedAt: at,
	}
}

func TestManager_RecordAndGet(t *testing.T) {
	m := NewManager()
	start := time.Unix(1700000000, 0)

	first := frameAt(0, 1, start)
	if prev := m.Record(first); prev != nil {
		t.Errorf("Record() of first frame returned %+v, want nil", prev)
	}

	second := frameAt(0, 2, start.Add(16*time.Millisecond))
	prev := m.Record(second)
	if prev != first {
		t.Errorf("Record() returned %p, want first frame %p", prev, first)
	}

	if got := m.Get(0); got != second {
		t.Errorf("Get(0) = %p, want second frame %p", got, second)
	}
	if got := m.Frames(0); got != 2 {
		t.Errorf("Frames(0) = %d, want 2", got)
	}
	if got := second.Interval(prev); got != 16*time.Millisecond {
		t.Errorf("Interval() = %v, want 16ms", got)
	}
}

func TestManager_GetNonExistent(t *testing.T) {
	m := NewManager()

	if got := m.Get(3); got != nil {
		t.Error("Expected nil for an output without frames")
	}
	if got := m.Frames(3); got != 0 {
		t.Errorf("Frames(3) = %d, want 0", got)
	}
}

func TestManager_OutputsAreIndependent(t *testing.T) {
	m := NewManager()
	now := time.Now()

	m.Record(frameAt(2, 5, now))
	m.Record(frameAt(0, 6, now))
	m.Record(frameAt(2, 7, now))

	if got := m.Frames(2); got != 2 {
		t.Errorf("Frames(2) = %d, want 2", got)
	}
	if got := m.Frames(0); got != 1 {
		t.Errorf("Frames(0) = %d, want 1", got)
	}

	outputs := m.Outputs()
	if len(outputs) != 2 || outputs[0] != 0 || outputs[1] != 2 {
		t.Errorf("Outputs() = %v, want [0 2]", outputs)
	}
}

func TestManager_AddIssue(t *testing.T) {
	m := NewManager()

	m.AddIssue(1, "issue 1")
	m.AddIssue(1, "issue 2")

	issues := m.GetIssues(1)
	if len(issues) != 2 {
		t.Errorf("GetIssues() length = %d, want 2", len(issues))
	}

	if issues[0] != "issue 1" || issues[1] != "issue 2" {
		t.Errorf("GetIssues() = %v, want [issue 1, issue 2]", issues)
	}
}

func TestManager_AddIssues(t *testing.T) {
	m := NewManager()

	m.AddIssues(1, []string{"issue 1", "issue 2"})

	issues := m.GetIssues(1)
	if len(issues) != 2 {
		t.Errorf("GetIssues() length = %d, want 2", len(issues))
	}
}

func TestManager_TakeIssues(t *testing.T) {
	m := NewManager()

	m.AddIssue(0, "sequence number did not advance")

	issues := m.TakeIssues(0)
	if len(issues) != 1 {
		t.Fatalf("TakeIssues() length = %d, want 1", len(issues))
	}
	if got := m.TakeIssues(0); got != nil {
		t.Errorf("second TakeIssues() = %v, want nil", got)
	}
}

func TestManager_GetIssuesReturnsCopy(t *testing.T) {
	m := NewManager()
	m.AddIssue(0, "original")

	issues := m.GetIssues(0)
	issues[0] = "changed"

	if got := m.GetIssues(0); got[0] != "original" {
		t.Errorf("GetIssues()[0] = %q, want original", got[0])
	}
}

func TestManager_Delete(t *testing.T) {
	m := NewManager()

	m.Record(frameAt(1, 1, time.Now()))
	m.AddIssue(1, "issue 1")

	// Verify data exists
	if m.Get(1) == nil {
		t.Error("Frame should exist before delete")
	}
	if len(m.GetIssues(1)) == 0 {
		t.Error("Issues should exist before delete")
	}

	m.Delete(1)

	// Verify data is gone
	if m.Get(1) != nil {
		t.Error("Frame should be nil after delete")
	}
	if m.Frames(1) != 0 {
		t.Error("Frame count should be zero after delete")
	}
	if m.GetIssues(1) != nil {
		t.Error("Issues should be nil after delete")
	}
}

func TestFrameInfo_BufferIDs(t *testing.T) {
	frame := &record.Frame{
		Header:  record.FrameHeader{Output: 1, Counter: 9, BufferCount: 2},
		Buffers: make([]record.BufferDescriptor, 2),
	}
	frame.Buffers[0].SetID(record.BufferID{Key: 7, RngKey: [3]int32{1, 2, 3}})
	frame.Buffers[1].SetID(record.BufferID{Key: 8})

	info := NewFrameInfo(4, 1, frame, time.Now())
	ids := info.BufferIDs()

	if len(ids) != 2 {
		t.Fatalf("BufferIDs() length = %d, want 2", len(ids))
	}
	if ids[0].Key != 7 || ids[0].RngKey != [3]int32{1, 2, 3} {
		t.Errorf("BufferIDs()[0] = %+v", ids[0])
	}
	if ids[1].Key != 8 {
		t.Errorf("BufferIDs()[1].Key = %d, want 8", ids[1].Key)
	}
	if info.Domain != 4 || info.Output != 1 {
		t.Errorf("NewFrameInfo() domain/output = %d/%d, want 4/1", info.Domain, info.Output)
	}
}

func TestFrameInfo_IntervalWithoutPrevious(t *testing.T) {
	info := frameAt(0, 1, time.Now())
	if got := info.Interval(nil); got != 0 {
		t.Errorf("Interval(nil) = %v, want 0", got)
	}
}

func TestManager_Concurrent(_ *testing.T) {
	m := NewManager()
	now := time.Now()

	done := make(chan bool)

	// Writer goroutine
	go func() {
		for i := range 100 {
			//nolint:gosec // Test loop with bounded range
			m.Record(frameAt(i%4, int32(i), now))
			m.AddIssue(i%4, "issue")
		}
		done <- true
	}()

	// Reader goroutine
	go func() {
		for i := range 100 {
			_ = m.Get(i % 4)
			_ = m.GetIssues(i % 4)
			_ = m.Outputs()
		}
		done <- true
	}()

	<-done
	<-done
}
