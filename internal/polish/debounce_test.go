package polish

import (
	"sync/atomic"
	"testing"
	"time"
)

func TestDebouncerCoalescesBurst(t *testing.T) {
	var fired atomic.Int32
	d := NewDebouncer(30*time.Millisecond, func() { fired.Add(1) })

	// A burst of notifications inside the quiet interval must collapse
	// into exactly one fire.
	for i := 0; i < 5; i++ {
		d.Notify()
		time.Sleep(5 * time.Millisecond)
	}

	time.Sleep(100 * time.Millisecond)
	if got := fired.Load(); got != 1 {
		t.Fatalf("want exactly one fire, got %d", got)
	}
}

func TestDebouncerFiresAgainAfterQuiet(t *testing.T) {
	var fired atomic.Int32
	d := NewDebouncer(20*time.Millisecond, func() { fired.Add(1) })

	d.Notify()
	time.Sleep(60 * time.Millisecond)
	d.Notify()
	time.Sleep(60 * time.Millisecond)

	if got := fired.Load(); got != 2 {
		t.Fatalf("want two fires across two quiet periods, got %d", got)
	}
}

func TestDebouncerCancel(t *testing.T) {
	var fired atomic.Int32
	d := NewDebouncer(20*time.Millisecond, func() { fired.Add(1) })

	d.Notify()
	d.Cancel()

	time.Sleep(60 * time.Millisecond)
	if got := fired.Load(); got != 0 {
		t.Fatalf("cancelled debounce should not fire, got %d", got)
	}
}

func TestDebouncerCancelWithoutNotify(t *testing.T) {
	d := NewDebouncer(20*time.Millisecond, func() {})
	d.Cancel() // must not panic
}
