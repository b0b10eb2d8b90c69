package sheetforge

import (
	"context"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sheetforge/sheetforge/internal/recalculator"
)

type fakeRecalculator struct {
	concurrent int32
	maxSeen    int32
	delay      time.Duration
	err        error
}

func (f *fakeRecalculator) Recalc(ctx context.Context, workbookPath string, timeout time.Duration) (recalculator.Result, error) {
	n := atomic.AddInt32(&f.concurrent, 1)
	defer atomic.AddInt32(&f.concurrent, -1)
	for {
		max := atomic.LoadInt32(&f.maxSeen)
		if n <= max || atomic.CompareAndSwapInt32(&f.maxSeen, max, n) {
			break
		}
	}
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return recalculator.Result{}, ctx.Err()
		}
	}
	if f.err != nil {
		return recalculator.Result{}, f.err
	}
	return recalculator.Result{Duration: f.delay, Backend: "fake"}, nil
}

func TestRecalcGateSerializesSameFork(t *testing.T) {
	r, root := newTestRegistry(t, DefaultLimits())
	base := root + "/book.xlsx"
	newTestWorkbook(t, base, "Sheet1")
	id, err := r.Create(context.Background(), base)
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	gate := r.NewRecalcGate(4)
	rc := &fakeRecalculator{delay: 20 * time.Millisecond}

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = gate.Recalc(context.Background(), rc, id, "", time.Second)
		}()
	}
	wg.Wait()

	if rc.maxSeen != 1 {
		t.Fatalf("expected at most 1 concurrent recalc against the same fork, saw %d", rc.maxSeen)
	}
}

func TestRecalcGateBoundsGlobalConcurrency(t *testing.T) {
	r, root := newTestRegistry(t, DefaultLimits())
	base := root + "/book.xlsx"
	newTestWorkbook(t, base, "Sheet1")

	var forkIDs []string
	for i := 0; i < 4; i++ {
		id, err := r.Create(context.Background(), base)
		if err != nil {
			t.Fatalf("create: %v", err)
		}
		forkIDs = append(forkIDs, id)
	}

	gate := r.NewRecalcGate(2)
	rc := &fakeRecalculator{delay: 30 * time.Millisecond}

	var wg sync.WaitGroup
	for _, id := range forkIDs {
		id := id
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = gate.Recalc(context.Background(), rc, id, "", time.Second)
		}()
	}
	wg.Wait()

	if rc.maxSeen > 2 {
		t.Fatalf("expected the global permit to cap concurrency at 2, saw %d", rc.maxSeen)
	}
}

func TestRecalcGateTranslatesDeadlineExceeded(t *testing.T) {
	r, root := newTestRegistry(t, DefaultLimits())
	base := root + "/book.xlsx"
	newTestWorkbook(t, base, "Sheet1")
	id, err := r.Create(context.Background(), base)
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	gate := r.NewRecalcGate(1)
	rc := &fakeRecalculator{err: context.DeadlineExceeded}

	if _, err := gate.Recalc(context.Background(), rc, id, "", time.Millisecond); err != ErrRecalcTimeout {
		t.Fatalf("expected ErrRecalcTimeout, got %v", err)
	}
}

func TestDiscardWaitsForInFlightRecalcBeforeDeletingWorkingCopy(t *testing.T) {
	r, root := newTestRegistry(t, DefaultLimits())
	base := root + "/book.xlsx"
	newTestWorkbook(t, base, "Sheet1")
	id, err := r.Create(context.Background(), base)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	fc, err := r.GetFork(id)
	if err != nil {
		t.Fatalf("get fork: %v", err)
	}

	gate := r.NewRecalcGate(1)
	rc := &fakeRecalculator{delay: 50 * time.Millisecond}

	recalcDone := make(chan struct{})
	go func() {
		defer close(recalcDone)
		_, _ = gate.Recalc(context.Background(), rc, id, fc.WorkingCopy, time.Second)
	}()

	// Give the recalc goroutine a head start so it holds the fork's
	// recalc lock before Discard ever runs.
	time.Sleep(10 * time.Millisecond)

	discardDone := make(chan struct{})
	go func() {
		defer close(discardDone)
		if err := r.Discard(context.Background(), id); err != nil {
			t.Errorf("discard: %v", err)
		}
	}()

	select {
	case <-discardDone:
		t.Fatal("expected Discard to block until the in-flight recalc released the fork's recalc lock")
	case <-time.After(20 * time.Millisecond):
	}

	<-recalcDone
	<-discardDone

	if _, err := os.Stat(fc.WorkingCopy); !os.IsNotExist(err) {
		t.Fatalf("expected the working copy to be removed once discard proceeds, stat err=%v", err)
	}
}

func TestRecalculateBumpsVersion(t *testing.T) {
	r, root := newTestRegistry(t, DefaultLimits())
	base := root + "/book.xlsx"
	newTestWorkbook(t, base, "Sheet1")
	id, err := r.Create(context.Background(), base)
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	gate := r.NewRecalcGate(1)
	rc := &fakeRecalculator{}

	if _, err := r.Recalculate(context.Background(), gate, rc, id, time.Second); err != nil {
		t.Fatalf("recalculate: %v", err)
	}
	fc, _ := r.GetFork(id)
	if fc.Version() != 1 {
		t.Fatalf("expected version 1 after a successful recalculate, got %d", fc.Version())
	}
}
