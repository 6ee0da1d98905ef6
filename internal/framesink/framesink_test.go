package framesink_test

import (
	"bytes"
	"context"
	"sync"
	"testing"
	"time"

	"github.com/CyanAutomation/motion-in-ocean/internal/framesink"
)

// TestPublishNonBlocking validates Publish returns immediately even when
// viewers are blocked and never consume.
//
// Scenario:
//  1. Park 10 viewers in WaitForNext with a context that is never cancelled
//     until cleanup (simulates stalled clients).
//  2. Publish 100 frames in a tight loop.
//  3. Assert total time well under 100ms.
func TestPublishNonBlocking(t *testing.T) {
	sink := framesink.New()
	defer sink.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			// Stalled viewer: waits once, then never comes back for more.
			_, gen, err := sink.WaitForNext(ctx, 0)
			if err == nil && gen == 0 {
				t.Errorf("WaitForNext returned generation 0 with no error")
			}
			<-ctx.Done()
		}()
	}

	// Give viewers time to block.
	time.Sleep(10 * time.Millisecond)

	start := time.Now()
	for i := 0; i < 100; i++ {
		sink.Publish([]byte{byte(i + 1)})
	}
	elapsed := time.Since(start)

	if elapsed > 100*time.Millisecond {
		t.Errorf("Publish blocked: 100 frames took %v (expected <100ms)", elapsed)
	}

	cancel()
	wg.Wait()
}

// TestWaitersObserveSamePair validates that all viewers released by one
// publish observe the identical (payload, generation) pair — no torn reads.
//
// Scenario:
//  1. Block N viewers on generation 0.
//  2. Publish exactly one frame.
//  3. Every viewer must report payload "P" with generation 1.
func TestWaitersObserveSamePair(t *testing.T) {
	sink := framesink.New()
	defer sink.Close()

	const viewers = 16
	payload := []byte("P")

	type result struct {
		data []byte
		gen  uint64
		err  error
	}
	results := make(chan result, viewers)

	var ready sync.WaitGroup
	for i := 0; i < viewers; i++ {
		ready.Add(1)
		go func() {
			ready.Done()
			data, gen, err := sink.WaitForNext(context.Background(), 0)
			results <- result{data, gen, err}
		}()
	}
	ready.Wait()
	time.Sleep(10 * time.Millisecond) // let goroutines reach the wait

	sink.Publish(payload)

	for i := 0; i < viewers; i++ {
		r := <-results
		if r.err != nil {
			t.Fatalf("viewer %d: WaitForNext failed: %v", i, r.err)
		}
		if r.gen != 1 {
			t.Errorf("viewer %d: generation = %d, want 1", i, r.gen)
		}
		if !bytes.Equal(r.data, payload) {
			t.Errorf("viewer %d: payload = %q, want %q", i, r.data, payload)
		}
	}
}

// TestGenerationMonotonic validates a viewer chasing the stream never
// observes a generation out of increasing order and never the same
// generation twice.
func TestGenerationMonotonic(t *testing.T) {
	sink := framesink.New()
	defer sink.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan struct{})
	var last uint64
	go func() {
		defer close(done)
		for {
			_, gen, err := sink.WaitForNext(ctx, last)
			if err != nil {
				return
			}
			if gen <= last {
				t.Errorf("generation went backwards: %d after %d", gen, last)
				return
			}
			last = gen
		}
	}()

	for i := 0; i < 200; i++ {
		sink.Publish([]byte{byte(i)})
		if i%20 == 0 {
			time.Sleep(time.Millisecond) // let the viewer consume sometimes
		}
	}

	cancel()
	<-done

	if last == 0 {
		t.Error("viewer consumed no frames")
	}
}

// TestWaitCancellation validates a cancelled wait returns promptly even
// when no further publish occurs.
func TestWaitCancellation(t *testing.T) {
	sink := framesink.New()
	defer sink.Close()

	ctx, cancel := context.WithCancel(context.Background())

	errCh := make(chan error, 1)
	go func() {
		_, _, err := sink.WaitForNext(ctx, 0)
		errCh <- err
	}()

	time.Sleep(10 * time.Millisecond)
	cancel()

	select {
	case err := <-errCh:
		if err != context.Canceled {
			t.Errorf("WaitForNext returned %v, want context.Canceled", err)
		}
	case <-time.After(200 * time.Millisecond):
		t.Fatal("cancelled wait did not return within 200ms")
	}
}

// TestStarvationTimeout validates that a wait with a configured starvation
// timeout reports ErrNoFrame instead of hanging when the producer goes
// silent.
//
// Scenario: viewer subscribes at the current generation (already past),
// no publish follows, wait must end with ErrNoFrame.
func TestStarvationTimeout(t *testing.T) {
	sink := framesink.New(framesink.WithStarvationTimeout(50 * time.Millisecond))
	defer sink.Close()

	sink.Publish([]byte("only"))

	start := time.Now()
	_, _, err := sink.WaitForNext(context.Background(), sink.Generation())
	elapsed := time.Since(start)

	if err != framesink.ErrNoFrame {
		t.Fatalf("WaitForNext returned %v, want ErrNoFrame", err)
	}
	if elapsed > 500*time.Millisecond {
		t.Errorf("starved wait took %v (expected ~50ms)", elapsed)
	}
}

// TestEmptyPayloadRejected validates producer misuse is contained: an
// empty publish is dropped, the generation does not advance, and the
// next valid publish succeeds.
func TestEmptyPayloadRejected(t *testing.T) {
	sink := framesink.New()
	defer sink.Close()

	sink.Publish(nil)
	sink.Publish([]byte{})

	if gen := sink.Generation(); gen != 0 {
		t.Errorf("generation = %d after empty publishes, want 0", gen)
	}

	stats := sink.Stats()
	if stats.Rejected != 2 {
		t.Errorf("Rejected = %d, want 2", stats.Rejected)
	}

	sink.Publish([]byte("valid"))
	data, gen := sink.Snapshot()
	if gen != 1 || string(data) != "valid" {
		t.Errorf("Snapshot = (%q, %d), want (\"valid\", 1)", data, gen)
	}
}

// TestLatestFrameWins validates the slot is replaced, never queued: a
// viewer arriving after several publishes sees only the newest frame.
func TestLatestFrameWins(t *testing.T) {
	sink := framesink.New()
	defer sink.Close()

	sink.Publish([]byte("A"))
	sink.Publish([]byte("B"))
	sink.Publish([]byte("C"))

	data, gen, err := sink.WaitForNext(context.Background(), 0)
	if err != nil {
		t.Fatalf("WaitForNext failed: %v", err)
	}
	if string(data) != "C" || gen != 3 {
		t.Errorf("got (%q, %d), want (\"C\", 3)", data, gen)
	}
}

// TestDeliverySequence replays the reference scenario: two viewers
// subscribe at generation 0 after "A" is published, both receive ("A", 1)
// first, then after "B" is published both receive ("B", 2) — never "A"
// twice.
func TestDeliverySequence(t *testing.T) {
	sink := framesink.New()
	defer sink.Close()

	sink.Publish([]byte("A"))

	for i := 0; i < 2; i++ {
		data, gen, err := sink.WaitForNext(context.Background(), 0)
		if err != nil {
			t.Fatalf("viewer %d: first wait failed: %v", i, err)
		}
		if string(data) != "A" || gen != 1 {
			t.Fatalf("viewer %d: got (%q, %d), want (\"A\", 1)", i, data, gen)
		}
	}

	// Both viewers now wait past generation 1.
	type result struct {
		data []byte
		gen  uint64
	}
	results := make(chan result, 2)
	for i := 0; i < 2; i++ {
		go func() {
			data, gen, err := sink.WaitForNext(context.Background(), 1)
			if err != nil {
				t.Errorf("second wait failed: %v", err)
			}
			results <- result{data, gen}
		}()
	}
	time.Sleep(10 * time.Millisecond)

	sink.Publish([]byte("B"))

	for i := 0; i < 2; i++ {
		r := <-results
		if string(r.data) != "B" || r.gen != 2 {
			t.Errorf("viewer %d: got (%q, %d), want (\"B\", 2)", i, r.data, r.gen)
		}
	}
}

// TestCloseWakesWaiters validates Close releases blocked viewers with
// ErrClosed and makes further publishes no-ops.
func TestCloseWakesWaiters(t *testing.T) {
	sink := framesink.New()

	errCh := make(chan error, 1)
	go func() {
		_, _, err := sink.WaitForNext(context.Background(), 0)
		errCh <- err
	}()
	time.Sleep(10 * time.Millisecond)

	sink.Close()

	select {
	case err := <-errCh:
		if err != framesink.ErrClosed {
			t.Errorf("WaitForNext returned %v, want ErrClosed", err)
		}
	case <-time.After(200 * time.Millisecond):
		t.Fatal("Close did not wake the waiter")
	}

	// Idempotent Close, and Publish after Close must not panic.
	sink.Close()
	sink.Publish([]byte("late"))
	if gen := sink.Generation(); gen != 0 {
		t.Errorf("generation advanced after Close: %d", gen)
	}
}

// TestConcurrentSafety exercises Publish, WaitForNext, Snapshot and Stats
// concurrently. Primarily for the race detector.
func TestConcurrentSafety(t *testing.T) {
	sink := framesink.New()
	defer sink.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; ctx.Err() == nil; i++ {
			sink.Publish([]byte{byte(i)})
			time.Sleep(time.Millisecond)
		}
	}()

	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			var last uint64
			for {
				_, gen, err := sink.WaitForNext(ctx, last)
				if err != nil {
					return
				}
				last = gen
			}
		}()
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		for ctx.Err() == nil {
			_ = sink.Stats()
			_, _ = sink.Snapshot()
			time.Sleep(2 * time.Millisecond)
		}
	}()

	wg.Wait()
}
