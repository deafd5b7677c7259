package rulz

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/zoobzio/clockz"
)

func TestTimeout(t *testing.T) {
	t.Run("Fast Rule Settles Normally", func(t *testing.T) {
		fast := Check[int, string, any]("fast", func(_ context.Context, _ int, _ any) Result[string] {
			return Pass[string]()
		})

		timeout := NewTimeout[int, string, any]("deadline", fast, time.Second, "took too long")
		if res := timeout.Evaluate(context.Background(), 1, nil); !res.Passed() {
			t.Errorf("expected pass, got %v", res)
		}
	})

	t.Run("Fast Failure Returned Verbatim", func(t *testing.T) {
		failing := Check[int, string, any]("failing", func(_ context.Context, _ int, _ any) Result[string] {
			return Fail("card declined")
		})

		timeout := NewTimeout[int, string, any]("deadline", failing, time.Second, "took too long")
		res := timeout.Evaluate(context.Background(), 1, nil)
		if !res.Failed() || res.Error() != "card declined" {
			t.Errorf("expected 'card declined', got %v", res)
		}
	})

	t.Run("Slow Rule Times Out With Fake Clock", func(t *testing.T) {
		release := make(chan struct{})
		slow := Check[int, string, any]("slow", func(_ context.Context, _ int, _ any) Result[string] {
			<-release
			return Pass[string]()
		})

		clock := clockz.NewFakeClock()
		timeout := NewTimeout[int, string, any]("deadline", slow, 100*time.Millisecond, "took too long").
			WithClock(clock)

		done := make(chan struct{})
		var res Result[string]
		go func() {
			res = timeout.Evaluate(context.Background(), 1, nil)
			close(done)
		}()

		// Allow the evaluation goroutine to start
		time.Sleep(10 * time.Millisecond)

		clock.Advance(100 * time.Millisecond)
		clock.BlockUntilReady()

		select {
		case <-done:
		case <-time.After(time.Second):
			t.Fatal("test timed out")
		}
		close(release)

		if !res.Failed() {
			t.Fatal("expected failure")
		}
		if res.Error() != "took too long" {
			t.Errorf("expected the fixed timeout error, got %q", res.Error())
		}
	})

	t.Run("Loser Keeps Running And Result Is Discarded", func(t *testing.T) {
		var completed int32
		release := make(chan struct{})
		slow := Check[int, string, any]("slow", func(_ context.Context, _ int, _ any) Result[string] {
			<-release
			atomic.AddInt32(&completed, 1)
			return Fail("too late to matter")
		})

		clock := clockz.NewFakeClock()
		timeout := NewTimeout[int, string, any]("deadline", slow, 50*time.Millisecond, "took too long").
			WithClock(clock)

		done := make(chan struct{})
		var res Result[string]
		go func() {
			res = timeout.Evaluate(context.Background(), 1, nil)
			close(done)
		}()

		time.Sleep(10 * time.Millisecond)
		clock.Advance(50 * time.Millisecond)
		clock.BlockUntilReady()
		<-done

		if res.Error() != "took too long" {
			t.Fatalf("expected timeout error, got %q", res.Error())
		}

		// Let the loser finish; its failure must not surface anywhere.
		close(release)
		time.Sleep(20 * time.Millisecond)
		if atomic.LoadInt32(&completed) != 1 {
			t.Error("expected the losing evaluation to run to completion")
		}
	})

	t.Run("Context Cancellation Beats Timer", func(t *testing.T) {
		release := make(chan struct{})
		defer close(release)
		slow := Check[int, string, any]("slow", func(_ context.Context, _ int, _ any) Result[string] {
			<-release
			return Pass[string]()
		})

		clock := clockz.NewFakeClock()
		timeout := NewTimeout[int, string, any]("deadline", slow, time.Minute, "took too long").
			WithClock(clock)

		ctx, cancel := context.WithCancel(context.Background())
		done := make(chan struct{})
		var res Result[string]
		go func() {
			res = timeout.Evaluate(ctx, 1, nil)
			close(done)
		}()

		time.Sleep(10 * time.Millisecond)
		cancel()
		<-done

		if !res.Failed() {
			t.Fatal("expected failure")
		}
		if res.Error() != context.Canceled.Error() {
			t.Errorf("expected context error, got %q", res.Error())
		}
	})

	t.Run("Unsafe Panic Re-Raised On Caller", func(t *testing.T) {
		throwing := Check[int, string, any]("throws", func(_ context.Context, _ int, _ any) Result[string] {
			panic("rule exploded")
		}).Unsafe()

		timeout := NewTimeout[int, string, any]("deadline", throwing, time.Second, "took too long").
			WithErrorMode(ModeUnsafe)

		defer func() {
			rec := recover()
			if rec == nil {
				t.Fatal("expected panic")
			}
			if rec != "rule exploded" {
				t.Errorf("expected original panic value, got %v", rec)
			}
		}()
		timeout.Evaluate(context.Background(), 1, nil)
	})

	t.Run("SetDuration", func(t *testing.T) {
		rule := Check[int, string, any]("r", func(_ context.Context, _ int, _ any) Result[string] {
			return Pass[string]()
		})
		timeout := NewTimeout[int, string, any]("deadline", rule, time.Second, "late")
		timeout.SetDuration(2 * time.Second)
		if timeout.GetDuration() != 2*time.Second {
			t.Errorf("expected 2s, got %v", timeout.GetDuration())
		}
	})
}
