package rulz

import (
	"context"
	"sync"
	"testing"
	"time"
)

func TestDebug(t *testing.T) {
	t.Run("Start And End Events Bracket Evaluation", func(t *testing.T) {
		var mu sync.Mutex
		var starts []DebugEvent[int, string, any]
		var ends []DebugEvent[int, string, any]

		rule := Check[int, string, any]("limit", func(_ context.Context, _ int, _ any) Result[string] {
			return Fail("over limit")
		})
		dbg := NewDebug[int, string, any]("trace-limit", rule)
		defer dbg.Close()

		dbg.OnStart(func(_ context.Context, ev DebugEvent[int, string, any]) error {
			mu.Lock()
			starts = append(starts, ev)
			mu.Unlock()
			return nil
		})
		dbg.OnEnd(func(_ context.Context, ev DebugEvent[int, string, any]) error {
			mu.Lock()
			ends = append(ends, ev)
			mu.Unlock()
			return nil
		})

		res := dbg.Evaluate(context.Background(), 42, nil)
		if !res.Failed() || res.Error() != "over limit" {
			t.Fatalf("instrumentation must not alter the result, got %v", res)
		}

		// Wait for async hooks
		time.Sleep(50 * time.Millisecond)

		mu.Lock()
		defer mu.Unlock()
		if len(starts) != 1 {
			t.Fatalf("expected 1 start event, got %d", len(starts))
		}
		if starts[0].RuleName != "limit" || starts[0].Input != 42 {
			t.Errorf("unexpected start event: %+v", starts[0])
		}
		if len(ends) != 1 {
			t.Fatalf("expected 1 end event, got %d", len(ends))
		}
		if !ends[0].Result.Failed() {
			t.Error("end event must carry the settled result")
		}
		if ends[0].StartTime.IsZero() {
			t.Error("end event must carry the start time")
		}
	})

	t.Run("Error Event Fires And Panic Still Propagates", func(t *testing.T) {
		var mu sync.Mutex
		var errorEvents []DebugEvent[int, string, any]

		throwing := Check[int, string, any]("throws", func(_ context.Context, _ int, _ any) Result[string] {
			panic("rule exploded")
		})
		dbg := NewDebug[int, string, any]("trace-throws", throwing)
		defer dbg.Close()

		dbg.OnError(func(_ context.Context, ev DebugEvent[int, string, any]) error {
			mu.Lock()
			errorEvents = append(errorEvents, ev)
			mu.Unlock()
			return nil
		})

		func() {
			defer func() {
				rec := recover()
				if rec == nil {
					t.Error("instrumentation must never swallow a panic")
				}
				if rec != "rule exploded" {
					t.Errorf("expected original panic value, got %v", rec)
				}
			}()
			dbg.Evaluate(context.Background(), 1, nil)
		}()

		// Wait for async hooks
		time.Sleep(50 * time.Millisecond)

		mu.Lock()
		defer mu.Unlock()
		if len(errorEvents) != 1 {
			t.Fatalf("expected 1 error event, got %d", len(errorEvents))
		}
		if errorEvents[0].Recovered != "rule exploded" {
			t.Errorf("unexpected recovered value: %v", errorEvents[0].Recovered)
		}
	})

	t.Run("Defers Mode To Wrapped Rule", func(t *testing.T) {
		unsafeRule := Check[int, string, any]("u", func(_ context.Context, _ int, _ any) Result[string] {
			return Pass[string]()
		}).Unsafe()

		dbg := NewDebug[int, string, any]("trace", unsafeRule)
		defer dbg.Close()

		if dbg.ErrorMode() != ModeUnsafe {
			t.Error("Debug must be transparent to safety mode resolution")
		}
	})
}
