package rulz

import (
	"context"
	"sync/atomic"
	"testing"
)

func TestTap(t *testing.T) {
	passing := Check[int, string, any]("ok", func(_ context.Context, _ int, _ any) Result[string] {
		return Pass[string]()
	})
	failing := Check[int, string, any]("bad", func(_ context.Context, _ int, _ any) Result[string] {
		return Fail("declined")
	})

	t.Run("Effect Sees The Settled Result", func(t *testing.T) {
		var sawFailed int32
		tap := NewTap[int, string, any]("audit", failing, func(_ context.Context, _ int, res Result[string], _ any) {
			if res.Failed() {
				atomic.AddInt32(&sawFailed, 1)
			}
		})

		res := tap.Evaluate(context.Background(), 1, nil)
		if !res.Failed() || res.Error() != "declined" {
			t.Fatalf("expected the rule's own result, got %v", res)
		}
		if atomic.LoadInt32(&sawFailed) != 1 {
			t.Error("effect did not observe the failure")
		}
	})

	t.Run("Effect Cannot Alter The Outcome", func(t *testing.T) {
		tap := NewTap[int, string, any]("noisy", passing, func(_ context.Context, _ int, _ Result[string], _ any) {
			panic("effect exploded")
		})

		res := tap.Evaluate(context.Background(), 1, nil)
		if !res.Passed() {
			t.Errorf("a panicking effect must not change the result, got %v", res)
		}
		if got := tap.Metrics().Counter(TapRecoveredTotal).Value(); got != 1 {
			t.Errorf("expected 1 recovered effect panic, got %v", got)
		}
	})

	t.Run("Nil Effect Is A No-Op", func(t *testing.T) {
		tap := NewTap[int, string, any]("silent", passing, nil)
		if res := tap.Evaluate(context.Background(), 1, nil); !res.Passed() {
			t.Errorf("expected pass, got %v", res)
		}
	})

	t.Run("SetEffect Replaces The Effect", func(t *testing.T) {
		var runs int32
		tap := NewTap[int, string, any]("audit", passing, nil)
		tap.SetEffect(func(_ context.Context, _ int, _ Result[string], _ any) {
			atomic.AddInt32(&runs, 1)
		})

		tap.Evaluate(context.Background(), 1, nil)
		if atomic.LoadInt32(&runs) != 1 {
			t.Errorf("expected 1 effect run, got %d", atomic.LoadInt32(&runs))
		}
	})
}
