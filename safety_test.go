package rulz

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

func TestDefaultTransform(t *testing.T) {
	t.Run("Passthrough For Matching Type", func(t *testing.T) {
		got := defaultTransform[string]("already a string")
		if got != "already a string" {
			t.Errorf("expected passthrough, got %q", got)
		}
	})

	t.Run("Error To String", func(t *testing.T) {
		got := defaultTransform[string](errors.New("db down"))
		if got != "db down" {
			t.Errorf("expected 'db down', got %q", got)
		}
	})

	t.Run("Arbitrary Value To String", func(t *testing.T) {
		got := defaultTransform[string](42)
		if got != "42" {
			t.Errorf("expected '42', got %q", got)
		}
	})

	t.Run("Value To Error", func(t *testing.T) {
		got := defaultTransform[error]("panic message")
		if got == nil || got.Error() != "panic message" {
			t.Errorf("expected wrapped error, got %v", got)
		}
	})

	t.Run("Sentinel Survives Error Type", func(t *testing.T) {
		got := defaultTransform[error](ErrMaxRetriesExceeded)
		if !errors.Is(got, ErrMaxRetriesExceeded) {
			t.Errorf("expected sentinel identity preserved, got %v", got)
		}
	})

	t.Run("Unknown Type Yields Zero", func(t *testing.T) {
		type code int
		got := defaultTransform[code]("whatever")
		if got != 0 {
			t.Errorf("expected zero value, got %v", got)
		}
	})
}

func TestSafetyModes(t *testing.T) {
	panicking := Check[int, string, map[string]string]("throws", func(_ context.Context, _ int, _ map[string]string) Result[string] {
		panic("kaboom")
	})

	t.Run("Safe Composition Recovers Panic", func(t *testing.T) {
		pipe := NewPipe[int, string, map[string]string]("p", panicking).WithErrorMode(ModeSafe)
		defer pipe.Close()

		res := pipe.Evaluate(context.Background(), 1, nil)
		if !res.Failed() {
			t.Fatal("expected failure")
		}
		if res.Error() != "kaboom" {
			t.Errorf("expected 'kaboom', got %q", res.Error())
		}
	})

	t.Run("Safe Composition Overrides Unsafe Rule", func(t *testing.T) {
		pipe := NewPipe[int, string, map[string]string]("p", panicking.Unsafe()).WithErrorMode(ModeSafe)
		defer pipe.Close()

		res := pipe.Evaluate(context.Background(), 1, nil)
		if !res.Failed() {
			t.Fatal("expected safe composition to win over unsafe rule")
		}
		if res.Error() != "kaboom" {
			t.Errorf("expected 'kaboom', got %q", res.Error())
		}
	})

	t.Run("Unmarked Rule Falls Back To Safe Default", func(t *testing.T) {
		pipe := NewPipe[int, string, map[string]string]("p", panicking).WithErrorMode(ModeUnsafe)
		defer pipe.Close()

		res := pipe.Evaluate(context.Background(), 1, nil)
		if !res.Failed() {
			t.Fatal("expected unmarked rule to stay safe under unsafe composition")
		}
	})

	t.Run("Unsafe Composition Plus Unsafe Rule Propagates", func(t *testing.T) {
		pipe := NewPipe[int, string, map[string]string]("p", panicking.Unsafe()).WithErrorMode(ModeUnsafe)
		defer pipe.Close()

		defer func() {
			rec := recover()
			if rec == nil {
				t.Fatal("expected panic to propagate")
			}
			if rec != "kaboom" {
				t.Errorf("expected original panic value, got %v", rec)
			}
		}()
		pipe.Evaluate(context.Background(), 1, nil)
	})

	t.Run("Explicit Fail Bypasses Transform", func(t *testing.T) {
		rule := Check[int, string, any]("explicit", func(_ context.Context, _ int, _ any) Result[string] {
			return Fail("verbatim failure")
		})
		pipe := NewPipe[int, string, any]("p", rule).
			WithTransform(func(any) string { return "transformed" })
		defer pipe.Close()

		res := pipe.Evaluate(context.Background(), 1, nil)
		if res.Error() != "verbatim failure" {
			t.Errorf("explicit failures must not pass through the transform, got %q", res.Error())
		}
	})

	t.Run("Custom Transform Receives Panic Value", func(t *testing.T) {
		type fault struct{ Msg string }
		rule := Check[int, fault, any]("throws", func(_ context.Context, _ int, _ any) Result[fault] {
			panic("low level detail")
		})
		pipe := NewPipe[int, fault, any]("p", rule).
			WithTransform(func(rec any) fault { return fault{Msg: fmt.Sprint(rec)} })
		defer pipe.Close()

		res := pipe.Evaluate(context.Background(), 1, nil)
		if !res.Failed() {
			t.Fatal("expected failure")
		}
		if res.Error().Msg != "low level detail" {
			t.Errorf("unexpected transformed error: %+v", res.Error())
		}
	})

	t.Run("Zero Result Becomes Invalid Rule Failure", func(t *testing.T) {
		rule := Check[int, string, any]("broken", func(_ context.Context, _ int, _ any) Result[string] {
			return Result[string]{}
		})
		pipe := NewPipe[int, string, any]("p", rule)
		defer pipe.Close()

		res := pipe.Evaluate(context.Background(), 1, nil)
		if !res.Failed() {
			t.Fatal("expected failure")
		}
		if res.Error() != ErrInvalidResult.Error() {
			t.Errorf("expected invalid-rule message, got %q", res.Error())
		}
	})
}

func TestChecker(t *testing.T) {
	t.Run("Assert Adapts Error Returns", func(t *testing.T) {
		rule := Assert[int, any]("non-negative", func(_ context.Context, n int, _ any) error {
			if n < 0 {
				return errors.New("negative")
			}
			return nil
		})

		if res := rule.Evaluate(context.Background(), 5, nil); !res.Passed() {
			t.Error("expected pass for 5")
		}
		res := rule.Evaluate(context.Background(), -1, nil)
		if !res.Failed() {
			t.Fatal("expected failure for -1")
		}
		if res.Error().Error() != "negative" {
			t.Errorf("expected 'negative', got %v", res.Error())
		}
	})

	t.Run("Safe And Unsafe Return Copies", func(t *testing.T) {
		base := Check[int, string, any]("c", func(_ context.Context, _ int, _ any) Result[string] {
			return Pass[string]()
		})
		unsafe := base.Unsafe()
		if base.ErrorMode() != ModeDefault {
			t.Error("Unsafe must not mutate the original")
		}
		if unsafe.ErrorMode() != ModeUnsafe {
			t.Error("expected ModeUnsafe on the copy")
		}
		if safe := unsafe.Safe(); safe.ErrorMode() != ModeSafe {
			t.Error("expected ModeSafe on the copy")
		}
	})

	t.Run("Name", func(t *testing.T) {
		rule := Check[int, string, any]("check-limit", func(_ context.Context, _ int, _ any) Result[string] {
			return Pass[string]()
		})
		if rule.Name() != "check-limit" {
			t.Errorf("expected 'check-limit', got %q", rule.Name())
		}
	})
}
