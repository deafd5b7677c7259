package rulz

import (
	"context"
	"testing"
)

func TestField(t *testing.T) {
	type order struct {
		Amount   *float64
		Currency string
	}

	amountOf := func(o order) (float64, bool) {
		if o.Amount == nil {
			return 0, false
		}
		return *o.Amount, true
	}

	positive := Check[float64, string, any]("positive", func(_ context.Context, amount float64, _ any) Result[string] {
		if amount <= 0 {
			return Fail("Amount must be positive")
		}
		return Pass[string]()
	})

	amount := func(v float64) *float64 { return &v }

	t.Run("Extracted Value Reaches Inner Rule", func(t *testing.T) {
		field := NewField[order, float64, string, any]("amount", amountOf, positive)

		if res := field.Evaluate(context.Background(), order{Amount: amount(10)}, nil); !res.Passed() {
			t.Errorf("expected pass, got %v", res)
		}
		res := field.Evaluate(context.Background(), order{Amount: amount(-5)}, nil)
		if !res.Failed() || res.Error() != "Amount must be positive" {
			t.Errorf("expected inner rule failure, got %v", res)
		}
	})

	t.Run("Missing Value Fails With Fixed Message", func(t *testing.T) {
		field := NewField[order, float64, string, any]("amount", amountOf, positive)

		res := field.Evaluate(context.Background(), order{}, nil)
		if !res.Failed() {
			t.Fatal("expected failure")
		}
		if res.Error() != "Missing required value" {
			t.Errorf("expected missing-value message, got %q", res.Error())
		}
	})

	t.Run("Default Substitutes Missing Value", func(t *testing.T) {
		field := NewField[order, float64, string, any]("amount", amountOf, positive).
			WithDefault(1)

		if res := field.Evaluate(context.Background(), order{}, nil); !res.Passed() {
			t.Errorf("expected the default to satisfy the inner rule, got %v", res)
		}
	})

	t.Run("Default Applies Only When Missing", func(t *testing.T) {
		field := NewField[order, float64, string, any]("amount", amountOf, positive).
			WithDefault(1)

		res := field.Evaluate(context.Background(), order{Amount: amount(-5)}, nil)
		if !res.Failed() {
			t.Error("a present value must not be replaced by the default")
		}
	})

	t.Run("Panicking Getter Fails Safely", func(t *testing.T) {
		field := NewField[order, float64, string, any]("amount", func(order) (float64, bool) {
			panic("getter broke")
		}, positive)

		res := field.Evaluate(context.Background(), order{}, nil)
		if !res.Failed() {
			t.Fatal("expected failure")
		}
		if res.Error() != "getter broke" {
			t.Errorf("expected recovered getter panic, got %q", res.Error())
		}
	})

	t.Run("Shared Context Passes Through", func(t *testing.T) {
		limits := map[string]float64{"max": 100}
		bounded := Check[float64, string, map[string]float64]("bounded", func(_ context.Context, amount float64, shared map[string]float64) Result[string] {
			if amount > shared["max"] {
				return Fail("over limit")
			}
			return Pass[string]()
		})

		field := NewField[order, float64, string, map[string]float64]("amount", amountOf, bounded)
		res := field.Evaluate(context.Background(), order{Amount: amount(500)}, limits)
		if !res.Failed() || res.Error() != "over limit" {
			t.Errorf("expected the inner rule to see the shared context, got %v", res)
		}
	})
}
