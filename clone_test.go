package rulz

import (
	"context"
	"testing"
)

type auditCtx struct {
	Region string
	Tags   map[string]string
}

func (a *auditCtx) Clone() *auditCtx {
	tags := make(map[string]string, len(a.Tags))
	for k, v := range a.Tags {
		tags[k] = v
	}
	return &auditCtx{Region: a.Region, Tags: tags}
}

func TestCloneShared(t *testing.T) {
	t.Run("Shallow Copies Top Level Of Map", func(t *testing.T) {
		original := map[string]int{"limit": 100}
		cloned, err := cloneShared(original, CloneShallow)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		cloned["limit"] = 999
		if original["limit"] != 100 {
			t.Error("mutating the clone leaked into the original")
		}
	})

	t.Run("Shallow Shares Nested References", func(t *testing.T) {
		nested := map[string]int{"n": 1}
		original := map[string]map[string]int{"inner": nested}
		cloned, err := cloneShared(original, CloneShallow)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		cloned["inner"]["n"] = 2
		if nested["n"] != 2 {
			t.Error("shallow clone should share nested maps")
		}
	})

	t.Run("Shallow Copies Pointer Target", func(t *testing.T) {
		original := &auditCtx{Region: "eu"}
		cloned, err := cloneShared(original, CloneShallow)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		cloned.Region = "us"
		if original.Region != "eu" {
			t.Error("expected original untouched")
		}
	})

	t.Run("Structured Uses Cloner Implementation", func(t *testing.T) {
		original := &auditCtx{Region: "eu", Tags: map[string]string{"tier": "gold"}}
		cloned, err := cloneShared(original, CloneStructured)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		cloned.Tags["tier"] = "bronze"
		if original.Tags["tier"] != "gold" {
			t.Error("expected deep copy via Cloner")
		}
	})

	t.Run("Structured Falls Back To JSON", func(t *testing.T) {
		original := map[string]map[string]string{"inner": {"k": "v"}}
		cloned, err := cloneShared(original, CloneStructured)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		cloned["inner"]["k"] = "changed"
		if original["inner"]["k"] != "v" {
			t.Error("expected deep copy via JSON fallback")
		}
	})

	t.Run("JSON Is Deep For Plain Data", func(t *testing.T) {
		original := map[string][]int{"amounts": {1, 2, 3}}
		cloned, err := cloneShared(original, CloneJSON)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		cloned["amounts"][0] = 99
		if original["amounts"][0] != 1 {
			t.Error("expected deep copy")
		}
	})

	t.Run("JSON Fails On Cycles", func(t *testing.T) {
		cyclic := map[string]any{}
		cyclic["self"] = cyclic
		if _, err := cloneShared(cyclic, CloneJSON); err == nil {
			t.Error("expected an error for a cyclic context")
		}
	})

	t.Run("Nil Map Clones To Empty Map", func(t *testing.T) {
		for _, strategy := range []CloneStrategy{CloneShallow, CloneStructured, CloneJSON} {
			var nilMap map[string]int
			cloned, err := cloneShared(nilMap, strategy)
			if err != nil {
				t.Fatalf("strategy %d: unexpected error: %v", strategy, err)
			}
			if cloned == nil {
				t.Errorf("strategy %d: expected an empty map, got nil", strategy)
			}
			if len(cloned) != 0 {
				t.Errorf("strategy %d: expected empty map, got %v", strategy, cloned)
			}
		}
	})

	t.Run("Nil Pointer Clones To Zeroed Value", func(t *testing.T) {
		var nilPtr *auditCtx
		cloned, err := cloneShared(nilPtr, CloneShallow)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if cloned == nil {
			t.Fatal("expected a non-nil pointer")
		}
		if cloned.Region != "" {
			t.Errorf("expected zero value pointee, got %+v", cloned)
		}
	})

	t.Run("Nil Interface Clones To Empty Object", func(t *testing.T) {
		var nilAny any
		cloned, err := cloneShared(nilAny, CloneShallow)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		m, ok := cloned.(map[string]any)
		if !ok {
			t.Fatalf("expected map[string]any, got %T", cloned)
		}
		if len(m) != 0 {
			t.Errorf("expected empty map, got %v", m)
		}
	})

	t.Run("Value Context Copies By Assignment", func(t *testing.T) {
		type limits struct{ Max int }
		cloned, err := cloneShared(limits{Max: 7}, CloneShallow)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if cloned.Max != 7 {
			t.Errorf("expected 7, got %d", cloned.Max)
		}
	})
}

func TestContextCloneInPipe(t *testing.T) {
	t.Run("Rules See Clone Not Original", func(t *testing.T) {
		mutator := Check[int, string, map[string]int]("mutator", func(_ context.Context, _ int, shared map[string]int) Result[string] {
			shared["seen"] = 1
			return Pass[string]()
		})

		original := map[string]int{"limit": 10}
		pipe := NewPipe[int, string, map[string]int]("p", mutator).WithContextClone(CloneShallow)
		defer pipe.Close()

		if res := pipe.Evaluate(context.Background(), 1, original); !res.Passed() {
			t.Fatal("expected pass")
		}
		if _, mutated := original["seen"]; mutated {
			t.Error("rule mutation leaked into the caller's context")
		}
	})

	t.Run("Clone Failure Fails The Evaluation", func(t *testing.T) {
		rule := Check[int, string, map[string]any]("r", func(_ context.Context, _ int, _ map[string]any) Result[string] {
			return Pass[string]()
		})

		cyclic := map[string]any{}
		cyclic["self"] = cyclic

		pipe := NewPipe[int, string, map[string]any]("p", rule).WithContextClone(CloneJSON)
		defer pipe.Close()

		res := pipe.Evaluate(context.Background(), 1, cyclic)
		if !res.Failed() {
			t.Error("expected clone failure to settle as Failed in safe mode")
		}
	})
}
