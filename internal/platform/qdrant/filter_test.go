package qdrant

import (
	"errors"
	"testing"
)

func TestTranslateFilterEqualityAndIn(t *testing.T) {
	must, err := translateFilter(map[string]any{
		"storage_key": "kb/a.pdf",
		"source": map[string]any{
			"$in": []string{"a.pdf", "b.md"},
		},
	})
	if err != nil {
		t.Fatalf("translateFilter: %v", err)
	}
	if len(must) != 2 {
		t.Fatalf("must length: want=2 got=%d", len(must))
	}

	keyCond := findConditionByKey(must, "storage_key")
	if keyCond == nil {
		t.Fatalf("missing storage_key condition")
	}
	if m, ok := keyCond["match"].(map[string]any); !ok || m["value"] != "kb/a.pdf" {
		t.Fatalf("storage_key match: got=%v", keyCond["match"])
	}

	srcCond := findConditionByKey(must, "source")
	if srcCond == nil {
		t.Fatalf("missing source condition")
	}
	m, ok := srcCond["match"].(map[string]any)
	if !ok {
		t.Fatalf("source match type: got=%T", srcCond["match"])
	}
	anyVals, ok := m["any"].([]any)
	if !ok || len(anyVals) != 2 || anyVals[0] != "a.pdf" {
		t.Fatalf("source any values: got=%v", m["any"])
	}
}

func TestTranslateFilterAndFlattens(t *testing.T) {
	must, err := translateFilter(map[string]any{
		"$and": []any{
			map[string]any{"source": map[string]any{"$eq": "a.pdf"}},
			map[string]any{"page": 2},
		},
	})
	if err != nil {
		t.Fatalf("translateFilter: %v", err)
	}
	if len(must) != 2 {
		t.Fatalf("must length: want=2 got=%d", len(must))
	}
	if findConditionByKey(must, "page") == nil {
		t.Fatalf("missing page condition")
	}
}

func TestTranslateFilterUnsupportedOperator(t *testing.T) {
	_, err := translateFilter(map[string]any{
		"page": map[string]any{"$gt": 1},
	})
	var opErrTyped *OperationError
	if !errors.As(err, &opErrTyped) {
		t.Fatalf("expected OperationError, got=%T", err)
	}
	if opErrTyped.Code != OperationErrorUnsupportedFilter {
		t.Fatalf("code: want=%q got=%q", OperationErrorUnsupportedFilter, opErrTyped.Code)
	}
}

func findConditionByKey(items []any, key string) map[string]any {
	for _, item := range items {
		cond, ok := item.(map[string]any)
		if !ok {
			continue
		}
		if cond["key"] == key {
			return cond
		}
	}
	return nil
}
