package qdrant

import (
	"fmt"
	"sort"
	"strings"
)

const (
	filterOpAnd = "$and"
	filterOpIn  = "$in"
	filterOpEq  = "$eq"
)

// translateFilter converts the Pinecone-style metadata filter used across the
// codebase into Qdrant "must" conditions. Supported forms:
//
//	{"source": "a.pdf"}
//	{"source": {"$eq": "a.pdf"}}
//	{"source": {"$in": ["a.pdf", "b.md"]}}
//	{"$and": [{...}, {...}]}
func translateFilter(filter map[string]any) ([]any, error) {
	if len(filter) == 0 {
		return nil, nil
	}
	keys := make([]string, 0, len(filter))
	for k := range filter {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var must []any
	for _, key := range keys {
		value := filter[key]
		k := strings.TrimSpace(key)
		if k == "" {
			continue
		}
		if strings.HasPrefix(k, "$") {
			if strings.ToLower(k) != filterOpAnd {
				return nil, unsupportedFilter(k)
			}
			items, ok := value.([]any)
			if !ok {
				if typed, okTyped := value.([]map[string]any); okTyped {
					for _, item := range typed {
						items = append(items, item)
					}
				} else {
					return nil, opErr("filter_translate", OperationErrorValidation, "operator $and expects array of objects", nil)
				}
			}
			for _, item := range items {
				sub, ok := item.(map[string]any)
				if !ok {
					return nil, opErr("filter_translate", OperationErrorValidation, "operator $and expects array of objects", nil)
				}
				conds, err := translateFilter(sub)
				if err != nil {
					return nil, err
				}
				must = append(must, conds...)
			}
			continue
		}

		cond, err := fieldCondition(k, value)
		if err != nil {
			return nil, err
		}
		must = append(must, cond)
	}
	return must, nil
}

func fieldCondition(key string, value any) (map[string]any, error) {
	ops, ok := value.(map[string]any)
	if !ok {
		return qdrantMatchCondition(key, value), nil
	}
	if len(ops) != 1 {
		return nil, opErr("filter_translate", OperationErrorValidation, fmt.Sprintf("field %q expects exactly one operator", key), nil)
	}
	for op, operand := range ops {
		switch strings.ToLower(strings.TrimSpace(op)) {
		case filterOpEq:
			return qdrantMatchCondition(key, operand), nil
		case filterOpIn:
			values, err := toAnySlice(operand)
			if err != nil {
				return nil, opErr("filter_translate", OperationErrorValidation, fmt.Sprintf("field %q: $in expects an array", key), err)
			}
			return map[string]any{"key": key, "match": map[string]any{"any": values}}, nil
		default:
			return nil, unsupportedFilter(op)
		}
	}
	return nil, nil
}

func qdrantMatchCondition(key string, value any) map[string]any {
	return map[string]any{"key": key, "match": map[string]any{"value": value}}
}

func toAnySlice(v any) ([]any, error) {
	switch t := v.(type) {
	case []any:
		return t, nil
	case []string:
		out := make([]any, 0, len(t))
		for _, s := range t {
			out = append(out, s)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("unexpected type %T", v)
	}
}

func unsupportedFilter(op string) error {
	return opErr("filter_translate", OperationErrorUnsupportedFilter, fmt.Sprintf("unsupported filter operator %q", op), nil)
}
