package querymerge

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"

	"searchgate.io/internal/bus"
	"searchgate.io/internal/model"
)

// Token metadata keys holding query fragments, applied in this order.
const (
	BaseQueryKey  = "base_query"
	MergeQueryKey = "merge_query"
	ForceQueryKey = "force_query"
)

var placeholder = regexp.MustCompile(`\{\{.*?\}\}`)

// ApplyToken merges the token's stored fragments into q, clamps the page size to limit and
// substitutes {{name}} placeholders from params. A limit of zero or less disables clamping.
func ApplyToken(q model.Query, t model.Token, limit int, params map[string]string) (model.Query, error) {
	current, err := q.ToMap()
	if err != nil {
		return q, fmt.Errorf("query to map: %w", err)
	}

	steps := []struct {
		key  string
		kind Kind
	}{
		{BaseQueryKey, Base},
		{MergeQueryKey, Merge},
		{ForceQueryKey, Force},
	}
	for _, step := range steps {
		raw, ok := t.MetadataValue(step.key)
		if !ok {
			continue
		}
		fragment, err := fragmentMap(raw)
		if err != nil {
			return q, fmt.Errorf("token %s: %w", step.key, err)
		}
		current = MergeQueries(current, fragment, step.kind)
	}

	if limit > 0 && sizeOf(current) > limit {
		current["size"] = limit
	}

	if len(params) > 0 {
		current, err = substitute(current, params)
		if err != nil {
			return q, err
		}
	}
	coerceInt(current, "page")
	coerceInt(current, "size")

	out, err := model.QueryFromMap(current)
	if err != nil {
		return q, err
	}
	return out, nil
}

// fragmentMap returns a private copy of a stored fragment.
func fragmentMap(raw any) (map[string]any, error) {
	switch v := raw.(type) {
	case nil:
		return nil, nil
	case model.Query:
		return v.ToMap()
	case *model.Query:
		if v == nil {
			return nil, nil
		}
		return v.ToMap()
	}
	data, err := json.Marshal(raw)
	if err != nil {
		return nil, err
	}
	out := map[string]any{}
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("%w: query fragment: %v", model.ErrInvalidFormat, err)
	}
	return out, nil
}

func sizeOf(m map[string]any) int {
	v, ok := m["size"]
	if !ok {
		return model.DefaultSize
	}
	n, ok := toInt(v)
	if !ok {
		return model.DefaultSize
	}
	return n
}

func toInt(v any) (int, bool) {
	switch x := v.(type) {
	case int:
		return x, true
	case float64:
		return int(x), true
	case json.Number:
		n, err := x.Int64()
		return int(n), err == nil
	case string:
		n, err := strconv.Atoi(x)
		return n, err == nil
	}
	return 0, false
}

// coerceInt turns numeric strings, as left by placeholder substitution, back into numbers.
func coerceInt(m map[string]any, key string) {
	v, ok := m[key]
	if !ok {
		return
	}
	if _, isString := v.(string); !isString {
		return
	}
	if n, ok := toInt(v); ok {
		m[key] = n
		return
	}
	delete(m, key)
}

// substitute replaces placeholders over the JSON form of the query. Values are JSON-escaped
// so a parameter can never break out of the string it lands in.
func substitute(m map[string]any, params map[string]string) (map[string]any, error) {
	data, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}
	replaced := placeholder.ReplaceAllFunc(data, func(match []byte) []byte {
		key := string(match[2 : len(match)-2])
		escaped, _ := json.Marshal(params[key])
		return escaped[1 : len(escaped)-1]
	})
	out := map[string]any{}
	if err := json.Unmarshal(replaced, &out); err != nil {
		return nil, fmt.Errorf("%w: query after substitution: %v", model.ErrInvalidFormat, err)
	}
	return out, nil
}

// Middleware applies token query fragments to every Query message.
type Middleware struct {
	Limit int
}

func (Middleware) Name() string { return "token_query" }

func (Middleware) Subscribes() []bus.Variant { return []bus.Variant{bus.VariantQuery} }

func (m Middleware) Execute(ctx context.Context, msg bus.Message, next bus.Next) (any, error) {
	q, ok := msg.(*bus.Query)
	if !ok {
		return next(ctx, msg)
	}
	merged, err := ApplyToken(q.Query, q.AuthToken(), m.Limit, q.Parameters)
	if err != nil {
		return nil, err
	}
	cp := *q
	cp.Query = merged
	return next(ctx, &cp)
}
