// Package querymerge combines a caller's query with the query fragments stored on a token.
package querymerge

// Kind selects the precedence used by MergeQueries.
type Kind string

const (
	// Base treats the mergeable query as defaults: base keys win.
	Base Kind = "base"
	// Merge lets base win on plain keys and deep-merges MergeFields.
	Merge Kind = "merge"
	// Force lets the mergeable query win on every key.
	Force Kind = "force"
)

// MergeFields are the list-like query fields combined rather than replaced under Merge.
var MergeFields = []string{
	"filters",
	"universe_filters",
	"filter_fields",
	"items_promoted",
}

// MergeQueries combines two queries in their generic map form. Neither input is modified.
func MergeQueries(base, mergeable map[string]any, kind Kind) map[string]any {
	if len(mergeable) == 0 {
		return base
	}
	if len(base) == 0 {
		return mergeable
	}

	switch kind {
	case Force:
		return overlay(base, mergeable)
	case Base:
		return overlay(mergeable, base)
	}

	out := overlay(mergeable, base)
	for _, field := range MergeFields {
		b, inBase := base[field]
		m, inMergeable := mergeable[field]
		switch {
		case inBase && inMergeable:
			out[field] = deepMerge(b, m)
		case inMergeable:
			out[field] = m
		}
	}
	return out
}

// overlay copies low then high; high wins on conflicts.
func overlay(low, high map[string]any) map[string]any {
	out := make(map[string]any, len(low)+len(high))
	for k, v := range low {
		out[k] = v
	}
	for k, v := range high {
		out[k] = v
	}
	return out
}

// deepMerge unions maps recursively with b winning scalar conflicts and concatenates lists.
func deepMerge(b, m any) any {
	switch bv := b.(type) {
	case map[string]any:
		mv, ok := m.(map[string]any)
		if !ok {
			return b
		}
		out := make(map[string]any, len(bv)+len(mv))
		for k, v := range mv {
			out[k] = v
		}
		for k, v := range bv {
			if other, ok := mv[k]; ok {
				out[k] = deepMerge(v, other)
				continue
			}
			out[k] = v
		}
		return out
	case []any:
		mv, ok := m.([]any)
		if !ok {
			return b
		}
		out := make([]any, 0, len(bv)+len(mv))
		out = append(out, bv...)
		return append(out, mv...)
	}
	return b
}
