package blevestore

import (
	"fmt"
	"sort"
	"strings"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/search/query"

	"searchgate.io/internal/model"
)

const promotedBoost = 1000

// fieldPath maps a filter field to its document path.
func fieldPath(field string) string {
	switch field {
	case "id", "uuid.id":
		return "uuid.id"
	case "type", "uuid.type":
		return "uuid.type"
	}
	if strings.Contains(field, ".") {
		return field
	}
	return "indexed_metadata." + field
}

func compile(q model.Query, synonyms map[string][]string) query.Query {
	root := bleve.NewBooleanQuery()
	root.AddMust(textQuery(q.Q, synonyms))

	for _, filters := range []map[string]model.Filter{q.UniverseFilters, q.Filters} {
		keys := make([]string, 0, len(filters))
		for k := range filters {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			f := filters[k]
			if f.Field == "" {
				f.Field = k
			}
			addFilter(root, f)
		}
	}

	if len(q.ItemsPromoted) > 0 {
		idsq := make([]string, 0, len(q.ItemsPromoted))
		for _, u := range q.ItemsPromoted {
			idsq = append(idsq, u.ComposeUUID())
		}
		promoted := bleve.NewDocIDQuery(idsq)
		promoted.SetBoost(promotedBoost)
		root.AddShould(promoted)
	}
	return root
}

func textQuery(text string, synonyms map[string][]string) query.Query {
	text = strings.TrimSpace(text)
	if text == "" {
		return bleve.NewMatchAllQuery()
	}
	alternatives := []query.Query{bleve.NewMatchQuery(text)}
	seen := map[string]bool{strings.ToLower(text): true}
	terms := append([]string{strings.ToLower(text)}, strings.Fields(strings.ToLower(text))...)
	for _, term := range terms {
		for _, syn := range synonyms[term] {
			if seen[strings.ToLower(syn)] {
				continue
			}
			seen[strings.ToLower(syn)] = true
			alternatives = append(alternatives, bleve.NewMatchQuery(syn))
		}
	}
	if len(alternatives) == 1 {
		return alternatives[0]
	}
	return bleve.NewDisjunctionQuery(alternatives...)
}

func addFilter(root *query.BooleanQuery, f model.Filter) {
	field := fieldPath(f.Field)

	if f.ApplicationType == model.FilterRange {
		root.AddMust(rangeQuery(field, f.Values))
		return
	}
	if len(f.Values) == 0 {
		return
	}
	clauses := make([]query.Query, 0, len(f.Values))
	for _, v := range f.Values {
		clauses = append(clauses, valueQuery(field, v))
	}
	switch f.ApplicationType {
	case model.FilterMustAll:
		root.AddMust(bleve.NewConjunctionQuery(clauses...))
	case model.FilterExclude:
		root.AddMustNot(clauses...)
	default:
		root.AddMust(bleve.NewDisjunctionQuery(clauses...))
	}
}

func valueQuery(field string, v any) query.Query {
	switch x := v.(type) {
	case bool:
		q := bleve.NewBoolFieldQuery(x)
		q.SetField(field)
		return q
	case float64:
		return numericEquals(field, x)
	case int:
		return numericEquals(field, float64(x))
	case int64:
		return numericEquals(field, float64(x))
	}
	q := bleve.NewTermQuery(fmt.Sprint(v))
	q.SetField(field)
	return q
}

func numericEquals(field string, v float64) query.Query {
	inclusive := true
	q := bleve.NewNumericRangeInclusiveQuery(&v, &v, &inclusive, &inclusive)
	q.SetField(field)
	return q
}

func rangeQuery(field string, values []any) query.Query {
	bound := func(i int) *float64 {
		if i >= len(values) {
			return nil
		}
		switch x := values[i].(type) {
		case float64:
			return &x
		case int:
			f := float64(x)
			return &f
		case int64:
			f := float64(x)
			return &f
		}
		return nil
	}
	inclusive := true
	q := bleve.NewNumericRangeInclusiveQuery(bound(0), bound(1), &inclusive, &inclusive)
	q.SetField(field)
	return q
}
