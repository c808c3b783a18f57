package blevestore

import (
	"encoding/json"
	"fmt"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/keyword"
	"github.com/blevesearch/bleve/v2/analysis/lang/de"
	"github.com/blevesearch/bleve/v2/analysis/lang/en"
	"github.com/blevesearch/bleve/v2/analysis/lang/es"
	"github.com/blevesearch/bleve/v2/analysis/lang/fr"
	"github.com/blevesearch/bleve/v2/mapping"

	"searchgate.io/internal/model"
)

const sourceField = "source_json"

var languageAnalyzers = map[string]string{
	"en": en.AnalyzerName,
	"es": es.AnalyzerName,
	"fr": fr.AnalyzerName,
	"de": de.AnalyzerName,
}

// buildMapping keeps the raw item in a stored, unindexed field. Filterable metadata,
// exact matches and the uuid use the keyword analyzer; searchable metadata uses the
// configured language.
func buildMapping(cfg model.IndexConfig) mapping.IndexMapping {
	im := bleve.NewIndexMapping()

	source := bleve.NewTextFieldMapping()
	source.Index = false
	source.Store = true
	source.IncludeInAll = false
	source.IncludeTermVectors = false
	source.DocValues = false

	exact := bleve.NewDocumentMapping()
	exact.DefaultAnalyzer = keyword.Name

	searchable := bleve.NewDocumentMapping()
	if a, ok := languageAnalyzers[cfg.Language]; ok {
		searchable.DefaultAnalyzer = a
	}

	exactList := bleve.NewTextFieldMapping()
	exactList.Analyzer = keyword.Name

	doc := bleve.NewDocumentMapping()
	doc.AddFieldMappingsAt(sourceField, source)
	doc.AddSubDocumentMapping("uuid", exact)
	doc.AddSubDocumentMapping("indexed_metadata", exact)
	doc.AddSubDocumentMapping("searchable_metadata", searchable)
	doc.AddFieldMappingsAt("exact_matching_metadata", exactList)

	im.DefaultMapping = doc
	return im
}

func document(it model.Item) map[string]any {
	raw, _ := json.Marshal(it)
	doc := map[string]any{
		sourceField: string(raw),
		"uuid":      map[string]any{"id": it.UUID.ID, "type": it.UUID.Type},
	}
	if len(it.IndexedMetadata) > 0 {
		doc["indexed_metadata"] = it.IndexedMetadata
	}
	if len(it.SearchableMetadata) > 0 {
		doc["searchable_metadata"] = it.SearchableMetadata
	}
	if len(it.ExactMatchingMetadata) > 0 {
		doc["exact_matching_metadata"] = it.ExactMatchingMetadata
	}
	return doc
}

func itemFromHit(fields map[string]any) (model.Item, error) {
	var it model.Item
	raw, ok := fields[sourceField].(string)
	if !ok {
		return it, fmt.Errorf("hit without %s", sourceField)
	}
	if err := json.Unmarshal([]byte(raw), &it); err != nil {
		return it, fmt.Errorf("decode stored item: %w", err)
	}
	return it, nil
}
