package bus

import (
	"time"

	"searchgate.io/internal/model"
)

type AddToken struct {
	Scope
	command
	NewToken model.Token `json:"new_token"`
}

func (*AddToken) Variant() Variant { return VariantAddToken }

type DeleteToken struct {
	Scope
	command
	TokenUUID model.TokenUUID `json:"token_uuid"`
}

func (*DeleteToken) Variant() Variant { return VariantDeleteToken }

type DeleteTokens struct {
	Scope
	command
}

func (*DeleteTokens) Variant() Variant { return VariantDeleteTokens }

type GetTokens struct {
	Scope
}

func (*GetTokens) Variant() Variant { return VariantGetTokens }

type CreateIndex struct {
	Scope
	command
	Config model.IndexConfig `json:"config"`
}

func (*CreateIndex) Variant() Variant { return VariantCreateIndex }

type DeleteIndex struct {
	Scope
	exclusiveCommand
}

func (*DeleteIndex) Variant() Variant { return VariantDeleteIndex }

type ResetIndex struct {
	Scope
	exclusiveCommand
}

func (*ResetIndex) Variant() Variant { return VariantResetIndex }

// ConfigureIndex reindexes into a new physical index with the given settings.
type ConfigureIndex struct {
	Scope
	exclusiveCommand
	Config model.IndexConfig `json:"config"`
}

func (*ConfigureIndex) Variant() Variant { return VariantConfigureIndex }

type CheckIndex struct {
	Scope
}

func (*CheckIndex) Variant() Variant { return VariantCheckIndex }

type GetIndices struct {
	Scope
}

func (*GetIndices) Variant() Variant { return VariantGetIndices }

type IndexItems struct {
	Scope
	command
	Items []model.Item `json:"items"`
}

func (*IndexItems) Variant() Variant { return VariantIndexItems }

type DeleteItems struct {
	Scope
	command
	ItemUUIDs []model.ItemUUID `json:"items_uuid"`
}

func (*DeleteItems) Variant() Variant { return VariantDeleteItems }

// UpdateItems applies changes to every item matched by a query.
type UpdateItems struct {
	Scope
	command
	Query   model.Query   `json:"query"`
	Changes model.Changes `json:"changes"`
}

func (*UpdateItems) Variant() Variant { return VariantUpdateItems }

type Query struct {
	Scope
	Query      model.Query       `json:"query"`
	Parameters map[string]string `json:"parameters,omitempty"`
}

func (*Query) Variant() Variant { return VariantQuery }

type CheckHealth struct {
	Scope
}

func (*CheckHealth) Variant() Variant { return VariantCheckHealth }

type Ping struct {
	Scope
}

func (*Ping) Variant() Variant { return VariantPing }

type AddInteraction struct {
	Scope
	command
	Interaction model.Interaction `json:"interaction"`
}

func (*AddInteraction) Variant() Variant { return VariantAddInteraction }

type DeleteAllInteractions struct {
	Scope
	command
}

func (*DeleteAllInteractions) Variant() Variant { return VariantDeleteAllInteractions }

type CreateEventsIndex struct {
	Scope
	command
	Config model.IndexConfig `json:"config"`
}

func (*CreateEventsIndex) Variant() Variant { return VariantCreateEventsIndex }

type DeleteEventsIndex struct {
	Scope
	command
}

func (*DeleteEventsIndex) Variant() Variant { return VariantDeleteEventsIndex }

type QueryEvents struct {
	Scope
	Name   string     `json:"name,omitempty"`
	From   *time.Time `json:"from,omitempty"`
	To     *time.Time `json:"to,omitempty"`
	Length int        `json:"length,omitempty"`
	Offset int        `json:"offset,omitempty"`
}

func (*QueryEvents) Variant() Variant { return VariantQueryEvents }

// PauseConsumers broadcasts busy=true to the named queue types.
type PauseConsumers struct {
	Scope
	command
	Types []string `json:"types"`
}

func (*PauseConsumers) Variant() Variant { return VariantPauseConsumers }

// ResumeConsumers broadcasts busy=false to the named queue types.
type ResumeConsumers struct {
	Scope
	command
	Types []string `json:"types"`
}

func (*ResumeConsumers) Variant() Variant { return VariantResumeConsumers }

var factories = map[Variant]func() Message{
	VariantAddToken:              func() Message { return &AddToken{} },
	VariantDeleteToken:           func() Message { return &DeleteToken{} },
	VariantDeleteTokens:          func() Message { return &DeleteTokens{} },
	VariantGetTokens:             func() Message { return &GetTokens{} },
	VariantCreateIndex:           func() Message { return &CreateIndex{} },
	VariantDeleteIndex:           func() Message { return &DeleteIndex{} },
	VariantResetIndex:            func() Message { return &ResetIndex{} },
	VariantConfigureIndex:        func() Message { return &ConfigureIndex{} },
	VariantCheckIndex:            func() Message { return &CheckIndex{} },
	VariantGetIndices:            func() Message { return &GetIndices{} },
	VariantIndexItems:            func() Message { return &IndexItems{} },
	VariantDeleteItems:           func() Message { return &DeleteItems{} },
	VariantUpdateItems:           func() Message { return &UpdateItems{} },
	VariantQuery:                 func() Message { return &Query{} },
	VariantCheckHealth:           func() Message { return &CheckHealth{} },
	VariantPing:                  func() Message { return &Ping{} },
	VariantAddInteraction:        func() Message { return &AddInteraction{} },
	VariantDeleteAllInteractions: func() Message { return &DeleteAllInteractions{} },
	VariantCreateEventsIndex:     func() Message { return &CreateEventsIndex{} },
	VariantDeleteEventsIndex:     func() Message { return &DeleteEventsIndex{} },
	VariantQueryEvents:           func() Message { return &QueryEvents{} },
	VariantPauseConsumers:        func() Message { return &PauseConsumers{} },
	VariantResumeConsumers:       func() Message { return &ResumeConsumers{} },
}

// Variants returns every known variant.
func Variants() []Variant {
	out := make([]Variant, 0, len(factories))
	for v := range factories {
		out = append(out, v)
	}
	return out
}
