// Package bus routes typed messages through an ordered middleware chain to exactly one handler.
package bus

import (
	"searchgate.io/internal/model"
)

// Variant names a message type. It is also the class discriminator on the queue.
type Variant string

const (
	VariantAddToken              Variant = "AddToken"
	VariantDeleteToken           Variant = "DeleteToken"
	VariantDeleteTokens          Variant = "DeleteTokens"
	VariantGetTokens             Variant = "GetTokens"
	VariantCreateIndex           Variant = "CreateIndex"
	VariantDeleteIndex           Variant = "DeleteIndex"
	VariantResetIndex            Variant = "ResetIndex"
	VariantConfigureIndex        Variant = "ConfigureIndex"
	VariantCheckIndex            Variant = "CheckIndex"
	VariantGetIndices            Variant = "GetIndices"
	VariantIndexItems            Variant = "IndexItems"
	VariantDeleteItems           Variant = "DeleteItems"
	VariantUpdateItems           Variant = "UpdateItems"
	VariantQuery                 Variant = "Query"
	VariantCheckHealth           Variant = "CheckHealth"
	VariantPing                  Variant = "Ping"
	VariantAddInteraction        Variant = "AddInteraction"
	VariantDeleteAllInteractions Variant = "DeleteAllInteractions"
	VariantCreateEventsIndex     Variant = "CreateEventsIndex"
	VariantDeleteEventsIndex     Variant = "DeleteEventsIndex"
	VariantQueryEvents           Variant = "QueryEvents"
	VariantPauseConsumers        Variant = "PauseConsumers"
	VariantResumeConsumers       Variant = "ResumeConsumers"
)

// Message is a routed request. Messages are immutable once dispatched: middleware that
// needs a change passes a modified copy to next.
type Message interface {
	Variant() Variant
	Reference() model.RepositoryReference
	AuthToken() model.Token
}

// Command is a message that changes state. Commands may be queued.
type Command interface {
	Message
	// Exclusive commands run with all other command consumption paused.
	Exclusive() bool
}

// IsCommand reports whether msg is a command.
func IsCommand(msg Message) bool {
	_, ok := msg.(Command)
	return ok
}

// IsExclusive reports whether msg is an exclusive command.
func IsExclusive(msg Message) bool {
	c, ok := msg.(Command)
	return ok && c.Exclusive()
}

// Scope carries the repository reference and the authorized token of a message.
type Scope struct {
	Ref   model.RepositoryReference `json:"repository_reference"`
	Token model.Token               `json:"token"`
}

// NewScope builds a normalised scope.
func NewScope(ref model.RepositoryReference, t model.Token) Scope {
	return Scope{Ref: model.NewRepositoryReference(ref.AppUUID, ref.IndexUUID), Token: t}
}

func (s Scope) Reference() model.RepositoryReference { return s.Ref }

func (s Scope) AuthToken() model.Token { return s.Token }

// SetToken replaces the token of a message that embeds Scope.
func (s *Scope) SetToken(t model.Token) { s.Token = t }

// Retokener is implemented by every message that embeds Scope.
type Retokener interface {
	SetToken(model.Token)
}

type command struct{}

func (command) Exclusive() bool { return false }

type exclusiveCommand struct{}

func (exclusiveCommand) Exclusive() bool { return true }
