package model

import "time"

// Domain event names.
const (
	EventIndexWasCreated     = "IndexWasCreated"
	EventIndexWasDeleted     = "IndexWasDeleted"
	EventIndexWasReset       = "IndexWasReset"
	EventIndexWasConfigured  = "IndexWasConfigured"
	EventItemsWereIndexed    = "ItemsWereIndexed"
	EventItemsWereDeleted    = "ItemsWereDeleted"
	EventItemsWereUpdated    = "ItemsWereUpdated"
	EventTokenWasAdded       = "TokenWasAdded"
	EventTokenWasDeleted     = "TokenWasDeleted"
	EventTokensWereDeleted   = "TokensWereDeleted"
	EventInteractionWasAdded = "InteractionWasAdded"
)

// DomainEvent records a state change that already happened.
type DomainEvent struct {
	ID         string         `json:"id"`
	Name       string         `json:"name"`
	AppUUID    AppUUID        `json:"app_uuid"`
	IndexUUID  IndexUUID      `json:"index_uuid,omitempty"`
	Payload    map[string]any `json:"payload,omitempty"`
	OccurredOn time.Time      `json:"occurred_on"`
}

// Reference returns the scope the event happened in.
func (e DomainEvent) Reference() RepositoryReference {
	return NewRepositoryReference(e.AppUUID, e.IndexUUID)
}

// EventFilter selects stored domain events.
type EventFilter struct {
	Name   string
	From   *time.Time
	To     *time.Time
	Length int
	Offset int
}
