package domain

import "github.com/google/uuid"

// Command is the tagged union the matching engine's queue carries.
// A dedicated struct per variant beats runtime type-switch dispatch.
type Command struct {
	Place  *PlaceCommand
	Cancel *CancelCommand
}

// PlaceCommand carries an order that has already been persisted with
// status OPEN; the engine's job is only to match/rest it.
type PlaceCommand struct {
	Order *Order
	Done  chan<- *Order // optional: signaled with the final order state
}

// CancelCommand requests removal of a resting or in-flight order.
type CancelCommand struct {
	OrderID    uuid.UUID
	Instrument string
	Done       chan<- *Order
}
