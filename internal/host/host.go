// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 ModelScript Contributors

// Package host declares the contracts the runtime consumes from the host
// application: its document model, transactional context, user surface, and
// the dispatcher that marshals work onto the document thread. The runtime
// never implements a document model of its own.
package host

import (
	"errors"

	"github.com/oklog/ulid/v2"
)

// ElementID identifies one element in a document.
type ElementID = ulid.ULID

// ErrNoOpenTransaction indicates a mutation was attempted outside an open
// transaction. Mutation calls are only valid while the execution bridge's
// transaction is open.
var ErrNoOpenTransaction = errors.New("no open transaction")

// ErrElementNotFound indicates the element id does not exist in the document.
var ErrElementNotFound = errors.New("element not found")

// ErrParameterNotFound indicates the element has no parameter by that name.
var ErrParameterNotFound = errors.New("parameter not found")

// ValueKind tags the variant held by a Value.
type ValueKind string

// Value kinds.
const (
	KindString ValueKind = "string"
	KindNumber ValueKind = "number"
	KindBool   ValueKind = "bool"
)

// Value is a tagged parameter value. Exactly one field matching Kind is
// meaningful.
type Value struct {
	Kind ValueKind
	Str  string
	Num  float64
	Bool bool
}

// StringValue builds a string Value.
func StringValue(s string) Value { return Value{Kind: KindString, Str: s} }

// NumberValue builds a numeric Value.
func NumberValue(n float64) Value { return Value{Kind: KindNumber, Num: n} }

// BoolValue builds a boolean Value.
func BoolValue(b bool) Value { return Value{Kind: KindBool, Bool: b} }

// Element is a read-only view of one document element.
type Element struct {
	ID       ElementID
	Category string
	TypeName string
}

// TxStatus reports the lifecycle state of a transaction.
type TxStatus string

// Transaction states.
const (
	TxOpen       TxStatus = "open"
	TxCommitted  TxStatus = "committed"
	TxRolledBack TxStatus = "rolled-back"
)

// Transaction is the host's transactional context for one script execution.
// Only the execution bridge calls these directly.
type Transaction interface {
	Name() string
	Commit() error
	Rollback() error
	Status() TxStatus
}

// Document is the host's single active document. All mutation methods are
// valid only while a transaction opened by Begin is still open, and only on
// the document thread (see Dispatcher).
type Document interface {
	ID() string

	// Selection returns the ids of the currently selected elements.
	Selection() []ElementID

	// ElementsByCategory returns ids of all elements in the named category.
	ElementsByCategory(category string) []ElementID

	// Element returns a read-only view of one element.
	Element(id ElementID) (Element, bool)

	// Parameter reads a named parameter. Within an open transaction the
	// script observes its own uncommitted writes.
	Parameter(id ElementID, name string) (Value, error)

	// SetParameter writes a named parameter. Requires an open transaction.
	SetParameter(id ElementID, name string, v Value) error

	// CreateInstance creates a new element of the given type. Requires an
	// open transaction.
	CreateInstance(typeName, category string) (ElementID, error)

	// Begin opens a transaction scoped to one script execution.
	Begin(name string) (Transaction, error)
}

// UserSurface shows blocking messages to the user.
type UserSurface interface {
	ShowMessage(message string) error
}
