// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 ModelScript Contributors

// Package hosttest provides an in-memory host document with real
// transactional semantics, used by tests and by the demo CLI.
package hosttest

import (
	"sync"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/modelscript/modelscript/internal/host"
)

// memElement is the committed state of one element.
type memElement struct {
	category string
	typeName string
	params   map[string]host.Value
}

// MemDocument is an in-memory host.Document. Writes go to a staging area
// owned by the open transaction; Commit applies them atomically, Rollback
// discards them. Only one transaction may be open at a time.
type MemDocument struct {
	id        string
	mu        sync.Mutex
	elements  map[host.ElementID]*memElement
	selection []host.ElementID
	open      *memTx

	messages []string
}

// NewMemDocument creates an empty document with the given id.
func NewMemDocument(id string) *MemDocument {
	return &MemDocument{
		id:       id,
		elements: make(map[host.ElementID]*memElement),
	}
}

// AddElement seeds a committed element and returns its id. Test setup only;
// it does not require a transaction.
func (d *MemDocument) AddElement(category, typeName string, params map[string]host.Value) host.ElementID {
	d.mu.Lock()
	defer d.mu.Unlock()

	id := ulid.Make()
	p := make(map[string]host.Value, len(params))
	for k, v := range params {
		p[k] = v
	}
	d.elements[id] = &memElement{category: category, typeName: typeName, params: p}
	return id
}

// Select sets the current selection.
func (d *MemDocument) Select(ids ...host.ElementID) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.selection = append([]host.ElementID(nil), ids...)
}

// ID implements host.Document.
func (d *MemDocument) ID() string { return d.id }

// Selection implements host.Document.
func (d *MemDocument) Selection() []host.ElementID {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]host.ElementID(nil), d.selection...)
}

// ElementsByCategory implements host.Document.
func (d *MemDocument) ElementsByCategory(category string) []host.ElementID {
	d.mu.Lock()
	defer d.mu.Unlock()

	var ids []host.ElementID
	for id, e := range d.elements {
		if e.category == category {
			ids = append(ids, id)
		}
	}
	if d.open != nil && d.open.status == host.TxOpen {
		for id, e := range d.open.created {
			if e.category == category {
				ids = append(ids, id)
			}
		}
	}
	return ids
}

// Element implements host.Document.
func (d *MemDocument) Element(id host.ElementID) (host.Element, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if e, ok := d.elements[id]; ok {
		return host.Element{ID: id, Category: e.category, TypeName: e.typeName}, true
	}
	if d.open != nil && d.open.status == host.TxOpen {
		if e, ok := d.open.created[id]; ok {
			return host.Element{ID: id, Category: e.category, TypeName: e.typeName}, true
		}
	}
	return host.Element{}, false
}

// Parameter implements host.Document. Uncommitted writes from the open
// transaction are visible.
func (d *MemDocument) Parameter(id host.ElementID, name string) (host.Value, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.open != nil && d.open.status == host.TxOpen {
		if staged, ok := d.open.staged[id]; ok {
			if v, ok := staged[name]; ok {
				return v, nil
			}
		}
		if e, ok := d.open.created[id]; ok {
			if v, ok := e.params[name]; ok {
				return v, nil
			}
			return host.Value{}, oops.With("element", id.String()).With("param", name).Wrap(host.ErrParameterNotFound)
		}
	}

	e, ok := d.elements[id]
	if !ok {
		return host.Value{}, oops.With("element", id.String()).Wrap(host.ErrElementNotFound)
	}
	v, ok := e.params[name]
	if !ok {
		return host.Value{}, oops.With("element", id.String()).With("param", name).Wrap(host.ErrParameterNotFound)
	}
	return v, nil
}

// SetParameter implements host.Document. Requires an open transaction.
func (d *MemDocument) SetParameter(id host.ElementID, name string, v host.Value) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.open == nil || d.open.status != host.TxOpen {
		return oops.With("element", id.String()).With("param", name).Wrap(host.ErrNoOpenTransaction)
	}

	if e, ok := d.open.created[id]; ok {
		e.params[name] = v
		return nil
	}
	if _, ok := d.elements[id]; !ok {
		return oops.With("element", id.String()).Wrap(host.ErrElementNotFound)
	}

	staged, ok := d.open.staged[id]
	if !ok {
		staged = make(map[string]host.Value)
		d.open.staged[id] = staged
	}
	staged[name] = v
	return nil
}

// CreateInstance implements host.Document. Requires an open transaction.
func (d *MemDocument) CreateInstance(typeName, category string) (host.ElementID, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.open == nil || d.open.status != host.TxOpen {
		return host.ElementID{}, oops.With("type", typeName).Wrap(host.ErrNoOpenTransaction)
	}

	id := ulid.Make()
	d.open.created[id] = &memElement{
		category: category,
		typeName: typeName,
		params:   make(map[string]host.Value),
	}
	return id, nil
}

// Begin implements host.Document.
func (d *MemDocument) Begin(name string) (host.Transaction, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.open != nil && d.open.status == host.TxOpen {
		return nil, oops.With("open", d.open.name).With("requested", name).New("transaction already open")
	}

	tx := &memTx{
		doc:     d,
		name:    name,
		status:  host.TxOpen,
		staged:  make(map[host.ElementID]map[string]host.Value),
		created: make(map[host.ElementID]*memElement),
	}
	d.open = tx
	return tx, nil
}

// ShowMessage implements host.UserSurface by recording the message.
func (d *MemDocument) ShowMessage(message string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.messages = append(d.messages, message)
	return nil
}

// Messages returns messages shown so far.
func (d *MemDocument) Messages() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.messages...)
}

// memTx is a copy-on-write transaction over a MemDocument.
type memTx struct {
	doc     *MemDocument
	name    string
	status  host.TxStatus
	staged  map[host.ElementID]map[string]host.Value
	created map[host.ElementID]*memElement
}

// Name implements host.Transaction.
func (t *memTx) Name() string { return t.name }

// Status implements host.Transaction.
func (t *memTx) Status() host.TxStatus {
	t.doc.mu.Lock()
	defer t.doc.mu.Unlock()
	return t.status
}

// Commit applies staged writes and created elements atomically.
func (t *memTx) Commit() error {
	t.doc.mu.Lock()
	defer t.doc.mu.Unlock()

	if t.status != host.TxOpen {
		return oops.With("transaction", t.name).With("status", string(t.status)).New("transaction is not open")
	}

	for id, params := range t.staged {
		e := t.doc.elements[id]
		for k, v := range params {
			e.params[k] = v
		}
	}
	for id, e := range t.created {
		t.doc.elements[id] = e
	}

	t.status = host.TxCommitted
	t.doc.open = nil
	return nil
}

// Rollback discards all staged work.
func (t *memTx) Rollback() error {
	t.doc.mu.Lock()
	defer t.doc.mu.Unlock()

	if t.status != host.TxOpen {
		return oops.With("transaction", t.name).With("status", string(t.status)).New("transaction is not open")
	}

	t.status = host.TxRolledBack
	t.doc.open = nil
	return nil
}
