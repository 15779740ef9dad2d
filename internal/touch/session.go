// Package touch tracks multi-touch contacts on the strip. Each contact
// slot owns at most one session, pinned to the layer and widget it first
// landed on.
package touch

import "sort"

// Session is the widget a contact is bound to.
type Session struct {
	Layer  int
	Widget int
}

// Table maps contact slots to sessions.
type Table struct {
	sessions map[int]Session
}

// NewTable returns an empty table.
func NewTable() *Table {
	return &Table{sessions: make(map[int]Session)}
}

// Begin binds slot to s and returns the session it replaced, if any.
func (t *Table) Begin(slot int, s Session) (Session, bool) {
	prev, ok := t.sessions[slot]
	t.sessions[slot] = s
	return prev, ok
}

// Get returns the session of slot.
func (t *Table) Get(slot int) (Session, bool) {
	s, ok := t.sessions[slot]
	return s, ok
}

// End removes and returns the session of slot.
func (t *Table) End(slot int) (Session, bool) {
	s, ok := t.sessions[slot]
	if ok {
		delete(t.sessions, slot)
	}
	return s, ok
}

// Len is the number of live sessions.
func (t *Table) Len() int { return len(t.sessions) }

// Slots returns the live slots in ascending order.
func (t *Table) Slots() []int {
	slots := make([]int, 0, len(t.sessions))
	for slot := range t.sessions {
		slots = append(slots, slot)
	}
	sort.Ints(slots)
	return slots
}

// Clear drops every session.
func (t *Table) Clear() {
	clear(t.sessions)
}
