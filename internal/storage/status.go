package storage

import (
	"sort"
	"time"
)

// EventKind names a step in a file's lifecycle.
type EventKind string

const (
	EventOpened          EventKind = "opened"
	EventCreated         EventKind = "created"
	EventQuarantined     EventKind = "quarantined"
	EventInitialized     EventKind = "initialized"
	EventMigrated        EventKind = "migrated"
	EventMigrationFailed EventKind = "migration_failed"
	EventRecreated       EventKind = "recreated"
	EventEvicted         EventKind = "evicted"
)

// Event is published to listeners as files move through their lifecycle.
type Event struct {
	Kind   EventKind `json:"kind"`
	File   string    `json:"file"`
	Module string    `json:"module,omitempty"`
	Detail string    `json:"detail,omitempty"`
	Time   time.Time `json:"time"`
}

// Listener receives events synchronously; it must not block or call back
// into the Manager.
type Listener func(Event)

// Status is the outcome of the most recent acquisition of one file.
type Status struct {
	Module           string    `json:"module,omitempty"`
	File             string    `json:"file"`
	Open             bool      `json:"open"`
	Exists           bool      `json:"exists"`
	Created          bool      `json:"created"`
	Quarantined      string    `json:"quarantined,omitempty"`
	Initialized      bool      `json:"initialized"`
	MigrationApplied []string  `json:"migration_applied,omitempty"`
	MigrationError   string    `json:"migration_error,omitempty"`
	Durability       string    `json:"durability,omitempty"`
	OpenedAt         time.Time `json:"opened_at,omitempty"`
}

// Healthy is false when the last migration of the file failed.
func (s Status) Healthy() bool { return s.MigrationError == "" }

// Status lists every registered module, main first, followed by any other
// file opened through the Manager.
func (m *Manager) Status() []Status {
	m.statusMu.Lock()
	known := make(map[string]Status, len(m.status))
	for file, st := range m.status {
		known[file] = *st
	}
	m.statusMu.Unlock()

	m.mu.RLock()
	open := make(map[string]bool, len(m.handles))
	for file, h := range m.handles {
		open[file] = !h.Closed()
	}
	m.mu.RUnlock()

	out := make([]Status, 0, len(known))
	seen := make(map[string]bool)
	for _, d := range m.reg.All() {
		st, ok := known[d.File]
		if !ok {
			st = Status{File: d.File}
		}
		st.Module = d.ID
		st.Open = open[d.File]
		st.Exists = m.Exists(d.File)
		out = append(out, st)
		seen[d.File] = true
	}

	var extra []string
	for file := range known {
		if !seen[file] {
			extra = append(extra, file)
		}
	}
	sort.Strings(extra)
	for _, file := range extra {
		st := known[file]
		st.Open = open[file]
		st.Exists = m.Exists(file)
		out = append(out, st)
	}
	return out
}

func (m *Manager) recordStatus(st Status) {
	m.statusMu.Lock()
	defer m.statusMu.Unlock()
	m.status[st.File] = &st
}

// Subscribe registers l for every subsequent event.
func (m *Manager) Subscribe(l Listener) {
	m.listenersMu.Lock()
	defer m.listenersMu.Unlock()
	m.listeners = append(m.listeners, l)
}

func (m *Manager) publish(kind EventKind, file, module, detail string) {
	ev := Event{Kind: kind, File: file, Module: module, Detail: detail, Time: m.now()}
	m.listenersMu.RLock()
	listeners := m.listeners
	m.listenersMu.RUnlock()
	for _, l := range listeners {
		l(ev)
	}
}
