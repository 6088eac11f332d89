package wal

import (
	"github.com/pingcap-incubator/tinydb/types"
)

// EventType is the kind of a logged event.
type EventType byte

const (
	EventBegin EventType = iota + 1
	EventInsert
	EventDelete
	EventCommit
	EventAbort
)

func (tp EventType) String() string {
	switch tp {
	case EventBegin:
		return "begin"
	case EventInsert:
		return "insert"
	case EventDelete:
		return "delete"
	case EventCommit:
		return "commit"
	case EventAbort:
		return "abort"
	}
	return "unknown"
}

// Event is one transaction event. Row identifies the chain; Tuple is set for inserts only.
type Event struct {
	Type     EventType
	StartTS  uint64
	CommitTS uint64
	Table    string
	Row      uint64
	Tuple    types.Tuple
}

// Sink receives transaction events. Notify must not block the caller and must not report
// failures back: durability is a side channel.
type Sink interface {
	Notify(ev Event)
}

// NopSink drops every event.
type NopSink struct{}

// Notify implements Sink.
func (NopSink) Notify(Event) {}
