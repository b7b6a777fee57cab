package model

import "time"

// HistoryRecord is one immutable audit-trail entry describing a single
// executed transition. Records are append-only: nothing updates or removes
// them through normal operation, and the append order is authoritative even
// when clock skew makes timestamps disagree with it.
//
// The serialized shape is a compatibility contract with downstream audit
// consumers: exactly the keys "from", "to", "transition", "date", "actor"
// and "message", in that order. Do not reorder or rename the fields.
type HistoryRecord struct {
	FromState  string    `json:"from"`
	ToState    string    `json:"to"`
	Transition string    `json:"transition"`
	Timestamp  time.Time `json:"date"`
	Actor      string    `json:"actor"`
	Message    string    `json:"message"`
}
