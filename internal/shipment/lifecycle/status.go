// Package lifecycle is the shipment state machine. Status is a closed
// enumeration; every rule about which status may follow which lives here.
package lifecycle

import (
	dErrors "medcourier/pkg/domain-errors"
)

type Status string

const (
	StatusNew                  Status = "NEW"
	StatusRequested            Status = "REQUESTED"
	StatusQuoteRequested       Status = "QUOTE_REQUESTED"
	StatusQuoted               Status = "QUOTED"
	StatusQuoteAccepted        Status = "QUOTE_ACCEPTED"
	StatusDriverQuotePending   Status = "DRIVER_QUOTE_PENDING"
	StatusDriverQuoteSubmitted Status = "DRIVER_QUOTE_SUBMITTED"
	StatusScheduled            Status = "SCHEDULED"
	StatusPickedUp             Status = "PICKED_UP"
	StatusInTransit            Status = "IN_TRANSIT"
	StatusDelivered            Status = "DELIVERED"
	StatusCancelled            Status = "CANCELLED"
	StatusDenied               Status = "DENIED"
)

// rank orders the main path. Side states carry no rank.
var rank = map[Status]int{
	StatusNew:                  1,
	StatusRequested:            2,
	StatusQuoteRequested:       3,
	StatusQuoted:               4,
	StatusQuoteAccepted:        5,
	StatusDriverQuotePending:   6,
	StatusDriverQuoteSubmitted: 7,
	StatusScheduled:            8,
	StatusPickedUp:             9,
	StatusInTransit:            10,
	StatusDelivered:            11,
}

// Ordered lists the main path in lifecycle order.
var Ordered = []Status{
	StatusNew,
	StatusRequested,
	StatusQuoteRequested,
	StatusQuoted,
	StatusQuoteAccepted,
	StatusDriverQuotePending,
	StatusDriverQuoteSubmitted,
	StatusScheduled,
	StatusPickedUp,
	StatusInTransit,
	StatusDelivered,
}

// All lists every status, main path first.
var All = append(append([]Status{}, Ordered...), StatusCancelled, StatusDenied)

func ParseStatus(s string) (Status, error) {
	st := Status(s)
	if !st.IsValid() {
		return "", dErrors.New(dErrors.CodeInvalidInput, "unknown shipment status: "+s)
	}
	return st, nil
}

func (s Status) String() string {
	return string(s)
}

func (s Status) IsValid() bool {
	if _, ok := rank[s]; ok {
		return true
	}
	return s == StatusCancelled || s == StatusDenied
}

// IsTerminal is true for DELIVERED, CANCELLED and DENIED.
func (s Status) IsTerminal() bool {
	return s == StatusDelivered || s == StatusCancelled || s == StatusDenied
}

// IsSideTerminal is true for the two states that leave the main path.
func (s Status) IsSideTerminal() bool {
	return s == StatusCancelled || s == StatusDenied
}

// InCustody is true while the courier physically holds the shipment.
func (s Status) InCustody() bool {
	return s == StatusPickedUp || s == StatusInTransit
}

// IsLocked reports whether the protected descriptive fields are frozen. The
// lock is derived from status alone and is never stored.
func IsLocked(s Status) bool {
	return rank[s] >= rank[StatusPickedUp]
}
