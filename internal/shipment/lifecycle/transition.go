package lifecycle

import (
	dErrors "medcourier/pkg/domain-errors"
)

// ValidateTransition checks a requested status against the current stored one.
//
// Rules:
//   - both statuses must be known
//   - a status never transitions to itself
//   - terminal statuses have no exits
//   - CANCELLED and DENIED are reachable from any status before PICKED_UP
//   - otherwise the request must move strictly forward along the main path;
//     skipping intermediate states is allowed (e.g. QUOTE_ACCEPTED -> SCHEDULED)
func ValidateTransition(current, requested Status) error {
	if !current.IsValid() {
		return dErrors.Newf(dErrors.CodeValidation, "unknown current status %q", current)
	}
	if !requested.IsValid() {
		return dErrors.Newf(dErrors.CodeValidation, "unknown requested status %q", requested)
	}
	if current == requested {
		return rejected(current, requested, "shipment is already in this status")
	}
	if current.IsTerminal() {
		return rejected(current, requested, "status is terminal")
	}
	if requested.IsSideTerminal() {
		if IsLocked(current) {
			return rejected(current, requested, "shipment is already in custody")
		}
		return nil
	}
	if rank[requested] < rank[current] {
		return rejected(current, requested, "backward transitions are not allowed")
	}
	return nil
}

// CanTransition is ValidateTransition as a predicate.
func CanTransition(current, requested Status) bool {
	return ValidateTransition(current, requested) == nil
}

// Next returns the statuses reachable from current, main path first.
func Next(current Status) []Status {
	var out []Status
	for _, s := range All {
		if CanTransition(current, s) {
			out = append(out, s)
		}
	}
	return out
}

func rejected(current, requested Status, why string) error {
	return dErrors.Newf(dErrors.CodeValidation, "invalid status transition %s -> %s: %s", current, requested, why)
}
