package scheduling

import (
	"fmt"
	"strings"
)

// Role is the closed set of actors that may drive a booking.
type Role string

const (
	RoleClient   Role = "client"
	RoleProvider Role = "provider"
	RoleAdmin    Role = "admin"
)

// ParseRole maps a claim value to a Role. The Portuguese role names used by
// older tokens are accepted as aliases.
func ParseRole(s string) (Role, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "client", "cliente":
		return RoleClient, nil
	case "provider", "barbeiro", "barber":
		return RoleProvider, nil
	case "admin":
		return RoleAdmin, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownRole, s)
}

// Actor is the authenticated caller as supplied by the identity collaborator.
type Actor struct {
	ID   string
	Role Role
}

// CanSee reports whether the actor may read or act on the booking at all.
func (a Actor) CanSee(b Booking) bool {
	switch a.Role {
	case RoleAdmin:
		return true
	case RoleClient:
		return b.ClientID == a.ID
	case RoleProvider:
		return b.ProviderID == a.ID
	}
	return false
}

var lifecycle = map[Status][]Status{
	StatusPending:   {StatusConfirmed, StatusCancelled},
	StatusConfirmed: {StatusCompleted, StatusCancelled},
}

// nil entry means every lifecycle edge is allowed.
var permissions = map[Role]map[Status][]Status{
	RoleClient: {
		StatusPending:   {StatusCancelled},
		StatusConfirmed: {StatusCancelled},
	},
	RoleProvider: {
		StatusPending:   {StatusConfirmed, StatusCancelled},
		StatusConfirmed: {StatusCompleted, StatusCancelled},
	},
	RoleAdmin: nil,
}

// StatusMachine enforces the booking lifecycle and the role permission table.
type StatusMachine struct{}

// Transition checks current → target for role. Errors, by precedence:
// ErrAlreadyTerminal, ErrIllegalTransition, ErrForbiddenForRole.
func (StatusMachine) Transition(current, target Status, role Role) error {
	if current.Terminal() {
		return ErrAlreadyTerminal
	}
	if !contains(lifecycle[current], target) {
		return ErrIllegalTransition
	}
	table, known := permissions[role]
	if !known {
		return ErrForbiddenForRole
	}
	if table == nil {
		return nil
	}
	if !contains(table[current], target) {
		return ErrForbiddenForRole
	}
	return nil
}

// Allowed lists the targets role may move a booking to from current.
func (m StatusMachine) Allowed(current Status, role Role) []Status {
	var out []Status
	for _, target := range lifecycle[current] {
		if m.Transition(current, target, role) == nil {
			out = append(out, target)
		}
	}
	return out
}

func contains(list []Status, s Status) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

// PaymentStatus is the payment provider's vocabulary after normalisation.
type PaymentStatus string

const (
	PaymentPending   PaymentStatus = "pending"
	PaymentApproved  PaymentStatus = "approved"
	PaymentRejected  PaymentStatus = "rejected"
	PaymentCancelled PaymentStatus = "cancelled"
)

// PaymentTarget maps an external payment outcome onto the booking. ok is false
// when nothing should change: the payment is still pending, or the booking has
// already left pendente (repeated or late events are no-ops).
func PaymentTarget(current Status, ps PaymentStatus) (target Status, ok bool) {
	if current != StatusPending {
		return current, false
	}
	switch ps {
	case PaymentApproved:
		return StatusConfirmed, true
	case PaymentRejected, PaymentCancelled:
		return StatusCancelled, true
	}
	return current, false
}
