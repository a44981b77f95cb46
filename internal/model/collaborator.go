package model

import (
	"strings"

	"github.com/rotisserie/eris"
)

// Role identifies the staff family a collaborator is evaluated as.
type Role string

const (
	RoleDispatch  Role = "dispatch"
	RoleFleet     Role = "fleet"
	RolePhysician Role = "physician"
)

// PhysicianRole refines RolePhysician. It is NONE for every other role.
type PhysicianRole string

const (
	PhysicianNone      PhysicianRole = "none"
	PhysicianRegulator PhysicianRole = "regulator"
	PhysicianLead      PhysicianRole = "lead"
)

// Shift is the contracted shift length.
type Shift string

const (
	Shift12h Shift = "12h"
	Shift24h Shift = "24h"
)

// ParseRole maps user input ("Dispatch", "FLEET", ...) to a Role.
func ParseRole(s string) (Role, error) {
	switch Role(strings.ToLower(strings.TrimSpace(s))) {
	case RoleDispatch:
		return RoleDispatch, nil
	case RoleFleet:
		return RoleFleet, nil
	case RolePhysician:
		return RolePhysician, nil
	}
	return "", eris.Errorf("model: unknown role %q", s)
}

// ParsePhysicianRole maps user input to a PhysicianRole. Blank means NONE.
func ParsePhysicianRole(s string) (PhysicianRole, error) {
	switch PhysicianRole(strings.ToLower(strings.TrimSpace(s))) {
	case "", PhysicianNone:
		return PhysicianNone, nil
	case PhysicianRegulator:
		return PhysicianRegulator, nil
	case PhysicianLead:
		return PhysicianLead, nil
	}
	return "", eris.Errorf("model: unknown physician role %q", s)
}

// ParseShift maps "12", "12h", "24H" etc. to a Shift. Blank defaults to 12h.
func ParseShift(s string) (Shift, error) {
	v := strings.ToLower(strings.TrimSpace(s))
	v = strings.TrimSuffix(v, "h")
	switch v {
	case "", "12":
		return Shift12h, nil
	case "24":
		return Shift24h, nil
	}
	return "", eris.Errorf("model: unknown shift %q", s)
}

// Collaborator is a roster record. Ingestion never modifies it.
type Collaborator struct {
	ID            string        `json:"id"`
	Name          string        `json:"name"`
	RouteID       string        `json:"route_id,omitempty"`
	Role          Role          `json:"role"`
	PhysicianRole PhysicianRole `json:"physician_role"`
	Shift         Shift         `json:"shift"`
}

// EffectivePhysicianRole returns the sub-role, forced to NONE unless the
// collaborator is a physician.
func (c Collaborator) EffectivePhysicianRole() PhysicianRole {
	return EffectivePhysicianRole(c.Role, c.PhysicianRole)
}

// EffectivePhysicianRole returns sub unless role is not RolePhysician, in
// which case it returns PhysicianNone.
func EffectivePhysicianRole(role Role, sub PhysicianRole) PhysicianRole {
	if role != RolePhysician || sub == "" {
		return PhysicianNone
	}
	return sub
}
