package model

import (
	"sort"
	"time"
)

// Project is one evaluation period and the collaborator states it owns.
type Project struct {
	ID          string              `json:"id"`
	Name        string              `json:"name"`
	PeriodStart time.Time           `json:"period_start"`
	PeriodEnd   time.Time           `json:"period_end"`
	States      []CollaboratorState `json:"states"`
	Version     int64               `json:"version"`
	CreatedAt   time.Time           `json:"created_at"`
	UpdatedAt   time.Time           `json:"updated_at"`
}

// ScoringParams records which rule tables produced a state's points.
type ScoringParams struct {
	RulesHash string            `json:"rules_hash"`
	Bands     map[Metric][]Band `json:"bands,omitempty"`
}

// CollaboratorState is a collaborator's measured and scored standing in a
// project. It deliberately has no timestamps: re-importing the same sheet
// must produce an identical value.
type CollaboratorState struct {
	CollaboratorID string        `json:"collaborator_id"`
	Role           Role          `json:"role"`
	PhysicianRole  PhysicianRole `json:"physician_role"`
	Shift          Shift         `json:"shift"`
	Metrics
	Points         int           `json:"points"`
	ManuallyEdited bool          `json:"manually_edited"`
	Params         ScoringParams `json:"params"`
}

// NewState builds an unmeasured state for a roster record.
func NewState(c Collaborator) CollaboratorState {
	return CollaboratorState{
		CollaboratorID: c.ID,
		Role:           c.Role,
		PhysicianRole:  c.EffectivePhysicianRole(),
		Shift:          c.Shift,
	}
}

// State returns the state for collaboratorID, or nil.
func (p *Project) State(collaboratorID string) *CollaboratorState {
	for i := range p.States {
		if p.States[i].CollaboratorID == collaboratorID {
			return &p.States[i]
		}
	}
	return nil
}

// AddState appends s and returns a pointer to the stored copy. Pointers
// returned by earlier State or AddState calls may be invalidated.
func (p *Project) AddState(s CollaboratorState) *CollaboratorState {
	p.States = append(p.States, s)
	return &p.States[len(p.States)-1]
}

// CollaboratorIDs returns the enrolled collaborator ids in state order.
func (p *Project) CollaboratorIDs() []string {
	ids := make([]string, 0, len(p.States))
	for _, s := range p.States {
		ids = append(ids, s.CollaboratorID)
	}
	return ids
}

// SortStates orders states by collaborator id.
func (p *Project) SortStates() {
	sort.Slice(p.States, func(i, j int) bool {
		return p.States[i].CollaboratorID < p.States[j].CollaboratorID
	})
}
