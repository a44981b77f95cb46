package main

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/staff-eval/internal/model"
)

func TestParseRosterCSV(t *testing.T) {
	data := "\ufeffName,Role,Physician_Role,Shift,Route_ID,ID\n" +
		"Maria Souza,dispatch,,24h,r-1,c-1\n" +
		"João Lima,Physician,lead,,,\n"

	cs, err := parseRosterCSV(strings.NewReader(data))
	require.NoError(t, err)
	require.Len(t, cs, 2)

	assert.Equal(t, model.Collaborator{
		ID:            "c-1",
		Name:          "Maria Souza",
		RouteID:       "r-1",
		Role:          model.RoleDispatch,
		PhysicianRole: model.PhysicianNone,
		Shift:         model.Shift24h,
	}, cs[0])
	assert.Equal(t, model.RolePhysician, cs[1].Role)
	assert.Equal(t, model.PhysicianLead, cs[1].PhysicianRole)
	assert.Equal(t, model.Shift12h, cs[1].Shift)
	assert.Empty(t, cs[1].ID)
}

func TestParseRosterCSV_Errors(t *testing.T) {
	tests := []struct {
		name    string
		data    string
		wantErr string
	}{
		{"empty", "", "empty csv"},
		{"missing role column", "name\nMaria\n", `missing the "role" column`},
		{"unknown role", "name,role\nMaria,nurse\n", "csv line 2"},
		{"blank name", "name,role\nMaria,fleet\n ,fleet\n", "csv line 3"},
		{"bad shift", "name,role,shift\nMaria,fleet,8h\n", "unknown shift"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := parseRosterCSV(strings.NewReader(tt.data))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestNewCollaborator(t *testing.T) {
	c, err := newCollaborator(" c-9 ", "  Ana Reis ", "", "FLEET", "", "12")
	require.NoError(t, err)
	assert.Equal(t, "c-9", c.ID)
	assert.Equal(t, "Ana Reis", c.Name)
	assert.Equal(t, model.RoleFleet, c.Role)
	assert.Equal(t, model.Shift12h, c.Shift)

	_, err = newCollaborator("", "Ana", "", "fleet", "chief", "")
	assert.Error(t, err)
}

func TestFormatCollaborators(t *testing.T) {
	var buf bytes.Buffer
	formatCollaborators(&buf, []model.Collaborator{
		{ID: "c-1", Name: "MARIA SOUZA", Role: model.RoleDispatch, PhysicianRole: model.PhysicianNone, Shift: model.Shift12h, RouteID: "r-1"},
	})

	output := buf.String()
	assert.Contains(t, output, "SUB_ROLE")
	assert.Contains(t, output, "MARIA SOUZA")
	assert.Contains(t, output, "r-1")
}
