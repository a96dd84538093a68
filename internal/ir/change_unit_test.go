package ir

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChangeUnitValidate(t *testing.T) {
	tests := []struct {
		name    string
		unit    ChangeUnit
		wantErr string
	}{
		{"install", ChangeUnit{ID: "XC-Reviews", Install: true, Version: "1.0.0"}, ""},
		{"inactive install", ChangeUnit{ID: "XC-Reviews", Install: true, Version: "1.0.0", Inactive: true}, ""},
		{"enable", ChangeUnit{ID: "XC-Reviews", Enable: true}, ""},
		{"remove", ChangeUnit{ID: "XC-Reviews", Remove: true}, ""},
		{"missing id", ChangeUnit{Enable: true}, "missing module id"},
		{"bad id", ChangeUnit{ID: "Reviews", Enable: true}, "Author-Name"},
		{"no action", ChangeUnit{ID: "XC-Reviews"}, "no action"},
		{"two actions", ChangeUnit{ID: "XC-Reviews", Enable: true, Remove: true}, "more than one action"},
		{"install without version", ChangeUnit{ID: "XC-Reviews", Install: true}, "install requires a version"},
		{"upgrade without version", ChangeUnit{ID: "XC-Reviews", Upgrade: true}, "upgrade requires a version"},
		{"malformed version", ChangeUnit{ID: "XC-Reviews", Upgrade: true, Version: "1..0"}, "malformed version"},
		{"inactive enable", ChangeUnit{ID: "XC-Reviews", Enable: true, Inactive: true}, "inactive"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.unit.Validate()
			if tt.wantErr == "" {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			var ce *ConstructionError
			require.True(t, errors.As(err, &ce))
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestChangeUnitAction(t *testing.T) {
	assert.Equal(t, ActionInstall, ChangeUnit{Install: true}.Action())
	assert.Equal(t, ActionEnable, ChangeUnit{Enable: true}.Action())
	assert.Equal(t, ActionDisable, ChangeUnit{Disable: true}.Action())
	assert.Equal(t, ActionUpgrade, ChangeUnit{Upgrade: true}.Action())
	assert.Equal(t, ActionRemove, ChangeUnit{Remove: true}.Action())
	assert.Equal(t, ChangeAction(""), ChangeUnit{}.Action())
}

func TestChangeUnitUnmarshalEnableFalse(t *testing.T) {
	var units []ChangeUnit
	err := json.Unmarshal([]byte(`[
		{"id": "XC-Reviews", "enable": false},
		{"id": "XC-Rating", "enable": true},
		{"id": "XC-Sale", "install": true, "version": "1.2.0"}
	]`), &units)
	require.NoError(t, err)
	require.Len(t, units, 3)

	assert.Equal(t, ChangeUnit{ID: "XC-Reviews", Disable: true}, units[0])
	assert.Equal(t, ChangeUnit{ID: "XC-Rating", Enable: true}, units[1])
	assert.Equal(t, ChangeUnit{ID: "XC-Sale", Install: true, Version: "1.2.0"}, units[2])
	for _, u := range units {
		assert.NoError(t, u.Validate())
	}
}
