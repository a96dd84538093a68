package ir

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIRObjectSortedKeys(t *testing.T) {
	obj := IRObject{"zebra": IRInt(1), "alpha": IRInt(2), "beta": IRInt(3)}
	assert.Equal(t, []string{"alpha", "beta", "zebra"}, obj.SortedKeys())
	assert.Empty(t, IRObject{}.SortedKeys())
}

func TestCompareKeysRFC8785(t *testing.T) {
	tests := []struct {
		a, b string
		want int
	}{
		{"a", "b", -1},
		{"b", "a", 1},
		{"a", "a", 0},
		{"a", "ab", -1},
		{"\U00010000", "\uE000", -1},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, compareKeysRFC8785(tt.a, tt.b), "%q vs %q", tt.a, tt.b)
	}
}

func TestIRObjectJSON(t *testing.T) {
	obj := IRObject{
		"edition_name": IRString("Business"),
		"count":        IRInt(3),
		"flags":        IRArray{IRBool(true), IRNull{}},
	}

	data, err := json.Marshal(obj)
	require.NoError(t, err)
	assert.Equal(t, `{"count":3,"edition_name":"Business","flags":[true,null]}`, string(data))

	var decoded IRObject
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, obj, decoded)
}

func TestIRObjectUnmarshalRejectsFloats(t *testing.T) {
	var obj IRObject
	err := json.Unmarshal([]byte(`{"ratio": 0.5}`), &obj)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "floats")
}

func TestIRObjectAccessors(t *testing.T) {
	obj := IRObject{
		"name": IRString("Business"),
		"done": StringArray("XC-A", "XC-B"),
		"n":    IRInt(1),
	}

	assert.Equal(t, "Business", obj.GetString("name"))
	assert.Equal(t, "", obj.GetString("n"))
	assert.Equal(t, "", obj.GetString("missing"))
	assert.Equal(t, []string{"XC-A", "XC-B"}, obj.GetStrings("done"))
	assert.Empty(t, obj.GetStrings("missing"))
}

func TestIRObjectClone(t *testing.T) {
	obj := IRObject{"done": StringArray("XC-A"), "nested": IRObject{"k": IRString("v")}}
	c := obj.Clone()

	c["done"].(IRArray)[0] = IRString("XC-Z")
	c["nested"].(IRObject)["k"] = IRString("changed")

	assert.Equal(t, "XC-A", obj.GetStrings("done")[0])
	assert.Equal(t, "v", obj["nested"].(IRObject).GetString("k"))
	assert.Nil(t, IRObject(nil).Clone())
}

func TestFromGo(t *testing.T) {
	v, err := FromGo(map[string]any{
		"edition": "Business",
		"tier":    2,
		"list":    []any{"a", true},
	})
	require.NoError(t, err)
	assert.Equal(t, IRObject{
		"edition": IRString("Business"),
		"tier":    IRInt(2),
		"list":    IRArray{IRString("a"), IRBool(true)},
	}, v)

	_, err = FromGo(map[string]any{"x": nil})
	assert.Error(t, err)
	_, err = FromGo([]any{1.5})
	assert.Error(t, err)
	_, err = FromGo(struct{}{})
	assert.Error(t, err)
}
