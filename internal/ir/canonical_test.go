package ir

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMarshalCanonicalModuleVersions(t *testing.T) {
	// The installed_modules script state is a plain Go map.
	versions := map[string]any{"XC-Reviews": "1.1", "CDev-Core": "5.4.1", "XC-Wishlist": "2.0"}

	result, err := MarshalCanonical(versions)
	require.NoError(t, err)
	assert.Equal(t, `{"CDev-Core":"5.4.1","XC-Reviews":"1.1","XC-Wishlist":"2.0"}`, string(result))

	result, err = MarshalCanonical([]any{int64(1), "two", true, IRArray{}, IRObject{}})
	require.NoError(t, err)
	assert.Equal(t, `[1,"two",true,[],{}]`, string(result))
}

func TestMarshalCanonicalNestedSortedKeys(t *testing.T) {
	obj := IRObject{
		"z": IRObject{"b": IRInt(1), "a": IRInt(2)},
		"a": IRInt(3),
	}

	result, err := MarshalCanonical(obj)
	require.NoError(t, err)
	assert.Equal(t, `{"a":3,"z":{"a":2,"b":1}}`, string(result))
}

func TestMarshalCanonicalUTF16Ordering(t *testing.T) {
	// U+10000 encodes as a surrogate pair starting at 0xD800, which sorts
	// before U+E000 in UTF-16 but after it in UTF-8.
	obj := IRObject{
		"\uE000":     IRInt(1),
		"\U00010000": IRInt(2),
	}

	result, err := MarshalCanonical(obj)
	require.NoError(t, err)
	assert.Equal(t, "{\"\U00010000\":2,\"\uE000\":1}", string(result))
}

func TestMarshalCanonicalNoHTMLEscape(t *testing.T) {
	result, err := MarshalCanonical(IRObject{"url": IRString("https://shop.example/?a=1&b=<2>")})
	require.NoError(t, err)
	assert.Equal(t, `{"url":"https://shop.example/?a=1&b=<2>"}`, string(result))
}

func TestMarshalCanonicalRejects(t *testing.T) {
	tests := []struct {
		name  string
		input any
		want  string
	}{
		{"float64", float64(3.14), "float"},
		{"float in map", map[string]any{"a": 1.5}, "float"},
		{"nil", nil, "null"},
		{"IRNull", IRNull{}, "null"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := MarshalCanonical(tt.input)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestMarshalCanonicalNFCNormalization(t *testing.T) {
	composed, err := MarshalCanonical(IRObject{"caf\u00E9": IRString("caf\u00E9")})
	require.NoError(t, err)
	decomposed, err := MarshalCanonical(IRObject{"cafe\u0301": IRString("cafe\u0301")})
	require.NoError(t, err)

	assert.Equal(t, composed, decomposed)
}

func TestMarshalCanonicalLineSeparators(t *testing.T) {
	result, err := MarshalCanonical(IRString("Reviews\u2028by \"Author\"\n"))
	require.NoError(t, err)
	assert.Equal(t, "\"Reviews\u2028by \\\"Author\\\"\\n\"", string(result))
}

func TestMarshalCanonicalStableAcrossJSONRoundTrip(t *testing.T) {
	original := IRObject{
		"edition_name": IRString("Business"),
		"done":         StringArray("XC-Reviews", "CDev-Core"),
		"attempt":      IRInt(2),
		"nested":       IRObject{"ok": IRBool(true)},
	}

	first, err := MarshalCanonical(original)
	require.NoError(t, err)

	var decoded IRObject
	require.NoError(t, decoded.UnmarshalJSON(first))

	second, err := MarshalCanonical(decoded)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}
