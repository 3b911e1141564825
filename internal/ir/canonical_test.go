package ir

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMarshalCanonical(t *testing.T) {
	tests := []struct {
		name string
		in   IRValue
		want string
	}{
		{"null", IRNull{}, `null`},
		{"int", IRInt(-42), `-42`},
		{"bool", IRBool(false), `false`},
		{"string no html escape", IRString("<a & b>"), `"<a & b>"`},
		{"sorted keys", IRObject{"b": IRInt(1), "a": IRInt(2)}, `{"a":2,"b":1}`},
		{"nested", IRObject{"addresses": IRArray{IRObject{"number": IRInt(4)}}},
			`{"addresses":[{"number":4}]}`},
		{"empty array", IRArray{}, `[]`},
		{"empty object", IRObject{}, `{}`},
		{"control char escaped", IRString("a\nb"), `"a\nb"`},
		{"line separator literal", IRString("a\u2028b"), "\"a\u2028b\""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := MarshalCanonical(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, string(got))
		})
	}
}

func TestMarshalCanonicalNFC(t *testing.T) {
	decomposed, err := MarshalCanonical(IRString("e\u0301"))
	require.NoError(t, err)
	composed, err := MarshalCanonical(IRString("\u00e9"))
	require.NoError(t, err)
	assert.Equal(t, composed, decomposed)
}

func TestMarshalCanonicalEscapedBackslashKept(t *testing.T) {
	// A literal backslash followed by "u2028" text must stay escaped.
	got, err := MarshalCanonical(IRString(`\u2028`))
	require.NoError(t, err)
	assert.Equal(t, `"\\u2028"`, string(got))
}

func TestMarshalCanonicalRejectsNil(t *testing.T) {
	_, err := MarshalCanonical(IRObject{"a": nil})
	require.Error(t, err)
	assert.Contains(t, err.Error(), `key "a"`)
}
