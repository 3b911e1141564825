package ir

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIRValueSealed(t *testing.T) {
	var _ IRValue = IRNull{}
	var _ IRValue = IRString("test")
	var _ IRValue = IRInt(42)
	var _ IRValue = IRBool(true)
	var _ IRValue = IRArray{IRString("a"), IRInt(1)}
	var _ IRValue = IRObject{"key": IRString("value")}
}

func TestIRObjectSortedKeys(t *testing.T) {
	obj := IRObject{
		"zebra":  IRString("z"),
		"apple":  IRString("a"),
		"banana": IRString("b"),
	}
	assert.Equal(t, []string{"apple", "banana", "zebra"}, obj.SortedKeys())
}

func TestIRObjectSortedKeysUTF16Order(t *testing.T) {
	// U+FF61 is a single UTF-16 unit (0xFF61); U+1F600 is a surrogate pair
	// starting 0xD83D. UTF-16 order puts the emoji first, UTF-8 order does not.
	obj := IRObject{
		"\uff61":     IRInt(1),
		"\U0001F600": IRInt(2),
	}
	assert.Equal(t, []string{"\U0001F600", "\uff61"}, obj.SortedKeys())
}

func TestEqual(t *testing.T) {
	tests := []struct {
		name string
		a, b IRValue
		want bool
	}{
		{"same string", IRString("James"), IRString("James"), true},
		{"different string", IRString("James"), IRString("Bond"), false},
		{"int vs string", IRInt(1), IRString("1"), false},
		{"null vs null", IRNull{}, IRNull{}, true},
		{"arrays in order", Strings("a", "b"), Strings("a", "b"), true},
		{"arrays out of order", Strings("a", "b"), Strings("b", "a"), false},
		{"objects ignore key order",
			IRObject{"a": IRInt(1), "b": IRInt(2)},
			IRObject{"b": IRInt(2), "a": IRInt(1)}, true},
		{"NFC normalised", IRString("cafe\u0301"), IRString("caf\u00e9"), true},
		{"nil vs value", nil, IRInt(1), false},
		{"nil vs nil", nil, nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Equal(tt.a, tt.b))
		})
	}
}

func TestIRArrayContains(t *testing.T) {
	arr := IRArray{IRString("James"), IRObject{"n": IRInt(1)}}
	assert.True(t, arr.Contains(IRString("James")))
	assert.True(t, arr.Contains(IRObject{"n": IRInt(1)}))
	assert.False(t, arr.Contains(IRString("Bond")))
}

func TestCloneIsDeep(t *testing.T) {
	orig := IRObject{
		"names":   Strings("a"),
		"address": IRObject{"street": IRString("Abbey Road")},
	}
	cp := orig.Clone()

	cp["names"] = append(cp["names"].(IRArray), IRString("b"))
	cp["address"].(IRObject)["street"] = IRString("Maiden Lane")

	assert.Equal(t, Strings("a"), orig["names"])
	assert.Equal(t, IRString("Abbey Road"), orig["address"].(IRObject)["street"])
	assert.Nil(t, IRObject(nil).Clone())
	assert.Nil(t, IRArray(nil).Clone())
}

func TestIRObjectJSONRoundTrip(t *testing.T) {
	data := []byte(`{"age":35,"names":["James",null],"title":"Sir","meta":{"ok":true}}`)

	var obj IRObject
	require.NoError(t, json.Unmarshal(data, &obj))

	assert.Equal(t, IRInt(35), obj["age"])
	assert.Equal(t, IRArray{IRString("James"), IRNull{}}, obj["names"])
	assert.Equal(t, IRObject{"ok": IRBool(true)}, obj["meta"])

	out, err := json.Marshal(obj)
	require.NoError(t, err)
	assert.JSONEq(t, string(data), string(out))
}

func TestIRObjectUnmarshalRejectsFloats(t *testing.T) {
	var obj IRObject
	err := json.Unmarshal([]byte(`{"score":1.5}`), &obj)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "floats")
}

func TestIRObjectUnmarshalLargeInt(t *testing.T) {
	var obj IRObject
	require.NoError(t, json.Unmarshal([]byte(`{"n":9007199254740993}`), &obj))
	assert.Equal(t, IRInt(9007199254740993), obj["n"])
}

func TestUnmarshalIRValue(t *testing.T) {
	v, err := UnmarshalIRValue([]byte(`["James", 7, true, null]`))
	require.NoError(t, err)
	assert.Equal(t, IRArray{IRString("James"), IRInt(7), IRBool(true), IRNull{}}, v)

	_, err = UnmarshalIRValue([]byte(`1e3`))
	require.Error(t, err)
}

func TestFromGo(t *testing.T) {
	v, err := FromGo(map[string]any{
		"a": 1,
		"b": float64(2),
		"c": []any{"x", int32(3)},
		"d": nil,
	})
	require.NoError(t, err)
	assert.Equal(t, IRObject{
		"a": IRInt(1),
		"b": IRInt(2),
		"c": IRArray{IRString("x"), IRInt(3)},
		"d": IRNull{},
	}, v)

	_, err = FromGo(2.5)
	require.Error(t, err)

	_, err = FromGo(struct{}{})
	require.Error(t, err)
}

func TestToGo(t *testing.T) {
	got := ToGo(IRObject{"names": Strings("a"), "n": IRInt(1), "z": IRNull{}})
	assert.Equal(t, map[string]any{"names": []any{"a"}, "n": int64(1), "z": nil}, got)
}

func TestNewIRObjectFromPairs(t *testing.T) {
	obj := NewIRObjectFromPairs(O("a", IRInt(1)), O("a", IRInt(2)), O("b", IRBool(true)))
	assert.Equal(t, IRObject{"a": IRInt(2), "b": IRBool(true)}, obj)
}
