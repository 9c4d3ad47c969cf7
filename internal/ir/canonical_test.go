package ir

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMarshalCanonicalScalars(t *testing.T) {
	tests := []struct {
		name string
		in   any
		want string
	}{
		{"string", IRString("hello"), `"hello"`},
		{"int", IRInt(-42), `-42`},
		{"bool", IRBool(true), `true`},
		{"go int slice", []int{0, 2, 1}, `[0,2,1]`},
		{"go int64 slice", []int64{7}, `[7]`},
		{"empty array", IRArray{}, `[]`},
		{"empty object", IRObject{}, `{}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := MarshalCanonical(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, string(got))
		})
	}
}

func TestMarshalCanonicalSortedKeys(t *testing.T) {
	obj := IRObject{
		"zebra": IRInt(1),
		"apple": IRObject{"b": IRBool(false), "a": IRString("x")},
	}
	got, err := MarshalCanonical(obj)
	require.NoError(t, err)
	assert.Equal(t, `{"apple":{"a":"x","b":false},"zebra":1}`, string(got))
}

func TestMarshalCanonicalUTF16Ordering(t *testing.T) {
	// U+1F600 encodes as surrogates 0xD83D.., which sort before U+FF61.
	obj := IRObject{
		"\uFF61":     IRInt(1),
		"\U0001F600": IRInt(2),
	}
	assert.Equal(t, []string{"\U0001F600", "\uFF61"}, obj.SortedKeys())
}

func TestMarshalCanonicalNoHTMLEscape(t *testing.T) {
	got, err := MarshalCanonical(IRString("<a>&</a>"))
	require.NoError(t, err)
	assert.Equal(t, `"<a>&</a>"`, string(got))
}

func TestMarshalCanonicalNFC(t *testing.T) {
	decomposed := "e\u0301"
	got, err := MarshalCanonical(IRString(decomposed))
	require.NoError(t, err)
	assert.Equal(t, "\"\u00e9\"", string(got))
}

func TestMarshalCanonicalLineSeparatorsStayLiteral(t *testing.T) {
	got, err := MarshalCanonical(IRString("a\u2028b\u2029c"))
	require.NoError(t, err)
	assert.Equal(t, "\"a\u2028b\u2029c\"", string(got))

	got, err = MarshalCanonical(IRString(`x\u2028`))
	require.NoError(t, err)
	assert.Equal(t, `"x\\u2028"`, string(got), "escaped backslash must survive")
}

func TestMarshalCanonicalRejects(t *testing.T) {
	_, err := MarshalCanonical(nil)
	assert.Error(t, err)

	_, err = MarshalCanonical(1.5)
	assert.ErrorContains(t, err, "floats are forbidden")

	_, err = MarshalCanonical(IRArray{nil})
	assert.ErrorContains(t, err, "null is forbidden")

	_, err = MarshalCanonical(map[string]any{"k": 2.0})
	assert.Error(t, err)

	_, err = MarshalCanonical(struct{}{})
	assert.ErrorContains(t, err, "unsupported type")
}

func TestMarshalCanonicalDeterministic(t *testing.T) {
	in := map[string]any{
		"phases": []any{"FORWARD_NOTIFICATION", int64(1)},
		"path":   []int{0, 1},
		"ok":     true,
	}
	first, err := MarshalCanonical(in)
	require.NoError(t, err)
	for range 10 {
		again, err := MarshalCanonical(in)
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}
}
