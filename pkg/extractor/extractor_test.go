package extractor

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtract(t *testing.T) {
	data := map[string]any{
		"amount": 100.5,
		"name":   "Jane Smith",
		"source": map[string]any{
			"system_name": "bank",
			"record_id":   "txn-1",
		},
		"tags": []any{"urgent", "reviewed"},
		"lines": []any{
			map[string]any{"sku": "A-1"},
			map[string]any{"sku": "B-2"},
		},
	}

	e := New()

	tests := []struct {
		name     string
		path     string
		expected any
	}{
		{"TopLevel", "name", "Jane Smith"},
		{"Numeric", "amount", 100.5},
		{"Nested", "source.system_name", "bank"},
		{"ArrayIndex", "tags[1]", "reviewed"},
		{"ArrayOfMaps", "lines[0].sku", "A-1"},
		{"MissingKey", "nonexistent", nil},
		{"MissingNested", "source.nonexistent", nil},
		{"IndexOutOfRange", "tags[9]", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			value, err := e.Extract(data, tt.path)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, value)
		})
	}

	t.Run("TypeMismatchIsError", func(t *testing.T) {
		_, err := e.Extract(data, "name.inner")
		assert.Error(t, err)
	})

	t.Run("EmptyPathReturnsData", func(t *testing.T) {
		value, err := e.Extract(data, "")
		require.NoError(t, err)
		assert.Equal(t, data, value)
	})
}

func TestExtractString(t *testing.T) {
	e := New()
	data := map[string]any{"amount": 100.0, "missing": nil}

	s, err := e.ExtractString(data, "amount")
	require.NoError(t, err)
	require.NotNil(t, s)
	assert.Equal(t, "100", *s)

	s, err = e.ExtractString(data, "nope")
	require.NoError(t, err)
	assert.Nil(t, s)
}

func TestStringify(t *testing.T) {
	assert.Equal(t, "hello", Stringify("hello"))
	assert.Equal(t, "100", Stringify(100.0))
	assert.Equal(t, "100.5", Stringify(100.5))
	assert.Equal(t, "42", Stringify(42))
	assert.Equal(t, "true", Stringify(true))
	assert.Equal(t, "", Stringify(nil))
	assert.Equal(t, `["a","b"]`, Stringify([]any{"a", "b"}))
}

func TestNumeric(t *testing.T) {
	f, ok := Numeric(100.5)
	assert.True(t, ok)
	assert.Equal(t, 100.5, f)

	f, ok = Numeric(" 42 ")
	assert.True(t, ok)
	assert.Equal(t, 42.0, f)

	_, ok = Numeric("not a number")
	assert.False(t, ok)

	_, ok = Numeric([]any{})
	assert.False(t, ok)
}
