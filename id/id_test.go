package id_test

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xraph/subledger/id"
)

func TestConstructors(t *testing.T) {
	tests := []struct {
		name   string
		newFn  func() id.ID
		prefix id.Prefix
	}{
		{"Principal", id.NewPrincipal, id.PrefixAccount},
		{"TokenID", id.NewTokenID, id.PrefixToken},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.newFn()
			assert.False(t, got.IsNil())
			assert.Equal(t, tt.prefix, got.Prefix())
			assert.Contains(t, got.String(), string(tt.prefix)+"_")
		})
	}
}

func TestParseRoundTrip(t *testing.T) {
	tests := []struct {
		name    string
		newFn   func() id.ID
		parseFn func(string) (id.ID, error)
	}{
		{"Principal", id.NewPrincipal, id.ParsePrincipal},
		{"TokenID", id.NewTokenID, id.ParseTokenID},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			original := tt.newFn()
			parsed, err := tt.parseFn(original.String())
			require.NoError(t, err)
			assert.True(t, parsed.Equal(original))
		})
	}
}

func TestCrossTypeRejection(t *testing.T) {
	_, err := id.ParsePrincipal(id.NewTokenID().String())
	assert.Error(t, err)

	_, err = id.ParseTokenID(id.NewPrincipal().String())
	assert.Error(t, err)
}

func TestParseEmpty(t *testing.T) {
	_, err := id.Parse("")
	assert.Error(t, err)
}

func TestParseGarbage(t *testing.T) {
	_, err := id.Parse("not an id")
	assert.Error(t, err)
}

func TestNilID(t *testing.T) {
	var i id.ID
	assert.True(t, i.IsNil())
	assert.Empty(t, i.String())
	assert.Empty(t, string(i.Prefix()))
	assert.True(t, i.Equal(id.Nil))
	assert.False(t, i.Equal(id.NewPrincipal()))
}

func TestJSONRoundTrip(t *testing.T) {
	type holder struct {
		Who id.Principal `json:"who"`
	}

	original := holder{Who: id.NewPrincipal()}
	data, err := json.Marshal(original)
	require.NoError(t, err)

	var restored holder
	require.NoError(t, json.Unmarshal(data, &restored))
	assert.True(t, restored.Who.Equal(original.Who))
}

func TestValueScan(t *testing.T) {
	original := id.NewPrincipal()
	val, err := original.Value()
	require.NoError(t, err)

	var scanned id.ID
	require.NoError(t, scanned.Scan(val))
	assert.Equal(t, original.String(), scanned.String())

	var nilID id.ID
	val, err = nilID.Value()
	require.NoError(t, err)
	assert.Nil(t, val)

	var scanned2 id.ID
	require.NoError(t, scanned2.Scan(nil))
	assert.True(t, scanned2.IsNil())

	assert.Error(t, scanned2.Scan(42))
}

func TestUniqueness(t *testing.T) {
	a := id.NewPrincipal()
	b := id.NewPrincipal()
	assert.NotEqual(t, a.String(), b.String())
	assert.False(t, a.Equal(b))
}
