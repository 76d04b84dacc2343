package id

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUnique(t *testing.T) {
	assert.Equal(t, "unique()", Unique())
	assert.True(t, IsUnique(Unique()))
	assert.False(t, IsUnique("abc"))
}

func TestCustom(t *testing.T) {
	tests := []struct {
		name    string
		id      string
		wantErr bool
	}{
		{name: "simple", id: "abc123"},
		{name: "with special chars", id: "my-file_1.txt"},
		{name: "max length", id: strings.Repeat("a", 36)},
		{name: "too long", id: strings.Repeat("a", 37), wantErr: true},
		{name: "leading special char", id: "_abc", wantErr: true},
		{name: "empty", id: "", wantErr: true},
		{name: "invalid char", id: "a/b", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Custom(tt.id)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.id, got)
		})
	}
}
