package fetcher

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadArray_RawElements(t *testing.T) {
	items, err := ReadArray(context.Background(),
		strings.NewReader(`[{"alpha2Code":"MK"}, 7, "x", {"alpha2Code":"NL"}]`), 0)
	require.NoError(t, err)
	require.Len(t, items, 4)
	assert.JSONEq(t, `{"alpha2Code":"MK"}`, string(items[0]))
	assert.Equal(t, `7`, string(items[1]))
}

func TestReadArray_Empty(t *testing.T) {
	items, err := ReadArray(context.Background(), strings.NewReader(" [ ]\n"), 0)
	require.NoError(t, err)
	assert.NotNil(t, items)
	assert.Empty(t, items)
}

func TestReadArray_Malformed(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"empty body", ""},
		{"object", `{"countries": []}`},
		{"truncated", `[{"alpha2Code":"MK"}, {"alpha2`},
		{"unterminated", `[{"alpha2Code":"MK"}`},
		{"html", `<html>maintenance</html>`},
		{"trailing array", `[1][2]`},
		{"trailing garbage", `[1] oops`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			items, err := ReadArray(context.Background(), strings.NewReader(tt.input), 0)
			require.Error(t, err)
			assert.Nil(t, items)
		})
	}
}

func TestReadArray_ItemLimit(t *testing.T) {
	items, err := ReadArray(context.Background(), strings.NewReader(`[1,2,3]`), 3)
	require.NoError(t, err)
	assert.Len(t, items, 3)

	items, err = ReadArray(context.Background(), strings.NewReader(`[1,2,3,4]`), 3)
	require.ErrorIs(t, err, ErrTooManyItems)
	assert.Nil(t, items)
}

func TestReadArray_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := ReadArray(ctx, strings.NewReader(`[1,2,3]`), 0)
	assert.ErrorIs(t, err, context.Canceled)
}
