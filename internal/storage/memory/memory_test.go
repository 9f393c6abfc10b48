package memory

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/utafrali/storefront/pkg/errors"
)

func TestBackend_RoundTripAndIsolation(t *testing.T) {
	b := New()
	ctx := context.Background()

	value := []byte(`"XAF"`)
	require.NoError(t, b.Set(ctx, "k", value))
	value[1] = 'Y'

	got, err := b.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, `"XAF"`, string(got))

	got[1] = 'Z'
	again, _ := b.Get(ctx, "k")
	assert.Equal(t, `"XAF"`, string(again))
	assert.Equal(t, 1, b.Len())
}

func TestBackend_GetMissing(t *testing.T) {
	_, err := New().Get(context.Background(), "nope")
	assert.True(t, errors.Is(err, apperrors.ErrNotFound))
}

func TestBackend_Delete(t *testing.T) {
	b := New()
	ctx := context.Background()
	require.NoError(t, b.Set(ctx, "k", []byte("1")))
	require.NoError(t, b.Delete(ctx, "k"))
	require.NoError(t, b.Delete(ctx, "k"))
	assert.Zero(t, b.Len())
	assert.NoError(t, b.Ping(ctx))
}
