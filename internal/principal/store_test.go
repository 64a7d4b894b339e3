package principal

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vyrodovalexey/authguard/internal/config"
)

func TestMemoryStore(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := NewMemoryStoreFromSpecs([]config.PrincipalSpec{
		{ID: "a", Value: "sk-a", Permissions: []string{"read"}},
		{ID: "b", Value: "sk-b"},
	})
	assert.Equal(t, 2, s.Len())

	p, err := s.FindByValue(ctx, "sk-a")
	require.NoError(t, err)
	assert.Equal(t, "a", p.ID)

	p.Permissions["admin"] = struct{}{}
	again, err := s.FindByID(ctx, "a")
	require.NoError(t, err)
	assert.False(t, again.Permissions.Has("admin"), "lookups must return copies")

	_, err = s.FindByValue(ctx, "sk-missing")
	assert.ErrorIs(t, err, ErrNotFound)

	ok, err := s.Exists(ctx, "sk-b")
	require.NoError(t, err)
	assert.True(t, ok)

	assert.ErrorIs(t, s.Put(&Info{ID: "c", SecretValue: "sk-a"}), ErrDuplicate)

	require.NoError(t, s.Put(&Info{ID: "a", SecretValue: "sk-a2"}))
	_, err = s.FindByValue(ctx, "sk-a")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = s.FindByValue(ctx, "sk-a2")
	assert.NoError(t, err)

	require.NoError(t, s.Delete("b"))
	assert.ErrorIs(t, s.Delete("b"), ErrNotFound)
	ok, _ = s.Exists(ctx, "sk-b")
	assert.False(t, ok)
}
