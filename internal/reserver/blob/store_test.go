package blob

import (
	"context"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPutOverwrites(t *testing.T) {
	fs := afero.NewMemMapFs()
	store := NewFsStore(fs, "orders")
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, "order-42.json", []byte(`{"v":1}`)))
	require.NoError(t, store.Put(ctx, "order-42.json", []byte(`{"v":2}`)))

	got, err := afero.ReadFile(fs, "orders/order-42.json")
	require.NoError(t, err)
	assert.Equal(t, `{"v":2}`, string(got), "last write wins")

	entries, err := afero.ReadDir(fs, "orders")
	require.NoError(t, err)
	assert.Len(t, entries, 1, "overwrite must not leave extra blobs")
}
