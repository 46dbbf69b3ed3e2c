package artifacts

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	sdkerrors "github.com/wehubfusion/Daedalus/pkg/errors"
)

func TestMemoryStore_PutGet(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	ref, err := store.Put(ctx, "runs/abc/model", []byte("payload"), map[string]string{"flavor": "sklearn"})
	require.NoError(t, err)
	assert.Equal(t, "runs/abc/model", ref)

	data, err := store.Get(ctx, ref)
	require.NoError(t, err)
	assert.Equal(t, []byte("payload"), data)
}

func TestMemoryStore_GetMissing(t *testing.T) {
	store := NewMemoryStore()

	_, err := store.Get(context.Background(), "runs/nope/model")
	assert.ErrorIs(t, err, sdkerrors.ErrArtifactNotFound)
}

func TestMemoryStore_PutEmptyPath(t *testing.T) {
	store := NewMemoryStore()

	_, err := store.Put(context.Background(), "", []byte("x"), nil)
	assert.Error(t, err)
}

func TestMemoryStore_CopiesPayload(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	buf := []byte("original")
	_, err := store.Put(ctx, "p", buf, nil)
	require.NoError(t, err)
	buf[0] = 'X'

	data, err := store.Get(ctx, "p")
	require.NoError(t, err)
	assert.Equal(t, []byte("original"), data)
}

func TestParseConnectionString(t *testing.T) {
	params := parseConnectionString(
		"DefaultEndpointsProtocol=http;AccountName=devstore;AccountKey=a2V5;BlobEndpoint=http://127.0.0.1:10000/devstore;")

	assert.Equal(t, "devstore", params["AccountName"])
	assert.Equal(t, "a2V5", params["AccountKey"])
	assert.Equal(t, "http://127.0.0.1:10000/devstore", params["BlobEndpoint"])
}
