package keyvault_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clenoble/sovereign/pkg/keyvault"
)

func TestUnwrapDocumentKeyIsStablePerDocument(t *testing.T) {
	v := keyvault.NewMemory()
	ctx := context.Background()

	key1, err := v.UnwrapDocumentKey(ctx, "doc-1")
	require.NoError(t, err)
	key2, err := v.UnwrapDocumentKey(ctx, "doc-1")
	require.NoError(t, err)
	assert.Equal(t, key1, key2)
	assert.Len(t, key1, 32)
}

func TestUnwrapDocumentKeyDiffersAcrossDocuments(t *testing.T) {
	v := keyvault.NewMemory()
	ctx := context.Background()

	key1, err := v.UnwrapDocumentKey(ctx, "doc-1")
	require.NoError(t, err)
	key2, err := v.UnwrapDocumentKey(ctx, "doc-2")
	require.NoError(t, err)
	assert.NotEqual(t, key1, key2)
}

func TestRotateDocumentKeyChangesValue(t *testing.T) {
	v := keyvault.NewMemory()
	ctx := context.Background()

	before, err := v.UnwrapDocumentKey(ctx, "doc-1")
	require.NoError(t, err)
	require.NoError(t, v.RotateDocumentKey(ctx, "doc-1"))
	after, err := v.UnwrapDocumentKey(ctx, "doc-1")
	require.NoError(t, err)
	assert.NotEqual(t, before, after)
}

func TestDeriveSubkeyIsDeterministicAndDomainSeparated(t *testing.T) {
	v := keyvault.NewMemory()
	ctx := context.Background()

	a1, err := v.DeriveSubkey(ctx, "session-log")
	require.NoError(t, err)
	a2, err := v.DeriveSubkey(ctx, "session-log")
	require.NoError(t, err)
	assert.Equal(t, a1, a2)

	b, err := v.DeriveSubkey(ctx, "document-content")
	require.NoError(t, err)
	assert.NotEqual(t, a1, b)
}

func TestSplitAndCombineMasterKeyRoundTrips(t *testing.T) {
	v := keyvault.NewMemory()
	shards, err := v.SplitMasterKey(3, 3)
	require.NoError(t, err)
	require.Len(t, shards, 3)

	combined, err := v.CombineMasterKey(shards)
	require.NoError(t, err)
	assert.Len(t, combined, 32)
}

func TestSplitMasterKeyRejectsInvalidThreshold(t *testing.T) {
	v := keyvault.NewMemory()
	_, err := v.SplitMasterKey(5, 3)
	assert.Error(t, err)

	_, err = v.SplitMasterKey(0, 3)
	assert.Error(t, err)
}
