package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDimensionResolver(t *testing.T) {
	repo := newFakeRepository()
	r := NewDimensionResolver(&fakeTx{f: repo})
	ctx := context.Background()

	p1, r1, err := r.Resolve(ctx, " Jawa Barat ", "Bandung")
	require.NoError(t, err)
	require.NotNil(t, p1)
	require.NotNil(t, r1)

	p2, r2, err := r.Resolve(ctx, "Jawa Barat", "Bandung ")
	require.NoError(t, err)
	assert.Equal(t, *p1, *p2)
	assert.Equal(t, *r1, *r2)
	assert.Equal(t, 1, repo.provinceCalls)
	assert.Equal(t, 1, repo.regencyCalls)

	p3, r3, err := r.Resolve(ctx, "Jawa Barat", "")
	require.NoError(t, err)
	assert.Equal(t, *p1, *p3)
	assert.Nil(t, r3)

	p4, r4, err := r.Resolve(ctx, "", "Bandung")
	require.NoError(t, err)
	assert.Nil(t, p4)
	assert.Nil(t, r4, "a regency without a province is not created")
	assert.Equal(t, 1, repo.regencyCalls)
}

func TestDimensionResolver_SameRegencyNameUnderTwoProvinces(t *testing.T) {
	repo := newFakeRepository()
	r := NewDimensionResolver(&fakeTx{f: repo})
	ctx := context.Background()

	_, a, err := r.Resolve(ctx, "Jawa Barat", "Kota Baru")
	require.NoError(t, err)
	_, b, err := r.Resolve(ctx, "Kalimantan Selatan", "Kota Baru")
	require.NoError(t, err)

	assert.NotEqual(t, *a, *b)
	assert.Len(t, repo.state.regencies, 2)
}
