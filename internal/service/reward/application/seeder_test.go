package application

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rewardhub/internal/service/reward/domain"
	"rewardhub/internal/service/reward/infrastructure"
)

func TestSeedCatalogOnlyWhenEmpty(t *testing.T) {
	store := infrastructure.NewMemoryStore(time.Second, nil)
	ctx := context.Background()

	seeded, err := SeedCatalog(ctx, store, DefaultCatalog())
	require.NoError(t, err)
	assert.True(t, seeded)

	seeded, err = SeedCatalog(ctx, store, DefaultCatalog())
	require.NoError(t, err)
	assert.False(t, seeded)

	rewards, err := store.FindAll(ctx)
	require.NoError(t, err)
	require.Len(t, rewards, 3)

	var total int64
	for _, r := range rewards {
		total += r.Weight
		assert.Equal(t, r.TotalQuantity, r.RemainingQuantity)
	}
	assert.Equal(t, int64(100), total)
	assert.Equal(t, domain.RewardTypeCoupon, rewards[1].Type)
}
