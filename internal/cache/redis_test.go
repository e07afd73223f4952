//go:build integration

package cache_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dwsmith1983/releasepub/internal/cache"
	"github.com/dwsmith1983/releasepub/internal/testutil"
)

func setupRedis(t *testing.T) (*goredis.Client, string) {
	t.Helper()
	client := goredis.NewClient(&goredis.Options{Addr: "localhost:6379"})
	ctx := context.Background()
	if err := client.Ping(ctx).Err(); err != nil {
		t.Skipf("Redis not available: %v", err)
	}

	prefix := fmt.Sprintf("releasepub-test-%d:", time.Now().UnixNano())
	t.Cleanup(func() {
		var cursor uint64
		for {
			keys, next, err := client.Scan(ctx, cursor, prefix+"*", 100).Result()
			if err != nil {
				break
			}
			if len(keys) > 0 {
				client.Del(ctx, keys...)
			}
			cursor = next
			if cursor == 0 {
				break
			}
		}
		client.Close()
	})
	return client, prefix
}

func TestRedis_PublicationRoundTrip(t *testing.T) {
	client, prefix := setupRedis(t)
	ctx := context.Background()
	fx := testutil.NewContentFixture(t)
	fx.Publication("pupil-absence", 2025)

	c := cache.New(client, fx.Store, &fakeFiles{}, cache.WithPrefix(prefix))
	require.NoError(t, c.UpdatePublication(ctx, "pupil-absence"))

	raw, err := client.Get(ctx, prefix+"publication:pupil-absence").Result()
	require.NoError(t, err)
	assert.Contains(t, raw, `"slug":"pupil-absence"`)

	require.NoError(t, c.UpdateTaxonomy(ctx))
	require.NoError(t, c.UpdateRedirects(ctx))
	n, err := client.Exists(ctx, prefix+"taxonomy", prefix+"redirects").Result()
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
}
