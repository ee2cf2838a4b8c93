package kvstore

import (
	"context"
	"fmt"
	"testing"

	"github.com/medimart/storefront/pkg/db"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func newSQLiteStore(t *testing.T) *SQLite {
	t.Helper()
	conn, err := gorm.Open(sqlite.Open(fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())), &gorm.Config{})
	require.NoError(t, err)
	store, err := NewSQLite(context.Background(), db.FromGorm(conn))
	require.NoError(t, err)
	return store
}

func TestStores(t *testing.T) {
	cases := map[string]func(t *testing.T) Store{
		"memory": func(*testing.T) Store { return NewMemory() },
		"sqlite": func(t *testing.T) Store { return newSQLiteStore(t) },
	}

	for name, build := range cases {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			store := build(t)

			_, ok, err := store.Get(ctx, KeySession)
			require.NoError(t, err)
			require.False(t, ok)

			require.NoError(t, store.Set(ctx, KeySession, []byte(`{"identityId":"a"}`)))
			require.NoError(t, store.Set(ctx, KeySession, []byte(`{"identityId":"b"}`)))
			require.NoError(t, store.Set(ctx, KeyAccessToken, []byte("tok")))

			got, ok, err := store.Get(ctx, KeySession)
			require.NoError(t, err)
			require.True(t, ok)
			require.JSONEq(t, `{"identityId":"b"}`, string(got))

			require.NoError(t, store.Delete(ctx, KeySession, KeyAccessToken))
			_, ok, err = store.Get(ctx, KeyAccessToken)
			require.NoError(t, err)
			require.False(t, ok)
			require.NoError(t, store.Delete(ctx))
		})
	}
}

func TestNewSQLiteRequiresClient(t *testing.T) {
	_, err := NewSQLite(context.Background(), nil)
	require.Error(t, err)
}
