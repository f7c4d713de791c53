package storage

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/your-org/whome/internal/descriptor"
	"github.com/your-org/whome/internal/models"
)

var identityColumnNames = []string{
	"id", "name", "email", "phone", "descriptor", "snapshot_key", "photo_key",
	"registered_at", "updated_at", "last_greeted_at",
}

func newMockStore(t *testing.T) (*PostgresStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	return NewPostgresStoreWithPool(mock), mock
}

func TestCreateIdentity(t *testing.T) {
	now := time.Now()
	encoded := descriptor.Encode(make(descriptor.Descriptor, descriptor.Length))

	tests := []struct {
		name      string
		desc      string
		mockSetup func(mock pgxmock.PgxPoolIface)
		wantErr   string
	}{
		{
			name: "stores descriptor and embedding",
			desc: encoded,
			mockSetup: func(mock pgxmock.PgxPoolIface) {
				mock.ExpectQuery(`INSERT INTO identities`).
					WithArgs(pgxmock.AnyArg(), "Ada", "ada@example.com", "555", encoded,
						pgxmock.AnyArg(), "identities/x/snapshot.jpg", "").
					WillReturnRows(pgxmock.NewRows([]string{"registered_at", "updated_at"}).AddRow(now, now))
			},
		},
		{
			name: "database error",
			desc: encoded,
			mockSetup: func(mock pgxmock.PgxPoolIface) {
				mock.ExpectQuery(`INSERT INTO identities`).
					WillReturnError(errors.New("connection refused"))
			},
			wantErr: "create identity",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store, mock := newMockStore(t)
			tt.mockSetup(mock)

			ident := &models.Identity{
				Name:        "Ada",
				Email:       "ada@example.com",
				Phone:       "555",
				Descriptor:  tt.desc,
				SnapshotKey: "identities/x/snapshot.jpg",
			}
			err := store.CreateIdentity(context.Background(), ident)
			if tt.wantErr != "" {
				assert.ErrorContains(t, err, tt.wantErr)
			} else {
				require.NoError(t, err)
				assert.NotEqual(t, uuid.Nil, ident.ID)
				assert.Equal(t, now, ident.RegisteredAt)
			}
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestEmbeddingOf(t *testing.T) {
	assert.Nil(t, embeddingOf(""))
	assert.Nil(t, embeddingOf("[1,2]"))

	d := make(descriptor.Descriptor, descriptor.Length)
	d[0] = 0.5
	v := embeddingOf(descriptor.Encode(d))
	require.NotNil(t, v)
	assert.Equal(t, []float32(d), v.Slice())
}

func TestListIdentities(t *testing.T) {
	store, mock := newMockStore(t)
	now := time.Now()
	a, b := uuid.New(), uuid.New()

	mock.ExpectQuery(`SELECT .* FROM identities ORDER BY registered_at ASC, id ASC`).
		WillReturnRows(pgxmock.NewRows(identityColumnNames).
			AddRow(a, "A", "a@x", "1", "[]", "", "", now, now, (*time.Time)(nil)).
			AddRow(b, "B", "b@x", "2", "", "", "", now.Add(time.Second), now, &now))

	got, err := store.ListIdentities(context.Background())
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, a, got[0].ID)
	assert.Nil(t, got[0].LastGreetedAt)
	assert.Equal(t, b, got[1].ID)
	require.NotNil(t, got[1].LastGreetedAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetIdentity_NotFound(t *testing.T) {
	store, mock := newMockStore(t)
	id := uuid.New()

	mock.ExpectQuery(`SELECT .* FROM identities WHERE id = \$1`).
		WithArgs(id).
		WillReturnError(pgx.ErrNoRows)

	got, err := store.GetIdentity(context.Background(), id)
	require.NoError(t, err)
	assert.Nil(t, got)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateIdentity(t *testing.T) {
	now := time.Now()
	id := uuid.New()
	name := "Grace"

	t.Run("updates provided fields", func(t *testing.T) {
		store, mock := newMockStore(t)
		mock.ExpectQuery(`UPDATE identities SET`).
			WithArgs(id, &name, (*string)(nil), (*string)(nil), (*string)(nil)).
			WillReturnRows(pgxmock.NewRows(identityColumnNames).
				AddRow(id, name, "g@x", "1", "", "", "", now, now, (*time.Time)(nil)))

		got, err := store.UpdateIdentity(context.Background(), id, models.IdentityUpdate{Name: &name})
		require.NoError(t, err)
		assert.Equal(t, "Grace", got.Name)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("missing identity", func(t *testing.T) {
		store, mock := newMockStore(t)
		mock.ExpectQuery(`UPDATE identities SET`).WillReturnError(pgx.ErrNoRows)

		_, err := store.UpdateIdentity(context.Background(), id, models.IdentityUpdate{Name: &name})
		assert.ErrorIs(t, err, ErrNotFound)
	})
}

func TestDeleteIdentity(t *testing.T) {
	id := uuid.New()

	tests := []struct {
		name    string
		result  pgxmock.Result
		wantErr error
	}{
		{"deleted", pgxmock.NewResult("DELETE", 1), nil},
		{"not found", pgxmock.NewResult("DELETE", 0), ErrNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store, mock := newMockStore(t)
			mock.ExpectExec(`DELETE FROM identities WHERE id = \$1`).
				WithArgs(id).
				WillReturnResult(tt.result)

			err := store.DeleteIdentity(context.Background(), id)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			} else {
				assert.NoError(t, err)
			}
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestTouchLastGreeted(t *testing.T) {
	store, mock := newMockStore(t)
	id := uuid.New()
	at := time.Now()

	mock.ExpectExec(`UPDATE identities SET last_greeted_at = \$2 WHERE id = \$1`).
		WithArgs(id, at).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	require.NoError(t, store.TouchLastGreeted(context.Background(), id, at))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSearchIdentities(t *testing.T) {
	store, mock := newMockStore(t)
	now := time.Now()
	id := uuid.New()

	cols := append(append([]string{}, identityColumnNames...), "similarity")
	mock.ExpectQuery(`SELECT .* 1 - \(embedding <-> \$1\) AS similarity`).
		WithArgs(pgxmock.AnyArg(), 3).
		WillReturnRows(pgxmock.NewRows(cols).
			AddRow(id, "A", "a@x", "1", "", "", "", now, now, (*time.Time)(nil), 0.82))

	got, err := store.SearchIdentities(context.Background(), make(descriptor.Descriptor, descriptor.Length), 3)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, id, got[0].Identity.ID)
	assert.InDelta(t, 0.82, got[0].Similarity, 1e-9)
	assert.NoError(t, mock.ExpectationsWereMet())
}
