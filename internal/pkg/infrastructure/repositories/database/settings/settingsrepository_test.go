package settings

import (
	"context"
	"errors"
	"testing"

	. "github.com/aquasmart/pond-monitoring/internal/pkg/infrastructure/repositories/database"
	"github.com/matryer/is"
	"github.com/rs/zerolog"
)

func TestSaveAndGetSettings(t *testing.T) {
	is := is.New(t)
	ctx := context.Background()

	r, err := NewSettingsRepository(NewSQLiteConnector(zerolog.Logger{}, InMemoryDSN(t.Name())))
	is.NoErr(err)

	_, err = r.Get(ctx, 1)
	is.True(errors.Is(err, ErrSettingsNotFound))

	is.NoErr(r.Save(ctx, &PondSettings{PondID: 1, Document: `{"a":1}`}))
	is.NoErr(r.Save(ctx, &PondSettings{PondID: 1, Document: `{"a":2}`}))

	s, err := r.Get(ctx, 1)
	is.NoErr(err)
	is.Equal(s.Document, `{"a":2}`)

	is.True(r.Save(ctx, &PondSettings{}) != nil)
}
