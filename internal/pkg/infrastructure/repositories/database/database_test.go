package database

import (
	"testing"

	"github.com/matryer/is"
	"github.com/rs/zerolog"
)

type marker struct {
	ID   uint
	Name string
}

func TestThatConnectorReturnsSameHandle(t *testing.T) {
	is := is.New(t)
	connect := NewSQLiteConnector(zerolog.Logger{}, InMemoryDSN(t.Name()))

	first, _, err := connect()
	is.NoErr(err)

	second, _, err := connect()
	is.NoErr(err)

	is.True(first == second)
}

func TestThatNamedInMemoryDatabasesAreSeparate(t *testing.T) {
	is := is.New(t)

	a, _, err := NewSQLiteConnector(zerolog.Logger{}, InMemoryDSN(t.Name()+"_a"))()
	is.NoErr(err)
	b, _, err := NewSQLiteConnector(zerolog.Logger{}, InMemoryDSN(t.Name()+"_b"))()
	is.NoErr(err)

	is.NoErr(a.AutoMigrate(&marker{}))
	is.NoErr(a.Create(&marker{Name: "pond"}).Error)

	is.True(a.Migrator().HasTable(&marker{}))
	is.True(!b.Migrator().HasTable(&marker{}))
}
