package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/matryer/is"

	"github.com/aquasmart/pond-monitoring/pkg/types"
)

func TestPonds(t *testing.T) {
	is := is.New(t)

	s := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		is.Equal(r.URL.Path, "/api/ponds")
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`[{"id":1,"name":"Pond A","location":"Sector 7"}]`))
	}))
	defer s.Close()

	ponds, err := New(s.URL).Ponds(context.Background())
	is.NoErr(err)
	is.Equal(len(ponds), 1)
	is.Equal(ponds[0].Name, "Pond A")
}

func TestUnknownPondIsNotFound(t *testing.T) {
	is := is.New(t)

	s := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer s.Close()

	_, err := New(s.URL).LatestReading(context.Background(), 9)
	is.True(errors.Is(err, ErrNotFound))
}

func TestLoginSetsBearerToken(t *testing.T) {
	is := is.New(t)

	s := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/api/auth/login":
			w.Write([]byte(`{"message":"Login successful","token":"abc"}`))
		case "/api/alarms":
			is.Equal(r.Header.Get("Authorization"), "Bearer abc")
			is.Equal(r.URL.Query().Get("active"), "true")
			w.Write([]byte(`[]`))
		}
	}))
	defer s.Close()

	ctx := context.Background()
	c := New(s.URL)

	is.NoErr(c.Login(ctx, "r@example.org", "secret"))

	_, err := c.Alarms(ctx, true)
	is.NoErr(err)
}

func TestWatchReadingsSkipsRepeatedReadings(t *testing.T) {
	is := is.New(t)

	var calls atomic.Int32
	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	s := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := calls.Add(1)

		// every reading is served twice
		r0 := types.EstimatedReading{}
		r0.ID = uint((n + 1) / 2)
		r0.Timestamp = base.Add(time.Duration((n+1)/2) * time.Minute)

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(r0)
	}))
	defer s.Close()

	received := make(chan types.EstimatedReading, 10)

	stop := New(s.URL).WatchReadings(context.Background(), 1, 10*time.Millisecond, func(r types.EstimatedReading) {
		received <- r
	})

	first := <-received
	second := <-received
	stop()

	is.Equal(first.ID, uint(1))
	is.Equal(second.ID, uint(2))
	is.True(second.Timestamp.After(first.Timestamp))
}

func TestFailedRequest(t *testing.T) {
	is := is.New(t)

	s := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		fmt.Fprint(w, `{"error":"Invalid reading"}`)
	}))
	defer s.Close()

	_, err := New(s.URL).AddReading(context.Background(), types.ReadingRequest{PondID: types.NewNumber(1)})
	is.True(errors.Is(err, ErrRequestFailed))
}
