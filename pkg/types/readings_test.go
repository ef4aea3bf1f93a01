package types

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/matryer/is"
)

func TestReadingRequestAcceptsNumericStrings(t *testing.T) {
	is := is.New(t)

	req := ReadingRequest{}
	err := json.Unmarshal([]byte(`{"pondId":"1","ph":"7.2","do":5.1,"temp":" 28 ","turbidity":30,"ammonia":"0.02"}`), &req)
	is.NoErr(err)

	r, err := req.ToReading(time.Now())
	is.NoErr(err)
	is.Equal(r.PondID, uint(1))
	is.Equal(r.PH, 7.2)
	is.Equal(r.Temperature, 28.0)
	is.Equal(r.Salinity, 0.0)
}

func TestReadingRequestRejectsGarbage(t *testing.T) {
	is := is.New(t)

	req := ReadingRequest{}
	err := json.Unmarshal([]byte(`{"pondId":1,"ph":"abc"}`), &req)
	is.True(errors.Is(err, ErrInvalidReading))

	err = json.Unmarshal([]byte(`{"pondId":1,"ph":"NaN","temp":1,"turbidity":1}`), &req)
	is.True(errors.Is(err, ErrInvalidReading))
}

func TestReadingRequestRequiresCoreMetrics(t *testing.T) {
	is := is.New(t)

	req := ReadingRequest{}
	is.NoErr(json.Unmarshal([]byte(`{"pondId":1,"ph":7,"turbidity":10}`), &req))

	_, err := req.ToReading(time.Now())
	is.True(errors.Is(err, ErrInvalidReading))

	req = ReadingRequest{}
	is.NoErr(json.Unmarshal([]byte(`{"pondId":1.5,"ph":7,"temp":20,"turbidity":10}`), &req))
	_, err = req.ToReading(time.Now())
	is.True(errors.Is(err, ErrInvalidReading))
}
