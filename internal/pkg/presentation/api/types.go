package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"mime"
	"mime/multipart"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/aquasmart/pond-monitoring/pkg/types"
)

var errBadRequest = errors.New("bad request")

type errorResponse struct {
	Error string `json:"error"`
}

type messageResponse struct {
	Message string `json:"message"`
	Pond    any    `json:"pond,omitempty"`
}

type warningResponse struct {
	Warning string `json:"warning"`
}

type toggleRequest struct {
	IsOn *bool `json:"isOn"`
}

type modeRequest struct {
	Mode string `json:"mode"`
}

type cameraLogRequest struct {
	PondID      types.Number `json:"pondId"`
	URL         string       `json:"url"`
	Description string       `json:"description"`
}

type syncRequest struct {
	Logs []types.HealthScan `json:"logs"`
}

type resetPasswordRequest struct {
	Token       string `json:"token"`
	NewPassword string `json:"newPassword"`
}

type changePasswordRequest struct {
	CurrentPassword string `json:"currentPassword"`
	NewPassword     string `json:"newPassword"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	b, err := json.Marshal(v)
	if err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	w.Header().Add("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(b)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

func uintParam(r *http.Request, name string) (uint, error) {
	v, err := strconv.ParseUint(chi.URLParam(r, name), 10, 0)
	if err != nil || v == 0 {
		return 0, fmt.Errorf("%w: %s must be a positive integer", errBadRequest, name)
	}
	return uint(v), nil
}

func intQuery(r *http.Request, name string, def, maxValue int) (int, error) {
	s := r.URL.Query().Get(name)
	if s == "" {
		return def, nil
	}

	v, err := strconv.Atoi(s)
	if err != nil || v < 1 {
		return 0, fmt.Errorf("%w: %s must be a positive integer", errBadRequest, name)
	}

	return min(v, maxValue), nil
}

func isMultipart(r *http.Request) bool {
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	return mediaType == "multipart/form-data"
}

// malformedBody marks a body that could not be parsed as a bad request. Bodies
// over the size limit keep their own error.
func malformedBody(err error) error {
	var maxBytesErr *http.MaxBytesError
	if errors.As(err, &maxBytesErr) || errors.Is(err, multipart.ErrMessageTooLarge) {
		return err
	}
	return fmt.Errorf("%w: %s", errBadRequest, err.Error())
}

// formValues reads the named fields from a multipart, urlencoded or JSON body.
func formValues(r *http.Request, maxMemory int64, names ...string) (map[string]string, error) {
	values := map[string]string{}

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))

	switch mediaType {
	case "multipart/form-data":
		if err := r.ParseMultipartForm(maxMemory); err != nil {
			return nil, malformedBody(err)
		}
		for _, n := range names {
			values[n] = r.FormValue(n)
		}
	case "application/x-www-form-urlencoded":
		if err := r.ParseForm(); err != nil {
			return nil, malformedBody(err)
		}
		for _, n := range names {
			values[n] = r.PostFormValue(n)
		}
	default:
		body := map[string]any{}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			return nil, fmt.Errorf("%w: %s", errBadRequest, err.Error())
		}
		for _, n := range names {
			switch v := body[n].(type) {
			case string:
				values[n] = v
			case float64:
				values[n] = strconv.FormatFloat(v, 'f', -1, 64)
			}
		}
	}

	return values, nil
}

// formFile returns the named file of a multipart request, or nil if there is none.
func formFile(r *http.Request, name string) (multipart.File, *multipart.FileHeader, error) {
	if r.MultipartForm == nil {
		return nil, nil, nil
	}

	f, h, err := r.FormFile(name)
	if errors.Is(err, http.ErrMissingFile) {
		return nil, nil, nil
	}

	return f, h, err
}
