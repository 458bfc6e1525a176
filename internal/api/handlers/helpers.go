package handlers

import (
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/pratik-mahalle/costlens/internal/api/dto"
	"github.com/pratik-mahalle/costlens/internal/api/middleware"
	"github.com/pratik-mahalle/costlens/internal/pkg/errors"
	"github.com/pratik-mahalle/costlens/internal/pkg/utils"
	"github.com/pratik-mahalle/costlens/internal/pkg/validator"
)

// maxBodyBytes caps request bodies
const maxBodyBytes = 8 << 20

// requireUser extracts the authenticated user or writes a 401
func requireUser(w http.ResponseWriter, r *http.Request) (int64, bool) {
	userID, ok := middleware.GetUserID(r)
	if !ok || userID == 0 {
		utils.WriteError(w, errors.Unauthorized("Missing authentication"))
		return 0, false
	}
	return userID, true
}

// writeErr writes err as an AppError response
func writeErr(w http.ResponseWriter, err error, fallback string) {
	utils.WriteError(w, errors.As(err, fallback))
}

// decodeBody decodes and validates a JSON body. An empty body is accepted when optional is set.
func decodeBody(w http.ResponseWriter, r *http.Request, val *validator.Validator, dst interface{}, optional bool) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(dst); err != nil {
		if err == io.EOF && optional {
			return true
		}
		utils.WriteError(w, errors.BadRequest("Invalid request body"))
		return false
	}
	if verrs := val.Validate(dst); len(verrs) > 0 {
		utils.WriteError(w, errors.ValidationError("Validation failed", verrs))
		return false
	}
	return true
}

// queryInt parses an integer query parameter, returning def when absent
func queryInt(r *http.Request, key string, def int) (int, error) {
	v := r.URL.Query().Get(key)
	if v == "" {
		return def, nil
	}
	return strconv.Atoi(v)
}

// queryFloat parses a float query parameter, returning def when absent
func queryFloat(r *http.Request, key string, def float64) (float64, error) {
	v := r.URL.Query().Get(key)
	if v == "" {
		return def, nil
	}
	return strconv.ParseFloat(v, 64)
}

// queryBool parses a boolean query parameter, returning def when absent
func queryBool(r *http.Request, key string, def bool) (bool, error) {
	v := r.URL.Query().Get(key)
	if v == "" {
		return def, nil
	}
	return strconv.ParseBool(v)
}

// queryDate parses a calendar date query parameter; nil when absent
func queryDate(r *http.Request, key string) (*time.Time, error) {
	v := r.URL.Query().Get(key)
	if v == "" {
		return nil, nil
	}
	t, err := time.Parse(dto.DateLayout, v)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// dateRange resolves start_date/end_date, defaulting to the last days ending now
func dateRange(r *http.Request, now time.Time, days int) (time.Time, time.Time, error) {
	start, err := queryDate(r, "start_date")
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	end, err := queryDate(r, "end_date")
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	e := now.UTC()
	if end != nil {
		e = end.AddDate(0, 0, 1).Add(-time.Nanosecond)
	}
	s := e.AddDate(0, 0, -days)
	if start != nil {
		s = *start
	}
	return s, e, nil
}
