package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/sells-group/countrysync/internal/country"
	"github.com/sells-group/countrysync/internal/geospatial"
	"github.com/sells-group/countrysync/internal/model"
	"github.com/sells-group/countrysync/internal/store"
)

// maxBodyBytes caps a manual-add request body.
const maxBodyBytes = 1 << 20

type handler struct {
	svc    *country.Service
	syncer Syncer
}

func (h *handler) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *handler) list(w http.ResponseWriter, r *http.Request) {
	limit, err := intParam(r, "limit", country.DefaultListLimit)
	if err != nil {
		writeError(w, err)
		return
	}
	offset, err := intParam(r, "offset", 0)
	if err != nil {
		writeError(w, err)
		return
	}
	out, err := h.svc.List(r.Context(), limit, offset)
	if err != nil {
		writeError(w, err)
		return
	}
	if out == nil {
		out = []model.Country{}
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *handler) getByCode(w http.ResponseWriter, r *http.Request) {
	c, err := h.svc.FindByCode(r.Context(), chi.URLParam(r, "code"))
	if err != nil {
		writeError(w, err)
		return
	}
	if c == nil {
		writeErrorMessage(w, http.StatusNotFound, "country not found")
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (h *handler) search(w http.ResponseWriter, r *http.Request) {
	name := r.URL.Query().Get("name")
	if name == "" {
		writeError(w, &country.ValidationError{Field: "name", Reason: "is required"})
		return
	}
	c, err := h.svc.FindByName(r.Context(), name)
	if err != nil {
		writeError(w, err)
		return
	}
	if c == nil {
		writeErrorMessage(w, http.StatusNotFound, "country not found")
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (h *handler) nearby(r *http.Request) ([]geospatial.Result, error) {
	lat, err := floatParam(r, "lat", nil)
	if err != nil {
		return nil, err
	}
	lon, err := floatParam(r, "lon", nil)
	if err != nil {
		return nil, err
	}
	radius := country.DefaultNearbyRadius
	radius, err = floatParam(r, "radius_km", &radius)
	if err != nil {
		return nil, err
	}
	limit, err := intParam(r, "limit", country.DefaultNearbyLimit)
	if err != nil {
		return nil, err
	}
	return h.svc.Nearby(r.Context(), lat, lon, radius, limit)
}

func (h *handler) near(w http.ResponseWriter, r *http.Request) {
	results, err := h.nearby(r)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, results)
}

func (h *handler) nearGeoJSON(w http.ResponseWriter, r *http.Request) {
	results, err := h.nearby(r)
	if err != nil {
		writeError(w, err)
		return
	}
	body, err := json.Marshal(geospatial.FeatureCollection(results))
	if err != nil {
		writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/geo+json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}

func (h *handler) add(w http.ResponseWriter, r *http.Request) {
	var in model.CountryInput
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(&in); err != nil {
		writeErrorMessage(w, http.StatusBadRequest, "invalid request body")
		return
	}
	c, err := h.svc.AddManual(r.Context(), in)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, c)
}

func (h *handler) sync(w http.ResponseWriter, r *http.Request) {
	if h.syncer == nil {
		writeErrorMessage(w, http.StatusServiceUnavailable, "sync not configured")
		return
	}
	res, err := h.syncer.Run(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func intParam(r *http.Request, name string, def int) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, &country.ValidationError{Field: name, Reason: "must be an integer"}
	}
	return n, nil
}

// floatParam parses a float query parameter. A nil def makes it required.
func floatParam(r *http.Request, name string, def *float64) (float64, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		if def == nil {
			return 0, &country.ValidationError{Field: name, Reason: "is required"}
		}
		return *def, nil
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, &country.ValidationError{Field: name, Reason: "must be a number"}
	}
	return f, nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.L().Warn("api: encode response", zap.Error(err))
	}
}

func writeErrorMessage(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// writeError maps domain errors to status codes. Internal errors are logged
// and reported without detail.
func writeError(w http.ResponseWriter, err error) {
	var ve *country.ValidationError
	switch {
	case errors.As(err, &ve):
		writeErrorMessage(w, http.StatusBadRequest, ve.Error())
	case errors.Is(err, store.ErrDuplicateCode):
		writeErrorMessage(w, http.StatusConflict, "country code already exists")
	default:
		zap.L().Error("api: request failed", zap.Error(err))
		writeErrorMessage(w, http.StatusInternalServerError, "internal error")
	}
}
