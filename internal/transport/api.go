package transport

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/RecM/recm/internal/codec"
	"github.com/RecM/recm/internal/engine"
	"github.com/RecM/recm/internal/storage"
	"github.com/RecM/recm/pkg/core"
	"github.com/RecM/recm/pkg/streaming"
)

const defaultHistoryLimit = 50

func (s *Server) registerAPI(root *mux.Router) {
	root.HandleFunc("/healthz", s.apiHealth).Methods(http.MethodGet)

	r := root.PathPrefix("/").Subrouter()
	r.Use(s.requireSecret)
	r.HandleFunc("/recordings", s.apiList).Methods(http.MethodGet)
	r.HandleFunc("/recordings", s.apiImport).Methods(http.MethodPost)
	r.HandleFunc("/recordings/{name}/{model}", s.apiGet).Methods(http.MethodGet)
	r.HandleFunc("/recordings/{name}/{model}", s.apiDelete).Methods(http.MethodDelete)
	r.HandleFunc("/vanilla", s.apiVanilla).Methods(http.MethodGet)
	r.HandleFunc("/history/saves", s.apiSaves).Methods(http.MethodGet)
	r.HandleFunc("/history/playbacks", s.apiPlaybacks).Methods(http.MethodGet)
}

func (s *Server) requireSecret(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.authorized(r) {
			http.Error(w, "invalid secret", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	code := codeOf(err)
	switch code {
	case streaming.CodeNotFound:
		status = http.StatusNotFound
	case streaming.CodeAlreadyExists:
		status = http.StatusConflict
	case streaming.CodeInvalidName, streaming.CodeEmpty, streaming.CodeBadRequest:
		status = http.StatusBadRequest
	case streaming.CodeNotAllowed:
		status = http.StatusForbidden
	}
	writeJSON(w, status, map[string]string{"code": code, "message": err.Error()})
}

func keyOf(r *http.Request) core.RecordingKey {
	vars := mux.Vars(r)
	return core.RecordingKey{Name: vars["name"], Model: vars["model"]}
}

func limitOf(r *http.Request) int {
	if n, err := strconv.Atoi(r.URL.Query().Get("limit")); err == nil && n > 0 {
		return n
	}
	return defaultHistoryLimit
}

func (s *Server) apiHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "clients": s.Peers()})
}

func (s *Server) apiList(w http.ResponseWriter, r *http.Request) {
	listings, err := s.deps.Store.List(r.Context())
	if listings == nil {
		listings = []core.Listing{}
	}
	if err != nil {
		// partial results are still useful to an operator
		s.deps.Logger.Warn("Listing incomplete", "error", err)
		w.Header().Set("X-Recm-Warning", err.Error())
	}
	writeJSON(w, http.StatusOK, listings)
}

// apiGet returns the current revision's listing, or its XML document with
// ?format=xml.
func (s *Server) apiGet(w http.ResponseWriter, r *http.Request) {
	if s.deps.Catalog == nil {
		http.Error(w, "catalog not available", http.StatusNotImplemented)
		return
	}
	listing, _, err := s.deps.Catalog.Get(keyOf(r))
	if err != nil {
		writeError(w, err)
		return
	}
	if r.URL.Query().Get("format") != "xml" {
		writeJSON(w, http.StatusOK, listing)
		return
	}

	data, err := s.deps.Catalog.ReadRevision(listing.Recording)
	if err != nil {
		writeError(w, err)
		return
	}
	doc, err := codec.Decompile(data)
	if err != nil {
		writeError(w, err)
		return
	}
	out, err := doc.XML()
	if err != nil {
		writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/xml")
	_, _ = w.Write(out)
}

// apiImport stores an XML frame document sent as a multipart form with
// name, model and optional overwrite fields.
func (s *Server) apiImport(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxTransferBytes)
	file, _, err := r.FormFile("file")
	if err != nil {
		writeError(w, fmt.Errorf("%w: %v", errBadRequest, err))
		return
	}
	defer file.Close()
	data, err := io.ReadAll(file)
	if err != nil {
		writeError(w, fmt.Errorf("%w: %v", errBadRequest, err))
		return
	}

	overwrite, _ := strconv.ParseBool(r.FormValue("overwrite"))
	rec, err := s.saveDocument(r.Context(), data, engine.SaveRequest{
		Key:       core.RecordingKey{Name: r.FormValue("name"), Model: r.FormValue("model")},
		Overwrite: overwrite,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, rec)
}

func (s *Server) apiDelete(w http.ResponseWriter, r *http.Request) {
	n, err := s.deps.Store.Delete(r.Context(), keyOf(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, streaming.DeleteResult{Removed: n})
}

func (s *Server) apiVanilla(w http.ResponseWriter, r *http.Request) {
	groups, err := s.deps.Store.Vanilla(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, groups)
}

func (s *Server) history(w http.ResponseWriter) (storage.Queryable, bool) {
	if s.deps.History == nil {
		http.Error(w, "history not configured", http.StatusNotImplemented)
		return nil, false
	}
	q, ok := storage.AsQueryable(s.deps.History)
	if !ok {
		http.Error(w, "history backend is write-only", http.StatusNotImplemented)
		return nil, false
	}
	return q, true
}

func (s *Server) apiSaves(w http.ResponseWriter, r *http.Request) {
	q, ok := s.history(w)
	if !ok {
		return
	}
	saves, err := q.RecentSaves(limitOf(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, saves)
}

func (s *Server) apiPlaybacks(w http.ResponseWriter, r *http.Request) {
	q, ok := s.history(w)
	if !ok {
		return
	}
	runs, err := q.RecentPlaybacks(limitOf(r))
	if err != nil {
		writeError(w, err)
		return
	}
	out := make([]streaming.PlaybackRunPayload, len(runs))
	for i := range runs {
		out[i] = streaming.NewPlaybackRunPayload(&runs[i])
	}
	writeJSON(w, http.StatusOK, out)
}
