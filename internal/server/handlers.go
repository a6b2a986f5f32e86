package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"edfhub/internal/core"
	"edfhub/internal/edf"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorDTO{Error: msg})
}

func statusForErr(err error) int {
	switch {
	case errors.Is(err, core.ErrPathForbidden):
		return http.StatusForbidden
	case errors.Is(err, edf.ErrFileNotFound):
		return http.StatusNotFound
	case errors.Is(err, edf.ErrCorruptHeader):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

// handleInfo serves GET /edf/info?file_path&chunk_size_seconds.
func (s *Server) handleInfo(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Query().Get("file_path")
	if path == "" {
		writeError(w, http.StatusBadRequest, "file_path is required")
		return
	}

	meta, err := s.core.GetMetadata(path)
	if err != nil {
		writeError(w, statusForErr(err), err.Error())
		return
	}

	dto := newFileMetadataDTO(meta)
	chunkSizeSeconds, _ := strconv.ParseFloat(r.URL.Query().Get("chunk_size_seconds"), 64)
	writeJSON(w, http.StatusOK, struct {
		fileMetadataDTO
		ChunkSizeSeconds float64 `json:"chunk_size_seconds,omitempty"`
	}{dto, chunkSizeSeconds})
}

// handleData serves GET /edf/data?file_path&chunk_start&chunk_size&channels?&preprocessing_options?.
func (s *Server) handleData(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	path := q.Get("file_path")
	if path == "" {
		writeError(w, http.StatusBadRequest, "file_path is required")
		return
	}
	chunkStart, err := strconv.ParseInt(q.Get("chunk_start"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "chunk_start must be an integer")
		return
	}
	chunkSize, err := strconv.ParseInt(q.Get("chunk_size"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "chunk_size must be an integer")
		return
	}

	opts, err := parsePreprocessingOptions(q.Get("preprocessing_options"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var channels []string
	if raw := q.Get("channels"); raw != "" {
		channels = strings.Split(raw, ",")
	}

	chunk, _, err := s.core.ReadChunk(path, chunkStart, chunkSize, opts)
	if err != nil {
		writeError(w, statusForErr(err), err.Error())
		return
	}

	writeJSON(w, http.StatusOK, newChunkDTO(chunk, channels))
}

// handleCacheStats serves GET /edf/cache/stats.
func (s *Server) handleCacheStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.core.Orchestrator.Stats())
}

// handleCacheCheck serves GET /edf/cache/check?file_path&chunk_start&chunk_size.
func (s *Server) handleCacheCheck(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	path := q.Get("file_path")
	chunkStart, _ := strconv.ParseInt(q.Get("chunk_start"), 10, 64)
	chunkSize, _ := strconv.ParseInt(q.Get("chunk_size"), 10, 64)

	if !s.core.Config.IsAllowedPath(path) {
		writeError(w, http.StatusForbidden, core.ErrPathForbidden.Error())
		return
	}

	writeJSON(w, http.StatusOK, struct {
		Cached bool `json:"cached"`
	}{s.core.Orchestrator.CheckCached(path, chunkStart, chunkSize)})
}

// handleCacheClear serves POST /edf/cache/clear?file_path?. With no
// file_path, every cache tier is cleared; this is idempotent either way.
func (s *Server) handleCacheClear(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Query().Get("file_path")
	if path == "" {
		s.core.Orchestrator.ClearAll()
	} else {
		if !s.core.Config.IsAllowedPath(path) {
			writeError(w, http.StatusForbidden, core.ErrPathForbidden.Error())
			return
		}
		s.core.Orchestrator.Invalidate(path)
	}
	writeJSON(w, http.StatusOK, struct {
		Cleared bool `json:"cleared"`
	}{true})
}

// handleCacheWarmup serves POST /edf/cache/warmup?file_path. Idempotent:
// repeated warmups of an already-cached file are cache hits.
func (s *Server) handleCacheWarmup(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Query().Get("file_path")
	if path == "" {
		writeError(w, http.StatusBadRequest, "file_path is required")
		return
	}
	meta, err := s.core.GetMetadata(path)
	if err != nil {
		writeError(w, statusForErr(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, newFileMetadataDTO(meta))
}

// handleDefaultChannels serves GET /edf/default_channels?file_path&max_channels.
func (s *Server) handleDefaultChannels(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	path := q.Get("file_path")
	if path == "" {
		writeError(w, http.StatusBadRequest, "file_path is required")
		return
	}
	if !s.core.Config.IsAllowedPath(path) {
		writeError(w, http.StatusForbidden, core.ErrPathForbidden.Error())
		return
	}
	maxChannels, err := strconv.Atoi(q.Get("max_channels"))
	if err != nil || maxChannels <= 0 {
		maxChannels = 5
	}

	channels := s.core.Channels.SelectDefaultChannels(path, maxChannels, 0, 0)
	writeJSON(w, http.StatusOK, struct {
		Channels []string `json:"channels"`
	}{channels})
}

// ddaRequestDTO is the POST /dda request body.
type ddaRequestDTO struct {
	FilePath             string                  `json:"file_path"`
	Channels             []string                `json:"channels,omitempty"`
	PreprocessingOptions preprocessingOptionsDTO `json:"preprocessing_options,omitempty"`
	CPUTime              bool                    `json:"cpu_time,omitempty"`
}

// handleDDARun serves POST /dda. A malformed body or a missing file_path is
// answered with 400. Past that the run never raises across the HTTP
// boundary: the runner's own ErrorKind field distinguishes success from
// every failure mode, so the handler responds 200 with a DDAResult body.
func (s *Server) handleDDARun(w http.ResponseWriter, r *http.Request) {
	var req ddaRequestDTO
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if req.FilePath == "" {
		writeError(w, http.StatusBadRequest, "file_path is required")
		return
	}

	result := s.core.RunDDA(r.Context(), req.FilePath, req.Channels, req.PreprocessingOptions.toOptions(), req.CPUTime)
	writeJSON(w, http.StatusOK, ddaResultDTO{
		FilePath:     result.FilePath,
		Q:            result.Q,
		ErrorKind:    result.Error,
		ErrorMessage: result.ErrorMessage,
		Metadata:     result.Metadata,
	})
}

// ddaVariant describes one statically enumerated DDA algorithmic variant.
type ddaVariant struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

var ddaVariants = []ddaVariant{
	{Name: "single_timeseries", Description: "Single-channel delay differential analysis over the fixed parameter set"},
	{Name: "cross_timeseries", Description: "Pairwise cross-channel DDA using the same fixed model order"},
}

// handleDDAVariants serves GET /dda/variants.
func (s *Server) handleDDAVariants(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, ddaVariants)
}

// handleDDAHistory serves GET/POST /dda/history[/:id], delegating to the
// generic keyed side-store; the EDF core has no opinion on this data's
// shape.
func (s *Server) handleDDAHistory(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimPrefix(r.URL.Path, "/dda/history")
	id = strings.Trim(id, "/")

	switch r.Method {
	case http.MethodGet:
		if id == "" {
			userID := r.URL.Query().Get("user_id")
			ids, err := s.core.History.List(r.Context(), userID)
			if err != nil {
				writeError(w, http.StatusInternalServerError, err.Error())
				return
			}
			writeJSON(w, http.StatusOK, struct {
				IDs []string `json:"ids"`
			}{ids})
			return
		}
		entry, ok, err := s.core.History.Get(r.Context(), id)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		if !ok {
			writeError(w, http.StatusNotFound, "no history entry for id "+id)
			return
		}
		writeJSON(w, http.StatusOK, entry)

	case http.MethodPost:
		writeError(w, http.StatusMethodNotAllowed, "history entries are written by the DDA run pipeline, not directly")

	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}
