package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"recipescan/internal/domain"
	"recipescan/internal/ingest"
	"recipescan/internal/pipeline"
	"recipescan/internal/storage"
)

// handleUpload accepts a multipart form with a single "file" field, runs the
// ingestion workflow and returns the persisted record.
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	// One megabyte of headroom over the upload limit for multipart framing.
	r.Body = http.MaxBytesReader(w, r.Body, s.config.MaxUploadBytes()+1<<20)

	file, header, err := r.FormFile("file")
	if err != nil {
		s.respondWithError(w, http.StatusBadRequest, "No file selected")
		return
	}
	defer file.Close()

	if header.Filename == "" {
		s.respondWithError(w, http.StatusBadRequest, "No file selected")
		return
	}

	data, err := io.ReadAll(file)
	if err != nil {
		s.respondWithError(w, http.StatusBadRequest, "Could not read uploaded file")
		return
	}

	rec, err := s.ingestor.Ingest(r.Context(), domain.Upload{Filename: header.Filename, Data: data})
	if err != nil {
		s.respondIngestError(w, err)
		return
	}

	s.respondWithJSON(w, http.StatusCreated, rec)
}

func (s *Server) respondIngestError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ingest.ErrDisallowedType):
		s.respondWithError(w, http.StatusUnsupportedMediaType, "File type not allowed")
	case errors.Is(err, ingest.ErrTooLarge):
		s.respondWithError(w, http.StatusRequestEntityTooLarge, "File exceeds the size limit")
	case errors.Is(err, ingest.ErrDuplicate):
		s.respondWithError(w, http.StatusConflict, "This image was already ingested")
	default:
		switch pipeline.FailedStage(err) {
		case pipeline.StagePreprocess, pipeline.StageRecognize:
			s.respondWithError(w, http.StatusUnprocessableEntity, "No text could be recognized in the image")
		case pipeline.StageStructure:
			s.respondWithError(w, http.StatusUnprocessableEntity, "No recipe information could be extracted from the image")
		default:
			s.logger.Error("ingestion failed", zap.Error(err))
			s.respondWithError(w, http.StatusInternalServerError, "Could not process the upload")
		}
	}
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	summaries, err := s.recipes.ListRecipes(r.Context())
	if err != nil {
		s.logger.Error("failed to list recipes", zap.Error(err))
		s.respondWithError(w, http.StatusInternalServerError, "Could not list recipes")
		return
	}
	s.respondWithJSON(w, http.StatusOK, summaries)
}

func (s *Server) handleDetail(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		s.respondWithError(w, http.StatusBadRequest, "Invalid recipe id")
		return
	}

	rec, err := s.recipes.GetRecipe(r.Context(), id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			s.respondWithError(w, http.StatusNotFound, "Recipe not found")
			return
		}
		s.logger.Error("failed to get recipe", zap.Int64("id", id), zap.Error(err))
		s.respondWithError(w, http.StatusInternalServerError, "Could not retrieve recipe")
		return
	}
	s.respondWithJSON(w, http.StatusOK, rec)
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("q")
	if query == "" {
		s.respondWithError(w, http.StatusBadRequest, "Query parameter 'q' is required")
		return
	}

	summaries, err := s.recipes.SearchRecipes(r.Context(), query)
	if err != nil {
		s.logger.Error("failed to search recipes", zap.String("query", query), zap.Error(err))
		s.respondWithError(w, http.StatusInternalServerError, "Could not search recipes")
		return
	}
	s.respondWithJSON(w, http.StatusOK, summaries)
}

func (s *Server) handleHealthCheck(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	healthStatus := make(map[string]string)

	if err := s.recipes.Ping(ctx); err != nil {
		healthStatus["postgres"] = "unhealthy"
		s.logger.Error("health check failed for postgres", zap.Error(err))
	} else {
		healthStatus["postgres"] = "healthy"
	}

	if s.cache != nil {
		if err := s.cache.Ping(ctx); err != nil {
			healthStatus["redis"] = "unhealthy"
			s.logger.Error("health check failed for redis", zap.Error(err))
		} else {
			healthStatus["redis"] = "healthy"
		}
	}

	for _, status := range healthStatus {
		if status != "healthy" {
			s.respondWithJSON(w, http.StatusServiceUnavailable, healthStatus)
			return
		}
	}
	s.respondWithJSON(w, http.StatusOK, healthStatus)
}

// --- Helper Functions ---

func (s *Server) respondWithError(w http.ResponseWriter, code int, message string) {
	s.respondWithJSON(w, code, map[string]string{"error": message})
}

func (s *Server) respondWithJSON(w http.ResponseWriter, code int, payload interface{}) {
	response, _ := json.Marshal(payload)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	w.Write(response)
}
