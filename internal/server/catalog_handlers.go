package server

import (
	"log"
	"net/http"
	"strconv"
)

func (s *Server) handleSearchAuthors(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("q")
	if query == "" {
		writeError(w, http.StatusBadRequest, "Query parameter 'q' is required")
		return
	}

	result, err := s.Catalog.SearchAuthors(r.Context(), query)
	if err != nil {
		log.Printf("catalog: author search failed: %v", err)
		writeError(w, http.StatusInternalServerError, "Failed to search authors")
		return
	}

	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleAuthorBooks(w http.ResponseWriter, r *http.Request) {
	authorKey := r.URL.Query().Get("authorKey")
	if authorKey == "" {
		writeError(w, http.StatusBadRequest, "Query parameter 'authorKey' is required")
		return
	}

	result, err := s.Catalog.AuthorWorks(r.Context(), authorKey)
	if err != nil {
		log.Printf("catalog: author works failed: %v", err)
		writeError(w, http.StatusInternalServerError, "Failed to fetch author books")
		return
	}

	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleReverseGeocode(w http.ResponseWriter, r *http.Request) {
	lat, latErr := strconv.ParseFloat(r.URL.Query().Get("lat"), 64)
	lon, lonErr := strconv.ParseFloat(r.URL.Query().Get("lon"), 64)
	if latErr != nil || lonErr != nil {
		writeError(w, http.StatusBadRequest, "Query parameters 'lat' and 'lon' are required")
		return
	}
	if lat < -90 || lat > 90 || lon < -180 || lon > 180 {
		writeError(w, http.StatusBadRequest, "Coordinates out of range")
		return
	}

	place, err := s.Geo.Reverse(r.Context(), lat, lon)
	if err != nil {
		log.Printf("geo: reverse geocode failed: %v", err)
		writeError(w, http.StatusInternalServerError, "Failed to resolve location")
		return
	}

	writeJSON(w, http.StatusOK, place)
}
