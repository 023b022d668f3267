package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/sushant-115/idxtree/core/indexmanager"
)

// addMuxHandler wires the health, metrics and read-only admin endpoints.
func addMuxHandler(mux *http.ServeMux, index indexmanager.RecordIndex, metrics http.Handler) {
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})

	mux.Handle("/metrics", metrics)

	mux.HandleFunc("/indexes", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			w.Header().Set("Allow", http.MethodGet)
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		infos, err := index.ListIndexes(r.Context())
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		writeJSON(w, infos)
	})

	// /indexes/{name}/dump returns the diagnostic rendering of one index.
	mux.HandleFunc("/indexes/", func(w http.ResponseWriter, r *http.Request) {
		name, ok := strings.CutSuffix(strings.TrimPrefix(r.URL.Path, "/indexes/"), "/dump")
		if !ok || name == "" {
			http.NotFound(w, r)
			return
		}
		// Rendered into a buffer so a failure part way through still gets a
		// clean error status.
		var buf bytes.Buffer
		if err := index.DumpIndex(r.Context(), name, &buf); err != nil {
			code := http.StatusInternalServerError
			if errors.Is(err, indexmanager.ErrIndexNotFound) {
				code = http.StatusNotFound
			}
			http.Error(w, err.Error(), code)
			return
		}
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = w.Write(buf.Bytes())
	})
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
