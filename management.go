package webproxy

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
)

type cacheEntryInfo struct {
	Key  string `json:"key"`
	Size int    `json:"size"`
}

type cacheInfo struct {
	Count     int              `json:"count"`
	TotalSize int64            `json:"totalSize"`
	Entries   []cacheEntryInfo `json:"entries"`
}

// managementHandler exposes cache introspection over HTTP. It runs on
// its own listener and never touches the proxy request path.
func (p *Proxy) managementHandler() http.Handler {
	r := chi.NewRouter()
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})
	r.Get("/cache", func(w http.ResponseWriter, r *http.Request) {
		info := cacheInfo{Entries: []cacheEntryInfo{}}
		p.store.Keys(func(key string, size int) {
			info.Entries = append(info.Entries, cacheEntryInfo{Key: key, Size: size})
		})
		info.Count = p.store.Len()
		info.TotalSize = p.store.Size()
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(info); err != nil {
			p.log.Error().Err(err).Msg("Could not write cache info")
		}
	})
	r.Delete("/cache/*", func(w http.ResponseWriter, r *http.Request) {
		p.store.Purge(chi.URLParam(r, "*"))
		w.WriteHeader(http.StatusNoContent)
	})
	return r
}

func (p *Proxy) serveManagement() {
	p.log.Info().Str("addr", p.mgmtAddr).Msg("Management API listening")
	if err := http.ListenAndServe(p.mgmtAddr, p.managementHandler()); err != nil {
		p.log.Error().Err(err).Msg("Management server failed")
	}
}
