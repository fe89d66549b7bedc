package server

import (
	"embed"
	"io/fs"
	"net/http"
	"path"
	"strings"
)

//go:embed dashboards/*.json
var dashboardFS embed.FS

// Dashboards maps URL paths under /dashboards/ to the bundled Grafana
// dashboards.
func Dashboards() map[string][]byte {
	result := make(map[string][]byte)
	entries, err := fs.ReadDir(dashboardFS, "dashboards")
	if err != nil {
		return result
	}
	for _, entry := range entries {
		data, err := dashboardFS.ReadFile(path.Join("dashboards", entry.Name()))
		if err != nil {
			continue
		}
		name := strings.TrimSuffix(entry.Name(), ".json")
		result["/dashboards/smartmeter/"+name+".json"] = data
	}
	return result
}

// DashboardsHandler serves dashboard JSON from an in-memory map.
func DashboardsHandler(dashboards map[string][]byte) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path := r.URL.Path
		if data, ok := dashboards[path]; ok {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write(data)
			return
		}

		http.NotFound(w, r)
	})
}
