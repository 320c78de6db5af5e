package config

import (
	"encoding/json"
	"log/slog"
	"net/http"
)

// ConfigHandler serves the runtime part of cfile as JSON. The file is read
// on every request so the answer always matches what a reload would apply.
func ConfigHandler(cfile string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		conf, err := ReadConfig(cfile)
		if err != nil {
			slog.Error("Failed to read config file for API", "error", err)
			http.Error(w, "Failed to read configuration", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(conf.Runtime()); err != nil {
			slog.Error("Failed to encode runtime config to JSON", "error", err)
		}
	}
}
