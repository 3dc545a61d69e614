package handlers

import (
	"net/http"
)

// Version is set at build time with -ldflags "-X .../internal/handlers.Version=...".
var Version = "dev"

// VersionInfo returns minimal build information.
func VersionInfo(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, "Version retrieved successfully", map[string]string{"version": Version})
}
