package handlers

import (
	"net/http"

	"github.com/gluk-w/claworc/remote-access/internal/database"
)

func HealthCheck(w http.ResponseWriter, r *http.Request) {
	dbStatus := "disconnected"
	if database.DB != nil {
		sqlDB, err := database.DB.DB()
		if err == nil {
			if err := sqlDB.Ping(); err == nil {
				dbStatus = "connected"
			}
		}
	}

	open := 0
	if Sessions != nil {
		open = Sessions.Count()
	}

	status := "healthy"
	if dbStatus != "connected" {
		status = "unhealthy"
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":        status,
		"database":      dbStatus,
		"open_sessions": open,
	})
}
