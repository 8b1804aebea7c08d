package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/envault/envault/pkg/response"
)

// Health returns a simple status payload useful for readiness checks.
// When a database handle is supplied the check pings it.
func Health(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		status := "ok"

		if db != nil {
			if sqlDB, err := db.DB(); err != nil || sqlDB.PingContext(requestContext(c)) != nil {
				status = "degraded"
			}
		}

		if status != "ok" {
			response.Success(c, http.StatusServiceUnavailable, gin.H{"status": status})
			return
		}
		response.Success(c, http.StatusOK, gin.H{"status": status})
	}
}
