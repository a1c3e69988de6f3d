package handler

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
)

// Version is reported by the health endpoint.
const Version = "1.0.0"

type healthResp struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
	Version   string    `json:"version"`
}

// Health is used by load balancers and monitoring to check the service is up.
func Health(c echo.Context) error {
	return c.JSON(http.StatusOK, healthResp{Status: "ok", Timestamp: time.Now().UTC(), Version: Version})
}
