package router

import (
	"github.com/labstack/echo/v4"

	"github.com/Aeroer-Live/Note.Lab/internal/handler"
)

// RegisterCategories registers category management under /api/categories.
func RegisterCategories(e *echo.Echo, h *handler.CategoriesHandler, g Guard) {
	mws := append([]echo.MiddlewareFunc{g.generalLimit()}, g.authed()...)
	grp := e.Group("/api/categories", mws...)

	grp.GET("", h.List, g.Cache.Middleware())
	grp.POST("", h.Create)
	grp.POST("/assign", h.Assign)
	grp.PUT("/:id", h.Update)
	grp.DELETE("/:id", h.Delete)
}
