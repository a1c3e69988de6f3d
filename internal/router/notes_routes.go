package router

import (
	"github.com/labstack/echo/v4"

	"github.com/Aeroer-Live/Note.Lab/internal/handler"
)

// RegisterNotes registers the notes API under /api/notes.  All routes
// require a valid JWT and count against the general rate limit.
func RegisterNotes(e *echo.Echo, n *handler.NotesHandler, c *handler.CategoriesHandler, g Guard) {
	mws := append([]echo.MiddlewareFunc{g.generalLimit()}, g.authed()...)
	grp := e.Group("/api/notes", mws...)

	// Static segments win over /:id in Echo's router.
	grp.GET("/search", n.Search)
	grp.GET("/stats", n.Stats, g.Cache.Middleware())
	grp.POST("/bulk-update", n.BulkUpdate)

	grp.GET("", n.List)
	grp.POST("", n.Create)
	grp.GET("/:id", n.Get)
	grp.PUT("/:id", n.Update)
	grp.DELETE("/:id", n.Delete)
	grp.GET("/:id/categories", c.ForNote)
}
