package router

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/wb-go/wbf/ginext"

	"github.com/aliskhannn/imgbatch/internal/api/handlers/quota"
	"github.com/aliskhannn/imgbatch/internal/api/handlers/storage"
	"github.com/aliskhannn/imgbatch/internal/api/handlers/usage"
	"github.com/aliskhannn/imgbatch/internal/api/respond"
	"github.com/aliskhannn/imgbatch/internal/middleware"
)

// Handlers groups the HTTP handlers served by the backend.
type Handlers struct {
	Quota   *quota.Handler
	Storage *storage.Handler
	Usage   *usage.Handler
	Metrics http.Handler
}

// Setup builds the engine. auth guards the account-scoped routes.
func Setup(h Handlers, auth gin.HandlerFunc) *ginext.Engine {
	r := ginext.New()

	r.Use(middleware.CORSMiddleware())
	r.Use(ginext.Logger())
	r.Use(ginext.Recovery())

	r.GET("/health", func(c *ginext.Context) {
		respond.OK(c, map[string]string{"status": "ok"})
	})
	if h.Metrics != nil {
		r.GET("/metrics", gin.WrapH(h.Metrics))
	}

	api := r.Group("/api")

	api.POST("/usage", h.Usage.Report) // usage collection, anonymous allowed

	private := api.Group("", auth)
	private.POST("/quota/admit", h.Quota.Admit)       // admit items against the daily limit
	private.GET("/account", h.Quota.Account)          // quota and storage usage
	private.POST("/storage/upload", h.Storage.Upload) // persist one artifact

	return r
}
