package server

import (
	"net/http"
	"time"

	"github.com/wb-go/wbf/ginext"
)

// New creates the backend HTTP server. Write timeout is generous enough for
// artifact uploads.
func New(addr string, router *ginext.Engine) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
	}
}
