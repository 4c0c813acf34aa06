package handler

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/sync/errgroup"

	"github.com/bravo68web/tableidentity/internal/tablestore"
)

const readyTimeout = 2 * time.Second

// HealthHandler reports liveness
func HealthHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	}
}

// ReadyHandler reads one row from each named table concurrently. Any failed
// read makes the service unavailable; the body lists every table's state.
func ReadyHandler(client tablestore.Client, tables []string) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), readyTimeout)
		defer cancel()

		var mu sync.Mutex
		states := make(map[string]string, len(tables))
		g, gctx := errgroup.WithContext(ctx)
		for _, name := range tables {
			g.Go(func() error {
				_, err := client.Table(name).QuerySegment(gctx, tablestore.Query{Take: 1}, "")
				state := "ok"
				if err != nil {
					state = err.Error()
				}
				mu.Lock()
				states[name] = state
				mu.Unlock()
				return err
			})
		}

		if err := g.Wait(); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "message": err.Error(), "tables": states})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready", "tables": states})
	}
}
