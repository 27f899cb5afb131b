package server

import (
	"net/http"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/newsflow-io/newsflow/dedup"
	"github.com/newsflow-io/newsflow/eventbus"
	"github.com/newsflow-io/newsflow/gateway"
	"github.com/newsflow-io/newsflow/store"
)

// NewRouter builds the read-only admin surface: liveness of the external
// store and a snapshot of pipeline state. The subscriber-facing retrieval
// path lives in a separate service and is intentionally absent here.
func NewRouter(st store.Store, bus *eventbus.Bus, gw *gateway.Gateway, deduplicator *dedup.Deduplicator) *gin.Engine {
	router := gin.Default()
	router.Use(cors.Default())

	router.GET("/healthz", func(c *gin.Context) {
		if err := st.Ping(); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "store unreachable"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	router.GET("/status", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"active_connections": gw.ActiveConnections(),
			"dedup_window":       deduplicator.Len(),
			"subscribers": gin.H{
				eventbus.TopicNewPost:      bus.SubscriberCount(eventbus.TopicNewPost),
				eventbus.TopicApprovedPost: bus.SubscriberCount(eventbus.TopicApprovedPost),
			},
		})
	})

	return router
}
