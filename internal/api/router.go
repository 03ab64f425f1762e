package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

func NewRouter(runs *RunsController, orders *OrdersController, log *zap.Logger) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), RequestLogger(log))

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	v1 := router.Group("/v1")

	v1.GET("/health-runs", runs.ListRuns)
	v1.POST("/health-runs", runs.CreateRun)
	v1.POST("/health-runs/trigger", runs.TriggerRun)
	v1.GET("/health-runs/:runID", runs.GetRun)
	v1.POST("/health-runs/:runID/results", runs.RecordResult)
	v1.GET("/health-runs/:runID/results", runs.ListResults)
	v1.POST("/health-runs/:runID/finalize", runs.FinalizeRun)
	v1.GET("/health-checks/:checkID", runs.GetResult)
	v1.PATCH("/health-checks/:checkID", runs.CompleteResult)

	v1.POST("/orders/validate", orders.ValidateOrder)
	v1.POST("/orders/:orderID/followups", orders.AddFollowup)
	v1.GET("/orders/:orderID/report", orders.GetReport)
	v1.POST("/orders/:orderID/final-qa", orders.FinalQA)
	v1.POST("/orders/:orderID/conflicts", orders.ResolveConflicts)

	return router
}
