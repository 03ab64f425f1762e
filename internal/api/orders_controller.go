package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/forgefleet/fleetops/internal/domain/order"
	"github.com/forgefleet/fleetops/internal/services/opsflow"
)

// OrdersController exposes the delivery-ops surface of an order.
type OrdersController struct {
	engine *opsflow.Engine
	log    *zap.Logger
}

func NewOrdersController(engine *opsflow.Engine, log *zap.Logger) *OrdersController {
	return &OrdersController{engine: engine, log: log}
}

func (ct *OrdersController) AddFollowup(c *gin.Context) {
	var req followupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	f := &order.Followup{
		OrderID:  c.Param("orderID"),
		Type:     order.FollowupType(req.Type),
		Impact:   req.Impact,
		FilePath: req.FilePath,
		Message:  req.Message,
	}
	if err := ct.engine.AddFollowup(c.Request.Context(), f); err != nil {
		writeErr(c, ct.log, err)
		return
	}
	c.JSON(http.StatusCreated, toFollowupDTO(f))
}

func (ct *OrdersController) GetReport(c *gin.Context) {
	report, err := ct.engine.GenerateReport(c.Request.Context(), c.Param("orderID"))
	if err != nil {
		writeErr(c, ct.log, err)
		return
	}
	c.JSON(http.StatusOK, report)
}

func (ct *OrdersController) FinalQA(c *gin.Context) {
	res, err := ct.engine.FinalQA(c.Request.Context(), c.Param("orderID"))
	if err != nil {
		writeErr(c, ct.log, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (ct *OrdersController) ResolveConflicts(c *gin.Context) {
	var req conflictsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	err := ct.engine.ResolveConflicts(c.Request.Context(), c.Param("orderID"), req.Repo, req.Branch, req.Files)
	if err != nil {
		writeErr(c, ct.log, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"status": "issue_dispatched", "primaryFile": req.Files[0]})
}

func (ct *OrdersController) ValidateOrder(c *gin.Context) {
	var payload map[string]any
	if err := c.ShouldBindJSON(&payload); err != nil {
		badRequest(c, err)
		return
	}
	res := validateOrderStructure(payload)
	c.JSON(http.StatusOK, res)
}
