package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/forgefleet/fleetops/internal/domain/healthrun"
	"github.com/forgefleet/fleetops/internal/domain/order"
	"github.com/forgefleet/fleetops/internal/obs"
	"github.com/forgefleet/fleetops/internal/repository/postgres"
)

type errorResponse struct {
	Error string `json:"error"`
}

func writeErr(c *gin.Context, log *zap.Logger, err error) {
	switch {
	case errors.Is(err, healthrun.ErrValidation), errors.Is(err, order.ErrValidation):
		c.JSON(http.StatusBadRequest, errorResponse{Error: err.Error()})
	case errors.Is(err, postgres.ErrNotFound):
		c.JSON(http.StatusNotFound, errorResponse{Error: err.Error()})
	case errors.Is(err, healthrun.ErrInvalidState):
		c.JSON(http.StatusConflict, errorResponse{Error: err.Error()})
	default:
		obs.WithTrace(c.Request.Context(), log).Error("request failed",
			zap.String("path", c.FullPath()), zap.Error(err))
		c.JSON(http.StatusInternalServerError, errorResponse{Error: "internal error"})
	}
}

func badRequest(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, errorResponse{Error: err.Error()})
}
