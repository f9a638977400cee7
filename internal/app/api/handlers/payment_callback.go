package handlers

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/adboard/adboard/internal/app/service/settlement"
	"github.com/adboard/adboard/pkg/logctx"
	"github.com/adboard/adboard/pkg/response"

	"go.uber.org/zap"
)

type CallbackHandler struct {
	settlement *settlement.Service
	log        *zap.SugaredLogger
}

func NewCallbackHandler(settlementSvc *settlement.Service, log *zap.SugaredLogger) *CallbackHandler {
	return &CallbackHandler{settlement: settlementSvc, log: log}
}

// Notify receives gateway settlement callbacks. A non-200 answer makes the
// gateway retry, so only verification and consistency failures are rejected;
// replays of settled orders succeed.
func (h *CallbackHandler) Notify(c *gin.Context) {
	raw, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.String(http.StatusBadRequest, "bad body")
		return
	}

	outcome, err := h.settlement.HandleCallback(c.Request.Context(), raw)
	if err != nil {
		logctx.FromGin(c, h.log).Warnw("callback_rejected", "err", err)
		switch {
		case errors.Is(err, settlement.ErrBadSignature):
			c.String(http.StatusForbidden, "signature mismatch")
		case errors.Is(err, settlement.ErrUnknownOrder):
			c.String(http.StatusNotFound, "unknown order")
		default:
			c.String(http.StatusBadRequest, "rejected")
		}
		return
	}
	logctx.FromGin(c, h.log).Infow("callback_acknowledged",
		"trade_no", outcome.TradeNo, "applied", outcome.Applied)
	// the gateway only cares about the literal acknowledgement body
	c.String(http.StatusOK, "ok")
}

// Redirect is where the gateway sends the buyer's browser after payment.
func (h *CallbackHandler) Redirect(c *gin.Context) {
	c.JSON(http.StatusOK, response.OKT(map[string]string{
		"status": "received",
		"note":   "payment is confirmed asynchronously; check your order status",
	}))
}

func RegisterCallbackRoutes(r gin.IRouter, h *CallbackHandler, notifyPath, redirectPath string) {
	r.POST(notifyPath, h.Notify)
	r.GET(redirectPath, h.Redirect)
}
