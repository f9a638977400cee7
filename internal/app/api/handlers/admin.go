package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/samber/lo"
	"go.uber.org/zap"

	"github.com/adboard/adboard/internal/app/service/ledger"
	"github.com/adboard/adboard/internal/app/service/orders"
	"github.com/adboard/adboard/internal/app/service/publisher"
	"github.com/adboard/adboard/internal/app/service/schedule"
	slotsvc "github.com/adboard/adboard/internal/app/service/slots"
	"github.com/adboard/adboard/internal/models"
	"github.com/adboard/adboard/pkg/logctx"
	"github.com/adboard/adboard/pkg/response"
	"github.com/adboard/adboard/pkg/types"
)

type UpdateScheduleRequest struct {
	Enabled         *bool                `json:"enabled"`
	CadenceKind     *types.CadenceKind   `json:"cadence_kind"`
	CadenceParams   *types.CadenceParams `json:"cadence_params"`
	MessageTemplate *string              `json:"message_template"`
	AutoPin         *bool                `json:"auto_pin"`
	DeletePrevious  *bool                `json:"delete_previous"`
}

type SetControlsRequest struct {
	Controls []types.SlotControl `json:"controls" binding:"required"`
}

type SetPurchaseEnabledRequest struct {
	Enabled bool `json:"enabled"`
}

type TerminateRequest struct {
	Reason string `json:"reason" binding:"required"`
}

type ScanOrdersRequest struct {
	Filters []*types.CommonFilter `json:"filters"`
	From    int                   `json:"from"`
	Size    int                   `json:"size"`
}

type ScanOrdersResponse struct {
	Total int64        `json:"total"`
	Items []*OrderView `json:"items"`
}

type AdminEditCreativeRequest struct {
	ButtonText string              `json:"button_text" binding:"required"`
	ButtonURL  string              `json:"button_url" binding:"required"`
	Style      *types.ControlStyle `json:"style"`
	Note       *string             `json:"note"`
}

type AdminHandler struct {
	sched     *schedule.Service
	slots     *slotsvc.Service
	orders    *orders.Service
	ledger    *ledger.Service
	publisher *publisher.Service
	log       *zap.SugaredLogger
}

func NewAdminHandler(
	sched *schedule.Service,
	slotSvc *slotsvc.Service,
	orderSvc *orders.Service,
	ledgerSvc *ledger.Service,
	pub *publisher.Service,
	log *zap.SugaredLogger,
) *AdminHandler {
	return &AdminHandler{
		sched:     sched,
		slots:     slotSvc,
		orders:    orderSvc,
		ledger:    ledgerSvc,
		publisher: pub,
		log:       log,
	}
}

// GetSchedule returns the live scheduling config.
func (h *AdminHandler) GetSchedule(c *gin.Context) {
	cfg, err := h.sched.Get(c.Request.Context())
	if err != nil {
		abortInternal(c, err)
		return
	}
	c.JSON(http.StatusOK, response.OKT(cfg))
}

// UpdateSchedule applies a partial edit; the running scheduler picks it up on
// its next tick without a restart.
func (h *AdminHandler) UpdateSchedule(c *gin.Context) {
	var req UpdateScheduleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, response.ErrorT(response.APIResponseCodeBadRequest, err.Error()))
		return
	}
	updated, err := h.sched.Update(c.Request.Context(), &schedule.UpdateParams{
		Enabled:         req.Enabled,
		CadenceKind:     req.CadenceKind,
		CadenceParams:   req.CadenceParams,
		MessageTemplate: req.MessageTemplate,
		AutoPin:         req.AutoPin,
		DeletePrevious:  req.DeletePrevious,
	})
	if err != nil {
		c.JSON(http.StatusBadRequest, response.ErrorT(response.APIResponseCodeBadRequest, err.Error()))
		return
	}
	c.JSON(http.StatusOK, response.OKT(updated))
}

// RunNow publishes the board immediately without moving the cadence.
func (h *AdminHandler) RunNow(c *gin.Context) {
	if err := h.publisher.RunNow(c.Request.Context()); err != nil {
		abortInternal(c, err)
		return
	}
	c.JSON(http.StatusOK, response.OKT(map[string]string{"status": "delivered"}))
}

// RefreshBoard re-renders the last delivered message's controls.
func (h *AdminHandler) RefreshBoard(c *gin.Context) {
	if err := h.publisher.RefreshLast(c.Request.Context()); err != nil {
		abortInternal(c, err)
		return
	}
	c.JSON(http.StatusOK, response.OKT(map[string]string{"status": "refreshed"}))
}

// SetSlotControls replaces a slot's fallback buttons.
func (h *AdminHandler) SetSlotControls(c *gin.Context) {
	slotID, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, response.ErrorT(response.APIResponseCodeBadRequest, "invalid slot id"))
		return
	}
	var req SetControlsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, response.ErrorT(response.APIResponseCodeBadRequest, err.Error()))
		return
	}
	if err := h.slots.SetDefaultControls(c.Request.Context(), slotID, req.Controls); err != nil {
		c.JSON(http.StatusBadRequest, response.ErrorT(response.APIResponseCodeBadRequest, err.Error()))
		return
	}
	c.JSON(http.StatusOK, response.OKT(map[string]string{"status": "updated"}))
}

// SetSlotPurchaseEnabled opens or closes a slot for sale.
func (h *AdminHandler) SetSlotPurchaseEnabled(c *gin.Context) {
	slotID, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, response.ErrorT(response.APIResponseCodeBadRequest, "invalid slot id"))
		return
	}
	var req SetPurchaseEnabledRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, response.ErrorT(response.APIResponseCodeBadRequest, err.Error()))
		return
	}
	if err := h.slots.SetPurchaseEnabled(c.Request.Context(), slotID, req.Enabled); err != nil {
		c.JSON(http.StatusBadRequest, response.ErrorT(response.APIResponseCodeBadRequest, err.Error()))
		return
	}
	c.JSON(http.StatusOK, response.OKT(map[string]string{"status": "updated"}))
}

// TerminateOrder ends a running lease and refreshes the delivered board so
// the slot falls back to its default controls right away.
func (h *AdminHandler) TerminateOrder(c *gin.Context) {
	var req TerminateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, response.ErrorT(response.APIResponseCodeBadRequest, err.Error()))
		return
	}
	order, err := h.orders.Terminate(c.Request.Context(), c.Param("trade_no"), req.Reason, time.Now())
	if err != nil {
		abortOrderError(c, err)
		return
	}
	if err := h.publisher.RefreshLast(c.Request.Context()); err != nil {
		// termination already landed; the board heals at the next firing
		logctx.FromGin(c, h.log).Warnw("board_refresh_after_terminate_failed", "trade_no", order.TradeNo, "err", err)
	}
	c.JSON(http.StatusOK, response.OKT(toOrderView(order, time.Now())))
}

// ForceEditCreative swaps a creative on behalf of the buyer, bypassing
// ownership and the daily limit.
func (h *AdminHandler) ForceEditCreative(c *gin.Context) {
	var req AdminEditCreativeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, response.ErrorT(response.APIResponseCodeBadRequest, err.Error()))
		return
	}
	creative, err := h.orders.EditCreative(c.Request.Context(), &orders.EditParams{
		TradeNo:    c.Param("trade_no"),
		EditorID:   "admin",
		EditorType: models.EditorTypeAdmin,
		ButtonText: req.ButtonText,
		ButtonURL:  req.ButtonURL,
		Style:      req.Style,
		Note:       req.Note,
	})
	if err != nil {
		abortOrderError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.OKT(creative.Control()))
}

// EditHistory lists the creative swap audit rows of an order.
func (h *AdminHandler) EditHistory(c *gin.Context) {
	rows, err := h.orders.EditHistory(c.Request.Context(), c.Param("trade_no"))
	if err != nil {
		abortInternal(c, err)
		return
	}
	c.JSON(http.StatusOK, response.OKT(rows))
}

// ScanOrders is the filtered, paginated admin order query.
func (h *AdminHandler) ScanOrders(c *gin.Context) {
	var req ScanOrdersRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, response.ErrorT(response.APIResponseCodeBadRequest, err.Error()))
		return
	}
	rows, total, err := h.orders.Scan(c.Request.Context(), req.Filters, req.From, req.Size)
	if err != nil {
		abortInternal(c, err)
		return
	}
	now := time.Now()
	c.JSON(http.StatusOK, response.OKT(&ScanOrdersResponse{
		Total: total,
		Items: lo.Map(rows, func(m *models.AdOrder, _ int) *OrderView { return toOrderView(m, now) }),
	}))
}

// RecomputeBalance rebuilds a user's cached balance from the ledger.
func (h *AdminHandler) RecomputeBalance(c *gin.Context) {
	balance, err := h.ledger.Recompute(c.Request.Context(), c.Param("user_id"))
	if err != nil {
		abortInternal(c, err)
		return
	}
	c.JSON(http.StatusOK, response.OKT(map[string]int64{"balance": balance}))
}

func RegisterAdminRoutes(r gin.IRouter, h *AdminHandler) {
	r.GET("/schedule", h.GetSchedule)
	r.PATCH("/schedule", h.UpdateSchedule)
	r.POST("/schedule/run-now", h.RunNow)
	r.POST("/board/refresh", h.RefreshBoard)

	r.PUT("/slots/:id/controls", h.SetSlotControls)
	r.PUT("/slots/:id/purchase-enabled", h.SetSlotPurchaseEnabled)

	r.POST("/scan_orders", h.ScanOrders)
	r.POST("/orders/:trade_no/terminate", h.TerminateOrder)
	r.POST("/orders/:trade_no/creative", h.ForceEditCreative)
	r.GET("/orders/:trade_no/edits", h.EditHistory)

	r.POST("/credits/:user_id/recompute", h.RecomputeBalance)
}
