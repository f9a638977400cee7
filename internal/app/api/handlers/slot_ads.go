package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/samber/lo"

	"github.com/adboard/adboard/internal/app/service/orders"
	"github.com/adboard/adboard/internal/app/service/settlement"
	slotsvc "github.com/adboard/adboard/internal/app/service/slots"
	"github.com/adboard/adboard/internal/models"
	"github.com/adboard/adboard/internal/platform/upay"
	"github.com/adboard/adboard/pkg/response"
	"github.com/adboard/adboard/pkg/types"
)

// SlotView is the public board entry for one slot.
type SlotView struct {
	SlotID          int                 `json:"slot_id"`
	PurchaseEnabled bool                `json:"purchase_enabled"`
	Occupied        bool                `json:"occupied"`
	AvailableAt     *time.Time          `json:"available_at,omitempty"`
	DefaultControls []types.SlotControl `json:"default_controls"`
}

// OrderView is the buyer-facing order projection. Status is the derived
// state; Amount is the normalized decimal the gateway quotes.
type OrderView struct {
	TradeNo       string                   `json:"trade_no"`
	SlotID        int                      `json:"slot_id"`
	PlanDays      int                      `json:"plan_days"`
	Amount        string                   `json:"amount"`
	Currency      string                   `json:"currency"`
	Status        types.DerivedOrderStatus `json:"status"`
	PaymentURL    *string                  `json:"payment_url,omitempty"`
	StartAt       time.Time                `json:"start_at"`
	EndAt         time.Time                `json:"end_at"`
	ExpiresAt     *time.Time               `json:"expires_at,omitempty"`
	ReminderOptIn bool                     `json:"reminder_opt_in"`
}

func toOrderView(m *models.AdOrder, now time.Time) *OrderView {
	return &OrderView{
		TradeNo:       m.TradeNo,
		SlotID:        m.SlotID,
		PlanDays:      m.PlanDays,
		Amount:        upay.FormatCents(m.AmountCents),
		Currency:      m.Currency,
		Status:        m.DerivedStatus(now),
		PaymentURL:    m.PaymentURL,
		StartAt:       m.StartAt,
		EndAt:         m.EndAt,
		ExpiresAt:     m.ExpiresAt,
		ReminderOptIn: m.ReminderOptIn,
	}
}

type PurchaseRequest struct {
	PlanDays   int                 `json:"plan_days" binding:"required"`
	ButtonText string              `json:"button_text" binding:"required"`
	ButtonURL  string              `json:"button_url" binding:"required"`
	Style      *types.ControlStyle `json:"style"`
}

type EditCreativeRequest struct {
	ButtonText string              `json:"button_text" binding:"required"`
	ButtonURL  string              `json:"button_url" binding:"required"`
	Style      *types.ControlStyle `json:"style"`
}

type ReminderRequest struct {
	OptIn bool `json:"opt_in"`
}

type SlotAdsHandler struct {
	orders     *orders.Service
	slots      *slotsvc.Service
	settlement *settlement.Service
}

func NewSlotAdsHandler(orderSvc *orders.Service, slotSvc *slotsvc.Service, settlementSvc *settlement.Service) *SlotAdsHandler {
	return &SlotAdsHandler{orders: orderSvc, slots: slotSvc, settlement: settlementSvc}
}

// ListSlots renders the public board state.
func (h *SlotAdsHandler) ListSlots(c *gin.Context) {
	now := time.Now()
	slotRows, err := h.slots.GetAll(c.Request.Context())
	if err != nil {
		abortInternal(c, err)
		return
	}
	occupancy, err := h.orders.Occupancy(c.Request.Context(), now)
	if err != nil {
		abortInternal(c, err)
		return
	}

	views := lo.Map(slotRows, func(s *models.Slot, _ int) *SlotView {
		v := &SlotView{
			SlotID:          s.SlotID,
			PurchaseEnabled: s.PurchaseEnabled,
			DefaultControls: s.DefaultControls.Data(),
		}
		if occupant, ok := occupancy[s.SlotID]; ok {
			v.Occupied = true
			v.AvailableAt = &occupant.EndAt
		}
		return v
	})
	c.JSON(http.StatusOK, response.OKT(views))
}

// Admission quotes what the caller may do with a slot right now.
func (h *SlotAdsHandler) Admission(c *gin.Context) {
	slotID, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, response.ErrorT(response.APIResponseCodeBadRequest, "invalid slot id"))
		return
	}
	decision, err := h.orders.Admission(c.Request.Context(), slotID, c.GetString("user_id"), time.Now())
	if err != nil {
		abortInternal(c, err)
		return
	}
	c.JSON(http.StatusOK, response.OKT(decision))
}

// Purchase opens a lease order (buy or renew, decided by admission) and
// returns the payment URL.
func (h *SlotAdsHandler) Purchase(c *gin.Context) {
	slotID, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, response.ErrorT(response.APIResponseCodeBadRequest, "invalid slot id"))
		return
	}
	var req PurchaseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, response.ErrorT(response.APIResponseCodeBadRequest, err.Error()))
		return
	}

	order, err := h.orders.Purchase(c.Request.Context(), &orders.PurchaseParams{
		UserID:     c.GetString("user_id"),
		SlotID:     slotID,
		PlanDays:   req.PlanDays,
		ButtonText: req.ButtonText,
		ButtonURL:  req.ButtonURL,
		Style:      req.Style,
	})
	if err != nil {
		abortOrderError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.OKT(toOrderView(order, time.Now())))
}

// ResolveDeepLink maps a `buy_slot_<id>` start parameter to its intent.
func (h *SlotAdsHandler) ResolveDeepLink(c *gin.Context) {
	start := c.Query("start")
	rest, ok := strings.CutPrefix(start, "buy_slot_")
	if !ok {
		c.JSON(http.StatusBadRequest, response.ErrorT(response.APIResponseCodeBadRequest, "unknown start parameter"))
		return
	}
	slotID, err := strconv.Atoi(rest)
	if err != nil {
		c.JSON(http.StatusBadRequest, response.ErrorT(response.APIResponseCodeBadRequest, "invalid slot id"))
		return
	}
	c.JSON(http.StatusOK, response.OKT(map[string]any{
		"action":  "buy_slot",
		"slot_id": slotID,
	}))
}

// MyOrders lists the caller's orders.
func (h *SlotAdsHandler) MyOrders(c *gin.Context) {
	rows, err := h.orders.UserOrders(c.Request.Context(), c.GetString("user_id"))
	if err != nil {
		abortInternal(c, err)
		return
	}
	now := time.Now()
	views := lo.Map(rows, func(m *models.AdOrder, _ int) *OrderView { return toOrderView(m, now) })
	c.JSON(http.StatusOK, response.OKT(views))
}

// GetOrder returns one of the caller's orders.
func (h *SlotAdsHandler) GetOrder(c *gin.Context) {
	order, ok := h.ownedOrder(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, response.OKT(toOrderView(order, time.Now())))
}

// EditCreative swaps the button on a running order.
func (h *SlotAdsHandler) EditCreative(c *gin.Context) {
	var req EditCreativeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, response.ErrorT(response.APIResponseCodeBadRequest, err.Error()))
		return
	}
	creative, err := h.orders.EditCreative(c.Request.Context(), &orders.EditParams{
		TradeNo:    c.Param("trade_no"),
		EditorID:   c.GetString("user_id"),
		EditorType: models.EditorTypeUser,
		ButtonText: req.ButtonText,
		ButtonURL:  req.ButtonURL,
		Style:      req.Style,
	})
	if err != nil {
		abortOrderError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.OKT(creative.Control()))
}

// SetReminder opts the caller in or out of the renewal reminder.
func (h *SlotAdsHandler) SetReminder(c *gin.Context) {
	var req ReminderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, response.ErrorT(response.APIResponseCodeBadRequest, err.Error()))
		return
	}
	order, err := h.orders.SetReminder(c.Request.Context(), c.Param("trade_no"), c.GetString("user_id"), req.OptIn)
	if err != nil {
		abortOrderError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.OKT(toOrderView(order, time.Now())))
}

// ConfirmPayment is the pull fallback: ask the gateway whether the caller's
// order settled, and apply it if so.
func (h *SlotAdsHandler) ConfirmPayment(c *gin.Context) {
	order, ok := h.ownedOrder(c)
	if !ok {
		return
	}
	outcome, err := h.settlement.ConfirmByQuery(c.Request.Context(), order.TradeNo)
	if err != nil {
		abortInternal(c, err)
		return
	}
	c.JSON(http.StatusOK, response.OKT(outcome))
}

func (h *SlotAdsHandler) ownedOrder(c *gin.Context) (*models.AdOrder, bool) {
	order, err := h.orders.Get(c.Request.Context(), c.Param("trade_no"))
	if err != nil {
		abortOrderError(c, err)
		return nil, false
	}
	if order.BuyerID != c.GetString("user_id") {
		c.JSON(http.StatusForbidden, response.ErrorT(response.APIResponseCodeBadRequest, "not your order"))
		return nil, false
	}
	return order, true
}

func abortInternal(c *gin.Context, err error) {
	c.JSON(http.StatusInternalServerError, response.ErrorT(response.APIResponseCodeError, err.Error()))
}

// abortOrderError maps order service errors onto HTTP semantics. Admission
// blocks land as 409 so clients can distinguish "occupied" from bad input.
func abortOrderError(c *gin.Context, err error) {
	var moderr *orders.ModerationError
	switch {
	case errors.As(err, &moderr):
		c.JSON(http.StatusUnprocessableEntity, response.ErrorT(response.APIResponseCodeBadRequest, moderr.Verdict))
	case errors.Is(err, orders.ErrOrderNotFound):
		c.JSON(http.StatusNotFound, response.ErrorT(response.APIResponseCodeBadRequest, err.Error()))
	case errors.Is(err, orders.ErrNotOwner):
		c.JSON(http.StatusForbidden, response.ErrorT(response.APIResponseCodeBadRequest, err.Error()))
	case errors.Is(err, orders.ErrEditLimit):
		c.JSON(http.StatusTooManyRequests, response.ErrorT(response.APIResponseCodeBadRequest, err.Error()))
	case errors.Is(err, orders.ErrSlotOccupied),
		errors.Is(err, orders.ErrRenewNotOpen),
		errors.Is(err, orders.ErrSlotDisabled),
		errors.Is(err, orders.ErrOrderNotActive),
		errors.Is(err, orders.ErrLeaseOverlap):
		c.JSON(http.StatusConflict, response.ErrorT(response.APIResponseCodeBadRequest, err.Error()))
	case errors.Is(err, orders.ErrUnknownPlan):
		c.JSON(http.StatusBadRequest, response.ErrorT(response.APIResponseCodeBadRequest, err.Error()))
	default:
		abortInternal(c, err)
	}
}

// RegisterSlotAdRoutes wires the public board and the user-facing purchase
// surface. The user group is expected to carry RequireUser.
func RegisterSlotAdRoutes(public gin.IRouter, user gin.IRouter, h *SlotAdsHandler) {
	public.GET("/slots", h.ListSlots)
	public.GET("/deeplink/resolve", h.ResolveDeepLink)

	user.GET("/slots/:id/admission", h.Admission)
	user.POST("/slots/:id/purchase", h.Purchase)
	user.GET("/orders", h.MyOrders)
	user.GET("/orders/:trade_no", h.GetOrder)
	user.POST("/orders/:trade_no/creative", h.EditCreative)
	user.POST("/orders/:trade_no/reminder", h.SetReminder)
	user.POST("/orders/:trade_no/confirm", h.ConfirmPayment)
}
