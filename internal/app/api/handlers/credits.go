package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/adboard/adboard/internal/app/service/ledger"
	"github.com/adboard/adboard/internal/models"
	"github.com/adboard/adboard/internal/platform/upay"
	cfgpkg "github.com/adboard/adboard/pkg/config"
	"github.com/adboard/adboard/pkg/response"
	"github.com/adboard/adboard/pkg/types"
)

type CreditPackView struct {
	SKU     string `json:"sku"`
	Credits int64  `json:"credits"`
	Amount  string `json:"amount"`
}

type CreditOrderView struct {
	TradeNo    string     `json:"trade_no"`
	SKU        string     `json:"sku"`
	Credits    int64      `json:"credits"`
	Amount     string     `json:"amount"`
	Currency   string     `json:"currency"`
	Status     string     `json:"status"`
	PaymentURL *string    `json:"payment_url,omitempty"`
	ExpiresAt  *time.Time `json:"expires_at,omitempty"`
}

type ConsumeRequest struct {
	Amount int64   `json:"amount" binding:"required"`
	Ref    string  `json:"ref"`
	Note   *string `json:"note"`
}

type RefundRequest struct {
	Ref string `json:"ref" binding:"required"`
}

type CreditsHandler struct {
	ledger *ledger.Service
	cfg    *cfgpkg.Config
}

func NewCreditsHandler(ledgerSvc *ledger.Service, cfg *cfgpkg.Config) *CreditsHandler {
	return &CreditsHandler{ledger: ledgerSvc, cfg: cfg}
}

// ListPacks shows the purchasable credit bundles.
func (h *CreditsHandler) ListPacks(c *gin.Context) {
	views := make([]*CreditPackView, 0, len(h.cfg.Credits.Packs))
	for _, p := range h.cfg.Credits.Packs {
		views = append(views, &CreditPackView{
			SKU:     p.SKU,
			Credits: p.Credits,
			Amount:  upay.FormatCents(p.AmountCents),
		})
	}
	c.JSON(http.StatusOK, response.OKT(views))
}

// Balance returns the caller's credit balance.
func (h *CreditsHandler) Balance(c *gin.Context) {
	balance, err := h.ledger.Balance(c.Request.Context(), c.GetString("user_id"))
	if err != nil {
		abortInternal(c, err)
		return
	}
	c.JSON(http.StatusOK, response.OKT(map[string]int64{"balance": balance}))
}

// History lists the caller's recent ledger entries.
func (h *CreditsHandler) History(c *gin.Context) {
	rows, err := h.ledger.Entries(c.Request.Context(), c.GetString("user_id"), 50)
	if err != nil {
		abortInternal(c, err)
		return
	}
	c.JSON(http.StatusOK, response.OKT(rows))
}

// PurchasePack opens a gateway order for a credit pack.
func (h *CreditsHandler) PurchasePack(c *gin.Context) {
	order, err := h.ledger.CreatePackOrder(c.Request.Context(), c.GetString("user_id"), c.Param("sku"))
	if err != nil {
		if errors.Is(err, ledger.ErrUnknownPack) {
			c.JSON(http.StatusNotFound, response.ErrorT(response.APIResponseCodeBadRequest, err.Error()))
			return
		}
		abortInternal(c, err)
		return
	}
	c.JSON(http.StatusOK, response.OKT(toCreditOrderView(order)))
}

// Consume spends the caller's credits. Insufficient balance is a conflict,
// not a server error.
func (h *CreditsHandler) Consume(c *gin.Context) {
	var req ConsumeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, response.ErrorT(response.APIResponseCodeBadRequest, err.Error()))
		return
	}
	ref, err := h.ledger.Consume(c.Request.Context(), c.GetString("user_id"), req.Amount, req.Ref, types.LedgerReasonConsume)
	if err != nil {
		if errors.Is(err, ledger.ErrInsufficientCredits) {
			c.JSON(http.StatusConflict, response.ErrorT(response.APIResponseCodeBadRequest, err.Error()))
			return
		}
		abortInternal(c, err)
		return
	}
	balance, err := h.ledger.Balance(c.Request.Context(), c.GetString("user_id"))
	if err != nil {
		abortInternal(c, err)
		return
	}
	c.JSON(http.StatusOK, response.OKT(map[string]any{"ref": ref, "balance": balance}))
}

// Refund compensates an earlier consumption, e.g. when the publication the
// credit paid for never went out. Replays are no-ops.
func (h *CreditsHandler) Refund(c *gin.Context) {
	var req RefundRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, response.ErrorT(response.APIResponseCodeBadRequest, err.Error()))
		return
	}
	applied, err := h.ledger.Refund(c.Request.Context(), c.GetString("user_id"), req.Ref)
	if err != nil {
		if errors.Is(err, ledger.ErrUnknownConsumption) {
			c.JSON(http.StatusNotFound, response.ErrorT(response.APIResponseCodeBadRequest, err.Error()))
			return
		}
		abortInternal(c, err)
		return
	}
	balance, err := h.ledger.Balance(c.Request.Context(), c.GetString("user_id"))
	if err != nil {
		abortInternal(c, err)
		return
	}
	c.JSON(http.StatusOK, response.OKT(map[string]any{"applied": applied, "balance": balance}))
}

func toCreditOrderView(m *models.CreditOrder) *CreditOrderView {
	return &CreditOrderView{
		TradeNo:    m.TradeNo,
		SKU:        m.SKU,
		Credits:    m.Credits,
		Amount:     upay.FormatCents(m.AmountCents),
		Currency:   m.Currency,
		Status:     string(m.Status),
		PaymentURL: m.PaymentURL,
		ExpiresAt:  m.ExpiresAt,
	}
}

// RegisterCreditRoutes wires the credit pack catalog and the user ledger
// surface. The user group is expected to carry RequireUser.
func RegisterCreditRoutes(public gin.IRouter, user gin.IRouter, h *CreditsHandler) {
	public.GET("/credits/packs", h.ListPacks)

	user.GET("/credits/balance", h.Balance)
	user.GET("/credits/ledger", h.History)
	user.POST("/credits/packs/:sku/purchase", h.PurchasePack)
	user.POST("/credits/consume", h.Consume)
	user.POST("/credits/refund", h.Refund)
}
