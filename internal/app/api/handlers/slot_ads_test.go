package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/adboard/adboard/internal/app/service/orders"
	"github.com/adboard/adboard/internal/models"
	"github.com/adboard/adboard/pkg/types"
)

func TestResolveDeepLink(t *testing.T) {
	gin.SetMode(gin.TestMode)
	h := &SlotAdsHandler{}
	r := gin.New()
	r.GET("/deeplink/resolve", h.ResolveDeepLink)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/deeplink/resolve?start=buy_slot_7", nil)
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Data struct {
			Action string `json:"action"`
			SlotID int    `json:"slot_id"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.Equal(t, "buy_slot", body.Data.Action)
	require.Equal(t, 7, body.Data.SlotID)
}

func TestResolveDeepLinkRejectsUnknownStart(t *testing.T) {
	gin.SetMode(gin.TestMode)
	h := &SlotAdsHandler{}
	r := gin.New()
	r.GET("/deeplink/resolve", h.ResolveDeepLink)

	for _, start := range []string{"", "ref_123", "buy_slot_x"} {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/deeplink/resolve?start="+start, nil)
		r.ServeHTTP(w, req)
		require.Equal(t, http.StatusBadRequest, w.Code, start)
	}
}

func TestAbortOrderErrorMapping(t *testing.T) {
	gin.SetMode(gin.TestMode)
	cases := []struct {
		err  error
		code int
	}{
		{orders.ErrOrderNotFound, http.StatusNotFound},
		{orders.ErrNotOwner, http.StatusForbidden},
		{orders.ErrEditLimit, http.StatusTooManyRequests},
		{orders.ErrSlotOccupied, http.StatusConflict},
		{orders.ErrRenewNotOpen, http.StatusConflict},
		{orders.ErrSlotDisabled, http.StatusConflict},
		{orders.ErrUnknownPlan, http.StatusBadRequest},
		{&orders.ModerationError{Verdict: &types.ModerationVerdict{Category: "scam", Reason: "restricted term"}}, http.StatusUnprocessableEntity},
	}
	for _, tc := range cases {
		w := httptest.NewRecorder()
		c, _ := gin.CreateTestContext(w)
		abortOrderError(c, tc.err)
		require.Equal(t, tc.code, w.Code, tc.err.Error())
	}
}

func TestToOrderViewDerivesStatusAndAmount(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	order := &models.AdOrder{
		TradeNo:     "SLT17000000001A2B3C4D",
		SlotID:      2,
		PlanDays:    31,
		AmountCents: 10000,
		Currency:    "USDT",
		Status:      types.OrderStatusPaid,
		StartAt:     now.Add(-24 * time.Hour),
		EndAt:       now.Add(30 * 24 * time.Hour),
	}
	v := toOrderView(order, now)
	require.Equal(t, types.DerivedStatusActive, v.Status)
	require.Equal(t, "100", v.Amount)
}
