package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/ldhieu/seckill/internal/core/domain"
	"github.com/ldhieu/seckill/internal/core/service"
	"github.com/ldhieu/seckill/internal/port"
)

type HTTPHandler struct {
	seckill   *service.SeckillService
	shops     *service.ShopService
	principal port.Principal
}

type SeckillHTTPRequest struct {
	VoucherID int64 `json:"voucher_id"`
}

type SeckillHTTPResponse struct {
	Success bool   `json:"success"`
	OrderID int64  `json:"order_id,omitempty"`
	Message string `json:"message"`
}

func NewHTTPHandler(seckill *service.SeckillService, shops *service.ShopService, principal port.Principal) *HTTPHandler {
	return &HTTPHandler{seckill: seckill, shops: shops, principal: principal}
}

func (h *HTTPHandler) Seckill(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	userID, err := h.principal.CurrentUser(r.Context())
	if err != nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	var req SeckillHTTPRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.VoucherID <= 0 {
		writeJSON(w, http.StatusBadRequest, SeckillHTTPResponse{
			Success: false,
			Message: "invalid request body",
		})
		return
	}

	orderID, err := h.seckill.Purchase(r.Context(), userID, req.VoucherID)
	if err != nil {
		status := http.StatusInternalServerError
		message := "internal error"

		switch {
		case errors.Is(err, service.ErrVoucherNotFound):
			status = http.StatusNotFound
			message = "voucher not found"
		case errors.Is(err, service.ErrSaleNotStarted):
			status = http.StatusForbidden
			message = "sale has not started"
		case errors.Is(err, service.ErrSaleEnded):
			status = http.StatusForbidden
			message = "sale has ended"
		case errors.Is(err, service.ErrOutOfStock):
			status = http.StatusGone
			message = "out of stock"
		case errors.Is(err, service.ErrAlreadyPurchased):
			status = http.StatusConflict
			message = "already purchased"
		}

		writeJSON(w, status, SeckillHTTPResponse{
			Success: false,
			Message: message,
		})
		return
	}

	writeJSON(w, http.StatusOK, SeckillHTTPResponse{
		Success: true,
		OrderID: orderID,
		Message: "order accepted",
	})
}

type ShopUpdateRequest struct {
	ID       int64   `json:"id"`
	Name     string  `json:"name"`
	Address  string  `json:"address"`
	AvgPrice int64   `json:"avg_price"`
	Score    float64 `json:"score"`
	Open     bool    `json:"open"`
}

func (h *HTTPHandler) Shop(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		h.getShop(w, r)
	case http.MethodPut:
		h.updateShop(w, r)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (h *HTTPHandler) getShop(w http.ResponseWriter, r *http.Request) {
	shopID, err := strconv.ParseInt(r.URL.Query().Get("id"), 10, 64)
	if err != nil || shopID <= 0 {
		http.Error(w, "invalid shop id", http.StatusBadRequest)
		return
	}

	shop, err := h.shops.GetByID(r.Context(), shopID)
	if err != nil {
		if errors.Is(err, service.ErrShopNotFound) {
			http.Error(w, "shop not found", http.StatusNotFound)
			return
		}
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, shop)
}

func (h *HTTPHandler) updateShop(w http.ResponseWriter, r *http.Request) {
	var req ShopUpdateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.ID <= 0 {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	shop := domain.Shop{
		ID:       req.ID,
		Name:     req.Name,
		Address:  req.Address,
		AvgPrice: req.AvgPrice,
		Score:    req.Score,
		Open:     req.Open,
	}
	if err := h.shops.Update(r.Context(), shop); err != nil {
		if errors.Is(err, service.ErrShopNotFound) {
			http.Error(w, "shop not found", http.StatusNotFound)
			return
		}
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "updated"})
}

func (h *HTTPHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
