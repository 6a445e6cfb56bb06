package order

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/CarLinkTrade/CarLinkTrade/internal/common/apperr"
	"github.com/CarLinkTrade/CarLinkTrade/internal/common/logger"
	"github.com/CarLinkTrade/CarLinkTrade/internal/common/server"
	"github.com/CarLinkTrade/CarLinkTrade/internal/payment"
	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Handler 订单 HTTP 入口。/orders 是买家视角，/owner-orders 是卖家视角。
type Handler struct {
	svc   *Service
	log   logger.Logger
	debug bool
}

func NewHandler(db *gorm.DB, gateway payment.Gateway, log logger.Logger, debug bool) *Handler {
	return &Handler{
		svc:   NewService(db, gateway, log),
		log:   log,
		debug: debug,
	}
}

func (h *Handler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/orders", h.Place).Methods(http.MethodPost)
	r.HandleFunc("/orders", h.List).Methods(http.MethodGet)
	r.HandleFunc("/orders/{id:[0-9]+}", h.Show).Methods(http.MethodGet)
	r.HandleFunc("/orders/{id:[0-9]+}", h.UpdateStatus).Methods(http.MethodPut)
	r.HandleFunc("/orders/{id:[0-9]+}", h.Delete).Methods(http.MethodDelete)
	r.HandleFunc("/orders/{id:[0-9]+}/pay", h.Pay).Methods(http.MethodPost)
	r.HandleFunc("/orders/{id:[0-9]+}/complete", h.Complete).Methods(http.MethodPut)
	r.HandleFunc("/owner-orders", h.OwnerList).Methods(http.MethodGet)
	r.HandleFunc("/owner-orders/{id:[0-9]+}", h.OwnerShow).Methods(http.MethodGet)
}

func pathID(r *http.Request) uint {
	id, _ := strconv.ParseUint(mux.Vars(r)["id"], 10, 64)
	return uint(id)
}

func callerID(w http.ResponseWriter, r *http.Request, debug bool) (uint, bool) {
	id, ok := server.UserIDFromRequest(r)
	if !ok {
		server.WriteError(w, apperr.Forbidden("login required"), debug)
		return 0, false
	}
	return id, true
}

type placeOrderRequest struct {
	CarID      uint             `json:"car_id"`
	TotalPrice *decimal.Decimal `json:"total_price"`
	Items      Items            `json:"order_items"`
}

func (h *Handler) Place(w http.ResponseWriter, r *http.Request) {
	buyerID, ok := callerID(w, r, h.debug)
	if !ok {
		return
	}
	var req placeOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		server.WriteError(w, apperr.ValidationField("body", "invalid JSON body"), h.debug)
		return
	}
	o, err := h.svc.Place(r.Context(), buyerID, PlaceRequest{CarID: req.CarID, TotalPrice: req.TotalPrice, Items: req.Items})
	if err != nil {
		server.WriteError(w, err, h.debug)
		return
	}
	server.WriteJSON(w, http.StatusCreated, map[string]interface{}{
		"message": "Order placed successfully",
		"order":   o,
	})
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	buyerID, ok := callerID(w, r, h.debug)
	if !ok {
		return
	}
	orders, err := h.svc.ListByBuyer(r.Context(), buyerID)
	if err != nil {
		server.WriteError(w, err, h.debug)
		return
	}
	server.WriteJSON(w, http.StatusOK, orders)
}

func (h *Handler) Show(w http.ResponseWriter, r *http.Request) {
	buyerID, ok := callerID(w, r, h.debug)
	if !ok {
		return
	}
	o, err := h.svc.Get(r.Context(), buyerID, pathID(r))
	if err != nil {
		server.WriteError(w, err, h.debug)
		return
	}
	server.WriteJSON(w, http.StatusOK, o)
}

type updateOrderRequest struct {
	Status Status `json:"status"`
}

// UpdateStatus 买家用 PUT /orders/{id} 只能把订单改为 Cancelled。
// 支付和交车各有专用接口，不从这里走。
func (h *Handler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	buyerID, ok := callerID(w, r, h.debug)
	if !ok {
		return
	}
	var req updateOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		server.WriteError(w, apperr.ValidationField("body", "invalid JSON body"), h.debug)
		return
	}
	if !ValidStatus(req.Status) {
		server.WriteError(w, apperr.ValidationField("status", "unknown order status"), h.debug)
		return
	}
	if req.Status != StatusCancelled {
		server.WriteError(w, apperr.ValidationField("status", "only Cancelled can be set through this endpoint"), h.debug)
		return
	}
	o, err := h.svc.Cancel(r.Context(), buyerID, pathID(r))
	if err != nil {
		server.WriteError(w, err, h.debug)
		return
	}
	server.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"message": "Order cancelled",
		"order":   o,
	})
}

func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	buyerID, ok := callerID(w, r, h.debug)
	if !ok {
		return
	}
	if err := h.svc.Delete(r.Context(), buyerID, pathID(r)); err != nil {
		server.WriteError(w, err, h.debug)
		return
	}
	server.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"message": "Order deleted",
	})
}

type payOrderRequest struct {
	Result string `json:"result"`
}

func (h *Handler) Pay(w http.ResponseWriter, r *http.Request) {
	buyerID, ok := callerID(w, r, h.debug)
	if !ok {
		return
	}
	// result 可省略（空请求体也允许），缺省按成功处理
	var req payOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		server.WriteError(w, apperr.ValidationField("body", "invalid JSON body"), h.debug)
		return
	}
	if req.Result == "" {
		req.Result = payment.OutcomeSuccess
	}
	if req.Result != payment.OutcomeSuccess && req.Result != payment.OutcomeFail {
		server.WriteError(w, apperr.ValidationField("result", "result must be success or fail"), h.debug)
		return
	}
	res, err := h.svc.Pay(r.Context(), buyerID, pathID(r), req.Result)
	if err != nil {
		server.WriteError(w, err, h.debug)
		return
	}
	server.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"message":  "Payment successful",
		"order_id": res.Order.ID,
		"status":   res.Order.Status,
		"deposit":  res.Deposit,
	})
}

func (h *Handler) Complete(w http.ResponseWriter, r *http.Request) {
	sellerID, ok := callerID(w, r, h.debug)
	if !ok {
		return
	}
	o, err := h.svc.Complete(r.Context(), sellerID, pathID(r))
	if err != nil {
		server.WriteError(w, err, h.debug)
		return
	}
	server.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"message": "Order completed",
		"order":   o,
	})
}

func (h *Handler) OwnerList(w http.ResponseWriter, r *http.Request) {
	sellerID, ok := callerID(w, r, h.debug)
	if !ok {
		return
	}
	orders, err := h.svc.ListBySeller(r.Context(), sellerID)
	if err != nil {
		server.WriteError(w, err, h.debug)
		return
	}
	server.WriteJSON(w, http.StatusOK, orders)
}

func (h *Handler) OwnerShow(w http.ResponseWriter, r *http.Request) {
	sellerID, ok := callerID(w, r, h.debug)
	if !ok {
		return
	}
	o, err := h.svc.OwnerGet(r.Context(), sellerID, pathID(r))
	if err != nil {
		server.WriteError(w, err, h.debug)
		return
	}
	server.WriteJSON(w, http.StatusOK, o)
}
