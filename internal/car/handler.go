package car

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/CarLinkTrade/CarLinkTrade/internal/catalog"
	"github.com/CarLinkTrade/CarLinkTrade/internal/common/apperr"
	"github.com/CarLinkTrade/CarLinkTrade/internal/common/logger"
	"github.com/CarLinkTrade/CarLinkTrade/internal/common/server"
	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Handler 挂牌管理 HTTP 入口。
type Handler struct {
	repo     *Repo
	resolver *catalog.Resolver
	log      logger.Logger
	debug    bool
}

func NewHandler(db *gorm.DB, log logger.Logger, debug bool) *Handler {
	return &Handler{
		repo:     NewRepo(db),
		resolver: catalog.NewResolver(catalog.NewRepo(db)),
		log:      log,
		debug:    debug,
	}
}

// RegisterRoutes 注册挂牌相关路由。
func (h *Handler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/cars", h.List).Methods(http.MethodGet)
	r.HandleFunc("/cars/random", h.Random).Methods(http.MethodGet)
	r.HandleFunc("/cars/{id:[0-9]+}", h.Show).Methods(http.MethodGet)
	r.HandleFunc("/cars", h.Create).Methods(http.MethodPost)
	r.HandleFunc("/mycars", h.MyCars).Methods(http.MethodGet)
	r.HandleFunc("/cars/{id:[0-9]+}", h.Update).Methods(http.MethodPut)
	r.HandleFunc("/cars/{id:[0-9]+}", h.Delete).Methods(http.MethodDelete)
}

func pathID(r *http.Request) uint {
	id, _ := strconv.ParseUint(mux.Vars(r)["id"], 10, 64)
	return uint(id)
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page, _ := strconv.Atoi(q.Get("page"))
	size, _ := strconv.Atoi(q.Get("page_size"))
	if page <= 0 {
		page = 1
	}
	if size <= 0 || size > 200 {
		size = 20
	}
	cars, total, err := h.repo.List(r.Context(), (page-1)*size, size)
	if err != nil {
		server.WriteError(w, apperr.Internal(err), h.debug)
		return
	}
	server.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"cars":  cars,
		"total": total,
	})
}

func (h *Handler) Random(w http.ResponseWriter, r *http.Request) {
	n, _ := strconv.Atoi(r.URL.Query().Get("count"))
	if n <= 0 || n > 20 {
		n = 6
	}
	cars, err := h.repo.Random(r.Context(), n)
	if err != nil {
		server.WriteError(w, apperr.Internal(err), h.debug)
		return
	}
	server.WriteJSON(w, http.StatusOK, cars)
}

func (h *Handler) Show(w http.ResponseWriter, r *http.Request) {
	c, err := h.repo.FindByID(r.Context(), pathID(r))
	if errors.Is(err, gorm.ErrRecordNotFound) {
		server.WriteError(w, apperr.NotFound("car"), h.debug)
		return
	}
	if err != nil {
		server.WriteError(w, apperr.Internal(err), h.debug)
		return
	}
	server.WriteJSON(w, http.StatusOK, c)
}

func (h *Handler) MyCars(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := server.UserIDFromRequest(r)
	if !ok {
		server.WriteError(w, apperr.Forbidden("login required"), h.debug)
		return
	}
	cars, err := h.repo.ListByOwner(r.Context(), ownerID)
	if err != nil {
		server.WriteError(w, apperr.Internal(err), h.debug)
		return
	}
	server.WriteJSON(w, http.StatusOK, cars)
}

type createCarRequest struct {
	MakeID       uint             `json:"make_id"`
	MakeTitle    string           `json:"make_title"`
	ModelID      uint             `json:"model_id"`
	ModelTitle   string           `json:"model_title"`
	VariantID    uint             `json:"variant_id"`
	VariantTitle string           `json:"variant_title"`
	Color        string           `json:"color"`
	Year         int              `json:"year"`
	Mileage      int              `json:"mileage"`
	Price        *decimal.Decimal `json:"price"`
	Description  string           `json:"description"`
	ImagePaths   []string         `json:"image_paths"`
}

func (req *createCarRequest) validate(now time.Time) map[string]string {
	fields := map[string]string{}
	if !YearValid(req.Year, now) {
		fields["year"] = "year must be between 1900 and next year"
	}
	if req.Mileage < 0 {
		fields["mileage"] = "mileage must be non-negative"
	}
	if req.Price == nil {
		fields["price"] = "price is required"
	} else if req.Price.IsNegative() {
		fields["price"] = "price must be non-negative"
	}
	if len(req.Color) > 50 {
		fields["color"] = "color must be at most 50 characters"
	}
	return fields
}

func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := server.UserIDFromRequest(r)
	if !ok {
		server.WriteError(w, apperr.Forbidden("login required"), h.debug)
		return
	}

	var req createCarRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		server.WriteError(w, apperr.ValidationField("body", "invalid json"), h.debug)
		return
	}
	if fields := req.validate(time.Now()); len(fields) > 0 {
		server.WriteError(w, apperr.Validation(fields), h.debug)
		return
	}

	resolved, err := h.resolver.Resolve(r.Context(),
		catalog.NewRef(req.MakeID, req.MakeTitle),
		catalog.NewRef(req.ModelID, req.ModelTitle),
		catalog.NewRef(req.VariantID, req.VariantTitle),
	)
	if err != nil {
		server.WriteError(w, err, h.debug)
		return
	}

	c := &Car{
		OwnerID:   ownerID,
		MakeID:    resolved.Make.ID,
		ModelID:   resolved.Model.ID,
		VariantID: resolved.Variant.ID,
		Color:     req.Color,
		Year:      req.Year,
		Mileage:   req.Mileage,
		Price:     *req.Price,
		Desc:      req.Description,
		Status:    StatusAvailable,
	}
	if err := h.repo.Create(r.Context(), c); err != nil {
		server.WriteError(w, apperr.Internal(err), h.debug)
		return
	}
	if err := h.repo.AddImages(r.Context(), c.ID, req.ImagePaths); err != nil {
		server.WriteError(w, apperr.Internal(err), h.debug)
		return
	}

	latest, err := h.repo.FindByID(r.Context(), c.ID)
	if err != nil {
		latest = c
	}
	server.WriteJSON(w, http.StatusCreated, map[string]interface{}{
		"message": "Car created successfully.",
		"car":     latest,
	})
}

// updateCarRequest 部分更新；指针为 nil 表示未提供。
// status 字段被显式列出只为拒绝它：车辆状态只能由订单流转驱动。
type updateCarRequest struct {
	MakeID       uint             `json:"make_id"`
	MakeTitle    string           `json:"make_title"`
	ModelID      uint             `json:"model_id"`
	ModelTitle   string           `json:"model_title"`
	VariantID    uint             `json:"variant_id"`
	VariantTitle string           `json:"variant_title"`
	Color        *string          `json:"color"`
	Year         *int             `json:"year"`
	Mileage      *int             `json:"mileage"`
	Price        *decimal.Decimal `json:"price"`
	Description  *string          `json:"description"`
	ImagePaths   []string         `json:"image_paths"`
	Status       *string          `json:"status"`
}

func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	callerID, ok := server.UserIDFromRequest(r)
	if !ok {
		server.WriteError(w, apperr.Forbidden("login required"), h.debug)
		return
	}

	c, err := h.repo.FindByID(r.Context(), pathID(r))
	if errors.Is(err, gorm.ErrRecordNotFound) {
		server.WriteError(w, apperr.NotFound("car"), h.debug)
		return
	}
	if err != nil {
		server.WriteError(w, apperr.Internal(err), h.debug)
		return
	}
	if c.OwnerID != callerID {
		server.WriteError(w, apperr.Forbidden("Unauthorized"), h.debug)
		return
	}

	var req updateCarRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		server.WriteError(w, apperr.ValidationField("body", "invalid json"), h.debug)
		return
	}
	if req.Status != nil {
		server.WriteError(w, apperr.ValidationField("status", "status cannot be set directly"), h.debug)
		return
	}

	fields := map[string]string{}
	now := time.Now()
	if req.Year != nil && !YearValid(*req.Year, now) {
		fields["year"] = "year must be between 1900 and next year"
	}
	if req.Mileage != nil && *req.Mileage < 0 {
		fields["mileage"] = "mileage must be non-negative"
	}
	if req.Price != nil && req.Price.IsNegative() {
		fields["price"] = "price must be non-negative"
	}
	if req.Color != nil && len(*req.Color) > 50 {
		fields["color"] = "color must be at most 50 characters"
	}
	if len(fields) > 0 {
		server.WriteError(w, apperr.Validation(fields), h.debug)
		return
	}

	// 品类引用有变化时重新解析（保持父子一致）
	if req.MakeID != 0 || req.MakeTitle != "" || req.ModelID != 0 || req.ModelTitle != "" ||
		req.VariantID != 0 || req.VariantTitle != "" {
		makeRef := catalog.NewRef(req.MakeID, req.MakeTitle)
		if makeRef.ID == 0 && makeRef.Title == "" {
			makeRef = catalog.ByID(c.MakeID)
		}
		modelRef := catalog.NewRef(req.ModelID, req.ModelTitle)
		if modelRef.ID == 0 && modelRef.Title == "" {
			modelRef = catalog.ByID(c.ModelID)
		}
		variantRef := catalog.NewRef(req.VariantID, req.VariantTitle)
		if variantRef.ID == 0 && variantRef.Title == "" {
			variantRef = catalog.ByID(c.VariantID)
		}
		resolved, err := h.resolver.Resolve(r.Context(), makeRef, modelRef, variantRef)
		if err != nil {
			server.WriteError(w, err, h.debug)
			return
		}
		c.MakeID = resolved.Make.ID
		c.ModelID = resolved.Model.ID
		c.VariantID = resolved.Variant.ID
	}

	if req.Color != nil {
		c.Color = *req.Color
	}
	if req.Year != nil {
		c.Year = *req.Year
	}
	if req.Mileage != nil {
		c.Mileage = *req.Mileage
	}
	if req.Price != nil {
		c.Price = *req.Price
	}
	if req.Description != nil {
		c.Desc = *req.Description
	}

	// 预加载的关联不随 Save 写回
	c.Make, c.Model, c.Variant, c.Images = nil, nil, nil, nil
	if err := h.repo.Save(r.Context(), c); err != nil {
		server.WriteError(w, apperr.Internal(err), h.debug)
		return
	}
	if err := h.repo.AddImages(r.Context(), c.ID, req.ImagePaths); err != nil {
		server.WriteError(w, apperr.Internal(err), h.debug)
		return
	}

	latest, err := h.repo.FindByID(r.Context(), c.ID)
	if err != nil {
		latest = c
	}
	server.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"message": "Car updated successfully.",
		"car":     latest,
	})
}

func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	callerID, ok := server.UserIDFromRequest(r)
	if !ok {
		server.WriteError(w, apperr.Forbidden("login required"), h.debug)
		return
	}

	c, err := h.repo.FindByID(r.Context(), pathID(r))
	if errors.Is(err, gorm.ErrRecordNotFound) {
		server.WriteError(w, apperr.NotFound("car"), h.debug)
		return
	}
	if err != nil {
		server.WriteError(w, apperr.Internal(err), h.debug)
		return
	}
	if c.OwnerID != callerID {
		server.WriteError(w, apperr.Forbidden("Unauthorized"), h.debug)
		return
	}

	if err := h.repo.Delete(r.Context(), c.ID); err != nil {
		server.WriteError(w, apperr.Internal(err), h.debug)
		return
	}
	server.WriteJSON(w, http.StatusOK, map[string]string{"message": "Car deleted successfully."})
}
