package user

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/CarLinkTrade/CarLinkTrade/internal/common/apperr"
	"github.com/CarLinkTrade/CarLinkTrade/internal/common/auth"
	"github.com/CarLinkTrade/CarLinkTrade/internal/common/config"
	"github.com/CarLinkTrade/CarLinkTrade/internal/common/logger"
	"github.com/CarLinkTrade/CarLinkTrade/internal/common/server"
	"github.com/gorilla/mux"
	"gorm.io/gorm"
)

const accessTokenTTL = 24 * time.Hour

// Handler 注册、登录与个人资料接口。
type Handler struct {
	repo    *Repo
	authCfg config.AuthConfig
	log     logger.Logger
	debug   bool
}

func NewHandler(db *gorm.DB, authCfg config.AuthConfig, log logger.Logger, debug bool) *Handler {
	return &Handler{
		repo:    NewRepo(db),
		authCfg: authCfg,
		log:     log,
		debug:   debug,
	}
}

func (h *Handler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/register", h.Register).Methods(http.MethodPost)
	r.HandleFunc("/login", h.Login).Methods(http.MethodPost)
	r.HandleFunc("/user", h.Me).Methods(http.MethodGet)
	r.HandleFunc("/user", h.Update).Methods(http.MethodPut)
}

type registerRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Phone    string `json:"phone"`
	Password string `json:"password"`
}

func (req *registerRequest) validate() error {
	fields := map[string]string{}
	if strings.TrimSpace(req.Name) == "" {
		fields["name"] = "name is required"
	}
	if !strings.Contains(req.Email, "@") {
		fields["email"] = "a valid email is required"
	}
	if len(req.Password) < 8 {
		fields["password"] = "password must be at least 8 characters"
	}
	if len(fields) > 0 {
		return apperr.Validation(fields)
	}
	return nil
}

func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		server.WriteError(w, apperr.ValidationField("body", "invalid JSON body"), h.debug)
		return
	}
	if err := req.validate(); err != nil {
		server.WriteError(w, err, h.debug)
		return
	}

	salt, err := GenerateSaltHex()
	if err != nil {
		server.WriteError(w, apperr.Internal(err), h.debug)
		return
	}
	hash, err := HashPassword(req.Password, salt)
	if err != nil {
		server.WriteError(w, apperr.Internal(err), h.debug)
		return
	}

	u := &User{
		Name:         strings.TrimSpace(req.Name),
		Email:        strings.ToLower(strings.TrimSpace(req.Email)),
		Phone:        strings.TrimSpace(req.Phone),
		PasswordHash: hash,
		PasswordSalt: salt,
		Roles:        "user",
	}
	if err := h.repo.Create(r.Context(), u); err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			server.WriteError(w, apperr.ValidationField("email", "email already registered"), h.debug)
			return
		}
		server.WriteError(w, apperr.Internal(err), h.debug)
		return
	}

	h.log.WithField("user_id", u.ID).Info("user registered")
	server.WriteJSON(w, http.StatusCreated, map[string]interface{}{
		"message": "Registered successfully",
		"user":    u,
	})
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		server.WriteError(w, apperr.ValidationField("body", "invalid JSON body"), h.debug)
		return
	}

	u, err := h.repo.FindByEmail(r.Context(), strings.ToLower(strings.TrimSpace(req.Email)))
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			h.writeBadCredentials(w)
			return
		}
		server.WriteError(w, apperr.Internal(err), h.debug)
		return
	}
	if !VerifyPassword(req.Password, u.PasswordSalt, u.PasswordHash) {
		h.writeBadCredentials(w)
		return
	}

	token, expiresAt, err := auth.GenerateAccessToken(h.authCfg, strconv.FormatUint(uint64(u.ID), 10), u.RolesSlice(), accessTokenTTL)
	if err != nil {
		server.WriteError(w, apperr.Internal(err), h.debug)
		return
	}
	server.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"token":      token,
		"expires_at": expiresAt,
		"user":       u,
	})
}

// writeBadCredentials 登录失败统一返回 401，不区分账号不存在与密码错误。
func (h *Handler) writeBadCredentials(w http.ResponseWriter) {
	server.WriteJSON(w, http.StatusUnauthorized, map[string]interface{}{
		"message": "Invalid credentials",
	})
}

func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	id, ok := server.UserIDFromRequest(r)
	if !ok {
		server.WriteError(w, apperr.Forbidden("login required"), h.debug)
		return
	}
	u, err := h.repo.FindByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			server.WriteError(w, apperr.NotFound("user"), h.debug)
			return
		}
		server.WriteError(w, apperr.Internal(err), h.debug)
		return
	}
	server.WriteJSON(w, http.StatusOK, u)
}

type updateUserRequest struct {
	Name     *string `json:"name"`
	Phone    *string `json:"phone"`
	Password *string `json:"password"`
}

func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	id, ok := server.UserIDFromRequest(r)
	if !ok {
		server.WriteError(w, apperr.Forbidden("login required"), h.debug)
		return
	}
	var req updateUserRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		server.WriteError(w, apperr.ValidationField("body", "invalid JSON body"), h.debug)
		return
	}

	u, err := h.repo.FindByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			server.WriteError(w, apperr.NotFound("user"), h.debug)
			return
		}
		server.WriteError(w, apperr.Internal(err), h.debug)
		return
	}

	if req.Name != nil {
		if strings.TrimSpace(*req.Name) == "" {
			server.WriteError(w, apperr.ValidationField("name", "name cannot be empty"), h.debug)
			return
		}
		u.Name = strings.TrimSpace(*req.Name)
	}
	if req.Phone != nil {
		u.Phone = strings.TrimSpace(*req.Phone)
	}
	if req.Password != nil {
		if len(*req.Password) < 8 {
			server.WriteError(w, apperr.ValidationField("password", "password must be at least 8 characters"), h.debug)
			return
		}
		salt, err := GenerateSaltHex()
		if err != nil {
			server.WriteError(w, apperr.Internal(err), h.debug)
			return
		}
		hash, err := HashPassword(*req.Password, salt)
		if err != nil {
			server.WriteError(w, apperr.Internal(err), h.debug)
			return
		}
		u.PasswordSalt = salt
		u.PasswordHash = hash
	}

	if err := h.repo.Save(r.Context(), u); err != nil {
		server.WriteError(w, apperr.Internal(err), h.debug)
		return
	}
	server.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"message": "Profile updated",
		"user":    u,
	})
}
