package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/CarLinkTrade/CarLinkTrade/internal/common/apperr"
)

// WriteJSON 下发 JSON 响应。
func WriteJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		_ = json.NewEncoder(w).Encode(v)
	}
}

// 错误响应体，对齐前端已有的 {message} / {success,errors} 两种格式。
type errorBody struct {
	Success *bool             `json:"success,omitempty"`
	Message string            `json:"message,omitempty"`
	Errors  map[string]string `json:"errors,omitempty"`
	Detail  string            `json:"detail,omitempty"` // 仅 debug 模式
}

// WriteError 按错误分类下发 HTTP 响应。
// debug=false 时内部错误不携带底层细节。
func WriteError(w http.ResponseWriter, err error, debug bool) {
	status := apperr.HTTPStatus(err)
	body := errorBody{}

	var ae *apperr.Error
	if errors.As(err, &ae) {
		switch ae.Kind {
		case apperr.KindValidation:
			f := false
			body.Success = &f
			body.Errors = ae.Fields
			if len(body.Errors) == 0 {
				body.Message = ae.Message
			}
		case apperr.KindInternal:
			body.Message = "internal server error"
			if debug {
				body.Detail = ae.Error()
			}
		default:
			body.Message = ae.Message
		}
	} else {
		body.Message = "internal server error"
		if debug {
			body.Detail = err.Error()
		}
	}

	WriteJSON(w, status, body)
}
