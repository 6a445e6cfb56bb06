package server

import (
	"net/http"
	"strconv"
)

// UserIDFromRequest 从请求 ctx 取出登录用户 ID（JWT subject）。
func UserIDFromRequest(r *http.Request) (uint, bool) {
	ai, ok := AuthFromContext(r.Context())
	if !ok {
		return 0, false
	}
	id, err := strconv.ParseUint(ai.Subject, 10, 64)
	if err != nil || id == 0 {
		return 0, false
	}
	return uint(id), true
}
