package services

import (
	"net/http"
	"strconv"
)

// subjectID pulls the authenticated user id placed on the request context by
// the auth middleware.
func subjectID(r *http.Request) (int64, bool) {
	switch v := r.Context().Value("userID").(type) {
	case int64:
		return v, true
	case string:
		id, err := strconv.ParseInt(v, 10, 64)
		return id, err == nil
	default:
		return 0, false
	}
}

// subjectRole pulls the authenticated role, empty when unauthenticated.
func subjectRole(r *http.Request) string {
	role, _ := r.Context().Value("role").(string)
	return role
}
