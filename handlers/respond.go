package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/phonginreallife/enablement/authz"
	"github.com/phonginreallife/enablement/services"
)

func ok(c *gin.Context, status int, data interface{}) {
	c.JSON(status, gin.H{"success": true, "data": data})
}

func fail(c *gin.Context, status int, message string) {
	c.JSON(status, gin.H{"success": false, "error": message})
}

// statusFor maps a service error to its HTTP status
func statusFor(err error) int {
	switch services.KindOf(err) {
	case services.KindValidation:
		return http.StatusBadRequest
	case services.KindPermissionDenied:
		return http.StatusForbidden
	case services.KindNotFound:
		return http.StatusNotFound
	case services.KindQuotaExceeded:
		return http.StatusTooManyRequests
	case services.KindConflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func failWith(c *gin.Context, err error) {
	status := statusFor(err)
	message := err.Error()
	if status == http.StatusInternalServerError {
		// Do not leak driver errors
		_ = c.Error(err)
		message = "internal server error"
	}
	c.JSON(status, gin.H{"success": false, "error": message, "kind": services.KindOf(err)})
}

// caller returns the authenticated caller or writes 401
func caller(c *gin.Context) (authz.Caller, bool) {
	who, found := authz.CallerFrom(c)
	if !found {
		fail(c, http.StatusUnauthorized, "unauthorized")
		return authz.Caller{}, false
	}
	return who, true
}
