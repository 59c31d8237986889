package authz

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/sirupsen/logrus"
)

// ContextKeyCaller stores the authenticated Caller on the gin context
const ContextKeyCaller = "caller"

// Claims are the JWT claims carried by access tokens
type Claims struct {
	Role           string `json:"role"`
	OrganizationID string `json:"org_id"`
	jwt.RegisteredClaims
}

// Middleware authenticates requests and gates routes by capability
type Middleware struct {
	secret []byte
	logger *logrus.Logger
}

// NewMiddleware creates a new authorization middleware
func NewMiddleware(jwtSecret string, logger *logrus.Logger) *Middleware {
	return &Middleware{secret: []byte(jwtSecret), logger: logger}
}

// ParseToken validates an HS256 token and returns the Caller it carries
func (m *Middleware) ParseToken(tokenString string) (Caller, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return m.secret, nil
	})
	if err != nil {
		return Caller{}, err
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return Caller{}, errors.New("invalid token claims")
	}
	if claims.Subject == "" {
		return Caller{}, errors.New("token has no subject")
	}

	return Caller{
		UserID:         claims.Subject,
		Role:           Role(claims.Role),
		OrganizationID: claims.OrganizationID,
	}, nil
}

// ExtractTokenFromHeader extracts token from Authorization header
func ExtractTokenFromHeader(authHeader string) (string, error) {
	if authHeader == "" {
		return "", errors.New("authorization header is required")
	}

	parts := strings.Split(authHeader, " ")
	if len(parts) != 2 || parts[0] != "Bearer" {
		return "", errors.New("invalid authorization header format")
	}

	return parts[1], nil
}

// Authenticate validates the bearer token and stores the Caller in context
func (m *Middleware) Authenticate() gin.HandlerFunc {
	return func(c *gin.Context) {
		token, err := ExtractTokenFromHeader(c.GetHeader("Authorization"))
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"success": false,
				"error":   err.Error(),
			})
			return
		}

		caller, err := m.ParseToken(token)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"success": false,
				"error":   "Invalid token: " + err.Error(),
			})
			return
		}

		c.Set(ContextKeyCaller, caller)
		c.Set("user_id", caller.UserID)
		c.Next()
	}
}

// CallerFrom returns the Caller stored by Authenticate
func CallerFrom(c *gin.Context) (Caller, bool) {
	v, ok := c.Get(ContextKeyCaller)
	if !ok {
		return Caller{}, false
	}
	caller, ok := v.(Caller)
	return caller, ok
}

// RequireCapability middleware ensures the caller holds capability on :org_id
// Usage: orgs.GET("/features", mw.RequireCapability(authz.CapViewFeatures), h.List)
func (m *Middleware) RequireCapability(capability Capability) gin.HandlerFunc {
	return func(c *gin.Context) {
		caller, ok := CallerFrom(c)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"success": false,
				"error":   "User not authenticated",
			})
			return
		}

		orgID := c.Param("org_id")
		if orgID == "" {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
				"success": false,
				"error":   "Organization ID is required",
			})
			return
		}

		if !Allows(caller, capability, orgID) {
			m.logger.WithFields(logrus.Fields{
				"user_id":    caller.UserID,
				"role":       caller.Role,
				"org_id":     orgID,
				"capability": capability,
			}).Warn("AUTHZ DENIED - capability not granted")
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"success": false,
				"error":   "You don't have permission to perform this action",
			})
			return
		}

		c.Next()
	}
}
