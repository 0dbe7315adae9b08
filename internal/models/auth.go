package models

import (
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// UserRole represents the roles recognised by the payment workflow.
type UserRole string

const (
	RoleAdmin       UserRole = "ADMIN"
	RoleFinance     UserRole = "FINANCE"
	RoleFaepa       UserRole = "FAEPA"
	RoleCoordinator UserRole = "COORDINATOR"
	RoleProvider    UserRole = "PROVIDER"
)

// JWTClaims represents the access token payload issued by the host portal.
type JWTClaims struct {
	UserID   int64    `json:"user_id"`
	Role     UserRole `json:"role"`
	Email    string   `json:"email"`
	FullName string   `json:"full_name"`
	jwt.RegisteredClaims
}

// CanActAsFinance reports whether the actor may run finance operations.
func (c *JWTClaims) CanActAsFinance() bool {
	return c != nil && (c.Role == RoleFinance || c.Role == RoleAdmin)
}

// CanActAsPayer reports whether the actor may confirm payments.
func (c *JWTClaims) CanActAsPayer() bool {
	return c != nil && (c.Role == RoleFaepa || c.Role == RoleAdmin)
}

// CanActAsCoordinator reports whether the actor may decide requests.
func (c *JWTClaims) CanActAsCoordinator() bool {
	return c != nil && (c.Role == RoleCoordinator || c.Role == RoleAdmin)
}

// IsCoordinatorOf reports whether the actor is the coordinator snapshotted on the request.
func (c *JWTClaims) IsCoordinatorOf(req *PaymentRequest) bool {
	if c == nil || req == nil {
		return false
	}
	if c.UserID > 0 && req.CoordinatorUserID == c.UserID {
		return true
	}
	return c.Email != "" && strings.EqualFold(strings.TrimSpace(req.CoordinatorEmail), strings.TrimSpace(c.Email))
}

// Pagination contains pagination metadata returned in list responses.
type Pagination struct {
	Page       int `json:"page"`
	PageSize   int `json:"page_size"`
	TotalCount int `json:"total_count"`
}
