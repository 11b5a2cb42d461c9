package model

// AuthClaims are the verified claims of a tenant access token.
type AuthClaims struct {
	UserID   string `json:"sub"`
	TenantID string `json:"tenant"`
	Role     string `json:"role"`
	Type     string `json:"typ"`
	TokenID  string `json:"jti"`
}

const (
	RoleViewer = "viewer"
	RoleEditor = "editor"
	RoleAdmin  = "admin"
)
