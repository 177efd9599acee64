package shared

// Scope identifies the tenant and company every lookup is isolated to.
type Scope struct {
	TenantID  string `json:"tenantId" validate:"required"`
	CompanyID string `json:"companyId" validate:"required"`
}
