package domain

const RoleSuperAdmin = "superadmin"

// Operator is the authenticated caller of the management API.
type Operator struct {
	UserID    string
	CompanyID string
	Role      string
}

func (o Operator) IsSuperAdmin() bool {
	return o.Role == RoleSuperAdmin
}

func (o Operator) CanAccess(companyID string) bool {
	return o.IsSuperAdmin() || (o.CompanyID != "" && o.CompanyID == companyID)
}

// ScopeCompany returns the company filter for list queries. Empty means all.
func (o Operator) ScopeCompany() string {
	if o.IsSuperAdmin() {
		return ""
	}
	return o.CompanyID
}
