package auth

// Principal is the authenticated caller of a request.
type Principal interface {
	GetID() string
	GetEmail() string
	GetDisplayName() string
	GetRoles() []string
}

// BasePrincipal is a simple implementation of Principal.
type BasePrincipal struct {
	ID          string
	Email       string
	DisplayName string
	Roles       []string
}

func (b *BasePrincipal) GetID() string          { return b.ID }
func (b *BasePrincipal) GetEmail() string       { return b.Email }
func (b *BasePrincipal) GetDisplayName() string { return b.DisplayName }
func (b *BasePrincipal) GetRoles() []string     { return b.Roles }

// Subject is the identity a request acts on after impersonation has been
// resolved.
type Subject struct {
	ID            string `json:"id"`
	Email         string `json:"email,omitempty"`
	DisplayName   string `json:"display_name,omitempty"`
	Impersonating bool   `json:"impersonating"`
}
