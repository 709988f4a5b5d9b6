package services

import (
	"slices"

	"github.com/lorrc/service-desk-realtime/internal/core/domain"
	"github.com/lorrc/service-desk-realtime/internal/core/ports"
)

// Permissions checked by the ticket and comment use cases.
const (
	PermTicketsCreate     = "tickets:create"
	PermTicketsReadAll    = "tickets:read:all"
	PermTicketsUpdate     = "tickets:update"
	PermTicketsTriage     = "tickets:triage"
	PermCommentsCreate    = "comments:create"
	PermCommentsInternal  = "comments:internal"
	PermRealtimeSubscribe = "realtime:subscribe"
)

var rolePermissions = map[domain.Role][]string{
	domain.RoleCustomer: {
		PermTicketsCreate,
		PermTicketsUpdate,
		PermCommentsCreate,
		PermRealtimeSubscribe,
	},
	domain.RoleAgent: {
		PermTicketsCreate,
		PermTicketsReadAll,
		PermTicketsUpdate,
		PermTicketsTriage,
		PermCommentsCreate,
		PermCommentsInternal,
		PermRealtimeSubscribe,
	},
	domain.RoleAdmin: {
		PermTicketsCreate,
		PermTicketsReadAll,
		PermTicketsUpdate,
		PermTicketsTriage,
		PermCommentsCreate,
		PermCommentsInternal,
		PermRealtimeSubscribe,
	},
}

// AuthorizationService implements a static role based permission policy.
type AuthorizationService struct{}

// Ensure implementation matches the interface.
var _ ports.AuthorizationService = (*AuthorizationService)(nil)

// NewAuthorizationService creates a new service for authorization logic.
func NewAuthorizationService() ports.AuthorizationService {
	return &AuthorizationService{}
}

// Can checks if a role grants a specific permission. Unknown roles grant nothing.
func (s *AuthorizationService) Can(role domain.Role, permission string) bool {
	return slices.Contains(rolePermissions[role], permission)
}

// Permissions returns a copy of the permissions granted to role.
func (s *AuthorizationService) Permissions(role domain.Role) []string {
	return slices.Clone(rolePermissions[role])
}
