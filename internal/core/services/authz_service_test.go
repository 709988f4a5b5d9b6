package services

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lorrc/service-desk-realtime/internal/core/domain"
)

func TestAuthorizationService_Can(t *testing.T) {
	svc := NewAuthorizationService()

	tests := []struct {
		name       string
		role       domain.Role
		permission string
		want       bool
	}{
		{"customer creates tickets", domain.RoleCustomer, PermTicketsCreate, true},
		{"customer cannot read all tickets", domain.RoleCustomer, PermTicketsReadAll, false},
		{"customer cannot triage", domain.RoleCustomer, PermTicketsTriage, false},
		{"customer cannot write internal notes", domain.RoleCustomer, PermCommentsInternal, false},
		{"agent reads all tickets", domain.RoleAgent, PermTicketsReadAll, true},
		{"agent triages", domain.RoleAgent, PermTicketsTriage, true},
		{"admin writes internal notes", domain.RoleAdmin, PermCommentsInternal, true},
		{"unknown role gets nothing", domain.Role("guest"), PermTicketsCreate, false},
		{"unknown permission is denied", domain.RoleAdmin, "tickets:delete", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, svc.Can(tt.role, tt.permission))
		})
	}
}

func TestAuthorizationService_PermissionsReturnsCopy(t *testing.T) {
	svc := NewAuthorizationService()

	perms := svc.Permissions(domain.RoleCustomer)
	require.NotEmpty(t, perms)
	perms[0] = "tampered"

	assert.True(t, svc.Can(domain.RoleCustomer, PermTicketsCreate))
	assert.Empty(t, svc.Permissions(domain.Role("guest")))
}
