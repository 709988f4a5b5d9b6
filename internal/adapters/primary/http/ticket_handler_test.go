package http

import (
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/lorrc/service-desk-realtime/internal/core/domain"
	apperrors "github.com/lorrc/service-desk-realtime/internal/core/errors"
	"github.com/lorrc/service-desk-realtime/internal/core/ports"
)

func sampleTicket(owner uuid.UUID) *domain.Ticket {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	return &domain.Ticket{
		ID:        uuid.New(),
		Subject:   "Printer on fire",
		Status:    domain.StatusOpen,
		Priority:  domain.PriorityHigh,
		CreatedBy: owner,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func TestTicketHandler_Create(t *testing.T) {
	env := newTestEnv(t)
	user, token := env.signIn(t, domain.RoleCustomer)
	ticket := sampleTicket(user.ID)

	var got ports.CreateTicketParams
	env.tickets.On("CreateTicket", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) { got = args.Get(1).(ports.CreateTicketParams) }).
		Return(ticket, nil).Once()

	rec := env.do(http.MethodPost, "/tickets", token, `{"subject":"Printer on fire","priority":"HIGH"}`)

	requireStatus(t, rec, http.StatusCreated)
	assert.Equal(t, ports.Actor{ID: user.ID, Role: domain.RoleCustomer}, got.Actor)
	assert.Equal(t, "Printer on fire", got.Subject)
	assert.Equal(t, domain.PriorityHigh, got.Priority)

	resp := decodeBody[domain.TicketSnapshot](t, rec)
	assert.Equal(t, ticket.ID.String(), resp.ID)
	assert.Equal(t, "OPEN", resp.Status)
	assert.Nil(t, resp.AssignedTo)
}

func TestTicketHandler_CreateValidation(t *testing.T) {
	env := newTestEnv(t)
	_, token := env.signIn(t, domain.RoleCustomer)

	rec := env.do(http.MethodPost, "/tickets", token, `{"subject":"","priority":"SOMEDAY"}`)

	requireStatus(t, rec, http.StatusUnprocessableEntity)
	resp := decodeBody[ValidationErrorResponse](t, rec)
	assert.Contains(t, resp.Fields, "subject")
	assert.Contains(t, resp.Fields, "priority")
	env.tickets.AssertNotCalled(t, "CreateTicket", mock.Anything, mock.Anything)
}

func TestTicketHandler_Get(t *testing.T) {
	env := newTestEnv(t)
	user, token := env.signIn(t, domain.RoleAgent)
	ticket := sampleTicket(uuid.New())
	actor := ports.Actor{ID: user.ID, Role: domain.RoleAgent}

	env.tickets.On("GetTicket", mock.Anything, ticket.ID, actor).Return(ticket, nil)
	missing := uuid.New()
	env.tickets.On("GetTicket", mock.Anything, missing, actor).Return(nil, apperrors.ErrTicketNotFound)

	rec := env.do(http.MethodGet, "/tickets/"+ticket.ID.String(), token, "")
	requireStatus(t, rec, http.StatusOK)
	assert.Equal(t, ticket.ID.String(), decodeBody[domain.TicketSnapshot](t, rec).ID)

	rec = env.do(http.MethodGet, "/tickets/"+missing.String(), token, "")
	requireStatus(t, rec, http.StatusNotFound)
	assert.Equal(t, "TICKET_NOT_FOUND", decodeBody[ErrorResponse](t, rec).Code)

	rec = env.do(http.MethodGet, "/tickets/not-a-uuid", token, "")
	requireStatus(t, rec, http.StatusBadRequest)
}

func TestTicketHandler_Update(t *testing.T) {
	env := newTestEnv(t)
	user, token := env.signIn(t, domain.RoleAgent)
	ticket := sampleTicket(uuid.New())
	assignee := uuid.New()

	var got ports.UpdateTicketParams
	env.tickets.On("UpdateTicket", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) { got = args.Get(1).(ports.UpdateTicketParams) }).
		Return(ticket, nil).Once()

	rec := env.do(http.MethodPatch, "/tickets/"+ticket.ID.String(), token,
		`{"status":"IN_PROGRESS","assignedTo":"`+assignee.String()+`"}`)

	requireStatus(t, rec, http.StatusOK)
	assert.Equal(t, ticket.ID, got.TicketID)
	assert.Equal(t, user.ID, got.Actor.ID)
	require.NotNil(t, got.Patch.Status)
	assert.Equal(t, domain.StatusInProgress, *got.Patch.Status)
	require.NotNil(t, got.Patch.AssignedTo)
	assert.Equal(t, assignee, *got.Patch.AssignedTo)
	assert.Nil(t, got.Patch.Subject)
	assert.Nil(t, got.Patch.Priority)
}

func TestTicketHandler_UpdateErrors(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		serviceErr error
		wantStatus int
	}{
		{name: "empty patch", body: `{}`, wantStatus: http.StatusUnprocessableEntity},
		{name: "bad status", body: `{"status":"DONE"}`, wantStatus: http.StatusUnprocessableEntity},
		{name: "bad assignee", body: `{"assignedTo":"bob"}`, wantStatus: http.StatusUnprocessableEntity},
		{name: "forbidden", body: `{"priority":"LOW"}`, serviceErr: apperrors.ErrForbidden, wantStatus: http.StatusForbidden},
		{name: "store failure", body: `{"subject":"x"}`, serviceErr: errors.New("db down"), wantStatus: http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			_, token := env.signIn(t, domain.RoleCustomer)
			if tt.serviceErr != nil {
				env.tickets.On("UpdateTicket", mock.Anything, mock.Anything).Return(nil, tt.serviceErr)
			}

			rec := env.do(http.MethodPatch, "/tickets/"+uuid.NewString(), token, tt.body)

			requireStatus(t, rec, tt.wantStatus)
			if tt.serviceErr == nil {
				env.tickets.AssertNotCalled(t, "UpdateTicket", mock.Anything, mock.Anything)
			}
		})
	}
}

func TestTicketHandler_RequiresAuthentication(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(http.MethodGet, "/tickets/"+uuid.NewString(), "", "")
	requireStatus(t, rec, http.StatusUnauthorized)

	rec = env.do(http.MethodGet, "/tickets/"+uuid.NewString(), "not.a.token", "")
	requireStatus(t, rec, http.StatusUnauthorized)
	assert.Equal(t, "UNAUTHORIZED", decodeBody[ErrorResponse](t, rec).Code)
}

func TestTicketHandler_RevokedTokenRejected(t *testing.T) {
	env := newTestEnv(t)
	user, token := env.signIn(t, domain.RoleCustomer)
	user.TokenEpoch = 1

	rec := env.do(http.MethodGet, "/tickets/"+uuid.NewString(), token, "")

	requireStatus(t, rec, http.StatusUnauthorized)
	env.tickets.AssertNotCalled(t, "GetTicket", mock.Anything, mock.Anything, mock.Anything)
}

func TestTicketHandler_LookupUnavailable(t *testing.T) {
	env := newTestEnv(t)
	userID := uuid.New()
	env.users.On("GetByID", mock.Anything, userID).Return(nil, errors.New("connection refused"))
	token, _, err := env.tokens.Issue(userID, "a@example.com", domain.RoleAgent, 0)
	require.NoError(t, err)

	rec := env.do(http.MethodGet, "/tickets/"+uuid.NewString(), token, "")

	requireStatus(t, rec, http.StatusServiceUnavailable)
	assert.Equal(t, "5", rec.Header().Get("Retry-After"))
}
