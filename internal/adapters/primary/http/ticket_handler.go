package http

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/lorrc/service-desk-realtime/internal/adapters/primary/validation"
	"github.com/lorrc/service-desk-realtime/internal/core/domain"
	"github.com/lorrc/service-desk-realtime/internal/core/ports"
)

var (
	ticketStatuses = []string{
		string(domain.StatusOpen),
		string(domain.StatusInProgress),
		string(domain.StatusResolved),
		string(domain.StatusClosed),
	}
	ticketPriorities = []string{
		string(domain.PriorityLow),
		string(domain.PriorityMedium),
		string(domain.PriorityHigh),
		string(domain.PriorityUrgent),
	}
)

// TicketHandler handles HTTP requests for tickets
type TicketHandler struct {
	ticketService  ports.TicketService
	commentHandler *CommentHandler
	errorHandler   *ErrorHandler
	logger         *slog.Logger
}

// NewTicketHandler creates a new ticket handler
func NewTicketHandler(
	ticketService ports.TicketService,
	commentHandler *CommentHandler,
	errorHandler *ErrorHandler,
	logger *slog.Logger,
) *TicketHandler {
	return &TicketHandler{
		ticketService:  ticketService,
		commentHandler: commentHandler,
		errorHandler:   errorHandler,
		logger:         logger.With("handler", "ticket"),
	}
}

// Router sets up a new chi Router for all ticket-related routes.
func (h *TicketHandler) Router() http.Handler {
	r := chi.NewRouter()
	h.RegisterRoutes(r)
	return r
}

// RegisterRoutes sets up the routing for all ticket endpoints.
func (h *TicketHandler) RegisterRoutes(r chi.Router) {
	r.Post("/", h.HandleCreateTicket)

	r.Route("/{ticketID}", func(r chi.Router) {
		r.Get("/", h.HandleGetTicket)
		r.Patch("/", h.HandleUpdateTicket)

		if h.commentHandler != nil {
			r.Route("/comments", h.commentHandler.RegisterRoutes)
		}
	})
}

// --- Request DTOs ---

// CreateTicketRequest defines the expected JSON body for creating a ticket
type CreateTicketRequest struct {
	Subject     string `json:"subject"`
	Description string `json:"description"`
	Priority    string `json:"priority"`
}

// Validate validates the create ticket request
func (r *CreateTicketRequest) Validate() error {
	v := validation.NewValidator()

	v.Required("subject", r.Subject).
		MaxLength("subject", r.Subject, domain.MaxSubjectLength)

	v.MaxLength("description", r.Description, domain.MaxDescriptionLength)

	if r.Priority != "" {
		v.OneOf("priority", r.Priority, ticketPriorities)
	}

	return v.Err()
}

// UpdateTicketRequest is a partial update. Omitted fields are left unchanged.
type UpdateTicketRequest struct {
	Subject     *string `json:"subject"`
	Description *string `json:"description"`
	Status      *string `json:"status"`
	Priority    *string `json:"priority"`
	AssignedTo  *string `json:"assignedTo"`
}

// Validate validates the update ticket request
func (r *UpdateTicketRequest) Validate() error {
	v := validation.NewValidator()

	v.Custom("body",
		r.Subject != nil || r.Description != nil || r.Status != nil || r.Priority != nil || r.AssignedTo != nil,
		"At least one field must be provided")

	if r.Subject != nil {
		v.Required("subject", *r.Subject).
			MaxLength("subject", *r.Subject, domain.MaxSubjectLength)
	}
	if r.Description != nil {
		v.MaxLength("description", *r.Description, domain.MaxDescriptionLength)
	}
	if r.Status != nil {
		v.Required("status", *r.Status).
			OneOf("status", *r.Status, ticketStatuses)
	}
	if r.Priority != nil {
		v.Required("priority", *r.Priority).
			OneOf("priority", *r.Priority, ticketPriorities)
	}
	if r.AssignedTo != nil {
		v.Required("assignedTo", *r.AssignedTo).
			UUID("assignedTo", *r.AssignedTo)
	}

	return v.Err()
}

// toPatch converts a validated request into a domain patch.
func (r *UpdateTicketRequest) toPatch() domain.TicketPatch {
	patch := domain.TicketPatch{
		Subject:     r.Subject,
		Description: r.Description,
	}
	if r.Status != nil {
		status := domain.TicketStatus(*r.Status)
		patch.Status = &status
	}
	if r.Priority != nil {
		priority := domain.TicketPriority(*r.Priority)
		patch.Priority = &priority
	}
	if r.AssignedTo != nil {
		assignee := uuid.MustParse(*r.AssignedTo)
		patch.AssignedTo = &assignee
	}
	return patch
}

// --- Handlers ---

// HandleCreateTicket handles POST /tickets
func (h *TicketHandler) HandleCreateTicket(w http.ResponseWriter, r *http.Request) {
	actor, ok := getActor(w, r)
	if !ok {
		return
	}

	req, err := validation.DecodeAndValidate[CreateTicketRequest](w, r)
	if err != nil {
		h.errorHandler.Handle(w, r, err)
		return
	}

	ticket, err := h.ticketService.CreateTicket(r.Context(), ports.CreateTicketParams{
		Actor:       actor,
		Subject:     req.Subject,
		Description: req.Description,
		Priority:    domain.TicketPriority(req.Priority),
	})
	if err != nil {
		h.errorHandler.Handle(w, r, err)
		return
	}

	h.logger.InfoContext(r.Context(), "ticket created", "ticket_id", ticket.ID)
	WriteCreated(w, domain.NewTicketSnapshot(ticket))
}

// HandleGetTicket handles GET /tickets/{ticketID}
func (h *TicketHandler) HandleGetTicket(w http.ResponseWriter, r *http.Request) {
	actor, ok := getActor(w, r)
	if !ok {
		return
	}

	ticketID, err := parseUUIDParam(r, "ticketID")
	if err != nil {
		h.errorHandler.Handle(w, r, err)
		return
	}

	ticket, err := h.ticketService.GetTicket(r.Context(), ticketID, actor)
	if err != nil {
		h.errorHandler.Handle(w, r, err)
		return
	}

	WriteJSON(w, http.StatusOK, domain.NewTicketSnapshot(ticket))
}

// HandleUpdateTicket handles PATCH /tickets/{ticketID}. Subscribers receive
// the updated ticket as a TicketUpdate event.
func (h *TicketHandler) HandleUpdateTicket(w http.ResponseWriter, r *http.Request) {
	actor, ok := getActor(w, r)
	if !ok {
		return
	}

	ticketID, err := parseUUIDParam(r, "ticketID")
	if err != nil {
		h.errorHandler.Handle(w, r, err)
		return
	}

	req, err := validation.DecodeAndValidate[UpdateTicketRequest](w, r)
	if err != nil {
		h.errorHandler.Handle(w, r, err)
		return
	}

	ticket, err := h.ticketService.UpdateTicket(r.Context(), ports.UpdateTicketParams{
		Actor:    actor,
		TicketID: ticketID,
		Patch:    req.toPatch(),
	})
	if err != nil {
		h.errorHandler.Handle(w, r, err)
		return
	}

	WriteJSON(w, http.StatusOK, domain.NewTicketSnapshot(ticket))
}
