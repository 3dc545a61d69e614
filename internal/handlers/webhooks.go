package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/benvon/membership-api/internal/actions"
	logpkg "github.com/benvon/membership-api/internal/logger"
	"github.com/benvon/membership-api/internal/models"
	"github.com/benvon/membership-api/internal/queue"
	"github.com/benvon/membership-api/internal/services/clerkauth"
	"github.com/clerk/clerk-sdk-go/v2"
	"github.com/gorilla/mux"
	svix "github.com/svix/svix-webhooks/go"
	"go.uber.org/zap"
)

const maxWebhookBody = 512 << 10

// JobEnqueuer publishes background jobs.
type JobEnqueuer interface {
	Enqueue(ctx context.Context, job *queue.Job) error
}

// WebhookHandler receives signed identity-provider and billing-provider events.
type WebhookHandler struct {
	identity *svix.Webhook
	billing  *svix.Webhook
	users    *actions.UserActions
	jobs     JobEnqueuer
	log      *zap.Logger
}

// NewWebhookHandler creates a webhook handler. An empty secret disables the matching
// endpoint.
func NewWebhookHandler(identitySecret, billingSecret string, users *actions.UserActions, jobs JobEnqueuer, log *zap.Logger) (*WebhookHandler, error) {
	if log == nil {
		log = zap.NewNop()
	}
	h := &WebhookHandler{users: users, jobs: jobs, log: log}
	var err error
	if identitySecret != "" {
		if h.identity, err = svix.NewWebhook(identitySecret); err != nil {
			return nil, fmt.Errorf("invalid identity webhook secret: %w", err)
		}
	}
	if billingSecret != "" {
		if h.billing, err = svix.NewWebhook(billingSecret); err != nil {
			return nil, fmt.Errorf("invalid billing webhook secret: %w", err)
		}
	}
	return h, nil
}

// RegisterRoutes registers webhook routes under the /api/v1/webhooks prefix.
func (h *WebhookHandler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/identity", h.HandleIdentity).Methods(http.MethodPost)
	r.HandleFunc("/billing", h.HandleBilling).Methods(http.MethodPost)
}

type webhookEvent struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// verified reads the body and checks its svix signature. It writes the error response
// itself and returns ok=false when the request must be rejected.
func (h *WebhookHandler) verified(w http.ResponseWriter, r *http.Request, wh *svix.Webhook) (webhookEvent, bool) {
	var ev webhookEvent
	if wh == nil {
		respondJSONError(w, http.StatusNotFound, "Webhook is not enabled")
		return ev, false
	}
	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		respondJSONError(w, http.StatusBadRequest, "Failed to read request body")
		return ev, false
	}
	if err := wh.Verify(body, r.Header); err != nil {
		h.log.Warn("webhook_signature_rejected",
			zap.String("path", logpkg.SanitizePath(r.URL.Path)),
			zap.Error(err),
		)
		respondJSONError(w, http.StatusUnauthorized, "Invalid webhook signature")
		return ev, false
	}
	if err := json.Unmarshal(body, &ev); err != nil || ev.Type == "" {
		respondJSONError(w, http.StatusBadRequest, "Invalid webhook payload")
		return ev, false
	}
	return ev, true
}

// HandleIdentity applies identity-provider user lifecycle events. user.created and
// user.updated provision the user; user.updated also syncs the email address.
func (h *WebhookHandler) HandleIdentity(w http.ResponseWriter, r *http.Request) {
	ev, ok := h.verified(w, r, h.identity)
	if !ok {
		return
	}

	switch ev.Type {
	case "user.created", "user.updated":
		var u clerk.User
		if err := json.Unmarshal(ev.Data, &u); err != nil || u.ID == "" {
			respondJSONError(w, http.StatusBadRequest, "Invalid user payload")
			return
		}
		profile := clerkauth.ProfileOf(&u)
		state := h.users.EnsureProvisioned(r.Context(), u.ID, profile)
		if state.OK() && ev.Type == "user.updated" {
			state = h.syncEmail(r.Context(), state, profile)
		}
		respondState(w, state, 0)
	case "user.deleted":
		var u struct {
			ID string `json:"id"`
		}
		if err := json.Unmarshal(ev.Data, &u); err != nil || u.ID == "" {
			respondJSONError(w, http.StatusBadRequest, "Invalid user payload")
			return
		}
		respondState(w, h.users.DeleteUser(r.Context(), u.ID), 0)
	default:
		h.log.Debug("webhook_event_ignored", zap.String("type", ev.Type))
		respondJSON(w, http.StatusOK, "Event ignored", nil)
	}
}

func (h *WebhookHandler) syncEmail(ctx context.Context, state actions.State, profile models.Profile) actions.State {
	user, ok := state.Data.(*models.User)
	if !ok || len(profile.Emails) == 0 || user.Email == profile.Emails[0] {
		return state
	}
	email := profile.Emails[0]
	return h.users.UpdateUser(ctx, user.Identity, models.UserUpdate{Email: &email})
}

// billingEvent is the data of a billing webhook. Identity is optional; it links a
// customer to a user the first time the customer is seen.
type billingEvent struct {
	CustomerID     string `json:"customer_id"`
	SubscriptionID string `json:"subscription_id"`
	Membership     string `json:"membership"`
	Identity       string `json:"identity"`
}

// HandleBilling queues billing events for the worker, which applies them to the user.
func (h *WebhookHandler) HandleBilling(w http.ResponseWriter, r *http.Request) {
	ev, ok := h.verified(w, r, h.billing)
	if !ok {
		return
	}

	var data billingEvent
	if err := json.Unmarshal(ev.Data, &data); err != nil || data.CustomerID == "" {
		respondJSONError(w, http.StatusBadRequest, "Invalid billing payload")
		return
	}
	if data.Membership != "" && !models.Membership(data.Membership).IsValid() {
		respondJSONError(w, http.StatusBadRequest, "Unknown membership")
		return
	}

	job := queue.NewBillingSyncJob(data.Identity, queue.BillingSync{
		EventType:      ev.Type,
		CustomerID:     data.CustomerID,
		SubscriptionID: data.SubscriptionID,
		Membership:     data.Membership,
	})
	if err := h.jobs.Enqueue(r.Context(), job); err != nil {
		h.log.Error("failed_to_enqueue_billing_sync_job",
			zap.String("event_type", ev.Type),
			zap.Error(err),
		)
		respondJSONError(w, http.StatusServiceUnavailable, "Failed to queue billing event")
		return
	}
	h.log.Info("enqueued_billing_sync_job",
		zap.String("job_id", job.ID.String()),
		zap.String("event_type", ev.Type),
	)
	respondJSON(w, http.StatusAccepted, "Billing event queued", map[string]string{"job_id": job.ID.String()})
}
