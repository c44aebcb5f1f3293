package handlers

import (
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/vitrinehq/vitrine/internal/domain"
	"github.com/vitrinehq/vitrine/internal/service"
)

// errIgnoredEvent marks deliveries we acknowledge without acting on, either
// an event type outside our closed set or one missing its subscription.
var errIgnoredEvent = errors.New("ignored event")

// WebhookHandler receives billing provider deliveries. Signature
// verification happens upstream at the gateway; when a shared secret is
// configured the delivery must carry it.
type WebhookHandler struct {
	billing *service.BillingService
	secret  string
	logger  *zap.Logger
}

func NewWebhookHandler(billing *service.BillingService, secret string, logger *zap.Logger) *WebhookHandler {
	return &WebhookHandler{billing: billing, secret: secret, logger: logger}
}

type webhookEnvelope struct {
	ID   string `json:"id"`
	Type string `json:"type"`
	Data struct {
		Object json.RawMessage `json:"object"`
	} `json:"data"`
}

func (h *WebhookHandler) Handle(w http.ResponseWriter, r *http.Request) {
	if h.secret != "" {
		presented := r.Header.Get("X-Webhook-Secret")
		if subtle.ConstantTimeCompare([]byte(presented), []byte(h.secret)) != 1 {
			writeError(w, http.StatusUnauthorized, "invalid webhook secret")
			return
		}
	}

	var env webhookEnvelope
	if err := json.NewDecoder(r.Body).Decode(&env); err != nil {
		writeError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	if env.ID == "" || env.Type == "" {
		writeError(w, http.StatusBadRequest, "missing event id or type")
		return
	}

	h.logger.Info("billing event received",
		zap.String("event_id", env.ID),
		zap.String("event_type", env.Type))

	ev, err := parseBillingEvent(env)
	if err != nil {
		if errors.Is(err, errIgnoredEvent) {
			writeJSON(w, http.StatusOK, map[string]string{"status": "ignored"})
			return
		}
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.billing.HandleEvent(r.Context(), ev); err != nil {
		h.logger.Error("billing event handling failed",
			zap.String("event_id", env.ID),
			zap.String("event_type", env.Type),
			zap.Error(err))
		writeError(w, http.StatusInternalServerError, "event handling failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "success"})
}

// parseBillingEvent maps a provider envelope onto one of the typed event
// variants. Anything outside the closed set is ignored, not rejected.
func parseBillingEvent(env webhookEnvelope) (domain.BillingEvent, error) {
	switch env.Type {
	case "checkout.session.completed":
		var obj struct {
			Customer        string `json:"customer"`
			Subscription    string `json:"subscription"`
			CustomerEmail   string `json:"customer_email"`
			CustomerDetails struct {
				Email string `json:"email"`
			} `json:"customer_details"`
			PriceID string `json:"price_id"`
		}
		if err := json.Unmarshal(env.Data.Object, &obj); err != nil {
			return nil, fmt.Errorf("invalid checkout payload: %w", err)
		}
		email := obj.CustomerEmail
		if email == "" {
			email = obj.CustomerDetails.Email
		}
		if obj.Subscription == "" || email == "" {
			return nil, fmt.Errorf("checkout %s missing subscription or email", env.ID)
		}
		return domain.CheckoutCompleted{
			ID:             env.ID,
			SubscriptionID: obj.Subscription,
			CustomerID:     obj.Customer,
			CustomerEmail:  email,
			PriceID:        obj.PriceID,
		}, nil

	case "customer.subscription.updated":
		var obj struct {
			ID                 string `json:"id"`
			Status             string `json:"status"`
			CurrentPeriodStart int64  `json:"current_period_start"`
			CurrentPeriodEnd   int64  `json:"current_period_end"`
		}
		if err := json.Unmarshal(env.Data.Object, &obj); err != nil {
			return nil, fmt.Errorf("invalid subscription payload: %w", err)
		}
		ev := domain.SubscriptionUpdated{
			ID:             env.ID,
			SubscriptionID: obj.ID,
			Status:         obj.Status,
		}
		if obj.CurrentPeriodStart > 0 && obj.CurrentPeriodEnd > 0 {
			ev.PeriodStart = time.Unix(obj.CurrentPeriodStart, 0).UTC()
			ev.PeriodEnd = time.Unix(obj.CurrentPeriodEnd, 0).UTC()
		}
		return ev, nil

	case "customer.subscription.deleted":
		var obj struct {
			ID string `json:"id"`
		}
		if err := json.Unmarshal(env.Data.Object, &obj); err != nil {
			return nil, fmt.Errorf("invalid subscription payload: %w", err)
		}
		return domain.SubscriptionDeleted{ID: env.ID, SubscriptionID: obj.ID}, nil

	case "invoice.payment_failed", "invoice.payment_succeeded":
		var obj struct {
			Subscription string `json:"subscription"`
		}
		if err := json.Unmarshal(env.Data.Object, &obj); err != nil {
			return nil, fmt.Errorf("invalid invoice payload: %w", err)
		}
		if obj.Subscription == "" {
			// One-off invoices carry no subscription; nothing to do.
			return nil, errIgnoredEvent
		}
		if env.Type == "invoice.payment_failed" {
			return domain.PaymentFailed{ID: env.ID, SubscriptionID: obj.Subscription}, nil
		}
		return domain.PaymentSucceeded{ID: env.ID, SubscriptionID: obj.Subscription}, nil

	default:
		return nil, errIgnoredEvent
	}
}
