package mailer

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/infocapsule/digest/internal/domain"
	"github.com/infocapsule/digest/internal/pkg/logger"
)

// DeliveryRecorder applies a delivery outcome to the user owning the
// recipient address. Returns false when no user matches.
type DeliveryRecorder interface {
	IncrementDeliveryCounter(ctx context.Context, email string, outcome domain.DeliveryOutcome) (bool, error)
}

// snsEnvelope is the SNS wrapper around SES notifications.
type snsEnvelope struct {
	Type         string `json:"Type"`
	SubscribeURL string `json:"SubscribeURL"`
	Message      string `json:"Message"`
	MessageId    string `json:"MessageId"`
	TopicArn     string `json:"TopicArn"`
}

// sesNotification is the SES event payload inside the SNS envelope.
// Recipient addresses live in different places per notification type.
type sesNotification struct {
	NotificationType string `json:"notificationType"`
	Bounce           *struct {
		BouncedRecipients []struct {
			EmailAddress string `json:"emailAddress"`
		} `json:"bouncedRecipients"`
	} `json:"bounce,omitempty"`
	Complaint *struct {
		ComplainedRecipients []struct {
			EmailAddress string `json:"emailAddress"`
		} `json:"complainedRecipients"`
	} `json:"complaint,omitempty"`
	Delivery *struct {
		Recipients []string `json:"recipients"`
	} `json:"delivery,omitempty"`
}

// notificationOutcomes is the fixed mapping from SES notification types
// to delivery outcomes. Unknown types are ignored.
var notificationOutcomes = map[string]domain.DeliveryOutcome{
	"Bounce":    domain.OutcomeBounced,
	"Complaint": domain.OutcomeComplained,
	"Delivery":  domain.OutcomeDelivered,
}

// EventHandler processes SES delivery notifications delivered via SNS.
type EventHandler struct {
	store      DeliveryRecorder
	httpClient *http.Client
}

// NewEventHandler creates an SNS webhook handler backed by the given recorder.
func NewEventHandler(store DeliveryRecorder) *EventHandler {
	return &EventHandler{
		store:      store,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

// ServeHTTP handles SNS POSTs. SubscriptionConfirmation messages are
// confirmed by fetching the subscribe URL. Everything else is parsed as
// an SES notification; the response is always 200 so SNS does not retry
// events we have already seen or cannot use.
func (h *EventHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "Failed to read body", http.StatusBadRequest)
		return
	}

	var envelope snsEnvelope
	if err := json.Unmarshal(body, &envelope); err != nil {
		http.Error(w, "Invalid JSON", http.StatusBadRequest)
		return
	}

	if envelope.Type == "SubscriptionConfirmation" {
		h.confirmSubscription(envelope.SubscribeURL)
		w.WriteHeader(http.StatusOK)
		return
	}

	// Raw message delivery posts the notification directly; otherwise it
	// is nested in the envelope's Message field.
	payload := envelope.Message
	if payload == "" {
		payload = string(body)
	}

	var note sesNotification
	if err := json.Unmarshal([]byte(payload), &note); err != nil {
		logger.Error("Failed to parse delivery notification", "error", err.Error())
		w.WriteHeader(http.StatusOK)
		return
	}

	outcome, ok := notificationOutcomes[note.NotificationType]
	if !ok {
		logger.Debug("Ignoring notification type", "type", note.NotificationType)
		w.WriteHeader(http.StatusOK)
		return
	}

	for _, recipient := range note.recipients() {
		h.record(r.Context(), recipient, outcome)
	}

	w.WriteHeader(http.StatusOK)
}

func (h *EventHandler) confirmSubscription(subscribeURL string) {
	if subscribeURL == "" {
		return
	}
	logger.Info("Confirming SNS subscription")
	resp, err := h.httpClient.Get(subscribeURL)
	if err != nil {
		logger.Error("Failed to confirm SNS subscription", "error", err.Error())
		return
	}
	resp.Body.Close()
	logger.Info("SNS subscription confirmed")
}

func (h *EventHandler) record(ctx context.Context, recipient string, outcome domain.DeliveryOutcome) {
	matched, err := h.store.IncrementDeliveryCounter(ctx, recipient, outcome)
	if err != nil {
		logger.Error("Failed to record delivery outcome",
			"recipient", recipient,
			"outcome", string(outcome),
			"error", err.Error())
		return
	}
	if !matched {
		logger.Warn("Delivery event for unknown recipient",
			"recipient", recipient,
			"outcome", string(outcome))
		return
	}
	logger.Info("Recorded delivery outcome",
		"recipient", recipient,
		"outcome", string(outcome))
}

// recipients extracts the affected addresses for the notification type.
func (n *sesNotification) recipients() []string {
	switch {
	case n.Bounce != nil:
		out := make([]string, 0, len(n.Bounce.BouncedRecipients))
		for _, r := range n.Bounce.BouncedRecipients {
			out = append(out, r.EmailAddress)
		}
		return out
	case n.Complaint != nil:
		out := make([]string, 0, len(n.Complaint.ComplainedRecipients))
		for _, r := range n.Complaint.ComplainedRecipients {
			out = append(out, r.EmailAddress)
		}
		return out
	case n.Delivery != nil:
		return n.Delivery.Recipients
	}
	return nil
}
