package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/clubworks/backend/internal/integration"
	"github.com/clubworks/backend/internal/queue"
)

// The notification workers are causally simple: one external call per job,
// no task record, no subtask tree. Failures propagate to the owning queue's
// retry policy.

// EmailPayload is the email-queue job body.
type EmailPayload struct {
	To      string `json:"to"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

// Mailer consumes email jobs.
type Mailer struct {
	email  integration.EmailService
	logger *slog.Logger
}

// NewMailer creates a Mailer over the email service.
func NewMailer(email integration.EmailService, logger *slog.Logger) *Mailer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Mailer{
		email:  email,
		logger: logger.With("component", "email_worker"),
	}
}

// Handle sends one email.
func (w *Mailer) Handle(ctx context.Context, job *queue.Job) error {
	var payload EmailPayload
	if err := json.Unmarshal(job.Payload, &payload); err != nil {
		return fmt.Errorf("failed to unmarshal email payload: %w", err)
	}

	if err := w.email.Send(ctx, payload.To, payload.Subject, payload.Body); err != nil {
		return fmt.Errorf("failed to send email: %w", err)
	}

	w.logger.Info("email sent", "to", payload.To, "job_id", job.ID)
	return nil
}

// QRCodePayload is the qr-code-queue job body.
type QRCodePayload struct {
	TicketID string `json:"ticket_id"`
	Content  string `json:"content"`
}

// QRCodeWorker consumes QR code generation jobs.
type QRCodeWorker struct {
	generator integration.QRCodeGenerator
	logger    *slog.Logger
}

// NewQRCodeWorker creates a QRCodeWorker over the generator.
func NewQRCodeWorker(generator integration.QRCodeGenerator, logger *slog.Logger) *QRCodeWorker {
	if logger == nil {
		logger = slog.Default()
	}
	return &QRCodeWorker{
		generator: generator,
		logger:    logger.With("component", "qr_code_worker"),
	}
}

// Handle renders one QR code.
func (w *QRCodeWorker) Handle(ctx context.Context, job *queue.Job) error {
	var payload QRCodePayload
	if err := json.Unmarshal(job.Payload, &payload); err != nil {
		return fmt.Errorf("failed to unmarshal qr code payload: %w", err)
	}

	data, err := w.generator.Generate(ctx, payload.Content)
	if err != nil {
		return fmt.Errorf("failed to generate qr code: %w", err)
	}

	w.logger.Info("qr code generated",
		"ticket_id", payload.TicketID,
		"bytes", len(data),
		"job_id", job.ID)
	return nil
}

// PaymentStatusPayload is the payment-status-queue job body.
type PaymentStatusPayload struct {
	PaymentID string `json:"payment_id"`
}

// PaymentStatusWorker consumes payment status check jobs.
type PaymentStatusWorker struct {
	provider integration.PaymentProvider
	logger   *slog.Logger
}

// NewPaymentStatusWorker creates a PaymentStatusWorker over the provider.
func NewPaymentStatusWorker(provider integration.PaymentProvider, logger *slog.Logger) *PaymentStatusWorker {
	if logger == nil {
		logger = slog.Default()
	}
	return &PaymentStatusWorker{
		provider: provider,
		logger:   logger.With("component", "payment_status_worker"),
	}
}

// Handle checks one payment's status.
func (w *PaymentStatusWorker) Handle(ctx context.Context, job *queue.Job) error {
	var payload PaymentStatusPayload
	if err := json.Unmarshal(job.Payload, &payload); err != nil {
		return fmt.Errorf("failed to unmarshal payment status payload: %w", err)
	}

	status, err := w.provider.CheckStatus(ctx, payload.PaymentID)
	if err != nil {
		return fmt.Errorf("failed to check payment status: %w", err)
	}

	w.logger.Info("payment status checked",
		"payment_id", payload.PaymentID,
		"status", status,
		"job_id", job.ID)
	return nil
}

// GroupSyncPayload is the sync-groups-queue job body: desired membership
// keyed by group name.
type GroupSyncPayload struct {
	Membership map[string][]string `json:"membership"`
}

// GroupSyncWorker consumes identity group sync jobs.
type GroupSyncWorker struct {
	identity integration.IdentityService
	logger   *slog.Logger
}

// NewGroupSyncWorker creates a GroupSyncWorker over the identity service.
func NewGroupSyncWorker(identity integration.IdentityService, logger *slog.Logger) *GroupSyncWorker {
	if logger == nil {
		logger = slog.Default()
	}
	return &GroupSyncWorker{
		identity: identity,
		logger:   logger.With("component", "group_sync_worker"),
	}
}

// Handle reconciles identity provider groups.
func (w *GroupSyncWorker) Handle(ctx context.Context, job *queue.Job) error {
	var payload GroupSyncPayload
	if err := json.Unmarshal(job.Payload, &payload); err != nil {
		return fmt.Errorf("failed to unmarshal group sync payload: %w", err)
	}

	if err := w.identity.SyncGroups(ctx, payload.Membership); err != nil {
		return fmt.Errorf("failed to sync groups: %w", err)
	}

	w.logger.Info("groups synced", "group_count", len(payload.Membership), "job_id", job.ID)
	return nil
}
