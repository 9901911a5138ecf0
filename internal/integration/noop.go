package integration

import (
	"context"
	"log/slog"
)

// Noop implementations for local development and environments where an
// external system is not configured. Every operation succeeds after logging
// at debug level, so the task and queue machinery can be exercised end to
// end without credentials.

// NoopChat is a ChatService that performs no external calls.
type NoopChat struct {
	Logger *slog.Logger
}

func (n *NoopChat) log() *slog.Logger {
	if n.Logger != nil {
		return n.Logger
	}
	return slog.Default()
}

func (n *NoopChat) Connect(ctx context.Context) error { return nil }
func (n *NoopChat) Close() error                      { return nil }

func (n *NoopChat) AssignRole(ctx context.Context, userID, roleID string) error {
	n.log().Debug("noop chat: assign role", "user_id", userID, "role_id", roleID)
	return nil
}

func (n *NoopChat) RemoveRole(ctx context.Context, userID, roleID string) error {
	n.log().Debug("noop chat: remove role", "user_id", userID, "role_id", roleID)
	return nil
}

func (n *NoopChat) CreateRole(ctx context.Context, name string) (string, error) {
	n.log().Debug("noop chat: create role", "name", name)
	return "noop-role", nil
}

func (n *NoopChat) CreateChannel(ctx context.Context, name string) (string, error) {
	n.log().Debug("noop chat: create channel", "name", name)
	return "noop-channel", nil
}

func (n *NoopChat) GetMember(ctx context.Context, userID string) (bool, error) {
	return true, nil
}

// NoopWiki is a WikiService that performs no external calls.
type NoopWiki struct{}

func (NoopWiki) CreatePage(ctx context.Context, path, title, content string) (string, error) {
	return "noop-page", nil
}
func (NoopWiki) UpdatePage(ctx context.Context, pageID, content string) error { return nil }
func (NoopWiki) GetPageByPath(ctx context.Context, path string) (string, error) {
	return "", nil
}

// NoopStorage is a StorageService that performs no external calls.
type NoopStorage struct{}

func (NoopStorage) EnsureFolder(ctx context.Context, path string) (string, error) {
	return "noop-folder", nil
}
func (NoopStorage) AddMember(ctx context.Context, folderID, userID string) error    { return nil }
func (NoopStorage) RemoveMember(ctx context.Context, folderID, userID string) error { return nil }

// NoopSourceControl is a SourceControlService that performs no external calls.
type NoopSourceControl struct{}

func (NoopSourceControl) EnsureTeam(ctx context.Context, name string) (string, error) {
	return "noop-team", nil
}
func (NoopSourceControl) AddMember(ctx context.Context, teamID, userID string) error    { return nil }
func (NoopSourceControl) RemoveMember(ctx context.Context, teamID, userID string) error { return nil }

// NoopIdentity is an IdentityService that performs no external calls.
type NoopIdentity struct{}

func (NoopIdentity) EnsureGroup(ctx context.Context, name string) (string, error) {
	return "noop-group", nil
}
func (NoopIdentity) AddMember(ctx context.Context, groupID, userID string) error    { return nil }
func (NoopIdentity) RemoveMember(ctx context.Context, groupID, userID string) error { return nil }
func (NoopIdentity) SyncGroups(ctx context.Context, membership map[string][]string) error {
	return nil
}

// NoopEmail is an EmailService that drops mail after logging it.
type NoopEmail struct {
	Logger *slog.Logger
}

func (n *NoopEmail) Send(ctx context.Context, to, subject, body string) error {
	log := n.Logger
	if log == nil {
		log = slog.Default()
	}
	log.Debug("noop email: send", "to", to, "subject", subject)
	return nil
}

// NoopQRCode is a QRCodeGenerator returning a fixed placeholder.
type NoopQRCode struct{}

func (NoopQRCode) Generate(ctx context.Context, payload string) ([]byte, error) {
	return []byte(payload), nil
}

// NoopPayment is a PaymentProvider that reports every payment as pending.
type NoopPayment struct{}

func (NoopPayment) CheckStatus(ctx context.Context, paymentID string) (string, error) {
	return "pending", nil
}
