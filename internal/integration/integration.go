// Package integration declares the capability interfaces for the external
// systems provisioning touches. Each interface is a boundary only; concrete
// clients live outside this codebase and mocks stand in for tests.
package integration

import "context"

// ChatService covers the role/channel operations of the chat platform.
// Implementations are expected to be safe for sequential use only; the
// dispatcher serializes role mutation for this reason.
type ChatService interface {
	// Connect establishes the client session. Must be called before any
	// other operation; Close releases it.
	Connect(ctx context.Context) error
	Close() error

	// AssignRole grants a role to a user.
	AssignRole(ctx context.Context, userID, roleID string) error

	// RemoveRole revokes a role from a user.
	RemoveRole(ctx context.Context, userID, roleID string) error

	// CreateRole creates a role and returns its id.
	CreateRole(ctx context.Context, name string) (string, error)

	// CreateChannel creates a channel and returns its id.
	CreateChannel(ctx context.Context, name string) (string, error)

	// GetMember reports whether the user is a member of the guild.
	GetMember(ctx context.Context, userID string) (bool, error)
}

// WikiService covers page management in the wiki system.
type WikiService interface {
	// CreatePage creates a page at the given path and returns its id.
	CreatePage(ctx context.Context, path, title, content string) (string, error)

	// UpdatePage replaces a page's content.
	UpdatePage(ctx context.Context, pageID, content string) error

	// GetPageByPath returns the id of the page at path, or empty if absent.
	GetPageByPath(ctx context.Context, path string) (string, error)
}

// StorageService covers shared-folder management in the file storage system.
type StorageService interface {
	// EnsureFolder creates the folder if missing and returns its id.
	EnsureFolder(ctx context.Context, path string) (string, error)

	// AddMember grants a user access to a folder.
	AddMember(ctx context.Context, folderID, userID string) error

	// RemoveMember revokes a user's access to a folder.
	RemoveMember(ctx context.Context, folderID, userID string) error
}

// SourceControlService covers team management in the source-control system.
type SourceControlService interface {
	// EnsureTeam creates the team if missing and returns its id.
	EnsureTeam(ctx context.Context, name string) (string, error)

	// AddMember adds a user to a team.
	AddMember(ctx context.Context, teamID, userID string) error

	// RemoveMember removes a user from a team.
	RemoveMember(ctx context.Context, teamID, userID string) error
}

// IdentityService covers group management in the identity provider.
type IdentityService interface {
	// EnsureGroup creates the group if missing and returns its id.
	EnsureGroup(ctx context.Context, name string) (string, error)

	// AddMember adds a user to a group.
	AddMember(ctx context.Context, groupID, userID string) error

	// RemoveMember removes a user from a group.
	RemoveMember(ctx context.Context, groupID, userID string) error

	// SyncGroups reconciles the provider's groups against the given
	// member lists, keyed by group name.
	SyncGroups(ctx context.Context, membership map[string][]string) error
}

// EmailService sends transactional mail.
type EmailService interface {
	Send(ctx context.Context, to, subject, body string) error
}

// QRCodeGenerator renders QR codes for event check-in.
type QRCodeGenerator interface {
	// Generate returns the encoded image bytes for the payload.
	Generate(ctx context.Context, payload string) ([]byte, error)
}

// PaymentProvider exposes payment status lookups.
type PaymentProvider interface {
	// CheckStatus returns the provider's status string for a payment.
	CheckStatus(ctx context.Context, paymentID string) (string, error)
}
