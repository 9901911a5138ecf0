package mocks

import (
	"context"
	"sync"
)

// MockChatService implements integration.ChatService for testing
type MockChatService struct {
	// Function fields for customizable behavior
	AssignRoleFn    func(ctx context.Context, userID, roleID string) error
	RemoveRoleFn    func(ctx context.Context, userID, roleID string) error
	CreateRoleFn    func(ctx context.Context, name string) (string, error)
	CreateChannelFn func(ctx context.Context, name string) (string, error)
	GetMemberFn     func(ctx context.Context, userID string) (bool, error)

	// Default error applied when no Fn is set
	Err error

	// Call tracking for verification
	mu              sync.Mutex
	AssignedRoles   [][2]string
	RemovedRoles    [][2]string
	CreatedChannels []string
}

// Connect implements the integration.ChatService interface
func (m *MockChatService) Connect(ctx context.Context) error { return nil }

// Close implements the integration.ChatService interface
func (m *MockChatService) Close() error { return nil }

// AssignRole implements the integration.ChatService interface
func (m *MockChatService) AssignRole(ctx context.Context, userID, roleID string) error {
	m.mu.Lock()
	m.AssignedRoles = append(m.AssignedRoles, [2]string{userID, roleID})
	m.mu.Unlock()

	if m.AssignRoleFn != nil {
		return m.AssignRoleFn(ctx, userID, roleID)
	}
	return m.Err
}

// RemoveRole implements the integration.ChatService interface
func (m *MockChatService) RemoveRole(ctx context.Context, userID, roleID string) error {
	m.mu.Lock()
	m.RemovedRoles = append(m.RemovedRoles, [2]string{userID, roleID})
	m.mu.Unlock()

	if m.RemoveRoleFn != nil {
		return m.RemoveRoleFn(ctx, userID, roleID)
	}
	return m.Err
}

// CreateRole implements the integration.ChatService interface
func (m *MockChatService) CreateRole(ctx context.Context, name string) (string, error) {
	if m.CreateRoleFn != nil {
		return m.CreateRoleFn(ctx, name)
	}
	return "role-" + name, m.Err
}

// CreateChannel implements the integration.ChatService interface
func (m *MockChatService) CreateChannel(ctx context.Context, name string) (string, error) {
	m.mu.Lock()
	m.CreatedChannels = append(m.CreatedChannels, name)
	m.mu.Unlock()

	if m.CreateChannelFn != nil {
		return m.CreateChannelFn(ctx, name)
	}
	return "channel-" + name, m.Err
}

// GetMember implements the integration.ChatService interface
func (m *MockChatService) GetMember(ctx context.Context, userID string) (bool, error) {
	if m.GetMemberFn != nil {
		return m.GetMemberFn(ctx, userID)
	}
	return true, m.Err
}

// MockWikiService implements integration.WikiService for testing
type MockWikiService struct {
	CreatePageFn    func(ctx context.Context, path, title, content string) (string, error)
	UpdatePageFn    func(ctx context.Context, pageID, content string) error
	GetPageByPathFn func(ctx context.Context, path string) (string, error)
	Err             error
}

// CreatePage implements the integration.WikiService interface
func (m *MockWikiService) CreatePage(ctx context.Context, path, title, content string) (string, error) {
	if m.CreatePageFn != nil {
		return m.CreatePageFn(ctx, path, title, content)
	}
	return "page-1", m.Err
}

// UpdatePage implements the integration.WikiService interface
func (m *MockWikiService) UpdatePage(ctx context.Context, pageID, content string) error {
	if m.UpdatePageFn != nil {
		return m.UpdatePageFn(ctx, pageID, content)
	}
	return m.Err
}

// GetPageByPath implements the integration.WikiService interface
func (m *MockWikiService) GetPageByPath(ctx context.Context, path string) (string, error) {
	if m.GetPageByPathFn != nil {
		return m.GetPageByPathFn(ctx, path)
	}
	return "", m.Err
}

// MockStorageService implements integration.StorageService for testing
type MockStorageService struct {
	EnsureFolderFn func(ctx context.Context, path string) (string, error)
	Err            error
}

// EnsureFolder implements the integration.StorageService interface
func (m *MockStorageService) EnsureFolder(ctx context.Context, path string) (string, error) {
	if m.EnsureFolderFn != nil {
		return m.EnsureFolderFn(ctx, path)
	}
	return "folder-1", m.Err
}

// AddMember implements the integration.StorageService interface
func (m *MockStorageService) AddMember(ctx context.Context, folderID, userID string) error {
	return m.Err
}

// RemoveMember implements the integration.StorageService interface
func (m *MockStorageService) RemoveMember(ctx context.Context, folderID, userID string) error {
	return m.Err
}

// MockSourceControlService implements integration.SourceControlService for testing
type MockSourceControlService struct {
	EnsureTeamFn func(ctx context.Context, name string) (string, error)
	Err          error
}

// EnsureTeam implements the integration.SourceControlService interface
func (m *MockSourceControlService) EnsureTeam(ctx context.Context, name string) (string, error) {
	if m.EnsureTeamFn != nil {
		return m.EnsureTeamFn(ctx, name)
	}
	return "team-1", m.Err
}

// AddMember implements the integration.SourceControlService interface
func (m *MockSourceControlService) AddMember(ctx context.Context, teamID, userID string) error {
	return m.Err
}

// RemoveMember implements the integration.SourceControlService interface
func (m *MockSourceControlService) RemoveMember(ctx context.Context, teamID, userID string) error {
	return m.Err
}

// MockIdentityService implements integration.IdentityService for testing
type MockIdentityService struct {
	EnsureGroupFn func(ctx context.Context, name string) (string, error)
	SyncGroupsFn  func(ctx context.Context, membership map[string][]string) error
	Err           error

	mu         sync.Mutex
	SyncCalls  int
	LastSynced map[string][]string
}

// EnsureGroup implements the integration.IdentityService interface
func (m *MockIdentityService) EnsureGroup(ctx context.Context, name string) (string, error) {
	if m.EnsureGroupFn != nil {
		return m.EnsureGroupFn(ctx, name)
	}
	return "group-" + name, m.Err
}

// AddMember implements the integration.IdentityService interface
func (m *MockIdentityService) AddMember(ctx context.Context, groupID, userID string) error {
	return m.Err
}

// RemoveMember implements the integration.IdentityService interface
func (m *MockIdentityService) RemoveMember(ctx context.Context, groupID, userID string) error {
	return m.Err
}

// SyncGroups implements the integration.IdentityService interface
func (m *MockIdentityService) SyncGroups(ctx context.Context, membership map[string][]string) error {
	m.mu.Lock()
	m.SyncCalls++
	m.LastSynced = membership
	m.mu.Unlock()

	if m.SyncGroupsFn != nil {
		return m.SyncGroupsFn(ctx, membership)
	}
	return m.Err
}

// MockEmailService implements integration.EmailService for testing
type MockEmailService struct {
	SendFn func(ctx context.Context, to, subject, body string) error
	Err    error

	mu   sync.Mutex
	Sent []string
}

// Send implements the integration.EmailService interface
func (m *MockEmailService) Send(ctx context.Context, to, subject, body string) error {
	m.mu.Lock()
	m.Sent = append(m.Sent, to)
	m.mu.Unlock()

	if m.SendFn != nil {
		return m.SendFn(ctx, to, subject, body)
	}
	return m.Err
}

// MockQRCodeGenerator implements integration.QRCodeGenerator for testing
type MockQRCodeGenerator struct {
	GenerateFn func(ctx context.Context, payload string) ([]byte, error)
	Err        error
}

// Generate implements the integration.QRCodeGenerator interface
func (m *MockQRCodeGenerator) Generate(ctx context.Context, payload string) ([]byte, error) {
	if m.GenerateFn != nil {
		return m.GenerateFn(ctx, payload)
	}
	return []byte("qr:" + payload), m.Err
}

// MockPaymentProvider implements integration.PaymentProvider for testing
type MockPaymentProvider struct {
	CheckStatusFn func(ctx context.Context, paymentID string) (string, error)
	Status        string
	Err           error
}

// CheckStatus implements the integration.PaymentProvider interface
func (m *MockPaymentProvider) CheckStatus(ctx context.Context, paymentID string) (string, error) {
	if m.CheckStatusFn != nil {
		return m.CheckStatusFn(ctx, paymentID)
	}
	if m.Status != "" {
		return m.Status, m.Err
	}
	return "paid", m.Err
}
