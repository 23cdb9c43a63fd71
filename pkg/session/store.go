package session

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// TenantSession is the record written when a checkout finalizes
type TenantSession struct {
	TenantID       string    `json:"tenantId"`
	TenantName     string    `json:"tenantName"`
	SubscriptionID string    `json:"subscriptionId"`
	Plan           string    `json:"plan"`
	ActivatedAt    time.Time `json:"activatedAt"`
}

// Store persists tenant sessions
type Store interface {
	// SetTenant stores the session for its tenant, replacing any previous one
	SetTenant(ctx context.Context, session TenantSession) error
	// GetTenant retrieves a tenant's session; nil without error on a miss
	GetTenant(ctx context.Context, tenantID string) (*TenantSession, error)
	// DeleteTenant removes a tenant's session
	DeleteTenant(ctx context.Context, tenantID string) error
	// Ping checks backend connectivity
	Ping(ctx context.Context) error
	// Close releases backend resources
	Close() error
}

// MemoryStore is an in-process Store for tests and local development
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]TenantSession
}

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{sessions: make(map[string]TenantSession)}
}

// SetTenant stores the session for its tenant
func (s *MemoryStore) SetTenant(_ context.Context, session TenantSession) error {
	if session.TenantID == "" {
		return fmt.Errorf("tenant session missing tenant ID")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[session.TenantID] = session
	return nil
}

// GetTenant retrieves a tenant's session
func (s *MemoryStore) GetTenant(_ context.Context, tenantID string) (*TenantSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	session, ok := s.sessions[tenantID]
	if !ok {
		return nil, nil
	}
	return &session, nil
}

// DeleteTenant removes a tenant's session
func (s *MemoryStore) DeleteTenant(_ context.Context, tenantID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, tenantID)
	return nil
}

// Ping always succeeds for the in-memory store
func (s *MemoryStore) Ping(_ context.Context) error {
	return nil
}

// Close is a no-op for the in-memory store
func (s *MemoryStore) Close() error {
	return nil
}
