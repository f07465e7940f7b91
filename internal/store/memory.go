package store

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/civicconnect/civic/internal/models"
)

// MemoryStore implements Store in process memory. Records are copied on the
// way in and out so callers never share state with the store.
type MemoryStore struct {
	mu     sync.RWMutex
	issues []*models.Issue // ordered by id
	users  []*models.User  // insertion order
}

// NewMemoryStore returns an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// Migrate is a no-op for the memory store.
func (m *MemoryStore) Migrate(_ context.Context) error { return nil }

// Close is a no-op for the memory store.
func (m *MemoryStore) Close() error { return nil }

// --- Issues ---

func (m *MemoryStore) CreateIssue(_ context.Context, issue *models.Issue) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if issue.ID == 0 {
		issue.ID = m.maxIssueID() + 1
	} else if m.indexOf(issue.ID) >= 0 {
		return fmt.Errorf("create issue: id %d already exists", issue.ID)
	}

	m.issues = append(m.issues, issue.Clone())
	sort.SliceStable(m.issues, func(i, j int) bool { return m.issues[i].ID < m.issues[j].ID })
	return nil
}

func (m *MemoryStore) GetIssue(_ context.Context, id int) (*models.Issue, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	idx := m.indexOf(id)
	if idx < 0 {
		return nil, fmt.Errorf("issue %d: %w", id, ErrNotFound)
	}
	return m.issues[idx].Clone(), nil
}

func (m *MemoryStore) ListIssues(_ context.Context, filter IssueListFilter) ([]*models.Issue, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var issues []*models.Issue
	for _, issue := range m.issues {
		if filter.Match(issue) {
			issues = append(issues, issue.Clone())
		}
	}
	return issues, nil
}

func (m *MemoryStore) UpdateIssue(_ context.Context, issue *models.Issue, expected models.IssueStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	idx := m.indexOf(issue.ID)
	if idx < 0 {
		return fmt.Errorf("issue %d: %w", issue.ID, ErrNotFound)
	}
	if m.issues[idx].Status != expected {
		return fmt.Errorf("issue %d is no longer %s: %w", issue.ID, expected, ErrConflict)
	}
	m.issues[idx] = issue.Clone()
	return nil
}

func (m *MemoryStore) maxIssueID() int {
	if len(m.issues) == 0 {
		return 0
	}
	return m.issues[len(m.issues)-1].ID
}

func (m *MemoryStore) indexOf(id int) int {
	i := sort.Search(len(m.issues), func(i int) bool { return m.issues[i].ID >= id })
	if i < len(m.issues) && m.issues[i].ID == id {
		return i
	}
	return -1
}

// --- Users ---

func (m *MemoryStore) UpsertUser(_ context.Context, u *models.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, existing := range m.users {
		if existing.ID != u.ID && strings.EqualFold(existing.Email, u.Email) {
			return fmt.Errorf("upsert user: email %s already belongs to %s", u.Email, existing.ID)
		}
	}

	cp := *u
	for i, existing := range m.users {
		if existing.ID == u.ID {
			m.users[i] = &cp
			return nil
		}
	}
	m.users = append(m.users, &cp)
	return nil
}

func (m *MemoryStore) GetUser(_ context.Context, id string) (*models.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, u := range m.users {
		if u.ID == id {
			cp := *u
			return &cp, nil
		}
	}
	return nil, fmt.Errorf("user %s: %w", id, ErrNotFound)
}

func (m *MemoryStore) GetUserByEmail(_ context.Context, email string) (*models.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, u := range m.users {
		if strings.EqualFold(u.Email, email) {
			cp := *u
			return &cp, nil
		}
	}
	return nil, fmt.Errorf("user with email %s: %w", email, ErrNotFound)
}

func (m *MemoryStore) ListUsers(_ context.Context) ([]*models.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	users := make([]*models.User, 0, len(m.users))
	for _, u := range m.users {
		cp := *u
		users = append(users, &cp)
	}
	return users, nil
}
