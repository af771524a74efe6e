package memory

import (
	"context"
	"sync"

	"github.com/planhive/backend/domain"
	"github.com/planhive/backend/repository"
)

// GroupDirectory is an in-memory membership table for development and
// tests.
type GroupDirectory struct {
	mu      sync.RWMutex
	members map[string][]string
	admins  map[string][]string
}

var _ repository.GroupDirectory = (*GroupDirectory)(nil)

func NewGroupDirectory() *GroupDirectory {
	return &GroupDirectory{
		members: make(map[string][]string),
		admins:  make(map[string][]string),
	}
}

// SetGroup replaces a group's membership.
func (d *GroupDirectory) SetGroup(groupID string, members, admins []string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.members[groupID] = append([]string(nil), members...)
	d.admins[groupID] = append([]string(nil), admins...)
}

func (d *GroupDirectory) Members(ctx context.Context, groupID string) ([]string, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	members, ok := d.members[groupID]
	if !ok {
		return nil, domain.NewError(domain.ErrCodeNotFound, "group not found")
	}
	return append([]string(nil), members...), nil
}

func (d *GroupDirectory) Admins(ctx context.Context, groupID string) ([]string, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	admins, ok := d.admins[groupID]
	if !ok {
		return nil, domain.NewError(domain.ErrCodeNotFound, "group not found")
	}
	return append([]string(nil), admins...), nil
}
