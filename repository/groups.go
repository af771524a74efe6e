package repository

import "context"

// GroupDirectory resolves group membership for reminder fan-out.
type GroupDirectory interface {
	// Members returns every user id in the group, including admins.
	Members(ctx context.Context, groupID string) ([]string, error)
	// Admins returns the group's admin user ids, used for notify-admin
	// activity reminders.
	Admins(ctx context.Context, groupID string) ([]string, error)
}
