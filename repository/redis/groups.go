package redis

import (
	"context"
	"fmt"

	redislib "github.com/redis/go-redis/v9"

	"github.com/planhive/backend/domain"
	"github.com/planhive/backend/repository"
)

// GroupDirectory reads group membership from Redis sets maintained by the
// account service.
type GroupDirectory struct {
	client *redislib.Client
}

var _ repository.GroupDirectory = (*GroupDirectory)(nil)

func NewGroupDirectory(client *redislib.Client) *GroupDirectory {
	return &GroupDirectory{client: client}
}

func (d *GroupDirectory) Members(ctx context.Context, groupID string) ([]string, error) {
	return d.readSet(ctx, fmt.Sprintf("group:%s:members", groupID))
}

func (d *GroupDirectory) Admins(ctx context.Context, groupID string) ([]string, error) {
	return d.readSet(ctx, fmt.Sprintf("group:%s:admins", groupID))
}

func (d *GroupDirectory) readSet(ctx context.Context, key string) ([]string, error) {
	ids, err := d.client.SMembers(ctx, key).Result()
	if err != nil {
		return nil, domain.WrapError(domain.ErrCodeTransport, "group lookup failed", err)
	}
	if len(ids) == 0 {
		return nil, domain.NewError(domain.ErrCodeNotFound, "group not found")
	}
	return ids, nil
}
