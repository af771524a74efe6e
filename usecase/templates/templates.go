// Package templates manages standalone reusable activity definitions. All
// of a user's templates live in one document keyed by template id; applying
// one copies it into a fresh activity for embedding in an event.
package templates

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/planhive/backend/domain"
	"github.com/planhive/backend/repository"
)

type UseCase struct {
	store  repository.DocumentStore
	logger *zap.Logger
	now    func() time.Time
}

func New(store repository.DocumentStore, logger *zap.Logger) *UseCase {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &UseCase{
		store:  store,
		logger: logger,
		now:    time.Now,
	}
}

// List returns every template the user owns. A user with no template
// document yet gets an empty list, not an error.
func (uc *UseCase) List(ctx context.Context, userID string) ([]domain.Template, error) {
	doc, err := uc.store.Get(ctx, repository.TemplatesPath(userID))
	if err != nil {
		if domain.IsDomainError(err, domain.ErrCodeNotFound) {
			return []domain.Template{}, nil
		}
		return nil, domain.WrapError(domain.ErrCodeTransport, "template read failed", err)
	}

	out := make([]domain.Template, 0, len(doc))
	for key, raw := range doc {
		tpl, err := decode(raw)
		if err != nil {
			uc.logger.Warn("skipping undecodable template",
				zap.String("user_id", userID),
				zap.String("template_id", key),
				zap.Error(err))
			continue
		}
		tpl.ID = key
		out = append(out, tpl)
	}
	return out, nil
}

// Get returns one template by id.
func (uc *UseCase) Get(ctx context.Context, userID, templateID string) (*domain.Template, error) {
	doc, err := uc.store.Get(ctx, repository.TemplatesPath(userID))
	if err != nil {
		if domain.IsDomainError(err, domain.ErrCodeNotFound) {
			return nil, domain.ErrTemplateNotFound
		}
		return nil, domain.WrapError(domain.ErrCodeTransport, "template read failed", err)
	}
	raw, ok := doc[templateID]
	if !ok {
		return nil, domain.ErrTemplateNotFound
	}
	tpl, err := decode(raw)
	if err != nil {
		return nil, domain.WrapError(domain.ErrCodeInternal, "corrupt template "+templateID, err)
	}
	tpl.ID = templateID
	return &tpl, nil
}

// Save creates or overwrites a template.
func (uc *UseCase) Save(ctx context.Context, userID string, tpl *domain.Template) (*domain.Template, error) {
	if tpl == nil {
		return nil, domain.ErrInvalidPayload
	}
	tpl.OwnerID = userID
	if tpl.ID == "" {
		tpl.ID = uuid.NewString()
		tpl.CreatedAt = uc.now().UTC()
	}
	if err := tpl.Validate(); err != nil {
		return nil, err
	}
	tpl.UpdatedAt = uc.now().UTC()

	item, err := encode(tpl)
	if err != nil {
		return nil, err
	}
	path := repository.TemplatesPath(userID)
	if err := uc.store.SetMerge(ctx, path, repository.Document{tpl.ID: item}); err != nil {
		return nil, err
	}
	return tpl, nil
}

// Delete removes a template.
func (uc *UseCase) Delete(ctx context.Context, userID, templateID string) error {
	if _, err := uc.Get(ctx, userID, templateID); err != nil {
		return err
	}
	path := repository.TemplatesPath(userID)
	return uc.store.SetMerge(ctx, path, repository.Document{templateID: nil})
}

// Apply copies the template into a fresh activity: new ids, completion
// reset. The template itself is untouched.
func (uc *UseCase) Apply(ctx context.Context, userID, templateID string) (domain.Activity, error) {
	tpl, err := uc.Get(ctx, userID, templateID)
	if err != nil {
		return domain.Activity{}, err
	}
	return tpl.Instantiate(), nil
}

func decode(raw any) (domain.Template, error) {
	var tpl domain.Template
	payload, err := json.Marshal(raw)
	if err != nil {
		return tpl, err
	}
	if err := json.Unmarshal(payload, &tpl); err != nil {
		return tpl, err
	}
	return tpl, nil
}

func encode(tpl *domain.Template) (map[string]any, error) {
	raw, err := json.Marshal(tpl)
	if err != nil {
		return nil, domain.WrapError(domain.ErrCodeValidation, "unencodable template", err)
	}
	var item map[string]any
	if err := json.Unmarshal(raw, &item); err != nil {
		return nil, domain.WrapError(domain.ErrCodeValidation, "unencodable template", err)
	}
	delete(item, "id")
	return item, nil
}
