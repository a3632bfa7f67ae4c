package ports

import (
	"context"

	"github.com/frhnm/tgfleet/internal/domain"
)

type AccountRepository interface {
	GetByID(ctx context.Context, id domain.AccountID) (domain.Descriptor, error)
	List(ctx context.Context) ([]domain.Descriptor, error)
	Save(ctx context.Context, descriptor domain.Descriptor) error
	Delete(ctx context.Context, id domain.AccountID) error
}
