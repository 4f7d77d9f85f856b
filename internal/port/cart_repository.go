package port

import (
	"context"
	"errors"

	"github.com/rl1809/cart-checkout/internal/core/domain"
)

// ErrVersionConflict is returned by Save when the stored snapshot is at least as
// new as the one being written.
var ErrVersionConflict = errors.New("cart snapshot version conflict")

type CartRepository interface {
	// Save writes the complete snapshot under key. Implementations reject a
	// snapshot whose version is not newer than the stored one.
	Save(ctx context.Context, key string, snapshot domain.CartState) error

	// Load returns the snapshot stored under key; found is false when absent
	Load(ctx context.Context, key string) (snapshot domain.CartState, found bool, err error)
}
