package storage

import (
	"context"
	"sort"
	"sync"

	"github.com/rl1809/cart-checkout/internal/core/domain"
	"github.com/rl1809/cart-checkout/internal/port"
)

// MemoryCartAdapter keeps snapshots in process memory. It applies the same
// version rule as RedisAdapter.
type MemoryCartAdapter struct {
	mu        sync.RWMutex
	snapshots map[string]domain.CartState
}

func NewMemoryCartAdapter() *MemoryCartAdapter {
	return &MemoryCartAdapter{snapshots: make(map[string]domain.CartState)}
}

func (m *MemoryCartAdapter) Save(ctx context.Context, key string, snapshot domain.CartState) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if stored, ok := m.snapshots[key]; ok && stored.Version >= snapshot.Version {
		return port.ErrVersionConflict
	}
	m.snapshots[key] = snapshot.Clone()
	return nil
}

func (m *MemoryCartAdapter) Load(ctx context.Context, key string) (domain.CartState, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	snapshot, ok := m.snapshots[key]
	if !ok {
		return domain.CartState{}, false, nil
	}
	return snapshot.Clone(), true, nil
}

// MemoryOrderAdapter is the order repository used when no MySQL DSN is set.
type MemoryOrderAdapter struct {
	mu     sync.RWMutex
	nextID int64
	orders []domain.Order
}

func NewMemoryOrderAdapter() *MemoryOrderAdapter {
	return &MemoryOrderAdapter{}
}

func (m *MemoryOrderAdapter) CreateOrder(ctx context.Context, order domain.Order) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.nextID++
	order.ID = m.nextID
	order.Items = append([]domain.OrderItem(nil), order.Items...)
	m.orders = append(m.orders, order)
	return order.ID, nil
}

func (m *MemoryOrderAdapter) ListOrders(ctx context.Context, userID string) ([]domain.Order, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := []domain.Order{}
	for _, o := range m.orders {
		if o.UserID == userID {
			o.Items = append([]domain.OrderItem(nil), o.Items...)
			out = append(out, o)
		}
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}
