package dispatchboard

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/jpalmerr/dispatchboard/reactive"
	"github.com/jpalmerr/dispatchboard/remote"
)

// ErrNegativeQuantity is returned when a product quantity would drop below zero.
var ErrNegativeQuantity = errors.New("quantity cannot be negative")

// CartStore holds a product cart and its running totals.
//
// Quantity changes follow the same optimistic policy as [BoardStore]: the
// local product is replaced first, then the new quantity is persisted, and a
// failed persist only sets [CartStore.Error].
type CartStore struct {
	life *lifecycle

	products   *reactive.Cell[[]Product]
	totalPrice *reactive.Derived[float64]
	totalItems *reactive.Derived[int]
}

// NewCartStore creates an empty [CartStore].
//
// A source must be configured via [WithSource]. [WithTotalLogging] attaches a
// watcher logging the total price whenever it changes.
func NewCartStore(opts ...Option) (*CartStore, error) {
	cfg, err := newStoreConfig(opts)
	if err != nil {
		return nil, err
	}

	rt := cfg.runtime
	c := &CartStore{
		life:     newLifecycle(cfg),
		products: reactive.NewCell(rt, []Product{}),
	}
	c.totalPrice = reactive.NewDerived(rt, func(s *reactive.Scope) float64 {
		var total float64
		for _, p := range c.products.Read(s) {
			total += p.Price * float64(p.Quantity)
		}
		return total
	}, reactive.WithEqual(func(a, b float64) bool { return a == b }))
	c.totalItems = reactive.NewDerived(rt, func(s *reactive.Scope) int {
		var total int
		for _, p := range c.products.Read(s) {
			total += p.Quantity
		}
		return total
	}, reactive.WithEqual(func(a, b int) bool { return a == b }))

	if cfg.totalLogging {
		rt.Watch("cart-total", func(s *reactive.Scope) error {
			c.life.logger.Info("cart total changed",
				"total_price", fmt.Sprintf("%.2f", c.totalPrice.Read(s)),
				"total_items", c.totalItems.Read(s),
			)
			return nil
		})
	}
	return c, nil
}

// Runtime returns the runtime the store's cells live on.
func (c *CartStore) Runtime() *reactive.Runtime { return c.life.rt }

// Products returns the cart lines.
func (c *CartStore) Products() reactive.View[[]Product] { return c.products }

// TotalPrice is the sum of price × quantity over every product.
func (c *CartStore) TotalPrice() reactive.View[float64] { return c.totalPrice }

// TotalItems is the sum of quantities over every product.
func (c *CartStore) TotalItems() reactive.View[int] { return c.totalItems }

// IsLoading reports whether a product load is in flight.
func (c *CartStore) IsLoading() reactive.View[bool] { return c.life.isLoading }

// Error holds the message of the last failed remote call.
func (c *CartStore) Error() reactive.View[string] { return c.life.err }

// Watch attaches a watcher to the store's runtime.
func (c *CartStore) Watch(name string, action func(s *reactive.Scope) error) *reactive.Watcher {
	return c.life.rt.Watch(name, action)
}

// Wait blocks until every in-flight remote call has completed.
func (c *CartStore) Wait() {
	c.life.wait()
}

// LoadProducts replaces the cart with the remote product list. See
// [BoardStore.LoadJourneys] for the loading and error lifecycle. A list
// carrying a negative quantity fails to decode, so the load fails and the cart
// is left unchanged.
func (c *CartStore) LoadProducts(ctx context.Context, opts LoadOptions) {
	load(c.life, ctx, remote.Products, opts, c.products)
}

// SetProducts replaces the cart locally, without a remote call.
//
// Returns [ErrNegativeQuantity] if any product has a negative quantity; the
// cart is left unchanged in that case.
func (c *CartStore) SetProducts(products []Product) error {
	for _, p := range products {
		if p.Quantity < 0 {
			return fmt.Errorf("product %d: %w", p.ID, ErrNegativeQuantity)
		}
	}
	c.products.Set(slices.Clone(products))
	return nil
}

// IncrementQuantity adds one to a product's quantity and persists it.
// Unknown products are ignored.
func (c *CartStore) IncrementQuantity(ctx context.Context, productID int) {
	var quantity int
	found := c.products.UpdateIf(func(cur []Product) ([]Product, bool) {
		idx := slices.IndexFunc(cur, func(p Product) bool { return p.ID == productID })
		if idx < 0 {
			return cur, false
		}
		next := slices.Clone(cur)
		next[idx].Quantity++
		quantity = next[idx].Quantity
		return next, true
	})
	if found {
		c.life.persistPatch(ctx, remote.Products, productID, map[string]any{"quantity": quantity}, "Failed to update quantity")
	}
}

// UpdateQuantity sets a product's quantity and persists it.
//
// Returns [ErrNegativeQuantity] for a negative quantity. Unknown products are
// ignored.
func (c *CartStore) UpdateQuantity(ctx context.Context, productID, quantity int) error {
	if quantity < 0 {
		return ErrNegativeQuantity
	}
	found := c.products.UpdateIf(func(cur []Product) ([]Product, bool) {
		idx := slices.IndexFunc(cur, func(p Product) bool { return p.ID == productID })
		if idx < 0 {
			return cur, false
		}
		next := slices.Clone(cur)
		next[idx].Quantity = quantity
		return next, true
	})
	if found {
		c.life.persistPatch(ctx, remote.Products, productID, map[string]any{"quantity": quantity}, "Failed to update quantity")
	}
	return nil
}

// AddProduct appends a product to the cart, or replaces the product with the
// same id. Local only.
func (c *CartStore) AddProduct(p Product) error {
	if p.Quantity < 0 {
		return ErrNegativeQuantity
	}
	c.products.Update(func(cur []Product) []Product {
		next := slices.Clone(cur)
		if idx := slices.IndexFunc(next, func(q Product) bool { return q.ID == p.ID }); idx >= 0 {
			next[idx] = p
			return next
		}
		return append(next, p)
	})
	return nil
}

// RemoveProduct drops a product from the cart. Local only; reports whether
// the product was present.
func (c *CartStore) RemoveProduct(productID int) bool {
	return c.products.UpdateIf(func(cur []Product) ([]Product, bool) {
		idx := slices.IndexFunc(cur, func(p Product) bool { return p.ID == productID })
		if idx < 0 {
			return cur, false
		}
		return slices.Delete(slices.Clone(cur), idx, idx+1), true
	})
}

// Clear empties the cart. Local only.
func (c *CartStore) Clear() {
	c.products.Set([]Product{})
}
