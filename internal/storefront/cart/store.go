// Package cart holds the storefront's in-memory cart.
package cart

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/medimart/storefront/internal/storefront/notify"
	"github.com/medimart/storefront/pkg/money"
	"github.com/shopspring/decimal"
)

// Origin tags who caused a cart change. Only local changes are pushed to the
// server.
type Origin int

const (
	OriginLocal Origin = iota
	OriginServer
)

func (o Origin) String() string {
	if o == OriginServer {
		return "server"
	}
	return "local"
}

// Product is the catalog data captured when an item is added.
type Product struct {
	ID    string
	Name  string
	Brand string
	Image string
	Price decimal.Decimal
}

// Line is one cart entry. UnitPrice is frozen at add time.
type Line struct {
	ProductID string          `json:"productId"`
	Name      string          `json:"name"`
	Brand     string          `json:"brand"`
	Image     string          `json:"image,omitempty"`
	UnitPrice decimal.Decimal `json:"unitPrice"`
	Quantity  int             `json:"quantity"`
}

func (l Line) Subtotal() decimal.Decimal {
	return money.LineTotal(l.UnitPrice, l.Quantity)
}

// Change is published after every effective mutation.
type Change struct {
	Snapshot []Line
	Origin   Origin
}

var (
	ErrInvalidProduct = errors.New("cart: product id is required and price must be non-negative")
	ErrInvalidLine    = errors.New("cart: invalid line")
)

type Store struct {
	mu    sync.Mutex
	lines []Line
	hub   *notify.Hub[Change]
}

// NewStore builds a store seeded with initial lines (for example from local
// persistence). Seeding publishes nothing.
func NewStore(initial []Line) (*Store, error) {
	if err := validate(initial); err != nil {
		return nil, err
	}
	return &Store{lines: clone(initial), hub: notify.NewHub[Change]()}, nil
}

// AddOrIncrement adds product with quantity 1, or increments it if present.
func (s *Store) AddOrIncrement(p Product) error {
	p.ID = strings.TrimSpace(p.ID)
	if p.ID == "" || p.Price.IsNegative() {
		return ErrInvalidProduct
	}
	s.mutate(func(lines []Line) ([]Line, bool) {
		if i := indexOf(lines, p.ID); i >= 0 {
			lines[i].Quantity++
			return lines, true
		}
		return append(lines, Line{
			ProductID: p.ID,
			Name:      p.Name,
			Brand:     p.Brand,
			Image:     p.Image,
			UnitPrice: p.Price,
			Quantity:  1,
		}), true
	})
	return nil
}

func (s *Store) Increment(productID string) bool {
	return s.mutate(func(lines []Line) ([]Line, bool) {
		i := indexOf(lines, productID)
		if i < 0 {
			return lines, false
		}
		lines[i].Quantity++
		return lines, true
	})
}

// Decrement lowers the quantity but never below 1.
func (s *Store) Decrement(productID string) bool {
	return s.mutate(func(lines []Line) ([]Line, bool) {
		i := indexOf(lines, productID)
		if i < 0 || lines[i].Quantity <= 1 {
			return lines, false
		}
		lines[i].Quantity--
		return lines, true
	})
}

func (s *Store) Remove(productID string) bool {
	return s.mutate(func(lines []Line) ([]Line, bool) {
		i := indexOf(lines, productID)
		if i < 0 {
			return lines, false
		}
		return append(lines[:i], lines[i+1:]...), true
	})
}

func (s *Store) Clear() bool {
	return s.mutate(func(lines []Line) ([]Line, bool) {
		return nil, len(lines) > 0
	})
}

// Replace swaps in lines wholesale; used when the server cart wins.
func (s *Store) Replace(lines []Line, origin Origin) error {
	if err := validate(lines); err != nil {
		return err
	}
	next := clone(lines)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lines = next
	s.hub.Publish(Change{Snapshot: clone(next), Origin: origin})
	return nil
}

func (s *Store) Snapshot() []Line {
	s.mu.Lock()
	defer s.mu.Unlock()
	return clone(s.lines)
}

func (s *Store) Total() decimal.Decimal {
	return Total(s.Snapshot())
}

func (s *Store) Count() int {
	n := 0
	for _, l := range s.Snapshot() {
		n += l.Quantity
	}
	return n
}

func (s *Store) Subscribe() (<-chan Change, func()) {
	return s.hub.Subscribe()
}

func (s *Store) Close() {
	s.hub.Close()
}

// Total sums unit price times quantity.
func Total(lines []Line) decimal.Decimal {
	total := decimal.Zero
	for _, l := range lines {
		total = total.Add(l.Subtotal())
	}
	return total
}

// mutate applies fn to a private copy and publishes if fn reports a change.
// Publishing under the lock keeps change order equal to mutation order.
func (s *Store) mutate(fn func([]Line) ([]Line, bool)) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	next, changed := fn(clone(s.lines))
	if !changed {
		return false
	}
	s.lines = next
	s.hub.Publish(Change{Snapshot: clone(next), Origin: OriginLocal})
	return true
}

func indexOf(lines []Line, productID string) int {
	for i, l := range lines {
		if l.ProductID == productID {
			return i
		}
	}
	return -1
}

func clone(lines []Line) []Line {
	if len(lines) == 0 {
		return nil
	}
	out := make([]Line, len(lines))
	copy(out, lines)
	return out
}

func validate(lines []Line) error {
	seen := make(map[string]struct{}, len(lines))
	for _, l := range lines {
		if strings.TrimSpace(l.ProductID) == "" || l.Quantity < 1 || l.UnitPrice.IsNegative() {
			return fmt.Errorf("%w: %+v", ErrInvalidLine, l)
		}
		if _, dup := seen[l.ProductID]; dup {
			return fmt.Errorf("%w: duplicate product %s", ErrInvalidLine, l.ProductID)
		}
		seen[l.ProductID] = struct{}{}
	}
	return nil
}
