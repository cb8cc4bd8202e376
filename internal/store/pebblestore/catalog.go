package pebblestore

import (
	"context"
	"errors"
	"fmt"

	"github.com/cockroachdb/pebble"

	"github.com/privatelovie/social-commerce-platform-sub001/internal/store"
)

func (s *Store) GetUser(_ context.Context, id string) (*store.User, error) {
	var u store.User
	if err := s.getJSON(key("user", id), &u); err != nil {
		return nil, fmt.Errorf("user %s: %w", id, err)
	}
	return &u, nil
}

func (s *Store) PutUser(_ context.Context, user *store.User) error {
	if err := validID(user.ID); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	// keep the original creation time on upsert
	var existing store.User
	if err := s.getJSON(key("user", user.ID), &existing); err == nil {
		u := *user
		u.CreatedAt = existing.CreatedAt
		user = &u
	}

	b := s.db.NewBatch()
	defer b.Close()
	if err := setJSON(b, key("user", user.ID), user); err != nil {
		return fmt.Errorf("put user: %w", err)
	}
	return b.Commit(pebble.Sync)
}

func (s *Store) GetProduct(_ context.Context, id string) (*store.Product, error) {
	var p store.Product
	if err := s.getJSON(key("product", id), &p); err != nil {
		return nil, fmt.Errorf("product %s: %w", id, err)
	}
	return &p, nil
}

func (s *Store) PutProduct(_ context.Context, p *store.Product) error {
	if err := validID(p.ID); err != nil {
		return err
	}
	b := s.db.NewBatch()
	defer b.Close()
	if err := setJSON(b, key("product", p.ID), p); err != nil {
		return fmt.Errorf("put product: %w", err)
	}
	return b.Commit(pebble.Sync)
}

func (s *Store) GetCart(_ context.Context, id string) (*store.Cart, error) {
	var c store.Cart
	if err := s.getJSON(key("cart", id), &c); err != nil {
		return nil, fmt.Errorf("cart %s: %w", id, err)
	}
	return &c, nil
}

func (s *Store) GetActiveCart(ctx context.Context, userID string) (*store.Cart, error) {
	var id string
	if err := s.getJSON(key("acart", userID), &id); err != nil {
		return nil, fmt.Errorf("active cart of %s: %w", userID, err)
	}
	return s.GetCart(ctx, id)
}

// PutCart stores the cart and keeps the active-cart pointer on the newest active cart.
func (s *Store) PutCart(_ context.Context, cart *store.Cart) error {
	if err := validID(cart.ID); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	b := s.db.NewBatch()
	defer b.Close()
	if err := setJSON(b, key("cart", cart.ID), cart); err != nil {
		return fmt.Errorf("put cart: %w", err)
	}

	pointer := key("acart", cart.UserID)
	var currentID string
	err := s.getJSON(pointer, &currentID)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return err
	}

	err = nil
	switch {
	case cart.Active && currentID == "":
		err = setJSON(b, pointer, cart.ID)
	case cart.Active && currentID != cart.ID:
		var current store.Cart
		if getErr := s.getJSON(key("cart", currentID), &current); getErr != nil || !cart.CreatedAt.Before(current.CreatedAt) {
			err = setJSON(b, pointer, cart.ID)
		}
	case !cart.Active && currentID == cart.ID:
		err = b.Delete(pointer, nil)
	}
	if err != nil {
		return fmt.Errorf("update active cart: %w", err)
	}
	return b.Commit(pebble.Sync)
}
