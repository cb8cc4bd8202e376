package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/privatelovie/social-commerce-platform-sub001/internal/store"
)

// ==== UserStore implementation ====

// GetUser retrieves a user by ID.
func (s *SQLiteStore) GetUser(ctx context.Context, id string) (*store.User, error) {
	query := `
		SELECT id, username, display_name, avatar, is_verified, created_at
		FROM users
		WHERE id = ?
	`
	var (
		user    store.User
		created int64
	)
	err := s.db.QueryRowContext(ctx, query, id).Scan(
		&user.ID,
		&user.Username,
		&user.DisplayName,
		&user.Avatar,
		&user.IsVerified,
		&created,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("user %s: %w", id, store.ErrNotFound)
		}
		return nil, fmt.Errorf("query user: %w", err)
	}
	user.CreatedAt = fromNanos(created)
	return &user, nil
}

// PutUser inserts or replaces a user.
func (s *SQLiteStore) PutUser(ctx context.Context, user *store.User) error {
	query := `
		INSERT INTO users (id, username, display_name, avatar, is_verified, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			username = excluded.username,
			display_name = excluded.display_name,
			avatar = excluded.avatar,
			is_verified = excluded.is_verified
	`
	if _, err := s.db.ExecContext(ctx, query,
		user.ID, user.Username, user.DisplayName, user.Avatar, user.IsVerified, toNanos(user.CreatedAt),
	); err != nil {
		return fmt.Errorf("upsert user: %w", err)
	}
	return nil
}

// ==== CatalogStore implementation ====

// GetProduct retrieves a product by ID.
func (s *SQLiteStore) GetProduct(ctx context.Context, id string) (*store.Product, error) {
	query := `
		SELECT id, name, brand, price, currency, images
		FROM products
		WHERE id = ?
	`
	var (
		p      store.Product
		images string
	)
	err := s.db.QueryRowContext(ctx, query, id).Scan(&p.ID, &p.Name, &p.Brand, &p.Price, &p.Currency, &images)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("product %s: %w", id, store.ErrNotFound)
		}
		return nil, fmt.Errorf("query product: %w", err)
	}
	if err := json.Unmarshal([]byte(images), &p.Images); err != nil {
		return nil, fmt.Errorf("decode product images: %w", err)
	}
	return &p, nil
}

// PutProduct inserts or replaces a product.
func (s *SQLiteStore) PutProduct(ctx context.Context, p *store.Product) error {
	images, err := json.Marshal(nonNil(p.Images))
	if err != nil {
		return fmt.Errorf("encode product images: %w", err)
	}
	query := `
		INSERT OR REPLACE INTO products (id, name, brand, price, currency, images)
		VALUES (?, ?, ?, ?, ?, ?)
	`
	if _, err := s.db.ExecContext(ctx, query, p.ID, p.Name, p.Brand, p.Price, p.Currency, string(images)); err != nil {
		return fmt.Errorf("upsert product: %w", err)
	}
	return nil
}

const cartColumns = `id, user_id, items, currency, active, created_at`

// GetCart retrieves a cart by ID.
func (s *SQLiteStore) GetCart(ctx context.Context, id string) (*store.Cart, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+cartColumns+` FROM carts WHERE id = ?`, id)
	cart, err := scanCart(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("cart %s: %w", id, store.ErrNotFound)
		}
		return nil, fmt.Errorf("query cart: %w", err)
	}
	return cart, nil
}

// GetActiveCart returns the newest active cart of a user.
func (s *SQLiteStore) GetActiveCart(ctx context.Context, userID string) (*store.Cart, error) {
	query := `SELECT ` + cartColumns + `
		FROM carts
		WHERE user_id = ? AND active = 1
		ORDER BY created_at DESC
		LIMIT 1
	`
	cart, err := scanCart(s.db.QueryRowContext(ctx, query, userID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("active cart of %s: %w", userID, store.ErrNotFound)
		}
		return nil, fmt.Errorf("query active cart: %w", err)
	}
	return cart, nil
}

// PutCart inserts or replaces a cart.
func (s *SQLiteStore) PutCart(ctx context.Context, cart *store.Cart) error {
	items, err := json.Marshal(nonNil(cart.Items))
	if err != nil {
		return fmt.Errorf("encode cart items: %w", err)
	}
	query := `
		INSERT OR REPLACE INTO carts (id, user_id, items, currency, active, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`
	if _, err := s.db.ExecContext(ctx, query,
		cart.ID, cart.UserID, string(items), cart.Currency, cart.Active, toNanos(cart.CreatedAt),
	); err != nil {
		return fmt.Errorf("upsert cart: %w", err)
	}
	return nil
}

func scanCart(row *sql.Row) (*store.Cart, error) {
	var (
		c       store.Cart
		items   string
		created int64
	)
	if err := row.Scan(&c.ID, &c.UserID, &items, &c.Currency, &c.Active, &created); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(items), &c.Items); err != nil {
		return nil, fmt.Errorf("decode cart items: %w", err)
	}
	c.CreatedAt = fromNanos(created)
	return &c, nil
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
