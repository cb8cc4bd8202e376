// Package seed loads YAML fixtures of users, products and carts into a store.
package seed

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/privatelovie/social-commerce-platform-sub001/internal/store"
)

// Fixtures is the document layout of a seed file.
type Fixtures struct {
	Users    []store.User    `yaml:"users"`
	Products []store.Product `yaml:"products"`
	Carts    []store.Cart    `yaml:"carts"`
}

// Result counts what Apply wrote.
type Result struct {
	Users    int
	Products int
	Carts    int
}

// Load reads and validates a fixture file.
func Load(path string) (*Fixtures, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read fixtures: %w", err)
	}
	return Parse(data)
}

// Parse decodes fixtures from YAML and checks their references.
func Parse(data []byte) (*Fixtures, error) {
	var f Fixtures
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("decode fixtures: %w", err)
	}
	if err := f.validate(); err != nil {
		return nil, err
	}
	return &f, nil
}

func (f *Fixtures) validate() error {
	var errs []error

	users := make(map[string]struct{}, len(f.Users))
	for i, u := range f.Users {
		if u.ID == "" {
			errs = append(errs, fmt.Errorf("users[%d]: id is required", i))
			continue
		}
		users[u.ID] = struct{}{}
	}
	products := make(map[string]struct{}, len(f.Products))
	for i, p := range f.Products {
		if p.ID == "" {
			errs = append(errs, fmt.Errorf("products[%d]: id is required", i))
			continue
		}
		products[p.ID] = struct{}{}
	}
	for i, c := range f.Carts {
		if c.ID == "" {
			errs = append(errs, fmt.Errorf("carts[%d]: id is required", i))
		}
		if _, ok := users[c.UserID]; !ok {
			errs = append(errs, fmt.Errorf("carts[%d]: unknown user %q", i, c.UserID))
		}
		for j, it := range c.Items {
			if _, ok := products[it.ProductID]; !ok {
				errs = append(errs, fmt.Errorf("carts[%d].items[%d]: unknown product %q", i, j, it.ProductID))
			}
			if it.Quantity <= 0 {
				errs = append(errs, fmt.Errorf("carts[%d].items[%d]: quantity must be positive", i, j))
			}
		}
	}
	return errors.Join(errs...)
}

// Apply upserts every fixture. Carts are stamped in file order so the last
// active cart of a user becomes their current one.
func Apply(ctx context.Context, st store.Store, f *Fixtures) (Result, error) {
	var res Result
	now := time.Now().UTC()

	for i := range f.Users {
		u := f.Users[i]
		u.CreatedAt = now
		if err := st.PutUser(ctx, &u); err != nil {
			return res, fmt.Errorf("seed user %s: %w", u.ID, err)
		}
		res.Users++
	}
	for i := range f.Products {
		p := f.Products[i]
		if err := st.PutProduct(ctx, &p); err != nil {
			return res, fmt.Errorf("seed product %s: %w", p.ID, err)
		}
		res.Products++
	}
	for i := range f.Carts {
		c := f.Carts[i]
		c.CreatedAt = now.Add(time.Duration(i) * time.Millisecond)
		if err := st.PutCart(ctx, &c); err != nil {
			return res, fmt.Errorf("seed cart %s: %w", c.ID, err)
		}
		res.Carts++
	}
	return res, nil
}
