package seed

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/privatelovie/social-commerce-platform-sub001/internal/store/pebblestore"
)

const fixtures = `
users:
  - id: alice
    username: alice
    displayName: Alice
  - id: bob
    username: bob
products:
  - id: p1
    name: Linen Shirt
    brand: Northwind
    price: 25.5
    currency: USD
    images: [https://cdn.example.com/p1.jpg]
  - id: p2
    name: Canvas Tote
    price: 10
carts:
  - id: c-old
    userId: alice
    active: true
    currency: USD
    items:
      - {productId: p2, quantity: 1, price: 10}
  - id: c-new
    userId: alice
    active: true
    currency: USD
    items:
      - {productId: p1, quantity: 2, price: 25.5}
      - {productId: p2, quantity: 1, price: 10}
`

func TestLoadAndApply(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fixtures.yaml")
	require.NoError(t, os.WriteFile(path, []byte(fixtures), 0o600))

	f, err := Load(path)
	require.NoError(t, err)

	st, err := pebblestore.OpenInMemory()
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	ctx := context.Background()
	res, err := Apply(ctx, st, f)
	require.NoError(t, err)
	assert.Equal(t, Result{Users: 2, Products: 2, Carts: 2}, res)

	u, err := st.GetUser(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, "Alice", u.DisplayName)

	p, err := st.GetProduct(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, []string{"https://cdn.example.com/p1.jpg"}, p.Images)

	cart, err := st.GetActiveCart(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, "c-new", cart.ID)
	assert.Equal(t, 3, cart.TotalItems())
	assert.InDelta(t, 61.0, cart.Total(), 1e-9)
}

func TestParseRejectsDanglingReferences(t *testing.T) {
	_, err := Parse([]byte(`
users:
  - id: alice
carts:
  - id: c1
    userId: mallory
    items:
      - {productId: ghost, quantity: 0, price: 1}
`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown user "mallory"`)
	assert.Contains(t, err.Error(), `unknown product "ghost"`)
	assert.Contains(t, err.Error(), "quantity must be positive")
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}
