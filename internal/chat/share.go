package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/privatelovie/social-commerce-platform-sub001/internal/events"
	"github.com/privatelovie/social-commerce-platform-sub001/internal/proto"
	"github.com/privatelovie/social-commerce-platform-sub001/internal/store"
)

// ShareCartRequest shares a cart. Without CartID the sender's active cart is used.
type ShareCartRequest struct {
	Sender    string
	Recipient string
	CartID    string
	Message   string
}

// ShareCart sends a snapshot of one of the sender's carts.
func (s *Service) ShareCart(ctx context.Context, req ShareCartRequest) (*store.Message, error) {
	if req.Recipient == "" {
		return nil, ErrRecipientRequired
	}
	cart, err := s.resolveCart(ctx, req.Sender, req.CartID)
	if err != nil {
		return nil, err
	}
	snapshot := s.snapshotCart(ctx, cart)

	content := strings.TrimSpace(req.Message)
	if content == "" {
		content = fmt.Sprintf("Check out my cart! 🛒 %d items for $%.2f", cart.TotalItems(), cart.Total())
	}
	msg, err := s.Send(ctx, SendRequest{
		Sender:        req.Sender,
		Recipient:     req.Recipient,
		Content:       content,
		Type:          store.MessageCart,
		SharedContent: &store.SharedContent{Cart: snapshot},
	})
	if err != nil {
		return nil, err
	}

	s.publish(ctx, events.CartShared, events.ToUsers(req.Recipient), proto.CartShared{
		Message: s.View(ctx, msg),
		Cart:    snapshot,
	})
	return msg, nil
}

func (s *Service) resolveCart(ctx context.Context, owner, cartID string) (*store.Cart, error) {
	var (
		cart *store.Cart
		err  error
	)
	if cartID != "" {
		cart, err = s.catalog.GetCart(ctx, cartID)
	} else {
		cart, err = s.catalog.GetActiveCart(ctx, owner)
	}
	switch {
	case errors.Is(err, store.ErrNotFound):
		return nil, ErrEmptyCart
	case err != nil:
		return nil, fmt.Errorf("load cart: %w", err)
	case cart.UserID != owner, len(cart.Items) == 0:
		return nil, ErrEmptyCart
	}
	return cart, nil
}

// snapshotCart freezes cart lines with their product names. A product that can no
// longer be resolved keeps its id and price.
func (s *Service) snapshotCart(ctx context.Context, cart *store.Cart) *store.SharedCart {
	snap := &store.SharedCart{
		CartID:      cart.ID,
		Items:       make([]store.SharedCartItem, 0, len(cart.Items)),
		TotalAmount: cart.Total(),
		Currency:    cart.Currency,
	}
	for _, it := range cart.Items {
		line := store.SharedCartItem{
			ProductID:  it.ProductID,
			Quantity:   it.Quantity,
			Price:      it.Price,
			TotalPrice: float64(it.Quantity) * it.Price,
		}
		if p, err := s.catalog.GetProduct(ctx, it.ProductID); err == nil {
			line.Name = p.Name
		} else if !errors.Is(err, store.ErrNotFound) {
			s.log.Warn().Err(err).Str("product_id", it.ProductID).Msg("resolve cart product")
		}
		snap.Items = append(snap.Items, line)
	}
	return snap
}

// ShareProductRequest shares a catalog product.
type ShareProductRequest struct {
	Sender    string
	Recipient string
	ProductID string
	Message   string
}

// ShareProduct sends a reference to a product.
func (s *Service) ShareProduct(ctx context.Context, req ShareProductRequest) (*store.Message, error) {
	if req.Recipient == "" {
		return nil, ErrRecipientRequired
	}
	if req.ProductID == "" {
		return nil, ErrProductRequired
	}
	product, err := s.catalog.GetProduct(ctx, req.ProductID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrProductNotFound
		}
		return nil, fmt.Errorf("load product: %w", err)
	}

	ref := &store.ProductRef{
		ProductID: product.ID,
		Name:      product.Name,
		Brand:     product.Brand,
		Price:     product.Price,
	}
	if len(product.Images) > 0 {
		ref.Image = product.Images[0]
	}

	content := strings.TrimSpace(req.Message)
	if content == "" {
		content = "Check out this product! 🔥 " + product.Name
	}
	msg, err := s.Send(ctx, SendRequest{
		Sender:        req.Sender,
		Recipient:     req.Recipient,
		Content:       content,
		Type:          store.MessageProduct,
		SharedContent: &store.SharedContent{Product: ref},
	})
	if err != nil {
		return nil, err
	}

	s.publish(ctx, events.ProductShared, events.ToUsers(req.Recipient), proto.ProductShared{
		Message: s.View(ctx, msg),
		Product: ref,
	})
	return msg, nil
}
