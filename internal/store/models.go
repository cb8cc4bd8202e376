package store

import (
	"time"

	"github.com/privatelovie/social-commerce-platform-sub001/internal/delivery"
	"github.com/privatelovie/social-commerce-platform-sub001/internal/reaction"
)

// User is the identity view the messaging core needs.
type User struct {
	ID          string    `json:"id" yaml:"id"`
	Username    string    `json:"username" yaml:"username"`
	DisplayName string    `json:"displayName,omitempty" yaml:"displayName"`
	Avatar      string    `json:"avatar,omitempty" yaml:"avatar"`
	IsVerified  bool      `json:"isVerified" yaml:"isVerified"`
	CreatedAt   time.Time `json:"createdAt" yaml:"-"`
}

// Product is a catalog entry that can be shared in a conversation.
type Product struct {
	ID       string   `json:"id" yaml:"id"`
	Name     string   `json:"name" yaml:"name"`
	Brand    string   `json:"brand,omitempty" yaml:"brand"`
	Price    float64  `json:"price" yaml:"price"`
	Currency string   `json:"currency,omitempty" yaml:"currency"`
	Images   []string `json:"images,omitempty" yaml:"images"`
}

// CartItem is one line of a shopping cart.
type CartItem struct {
	ProductID string  `json:"productId" yaml:"productId"`
	Quantity  int     `json:"quantity" yaml:"quantity"`
	Price     float64 `json:"price" yaml:"price"`
}

// Cart is a user's shopping cart.
type Cart struct {
	ID        string     `json:"id" yaml:"id"`
	UserID    string     `json:"userId" yaml:"userId"`
	Items     []CartItem `json:"items" yaml:"items"`
	Currency  string     `json:"currency" yaml:"currency"`
	Active    bool       `json:"active" yaml:"active"`
	CreatedAt time.Time  `json:"createdAt" yaml:"-"`
}

// TotalItems sums item quantities.
func (c *Cart) TotalItems() int {
	n := 0
	for _, it := range c.Items {
		n += it.Quantity
	}
	return n
}

// Total sums quantity times unit price.
func (c *Cart) Total() float64 {
	var total float64
	for _, it := range c.Items {
		total += float64(it.Quantity) * it.Price
	}
	return total
}

// MessageType determines which optional payload of a Message is populated.
type MessageType string

const (
	MessageText    MessageType = "text"
	MessageImage   MessageType = "image"
	MessageVideo   MessageType = "video"
	MessageAudio   MessageType = "audio"
	MessageFile    MessageType = "file"
	MessageCart    MessageType = "cart"
	MessageProduct MessageType = "product"
	MessagePost    MessageType = "post"
)

// Valid reports whether t is a known message type.
func (t MessageType) Valid() bool {
	switch t {
	case MessageText, MessageImage, MessageVideo, MessageAudio, MessageFile,
		MessageCart, MessageProduct, MessagePost:
		return true
	}
	return false
}

// IsMedia reports whether t carries attachments.
func (t MessageType) IsMedia() bool {
	switch t {
	case MessageImage, MessageVideo, MessageAudio, MessageFile:
		return true
	}
	return false
}

// Media describes one attachment.
type Media struct {
	Type     string `json:"type"`
	URL      string `json:"url"`
	Filename string `json:"filename,omitempty"`
	Size     int64  `json:"size,omitempty"`
	MimeType string `json:"mimeType,omitempty"`
}

// SharedCartItem is a cart line frozen at share time.
type SharedCartItem struct {
	ProductID  string  `json:"product"`
	Name       string  `json:"name,omitempty"`
	Quantity   int     `json:"quantity"`
	Price      float64 `json:"price"`
	TotalPrice float64 `json:"totalPrice"`
}

// SharedCart is a snapshot of a cart embedded in a message.
type SharedCart struct {
	CartID      string           `json:"cartId,omitempty"`
	Items       []SharedCartItem `json:"items"`
	TotalAmount float64          `json:"totalAmount"`
	Currency    string           `json:"currency"`
}

// ProductRef points at a catalog product.
type ProductRef struct {
	ProductID string  `json:"product"`
	Name      string  `json:"name,omitempty"`
	Brand     string  `json:"brand,omitempty"`
	Price     float64 `json:"price,omitempty"`
	Image     string  `json:"image,omitempty"`
}

// PostRef points at a feed post.
type PostRef struct {
	PostID string `json:"post"`
}

// SharedContent holds exactly one of its fields.
type SharedContent struct {
	Cart    *SharedCart `json:"cart,omitempty"`
	Product *ProductRef `json:"product,omitempty"`
	Post    *PostRef    `json:"post,omitempty"`
}

// Kind returns the message type matching the populated field, or "" when zero or
// more than one field is set.
func (s *SharedContent) Kind() MessageType {
	if s == nil {
		return ""
	}
	var kind MessageType
	n := 0
	if s.Cart != nil {
		kind, n = MessageCart, n+1
	}
	if s.Product != nil {
		kind, n = MessageProduct, n+1
	}
	if s.Post != nil {
		kind, n = MessagePost, n+1
	}
	if n != 1 {
		return ""
	}
	return kind
}

// Message is the unit of conversation content.
type Message struct {
	ID             string         `json:"id"`
	ConversationID string         `json:"conversationId"`
	Sender         string         `json:"sender"`
	Recipient      string         `json:"recipient"`
	Content        string         `json:"content"`
	Type           MessageType    `json:"messageType"`
	Media          []Media        `json:"media,omitempty"`
	SharedContent  *SharedContent `json:"sharedContent,omitempty"`
	ReplyTo        string         `json:"replyTo,omitempty"`

	delivery.State

	Reactions reaction.Set `json:"reactions,omitempty"`

	IsEdited        bool       `json:"isEdited"`
	EditedAt        *time.Time `json:"editedAt,omitempty"`
	OriginalContent string     `json:"originalContent,omitempty"`

	IsDeleted bool       `json:"isDeleted"`
	DeletedAt *time.Time `json:"deletedAt,omitempty"`
	DeletedBy string     `json:"deletedBy,omitempty"`

	IsReported  bool `json:"isReported"`
	ReportCount int  `json:"reportCount"`
	IsHidden    bool `json:"isHidden"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Clone returns a deep copy so callers can mutate without touching shared state.
func (m *Message) Clone() *Message {
	if m == nil {
		return nil
	}
	c := *m
	c.Media = append([]Media(nil), m.Media...)
	c.Reactions = append(reaction.Set(nil), m.Reactions...)
	if m.SharedContent != nil {
		sc := *m.SharedContent
		if sc.Cart != nil {
			cart := *sc.Cart
			cart.Items = append([]SharedCartItem(nil), sc.Cart.Items...)
			sc.Cart = &cart
		}
		if sc.Product != nil {
			p := *sc.Product
			sc.Product = &p
		}
		if sc.Post != nil {
			p := *sc.Post
			sc.Post = &p
		}
		c.SharedContent = &sc
	}
	c.DeliveredAt = copyTime(m.DeliveredAt)
	c.ReadAt = copyTime(m.ReadAt)
	c.EditedAt = copyTime(m.EditedAt)
	c.DeletedAt = copyTime(m.DeletedAt)
	return &c
}

func copyTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
