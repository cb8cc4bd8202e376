package http

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/privatelovie/social-commerce-platform-sub001/internal/chat"
	"github.com/privatelovie/social-commerce-platform-sub001/internal/proto"
	"github.com/privatelovie/social-commerce-platform-sub001/internal/reaction"
	"github.com/privatelovie/social-commerce-platform-sub001/internal/store"
)

// MessageHandlers provides HTTP handlers for direct messaging endpoints.
type MessageHandlers struct {
	chat *chat.Service
	log  *zerolog.Logger
}

// NewMessageHandlers creates a new message handlers instance.
func NewMessageHandlers(svc *chat.Service, logger *zerolog.Logger) *MessageHandlers {
	return &MessageHandlers{
		chat: svc,
		log:  logger,
	}
}

// SendMessageRequest represents the send message request body.
type SendMessageRequest struct {
	RecipientID   string               `json:"recipientId"`
	Content       string               `json:"content"`
	MessageType   store.MessageType    `json:"messageType"`
	Media         []store.Media        `json:"media"`
	ReplyTo       string               `json:"replyTo"`
	SharedContent *store.SharedContent `json:"sharedContent"`
}

// ShareCartRequest represents the share cart request body.
type ShareCartRequest struct {
	RecipientID string `json:"recipientId"`
	CartID      string `json:"cartId"`
	Message     string `json:"message"`
}

// ShareProductRequest represents the share product request body.
type ShareProductRequest struct {
	RecipientID string `json:"recipientId"`
	ProductID   string `json:"productId"`
	Message     string `json:"message"`
}

// EditMessageRequest represents the edit message request body.
type EditMessageRequest struct {
	Content string `json:"content"`
}

// ReactionRequest represents the toggle reaction request body.
type ReactionRequest struct {
	Emoji string `json:"emoji"`
}

// MarkReadRequest lists the messages to acknowledge; empty means all.
type MarkReadRequest struct {
	MessageIDs []string `json:"messageIds"`
}

// MessagePageResponse is a window of a conversation.
type MessagePageResponse struct {
	Messages   []proto.Message `json:"messages"`
	HasMore    bool            `json:"hasMore"`
	NextCursor string          `json:"nextCursor,omitempty"`
}

// ConversationResponse is one inbox row.
type ConversationResponse struct {
	LegacyID       string             `json:"_id"`
	ConversationID string             `json:"conversationId"`
	Participants   []string           `json:"participants"`
	LastMessage    *proto.Message     `json:"lastMessage"`
	SenderInfo     *proto.Participant `json:"senderInfo,omitempty"`
	RecipientInfo  *proto.Participant `json:"recipientInfo,omitempty"`
	UnreadCount    int                `json:"unreadCount"`
}

// ConversationListResponse is a window of the inbox.
type ConversationListResponse struct {
	Conversations []ConversationResponse `json:"conversations"`
	HasMore       bool                   `json:"hasMore"`
	NextCursor    string                 `json:"nextCursor,omitempty"`
}

// SearchResponse is a window of search results.
type SearchResponse struct {
	Messages []proto.Message `json:"messages"`
	Query    string          `json:"query"`
	HasMore  bool            `json:"hasMore"`
}

// ReactionResponse reports a toggle.
type ReactionResponse struct {
	Message        string          `json:"message"`
	MessageID      string          `json:"messageId"`
	Emoji          string          `json:"emoji"`
	Action         reaction.Action `json:"action"`
	ReactionCounts map[string]int  `json:"reactionCounts"`
}

// EditedMessage is the data of an edit response.
type EditedMessage struct {
	Content  string     `json:"content"`
	IsEdited bool       `json:"isEdited"`
	EditedAt *time.Time `json:"editedAt,omitempty"`
}

// MarkReadResponse lists the messages that became read.
type MarkReadResponse struct {
	Message    string   `json:"message"`
	MessageIDs []string `json:"messageIds"`
}

type pagingQuery struct {
	Limit  int    `form:"limit"`
	Page   int    `form:"page"`
	Cursor string `form:"cursor"`
	Before string `form:"before"`
}

var errBadQuery = errors.New("invalid query parameters")

// page converts query parameters to a chat.Page. before wins over cursor; page
// counts from 1.
func (q pagingQuery) page(defaultLimit int) (chat.Page, error) {
	if q.Limit < 0 || q.Page < 0 {
		return chat.Page{}, errBadQuery
	}
	p := chat.Page{Limit: q.Limit}
	if q.Page > 1 {
		limit := q.Limit
		if limit == 0 {
			limit = defaultLimit
		}
		p.Offset = (q.Page - 1) * limit
	}
	raw := q.Before
	if raw == "" {
		raw = q.Cursor
	}
	if raw != "" {
		t, err := time.Parse(time.RFC3339Nano, raw)
		if err != nil {
			return chat.Page{}, errBadQuery
		}
		p.Before = t
	}
	return p, nil
}

func formatCursor(t time.Time, ok bool) string {
	if !ok {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func (h *MessageHandlers) bindPage(c *gin.Context, defaultLimit int) (chat.Page, bool) {
	var q pagingQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		h.log.Debug().Err(err).Msg("invalid paging query")
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: errBadQuery.Error()})
		return chat.Page{}, false
	}
	p, err := q.page(defaultLimit)
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
		return chat.Page{}, false
	}
	return p, true
}

// Send handles sending a direct message.
// POST /api/messages/send
func (h *MessageHandlers) Send(c *gin.Context) {
	uid, ok := requireUser(c, h.log)
	if !ok {
		return
	}

	var req SendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.log.Debug().Err(err).Msg("invalid send request")
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}

	msg, err := h.chat.Send(c.Request.Context(), chat.SendRequest{
		Sender:        uid,
		Recipient:     req.RecipientID,
		Content:       req.Content,
		Type:          req.MessageType,
		Media:         req.Media,
		ReplyTo:       req.ReplyTo,
		SharedContent: req.SharedContent,
	})
	if err != nil {
		writeError(c, h.log, err, "send message")
		return
	}

	h.log.Debug().Str("message_id", msg.ID).Str("conversation_id", msg.ConversationID).Msg("message sent")
	c.JSON(http.StatusCreated, MessageResponse{Message: "Message sent successfully", Data: h.chat.View(c.Request.Context(), msg)})
}

// ShareCart handles sharing one of the caller's carts.
// POST /api/messages/share-cart
func (h *MessageHandlers) ShareCart(c *gin.Context) {
	uid, ok := requireUser(c, h.log)
	if !ok {
		return
	}

	var req ShareCartRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.log.Debug().Err(err).Msg("invalid share cart request")
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}

	msg, err := h.chat.ShareCart(c.Request.Context(), chat.ShareCartRequest{
		Sender:    uid,
		Recipient: req.RecipientID,
		CartID:    req.CartID,
		Message:   req.Message,
	})
	if err != nil {
		writeError(c, h.log, err, "share cart")
		return
	}

	c.JSON(http.StatusCreated, MessageResponse{Message: "Cart shared successfully", Data: h.chat.View(c.Request.Context(), msg)})
}

// ShareProduct handles sharing a catalog product.
// POST /api/messages/share-product
func (h *MessageHandlers) ShareProduct(c *gin.Context) {
	uid, ok := requireUser(c, h.log)
	if !ok {
		return
	}

	var req ShareProductRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.log.Debug().Err(err).Msg("invalid share product request")
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}

	msg, err := h.chat.ShareProduct(c.Request.Context(), chat.ShareProductRequest{
		Sender:    uid,
		Recipient: req.RecipientID,
		ProductID: req.ProductID,
		Message:   req.Message,
	})
	if err != nil {
		writeError(c, h.log, err, "share product")
		return
	}

	c.JSON(http.StatusCreated, MessageResponse{Message: "Product shared successfully", Data: h.chat.View(c.Request.Context(), msg)})
}

// ListConversations handles the caller's inbox.
// GET /api/messages/conversations
func (h *MessageHandlers) ListConversations(c *gin.Context) {
	uid, ok := requireUser(c, h.log)
	if !ok {
		return
	}
	page, ok := h.bindPage(c, chat.DefaultListLimit)
	if !ok {
		return
	}

	res, err := h.chat.ListConversations(c.Request.Context(), uid, page)
	if err != nil {
		writeError(c, h.log, err, "list conversations")
		return
	}

	lasts := make([]*store.Message, 0, len(res.Conversations))
	for _, conv := range res.Conversations {
		if conv.LastMessage != nil {
			lasts = append(lasts, conv.LastMessage)
		}
	}
	views := h.chat.Views(c.Request.Context(), lasts)

	rows := make([]ConversationResponse, 0, len(res.Conversations))
	for _, conv := range res.Conversations {
		row := ConversationResponse{
			LegacyID:       conv.ID,
			ConversationID: conv.ID,
			Participants:   conv.Participants,
			UnreadCount:    conv.UnreadCount,
		}
		if conv.LastMessage != nil {
			last := views[0]
			views = views[1:]
			row.LastMessage = &last
			row.SenderInfo = last.SenderInfo
			row.RecipientInfo = last.RecipientInfo
		}
		rows = append(rows, row)
	}
	c.JSON(http.StatusOK, ConversationListResponse{
		Conversations: rows,
		HasMore:       res.HasMore,
		NextCursor:    formatCursor(res.NextCursor()),
	})
}

// ListConversation handles reading a conversation; it marks the caller's messages read.
// GET /api/messages/conversations/:conversationId
func (h *MessageHandlers) ListConversation(c *gin.Context) {
	uid, ok := requireUser(c, h.log)
	if !ok {
		return
	}
	page, ok := h.bindPage(c, chat.DefaultMessageLimit)
	if !ok {
		return
	}

	res, err := h.chat.ListConversation(c.Request.Context(), c.Param("conversationId"), uid, page)
	if err != nil {
		writeError(c, h.log, err, "list conversation")
		return
	}

	c.JSON(http.StatusOK, MessagePageResponse{
		Messages:   h.chat.Views(c.Request.Context(), res.Messages),
		HasMore:    res.HasMore,
		NextCursor: formatCursor(res.NextCursor()),
	})
}

// MarkRead handles an explicit read acknowledgement.
// POST /api/messages/conversations/:conversationId/read
func (h *MessageHandlers) MarkRead(c *gin.Context) {
	uid, ok := requireUser(c, h.log)
	if !ok {
		return
	}

	var req MarkReadRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			h.log.Debug().Err(err).Msg("invalid mark read request")
			c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
			return
		}
	}

	read, err := h.chat.MarkRead(c.Request.Context(), uid, c.Param("conversationId"), req.MessageIDs)
	if err != nil {
		writeError(c, h.log, err, "mark read")
		return
	}

	ids := make([]string, 0, len(read))
	for _, m := range read {
		ids = append(ids, m.ID)
	}
	c.JSON(http.StatusOK, MarkReadResponse{Message: "Messages marked as read", MessageIDs: ids})
}

// Search handles message search.
// GET /api/messages/search?q=query
func (h *MessageHandlers) Search(c *gin.Context) {
	uid, ok := requireUser(c, h.log)
	if !ok {
		return
	}
	page, ok := h.bindPage(c, chat.DefaultListLimit)
	if !ok {
		return
	}

	query := c.Query("q")
	res, err := h.chat.Search(c.Request.Context(), chat.SearchRequest{
		UserID:         uid,
		Query:          query,
		ConversationID: c.Query("conversationId"),
		Limit:          page.Limit,
		Offset:         page.Offset,
	})
	if err != nil {
		writeError(c, h.log, err, "search messages")
		return
	}

	c.JSON(http.StatusOK, SearchResponse{
		Messages: h.chat.Views(c.Request.Context(), res.Messages),
		Query:    query,
		HasMore:  res.HasMore,
	})
}

// ToggleReaction handles adding, replacing or removing the caller's reaction.
// POST /api/messages/:id/reactions
func (h *MessageHandlers) ToggleReaction(c *gin.Context) {
	uid, ok := requireUser(c, h.log)
	if !ok {
		return
	}

	var req ReactionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.log.Debug().Err(err).Msg("invalid reaction request")
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}

	res, err := h.chat.ToggleReaction(c.Request.Context(), c.Param("id"), uid, req.Emoji)
	if err != nil {
		writeError(c, h.log, err, "toggle reaction")
		return
	}

	text := "Reaction added"
	if res.Action == reaction.ActionRemoved {
		text = "Reaction removed"
	}
	c.JSON(http.StatusOK, ReactionResponse{
		Message:        text,
		MessageID:      res.Message.ID,
		Emoji:          res.Emoji,
		Action:         res.Action,
		ReactionCounts: res.Counts,
	})
}

// Edit handles a sender-only edit.
// PUT /api/messages/:id
func (h *MessageHandlers) Edit(c *gin.Context) {
	uid, ok := requireUser(c, h.log)
	if !ok {
		return
	}

	var req EditMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.log.Debug().Err(err).Msg("invalid edit request")
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}

	msg, err := h.chat.Edit(c.Request.Context(), c.Param("id"), uid, req.Content)
	if err != nil {
		writeError(c, h.log, err, "edit message")
		return
	}

	c.JSON(http.StatusOK, MessageResponse{
		Message: "Message edited successfully",
		Data: EditedMessage{
			Content:  msg.Content,
			IsEdited: msg.IsEdited,
			EditedAt: msg.EditedAt,
		},
	})
}

// Delete handles a sender-only soft delete.
// DELETE /api/messages/:id
func (h *MessageHandlers) Delete(c *gin.Context) {
	uid, ok := requireUser(c, h.log)
	if !ok {
		return
	}

	if _, err := h.chat.Delete(c.Request.Context(), c.Param("id"), uid); err != nil {
		writeError(c, h.log, err, "delete message")
		return
	}

	c.JSON(http.StatusOK, MessageResponse{Message: "Message deleted successfully"})
}

// GetMessage returns one message, deleted ones included, to either participant.
// GET /api/messages/:id
func (h *MessageHandlers) GetMessage(c *gin.Context) {
	uid, ok := requireUser(c, h.log)
	if !ok {
		return
	}

	msg, err := h.chat.GetMessage(c.Request.Context(), c.Param("id"), uid)
	if err != nil {
		writeError(c, h.log, err, "get message")
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": h.chat.View(c.Request.Context(), msg)})
}
