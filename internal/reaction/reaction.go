// Package reaction keeps the one-emoji-per-user rule for message reactions.
package reaction

import (
	"errors"
	"time"
	"unicode/utf8"
)

// MaxEmojiLen bounds an emoji in runes. Skin tones and ZWJ sequences need more than one.
const MaxEmojiLen = 16

var (
	ErrEmptyEmoji   = errors.New("emoji is required")
	ErrEmojiTooLong = errors.New("emoji is too long")
)

// Action tells what a toggle did.
type Action string

const (
	ActionAdded   Action = "added"
	ActionRemoved Action = "removed"
)

// Reaction is one user's emoji on a message.
type Reaction struct {
	UserID    string    `json:"user"`
	Emoji     string    `json:"emoji"`
	CreatedAt time.Time `json:"createdAt"`
}

// Set is the reactions of one message in the order they were added.
type Set []Reaction

// Validate checks an emoji before it is toggled.
func Validate(emoji string) error {
	if emoji == "" {
		return ErrEmptyEmoji
	}
	if utf8.RuneCountInString(emoji) > MaxEmojiLen {
		return ErrEmojiTooLong
	}
	return nil
}

// Toggle removes any reaction by userID and then adds emoji unless it is the one
// just removed. Toggling the same emoji twice leaves no reaction; a different emoji
// replaces the previous one. The receiver is not modified.
func (s Set) Toggle(userID, emoji string, at time.Time) (Set, Action) {
	next := make(Set, 0, len(s)+1)
	removed := ""
	for _, r := range s {
		if r.UserID == userID {
			removed = r.Emoji
			continue
		}
		next = append(next, r)
	}

	if removed == emoji {
		return next, ActionRemoved
	}
	return append(next, Reaction{UserID: userID, Emoji: emoji, CreatedAt: at}), ActionAdded
}

// Counts returns how many users reacted with each emoji.
func (s Set) Counts() map[string]int {
	counts := make(map[string]int, len(s))
	for _, r := range s {
		counts[r.Emoji]++
	}
	return counts
}

// Of returns the emoji userID currently has on the message.
func (s Set) Of(userID string) (string, bool) {
	for _, r := range s {
		if r.UserID == userID {
			return r.Emoji, true
		}
	}
	return "", false
}
