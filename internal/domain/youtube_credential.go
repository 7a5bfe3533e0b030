package domain

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// Common validation errors for YoutubeCredential.
var (
	ErrEmptyCredentialUserID = errors.New("credential user ID cannot be empty")
	ErrEmptyAccessToken      = errors.New("credential access token cannot be empty")
)

// YoutubeCredential is a user's connection to the video platform. There is at
// most one per user.
type YoutubeCredential struct {
	UserID       uuid.UUID `json:"user_id"`
	AccessToken  string    `json:"-"`
	RefreshToken string    `json:"-"`
	ExpiresAt    time.Time `json:"expires_at"`
	Scope        string    `json:"scope"`
	ChannelID    string    `json:"channel_id,omitempty"`
	ChannelTitle string    `json:"channel_title,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Validate checks if the credential has valid data.
func (c *YoutubeCredential) Validate() error {
	if c.UserID == uuid.Nil {
		return ErrEmptyCredentialUserID
	}
	if c.AccessToken == "" {
		return ErrEmptyAccessToken
	}
	return nil
}

// ExpiredAt reports whether the access token is expired at now, treating
// tokens within skew of expiry as expired.
func (c *YoutubeCredential) ExpiredAt(now time.Time, skew time.Duration) bool {
	return !now.Add(skew).Before(c.ExpiresAt)
}
