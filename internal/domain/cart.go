package domain

import "time"

type Cart struct {
	ID        string    `json:"id,omitempty"`
	UserID    string    `json:"userId"`
	Items     Lines     `json:"items"`
	Version   int64     `json:"version"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func NewCart(userID string, now time.Time) *Cart {
	return &Cart{
		UserID:    userID,
		Items:     Lines{},
		CreatedAt: now,
		UpdatedAt: now,
	}
}
