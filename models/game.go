package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Game is one configured variant: a duration and the code that goes into periods.
type Game struct {
	ID              primitive.ObjectID `json:"id" bson:"_id,omitempty"`
	Name            string             `json:"name" bson:"name"`
	GameCode        string             `json:"gameCode" bson:"gameCode"`
	DurationSeconds int                `json:"durationSeconds" bson:"durationSeconds"`
	IsActive        bool               `json:"isActive" bson:"isActive"`
	CreatedAt       time.Time          `json:"createdAt" bson:"createdAt"`
	UpdatedAt       time.Time          `json:"updatedAt" bson:"updatedAt"`
}

func (g Game) Duration() time.Duration {
	return time.Duration(g.DurationSeconds) * time.Second
}
