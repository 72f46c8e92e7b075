package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// ErrorLog is a persisted anomaly report.
type ErrorLog struct {
	ID            primitive.ObjectID `json:"id" bson:"_id,omitempty"`
	CorrelationID string             `json:"correlationId" bson:"correlationId"`
	Message       string             `json:"message" bson:"message"`
	Source        string             `json:"source" bson:"source"`
	Context       map[string]any     `json:"context,omitempty" bson:"context,omitempty"`
	CreatedAt     time.Time          `json:"createdAt" bson:"createdAt"`
}
