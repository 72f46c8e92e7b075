package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// User carries only the wallet fields this service touches. Accounts are
// owned by the host application.
type User struct {
	ID            primitive.ObjectID `json:"id" bson:"_id,omitempty"`
	Nickname      string             `json:"nickname" bson:"nickname"`
	WalletBalance float64            `json:"walletBalance" bson:"walletBalance"`
	UpdatedAt     time.Time          `json:"updatedAt" bson:"updatedAt"`
}
