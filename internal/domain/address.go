package domain

import "time"

type ShippingAddress struct {
	ID         string    `json:"id" bson:"_id" db:"id"`
	UserID     string    `json:"user_id" bson:"user_id" db:"user_id"`
	Name       string    `json:"name" bson:"name" db:"name"`
	Email      string    `json:"email" bson:"email" db:"email"`
	Address    string    `json:"address" bson:"address" db:"address"`
	City       string    `json:"city" bson:"city" db:"city"`
	State      string    `json:"state" bson:"state" db:"state"`
	PostalCode string    `json:"postal_code" bson:"postal_code" db:"postal_code"`
	Country    string    `json:"country" bson:"country" db:"country"`
	CreatedAt  time.Time `json:"created_at" bson:"created_at" db:"created_at"`
	UpdatedAt  time.Time `json:"updated_at" bson:"updated_at" db:"updated_at"`
}

// Complete reports whether every postal field is filled in.
func (a ShippingAddress) Complete() bool {
	return a.Address != "" && a.City != "" && a.State != "" && a.PostalCode != "" && a.Country != ""
}
