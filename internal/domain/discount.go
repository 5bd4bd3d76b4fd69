package domain

import "time"

type DiscountType string

const (
	DiscountPercentage DiscountType = "percentage"
	DiscountFlat       DiscountType = "flat"
)

type DiscountStatus string

const (
	DiscountActive   DiscountStatus = "Active"
	DiscountInactive DiscountStatus = "Inactive"
)

type DiscountCode struct {
	ID        string         `json:"id" bson:"_id,omitempty" db:"id"`
	Code      string         `json:"code" bson:"code" db:"code"`
	Type      DiscountType   `json:"type" bson:"type" db:"type"`
	Value     float64        `json:"value" bson:"value" db:"value"`
	Status    DiscountStatus `json:"status" bson:"status" db:"status"`
	Name      string         `json:"name" bson:"name" db:"name"`
	CreatedAt time.Time      `json:"created_at" bson:"created_at" db:"created_at"`
}

func (d DiscountCode) IsActive() bool {
	return d.Status == DiscountActive
}
