package domain

import "time"

type Option struct {
	Name  string `json:"name" bson:"name"`
	Value string `json:"value" bson:"value"`
}

type Product struct {
	ID          string    `json:"id" bson:"_id"`
	Title       string    `json:"title" bson:"title"`
	Description string    `json:"description,omitempty" bson:"description"`
	Price       float64   `json:"price" bson:"price"`
	Images      []string  `json:"images,omitempty" bson:"images"`
	Options     []Option  `json:"options,omitempty" bson:"options"`
	Ribbon      string    `json:"ribbon,omitempty" bson:"ribbon"`
	CreatedAt   time.Time `json:"created_at" bson:"created_at"`
}
