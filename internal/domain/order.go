package domain

import "time"

type OrderStatus string

const (
	OrderStatusProcessing OrderStatus = "processing"
	OrderStatusFailed     OrderStatus = "failed"
)

type PaymentStatus string

const (
	PaymentStatusSuccess PaymentStatus = "success"
	PaymentStatusFailed  PaymentStatus = "failed"
)

type CustomerInfo struct {
	Name            string          `json:"name" bson:"name"`
	Email           string          `json:"email" bson:"email"`
	Phone           string          `json:"phone" bson:"phone"`
	Notes           string          `json:"notes,omitempty" bson:"notes,omitempty"`
	ShippingAddress ShippingAddress `json:"shipping_address" bson:"shipping_address"`
}

type OrderItem struct {
	ProductID string   `json:"product_id" bson:"product_id"`
	Title     string   `json:"title" bson:"title"`
	Price     float64  `json:"price" bson:"price"`
	Quantity  int      `json:"quantity" bson:"quantity"`
	Options   []Option `json:"options" bson:"options"`
	Image     string   `json:"image,omitempty" bson:"image,omitempty"`
}

type ShippingCharge struct {
	Type ShippingTier `json:"type" bson:"type"`
	Cost float64      `json:"cost" bson:"cost"`
}

type PaymentFailure struct {
	Code        string `json:"code,omitempty" bson:"code,omitempty"`
	Description string `json:"description,omitempty" bson:"description,omitempty"`
}

type PaymentInfo struct {
	PaymentID      string          `json:"payment_id,omitempty" bson:"payment_id,omitempty"`
	GatewayOrderID string          `json:"gateway_order_id" bson:"gateway_order_id"`
	Signature      string          `json:"signature,omitempty" bson:"signature,omitempty"`
	Status         PaymentStatus   `json:"status" bson:"status"`
	Error          *PaymentFailure `json:"error,omitempty" bson:"error,omitempty"`
}

// Order is written once when a checkout attempt resolves. Only InvoiceURL
// changes afterwards.
type Order struct {
	OrderNumber   string         `json:"order_number" bson:"_id"`
	OrderDate     string         `json:"order_date" bson:"order_date"`
	UserID        string         `json:"user_id" bson:"user_id"`
	Customer      CustomerInfo   `json:"customer_info" bson:"customer_info"`
	Items         []OrderItem    `json:"cart_items" bson:"cart_items"`
	Subtotal      float64        `json:"subtotal" bson:"subtotal"`
	Tax           float64        `json:"tax" bson:"tax"`
	DiscountCode  string         `json:"discount_code,omitempty" bson:"discount_code,omitempty"`
	DiscountValue float64        `json:"discount_value" bson:"discount_value"`
	Shipping      ShippingCharge `json:"shipping" bson:"shipping"`
	Total         float64        `json:"total" bson:"total"`
	Payment       PaymentInfo    `json:"payment" bson:"payment"`
	Status        OrderStatus    `json:"status" bson:"status"`
	InvoiceURL    string         `json:"invoice_url,omitempty" bson:"invoice_url,omitempty"`
	CreatedAt     time.Time      `json:"created_at" bson:"created_at"`
}

// SnapshotItems copies cart lines into order items so later cart changes
// never reach a written order.
func SnapshotItems(lines []CartLine) []OrderItem {
	items := make([]OrderItem, len(lines))
	for i, l := range lines {
		item := OrderItem{
			ProductID: l.ProductID,
			Title:     l.Title,
			Price:     l.Price,
			Quantity:  l.Qty,
			Options:   append([]Option{}, l.Options...),
		}
		if len(l.Images) > 0 {
			item.Image = l.Images[0]
		}
		items[i] = item
	}
	return items
}

type ContactQuery struct {
	ID        string    `json:"id" bson:"_id" db:"id"`
	UserID    string    `json:"user_id" bson:"user_id" db:"user_id"`
	Name      string    `json:"name" bson:"name" db:"name"`
	Email     string    `json:"email" bson:"email" db:"email"`
	Phone     string    `json:"phone" bson:"phone" db:"phone"`
	Subject   string    `json:"subject" bson:"subject" db:"subject"`
	Message   string    `json:"message" bson:"message" db:"message"`
	CreatedAt time.Time `json:"created_at" bson:"created_at" db:"created_at"`
}
