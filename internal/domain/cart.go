package domain

// CartLine is a product snapshot plus the quantity held in the cart.
type CartLine struct {
	ProductID string   `json:"product_id"`
	Title     string   `json:"title"`
	Price     float64  `json:"price"`
	Images    []string `json:"images,omitempty"`
	Options   []Option `json:"options,omitempty"`
	Qty       int      `json:"qty"`
}

func (l CartLine) LineTotal() float64 {
	return l.Price * float64(l.Qty)
}

// NewCartLine snapshots the product fields a cart line carries.
func NewCartLine(p Product, qty int) CartLine {
	return CartLine{
		ProductID: p.ID,
		Title:     p.Title,
		Price:     p.Price,
		Images:    append([]string(nil), p.Images...),
		Options:   append([]Option(nil), p.Options...),
		Qty:       qty,
	}
}
