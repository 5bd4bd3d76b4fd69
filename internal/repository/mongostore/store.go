package mongostore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/fjod/storefront/internal/domain"
	"github.com/fjod/storefront/internal/repository"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	colProducts  = "products"
	colDiscounts = "discount_codes"
	colShipping  = "shipping_types"
	colAddresses = "shipping_addresses"
	colCounters  = "counters"
	colSuccess   = "success_orders"
	colFailed    = "failed_orders"
	colContact   = "contact_queries"

	orderCounterID = "orders"
)

type Store struct {
	db *mongo.Database
}

var _ repository.Store = (*Store)(nil)

func New(db *mongo.Database) *Store {
	return &Store{db: db}
}

func (s *Store) CreateIndexes(ctx context.Context) error {
	indexes := map[string][]mongo.IndexModel{
		colDiscounts: {
			{Keys: bson.D{{Key: "code", Value: 1}}, Options: options.Index().SetUnique(true)},
		},
		colAddresses: {
			{Keys: bson.D{{Key: "user_id", Value: 1}, {Key: "updated_at", Value: -1}}},
		},
		colSuccess: {
			{Keys: bson.D{{Key: "user_id", Value: 1}, {Key: "created_at", Value: -1}}},
		},
		colFailed: {
			{Keys: bson.D{{Key: "user_id", Value: 1}, {Key: "created_at", Value: -1}}},
		},
	}

	for col, models := range indexes {
		if _, err := s.db.Collection(col).Indexes().CreateMany(ctx, models); err != nil {
			return fmt.Errorf("failed to create indexes on %s: %w", col, err)
		}
	}
	return nil
}

func (s *Store) Close(ctx context.Context) error {
	return s.db.Client().Disconnect(ctx)
}

type counterDoc struct {
	ID              string `bson:"_id"`
	LastOrderNumber int64  `bson:"last_order_number"`
}

// EnsureOrderCounter creates the counter record at base if it is missing.
func (s *Store) EnsureOrderCounter(ctx context.Context, base int64) error {
	_, err := s.db.Collection(colCounters).UpdateOne(ctx,
		bson.M{"_id": orderCounterID},
		bson.M{"$setOnInsert": bson.M{"last_order_number": base}},
		options.Update().SetUpsert(true),
	)
	if err != nil {
		return fmt.Errorf("failed to ensure order counter: %w", err)
	}
	return nil
}

func (s *Store) ReadOrderCounter(ctx context.Context) (int64, error) {
	var doc counterDoc
	err := s.db.Collection(colCounters).FindOne(ctx, bson.M{"_id": orderCounterID}).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return 0, repository.ErrNotFound
		}
		return 0, fmt.Errorf("failed to read order counter: %w", err)
	}
	return doc.LastOrderNumber, nil
}

// SwapOrderCounter moves the counter from old to next only if nobody else
// moved it first. A counter without the field reads as zero, so zero also
// matches a missing field.
func (s *Store) SwapOrderCounter(ctx context.Context, old, next int64) (bool, error) {
	filter := bson.M{"_id": orderCounterID, "last_order_number": old}
	if old == 0 {
		filter = bson.M{
			"_id": orderCounterID,
			"$or": bson.A{
				bson.M{"last_order_number": 0},
				bson.M{"last_order_number": bson.M{"$exists": false}},
			},
		}
	}

	res, err := s.db.Collection(colCounters).UpdateOne(ctx, filter,
		bson.M{"$set": bson.M{"last_order_number": next}})
	if err != nil {
		return false, fmt.Errorf("failed to swap order counter: %w", err)
	}
	return res.ModifiedCount == 1, nil
}

func (s *Store) ListProducts(ctx context.Context, ribbon string) ([]domain.Product, error) {
	filter := bson.M{}
	if ribbon != "" {
		filter["ribbon"] = ribbon
	}
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}})

	cur, err := s.db.Collection(colProducts).Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list products: %w", err)
	}
	products := []domain.Product{}
	if err := cur.All(ctx, &products); err != nil {
		return nil, fmt.Errorf("failed to decode products: %w", err)
	}
	return products, nil
}

func (s *Store) GetProduct(ctx context.Context, id string) (*domain.Product, error) {
	var p domain.Product
	err := s.db.Collection(colProducts).FindOne(ctx, bson.M{"_id": id}).Decode(&p)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get product: %w", err)
	}
	return &p, nil
}

// InsertProduct is used for seeding the catalog.
func (s *Store) InsertProduct(ctx context.Context, p *domain.Product) error {
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now()
	}
	if _, err := s.db.Collection(colProducts).InsertOne(ctx, p); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return repository.ErrAlreadyExists
		}
		return fmt.Errorf("failed to insert product: %w", err)
	}
	return nil
}

func (s *Store) FindDiscountByCode(ctx context.Context, code string) (*domain.DiscountCode, error) {
	var d domain.DiscountCode
	err := s.db.Collection(colDiscounts).FindOne(ctx, bson.M{"code": code}).Decode(&d)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("failed to find discount: %w", err)
	}
	return &d, nil
}

func (s *Store) CreateDiscount(ctx context.Context, d *domain.DiscountCode) error {
	if _, err := s.db.Collection(colDiscounts).InsertOne(ctx, d); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return repository.ErrAlreadyExists
		}
		return fmt.Errorf("failed to create discount: %w", err)
	}
	return nil
}

func (s *Store) ListDiscounts(ctx context.Context) ([]domain.DiscountCode, error) {
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}})
	cur, err := s.db.Collection(colDiscounts).Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list discounts: %w", err)
	}
	codes := []domain.DiscountCode{}
	if err := cur.All(ctx, &codes); err != nil {
		return nil, fmt.Errorf("failed to decode discounts: %w", err)
	}
	return codes, nil
}

func (s *Store) SetDiscountStatus(ctx context.Context, id string, status domain.DiscountStatus) error {
	res, err := s.db.Collection(colDiscounts).UpdateOne(ctx,
		bson.M{"_id": id},
		bson.M{"$set": bson.M{"status": status}})
	if err != nil {
		return fmt.Errorf("failed to set discount status: %w", err)
	}
	if res.MatchedCount == 0 {
		return repository.ErrNotFound
	}
	return nil
}

type shippingDoc struct {
	ID    string  `bson:"_id"`
	Price float64 `bson:"price"`
}

func (s *Store) GetShippingRate(ctx context.Context, tier domain.ShippingTier) (float64, error) {
	var doc shippingDoc
	err := s.db.Collection(colShipping).FindOne(ctx, bson.M{"_id": string(tier)}).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return 0, repository.ErrNotFound
		}
		return 0, fmt.Errorf("failed to get shipping rate: %w", err)
	}
	return doc.Price, nil
}

// SetShippingRate upserts the price of a tier.
func (s *Store) SetShippingRate(ctx context.Context, tier domain.ShippingTier, price float64) error {
	_, err := s.db.Collection(colShipping).UpdateOne(ctx,
		bson.M{"_id": string(tier)},
		bson.M{"$set": bson.M{"price": price}},
		options.Update().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("failed to set shipping rate: %w", err)
	}
	return nil
}

func (s *Store) ListAddresses(ctx context.Context, userID string) ([]domain.ShippingAddress, error) {
	opts := options.Find().SetSort(bson.D{{Key: "updated_at", Value: -1}})
	cur, err := s.db.Collection(colAddresses).Find(ctx, bson.M{"user_id": userID}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list addresses: %w", err)
	}
	addrs := []domain.ShippingAddress{}
	if err := cur.All(ctx, &addrs); err != nil {
		return nil, fmt.Errorf("failed to decode addresses: %w", err)
	}
	return addrs, nil
}

func (s *Store) GetAddress(ctx context.Context, userID, id string) (*domain.ShippingAddress, error) {
	var a domain.ShippingAddress
	err := s.db.Collection(colAddresses).FindOne(ctx, bson.M{"_id": id, "user_id": userID}).Decode(&a)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get address: %w", err)
	}
	return &a, nil
}

func (s *Store) CreateAddress(ctx context.Context, a *domain.ShippingAddress) error {
	if _, err := s.db.Collection(colAddresses).InsertOne(ctx, a); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return repository.ErrAlreadyExists
		}
		return fmt.Errorf("failed to create address: %w", err)
	}
	return nil
}

func (s *Store) UpdateAddress(ctx context.Context, a *domain.ShippingAddress) error {
	update := bson.M{"$set": bson.M{
		"name":        a.Name,
		"email":       a.Email,
		"address":     a.Address,
		"city":        a.City,
		"state":       a.State,
		"postal_code": a.PostalCode,
		"country":     a.Country,
		"updated_at":  a.UpdatedAt,
	}}
	res, err := s.db.Collection(colAddresses).UpdateOne(ctx, bson.M{"_id": a.ID, "user_id": a.UserID}, update)
	if err != nil {
		return fmt.Errorf("failed to update address: %w", err)
	}
	if res.MatchedCount == 0 {
		return repository.ErrNotFound
	}
	return nil
}

func (s *Store) DeleteAddress(ctx context.Context, userID, id string) error {
	res, err := s.db.Collection(colAddresses).DeleteOne(ctx, bson.M{"_id": id, "user_id": userID})
	if err != nil {
		return fmt.Errorf("failed to delete address: %w", err)
	}
	if res.DeletedCount == 0 {
		return repository.ErrNotFound
	}
	return nil
}

func (s *Store) TouchAddress(ctx context.Context, userID, id string, at time.Time) error {
	res, err := s.db.Collection(colAddresses).UpdateOne(ctx,
		bson.M{"_id": id, "user_id": userID},
		bson.M{"$set": bson.M{"updated_at": at}})
	if err != nil {
		return fmt.Errorf("failed to touch address: %w", err)
	}
	if res.MatchedCount == 0 {
		return repository.ErrNotFound
	}
	return nil
}

func (s *Store) CreateSuccessOrder(ctx context.Context, o *domain.Order) error {
	return s.insertOrder(ctx, colSuccess, o)
}

func (s *Store) CreateFailedOrder(ctx context.Context, o *domain.Order) error {
	return s.insertOrder(ctx, colFailed, o)
}

func (s *Store) insertOrder(ctx context.Context, col string, o *domain.Order) error {
	if _, err := s.db.Collection(col).InsertOne(ctx, o); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return repository.ErrAlreadyExists
		}
		return fmt.Errorf("failed to insert order into %s: %w", col, err)
	}
	return nil
}

func (s *Store) SetInvoiceURL(ctx context.Context, orderNumber, url string) error {
	res, err := s.db.Collection(colSuccess).UpdateOne(ctx,
		bson.M{"_id": orderNumber},
		bson.M{"$set": bson.M{"invoice_url": url}})
	if err != nil {
		return fmt.Errorf("failed to set invoice url: %w", err)
	}
	if res.MatchedCount == 0 {
		return repository.ErrNotFound
	}
	return nil
}

func (s *Store) ListOrders(ctx context.Context, userID string, status domain.OrderStatus) ([]domain.Order, error) {
	col := colSuccess
	if status == domain.OrderStatusFailed {
		col = colFailed
	}
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}})
	cur, err := s.db.Collection(col).Find(ctx, bson.M{"user_id": userID}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list orders: %w", err)
	}
	orders := []domain.Order{}
	if err := cur.All(ctx, &orders); err != nil {
		return nil, fmt.Errorf("failed to decode orders: %w", err)
	}
	return orders, nil
}

func (s *Store) GetOrder(ctx context.Context, userID, orderNumber string) (*domain.Order, error) {
	filter := bson.M{"_id": orderNumber, "user_id": userID}
	for _, col := range []string{colSuccess, colFailed} {
		var o domain.Order
		err := s.db.Collection(col).FindOne(ctx, filter).Decode(&o)
		if err == nil {
			return &o, nil
		}
		if !errors.Is(err, mongo.ErrNoDocuments) {
			return nil, fmt.Errorf("failed to get order: %w", err)
		}
	}
	return nil, repository.ErrNotFound
}

func (s *Store) CreateContactQuery(ctx context.Context, q *domain.ContactQuery) error {
	if _, err := s.db.Collection(colContact).InsertOne(ctx, q); err != nil {
		return fmt.Errorf("failed to create contact query: %w", err)
	}
	return nil
}
