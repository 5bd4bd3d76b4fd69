package sqlstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/fjod/storefront/internal/domain"
	"github.com/fjod/storefront/internal/repository"
	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	_ "modernc.org/sqlite"
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"

	orderCounterID = "orders"
)

// Store keeps the document-store collections in SQL tables. Orders are kept
// whole as a JSON document next to the columns they are looked up by.
type Store struct {
	db     *sqlx.DB
	driver string
}

var _ repository.Store = (*Store)(nil)

func NewPostgres(cred *repository.Credentials) (*Store, error) {
	psqlconn := fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=disable",
		cred.Host,
		cred.Port,
		cred.User,
		cred.Password,
		cred.DBName)

	db, err := sqlx.Open(DriverPostgres, psqlconn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	db.SetMaxOpenConns(100)
	db.SetMaxIdleConns(10)
	return &Store{db: db, driver: DriverPostgres}, nil
}

func NewSQLite(path string) (*Store, error) {
	db, err := sqlx.Open(DriverSQLite, path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	// one writer; an in-memory database also lives on a single connection
	db.SetMaxOpenConns(1)
	return &Store{db: db, driver: DriverSQLite}, nil
}

// NewWithDB wraps an already opened handle.
func NewWithDB(db *sql.DB, driver string) *Store {
	return &Store{db: sqlx.NewDb(db, driver), driver: driver}
}

func (s *Store) RunMigrations(migrationsPath string) error {
	var (
		driver database.Driver
		err    error
	)
	switch s.driver {
	case DriverPostgres:
		driver, err = postgres.WithInstance(s.db.DB, &postgres.Config{})
	case DriverSQLite:
		driver, err = sqlite.WithInstance(s.db.DB, &sqlite.Config{})
	default:
		return fmt.Errorf("unsupported driver %q", s.driver)
	}
	if err != nil {
		return fmt.Errorf("could not create migration driver: %w", err)
	}

	m, err := migrate.NewWithDatabaseInstance(
		fmt.Sprintf("file://%s", migrationsPath),
		s.driver,
		driver,
	)
	if err != nil {
		return fmt.Errorf("could not create migrate instance: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("could not run migrations: %w", err)
	}
	return nil
}

func (s *Store) Close(context.Context) error {
	return s.db.Close()
}

func (s *Store) EnsureOrderCounter(ctx context.Context, base int64) error {
	query := `INSERT INTO counters (id, last_order_number) VALUES ($1, $2) ON CONFLICT (id) DO NOTHING`
	if _, err := s.db.ExecContext(ctx, query, orderCounterID, base); err != nil {
		return fmt.Errorf("failed to ensure order counter: %w", err)
	}
	return nil
}

func (s *Store) ReadOrderCounter(ctx context.Context) (int64, error) {
	var last int64
	err := s.db.GetContext(ctx, &last, `SELECT last_order_number FROM counters WHERE id = $1`, orderCounterID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, repository.ErrNotFound
		}
		return 0, fmt.Errorf("failed to read order counter: %w", err)
	}
	return last, nil
}

// SwapOrderCounter advances the counter from old to next inside a
// transaction. It reports false when another writer got there first.
func (s *Store) SwapOrderCounter(ctx context.Context, old, next int64) (bool, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		`UPDATE counters SET last_order_number = $1 WHERE id = $2 AND last_order_number = $3`,
		next, orderCounterID, old)
	if err != nil {
		return false, fmt.Errorf("failed to swap order counter: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read rows affected: %w", err)
	}
	if n != 1 {
		return false, nil
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("failed to commit counter swap: %w", err)
	}
	return true, nil
}

type productRow struct {
	ID          string    `db:"id"`
	Title       string    `db:"title"`
	Description string    `db:"description"`
	Price       float64   `db:"price"`
	Images      []byte    `db:"images"`
	Options     []byte    `db:"options"`
	Ribbon      string    `db:"ribbon"`
	CreatedAt   time.Time `db:"created_at"`
}

func (r productRow) toDomain() (domain.Product, error) {
	p := domain.Product{
		ID:          r.ID,
		Title:       r.Title,
		Description: r.Description,
		Price:       r.Price,
		Ribbon:      r.Ribbon,
		CreatedAt:   r.CreatedAt,
	}
	if len(r.Images) > 0 {
		if err := json.Unmarshal(r.Images, &p.Images); err != nil {
			return p, fmt.Errorf("failed to decode images of %s: %w", r.ID, err)
		}
	}
	if len(r.Options) > 0 {
		if err := json.Unmarshal(r.Options, &p.Options); err != nil {
			return p, fmt.Errorf("failed to decode options of %s: %w", r.ID, err)
		}
	}
	return p, nil
}

const productColumns = `id, title, description, price, images, options, ribbon, created_at`

func (s *Store) ListProducts(ctx context.Context, ribbon string) ([]domain.Product, error) {
	query := `SELECT ` + productColumns + ` FROM products`
	args := []interface{}{}
	if ribbon != "" {
		query += ` WHERE ribbon = $1`
		args = append(args, ribbon)
	}
	query += ` ORDER BY created_at DESC`

	var rows []productRow
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("failed to query products: %w", err)
	}

	products := make([]domain.Product, 0, len(rows))
	for _, r := range rows {
		p, err := r.toDomain()
		if err != nil {
			return nil, err
		}
		products = append(products, p)
	}
	return products, nil
}

func (s *Store) GetProduct(ctx context.Context, id string) (*domain.Product, error) {
	var row productRow
	err := s.db.GetContext(ctx, &row, `SELECT `+productColumns+` FROM products WHERE id = $1`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("failed to query product: %w", err)
	}
	p, err := row.toDomain()
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (s *Store) InsertProduct(ctx context.Context, p *domain.Product) error {
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC()
	}
	images, err := json.Marshal(nonNil(p.Images))
	if err != nil {
		return fmt.Errorf("failed to encode images: %w", err)
	}
	options, err := json.Marshal(nonNilOptions(p.Options))
	if err != nil {
		return fmt.Errorf("failed to encode options: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO products (`+productColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		p.ID, p.Title, p.Description, p.Price, string(images), string(options), p.Ribbon, p.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return repository.ErrAlreadyExists
		}
		return fmt.Errorf("failed to insert product: %w", err)
	}
	return nil
}

const discountColumns = `id, code, type, value, status, name, created_at`

func (s *Store) FindDiscountByCode(ctx context.Context, code string) (*domain.DiscountCode, error) {
	var d domain.DiscountCode
	err := s.db.GetContext(ctx, &d, `SELECT `+discountColumns+` FROM discount_codes WHERE code = $1`, code)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("failed to query discount: %w", err)
	}
	return &d, nil
}

func (s *Store) CreateDiscount(ctx context.Context, d *domain.DiscountCode) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO discount_codes (`+discountColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		d.ID, d.Code, string(d.Type), d.Value, string(d.Status), d.Name, d.CreatedAt.UTC())
	if err != nil {
		if isUniqueViolation(err) {
			return repository.ErrAlreadyExists
		}
		return fmt.Errorf("failed to insert discount: %w", err)
	}
	return nil
}

func (s *Store) ListDiscounts(ctx context.Context) ([]domain.DiscountCode, error) {
	codes := []domain.DiscountCode{}
	err := s.db.SelectContext(ctx, &codes, `SELECT `+discountColumns+` FROM discount_codes ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to query discounts: %w", err)
	}
	return codes, nil
}

func (s *Store) SetDiscountStatus(ctx context.Context, id string, status domain.DiscountStatus) error {
	res, err := s.db.ExecContext(ctx, `UPDATE discount_codes SET status = $1 WHERE id = $2`, string(status), id)
	if err != nil {
		return fmt.Errorf("failed to update discount: %w", err)
	}
	return expectOne(res)
}

func (s *Store) GetShippingRate(ctx context.Context, tier domain.ShippingTier) (float64, error) {
	var price float64
	err := s.db.GetContext(ctx, &price, `SELECT price FROM shipping_types WHERE tier = $1`, string(tier))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, repository.ErrNotFound
		}
		return 0, fmt.Errorf("failed to query shipping rate: %w", err)
	}
	return price, nil
}

func (s *Store) SetShippingRate(ctx context.Context, tier domain.ShippingTier, price float64) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO shipping_types (tier, price) VALUES ($1, $2)
		 ON CONFLICT (tier) DO UPDATE SET price = excluded.price`,
		string(tier), price)
	if err != nil {
		return fmt.Errorf("failed to set shipping rate: %w", err)
	}
	return nil
}

const addressColumns = `id, user_id, name, email, address, city, state, postal_code, country, created_at, updated_at`

func (s *Store) ListAddresses(ctx context.Context, userID string) ([]domain.ShippingAddress, error) {
	addrs := []domain.ShippingAddress{}
	err := s.db.SelectContext(ctx, &addrs,
		`SELECT `+addressColumns+` FROM shipping_addresses WHERE user_id = $1 ORDER BY updated_at DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query addresses: %w", err)
	}
	return addrs, nil
}

func (s *Store) GetAddress(ctx context.Context, userID, id string) (*domain.ShippingAddress, error) {
	var a domain.ShippingAddress
	err := s.db.GetContext(ctx, &a,
		`SELECT `+addressColumns+` FROM shipping_addresses WHERE id = $1 AND user_id = $2`, id, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("failed to query address: %w", err)
	}
	return &a, nil
}

func (s *Store) CreateAddress(ctx context.Context, a *domain.ShippingAddress) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO shipping_addresses (`+addressColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		a.ID, a.UserID, a.Name, a.Email, a.Address, a.City, a.State, a.PostalCode, a.Country,
		a.CreatedAt.UTC(), a.UpdatedAt.UTC())
	if err != nil {
		if isUniqueViolation(err) {
			return repository.ErrAlreadyExists
		}
		return fmt.Errorf("failed to insert address: %w", err)
	}
	return nil
}

func (s *Store) UpdateAddress(ctx context.Context, a *domain.ShippingAddress) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE shipping_addresses
		 SET name = $1, email = $2, address = $3, city = $4, state = $5, postal_code = $6, country = $7, updated_at = $8
		 WHERE id = $9 AND user_id = $10`,
		a.Name, a.Email, a.Address, a.City, a.State, a.PostalCode, a.Country, a.UpdatedAt.UTC(), a.ID, a.UserID)
	if err != nil {
		return fmt.Errorf("failed to update address: %w", err)
	}
	return expectOne(res)
}

func (s *Store) DeleteAddress(ctx context.Context, userID, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM shipping_addresses WHERE id = $1 AND user_id = $2`, id, userID)
	if err != nil {
		return fmt.Errorf("failed to delete address: %w", err)
	}
	return expectOne(res)
}

func (s *Store) TouchAddress(ctx context.Context, userID, id string, at time.Time) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE shipping_addresses SET updated_at = $1 WHERE id = $2 AND user_id = $3`, at.UTC(), id, userID)
	if err != nil {
		return fmt.Errorf("failed to touch address: %w", err)
	}
	return expectOne(res)
}

func (s *Store) CreateSuccessOrder(ctx context.Context, o *domain.Order) error {
	return s.insertOrder(ctx, "success_orders", o)
}

func (s *Store) CreateFailedOrder(ctx context.Context, o *domain.Order) error {
	return s.insertOrder(ctx, "failed_orders", o)
}

func (s *Store) insertOrder(ctx context.Context, table string, o *domain.Order) error {
	doc, err := json.Marshal(o)
	if err != nil {
		return fmt.Errorf("failed to encode order: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO `+table+` (order_number, user_id, status, document, invoice_url, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		o.OrderNumber, o.UserID, string(o.Status), string(doc), o.InvoiceURL, o.CreatedAt.UTC())
	if err != nil {
		if isUniqueViolation(err) {
			return repository.ErrAlreadyExists
		}
		return fmt.Errorf("failed to insert order into %s: %w", table, err)
	}
	return nil
}

func (s *Store) SetInvoiceURL(ctx context.Context, orderNumber, url string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE success_orders SET invoice_url = $1 WHERE order_number = $2`, url, orderNumber)
	if err != nil {
		return fmt.Errorf("failed to set invoice url: %w", err)
	}
	return expectOne(res)
}

type orderRow struct {
	Document   []byte `db:"document"`
	InvoiceURL string `db:"invoice_url"`
}

func (r orderRow) toDomain() (domain.Order, error) {
	var o domain.Order
	if err := json.Unmarshal(r.Document, &o); err != nil {
		return o, fmt.Errorf("failed to decode order: %w", err)
	}
	o.InvoiceURL = r.InvoiceURL
	return o, nil
}

func (s *Store) ListOrders(ctx context.Context, userID string, status domain.OrderStatus) ([]domain.Order, error) {
	table := "success_orders"
	if status == domain.OrderStatusFailed {
		table = "failed_orders"
	}

	var rows []orderRow
	err := s.db.SelectContext(ctx, &rows,
		`SELECT document, invoice_url FROM `+table+` WHERE user_id = $1 ORDER BY created_at DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query orders: %w", err)
	}

	orders := make([]domain.Order, 0, len(rows))
	for _, r := range rows {
		o, err := r.toDomain()
		if err != nil {
			return nil, err
		}
		orders = append(orders, o)
	}
	return orders, nil
}

func (s *Store) GetOrder(ctx context.Context, userID, orderNumber string) (*domain.Order, error) {
	for _, table := range []string{"success_orders", "failed_orders"} {
		var row orderRow
		err := s.db.GetContext(ctx, &row,
			`SELECT document, invoice_url FROM `+table+` WHERE order_number = $1 AND user_id = $2`,
			orderNumber, userID)
		if errors.Is(err, sql.ErrNoRows) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to query order: %w", err)
		}
		o, err := row.toDomain()
		if err != nil {
			return nil, err
		}
		return &o, nil
	}
	return nil, repository.ErrNotFound
}

func (s *Store) CreateContactQuery(ctx context.Context, q *domain.ContactQuery) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO contact_queries (id, user_id, name, email, phone, subject, message, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		q.ID, q.UserID, q.Name, q.Email, q.Phone, q.Subject, q.Message, q.CreatedAt.UTC())
	if err != nil {
		return fmt.Errorf("failed to insert contact query: %w", err)
	}
	return nil
}

func expectOne(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read rows affected: %w", err)
	}
	if n == 0 {
		return repository.ErrNotFound
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

func nonNilOptions(o []domain.Option) []domain.Option {
	if o == nil {
		return []domain.Option{}
	}
	return o
}
