package cart

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/fjod/storefront/internal/cache"
	"github.com/fjod/storefront/internal/domain"
	"go.uber.org/zap"
)

const (
	KeyCart     = "cart"
	KeyWishlist = "wishlist"

	saveTimeout = 2 * time.Second
)

// Snapshot is a copy of a session's collections at one point in time.
type Snapshot struct {
	Lines    []domain.CartLine `json:"cart"`
	Wishlist []domain.Product  `json:"wishlist"`
}

// Manager owns one user's cart and wishlist. Mutations apply to memory
// immediately; persistence happens in the background and always writes the
// whole collection.
type Manager struct {
	userID string
	store  cache.KeyValueStore
	log    *zap.Logger

	mu        sync.Mutex
	lines     map[string]*domain.CartLine
	lineOrder []string
	wishlist  map[string]domain.Product
	wishOrder []string
	ready     bool

	cartDirty bool
	wishDirty bool
	writing   bool
	idle      chan struct{}

	subs    map[int]chan Snapshot
	nextSub int
}

func NewManager(userID string, store cache.KeyValueStore, log *zap.Logger) *Manager {
	if log == nil {
		log = zap.NewNop()
	}
	return &Manager{
		userID:   userID,
		store:    store,
		log:      log.With(zap.String("user_id", userID)),
		lines:    make(map[string]*domain.CartLine),
		wishlist: make(map[string]domain.Product),
		subs:     make(map[int]chan Snapshot),
	}
}

// Load restores the persisted collections. Corrupt data is discarded and the
// session starts empty; a store failure leaves the manager not ready so
// nothing it holds can overwrite what is persisted.
func (m *Manager) Load(ctx context.Context) error {
	var lines []domain.CartLine
	var wish []domain.Product

	rawCart, err := m.read(ctx, KeyCart)
	if err != nil {
		return err
	}
	rawWish, err := m.read(ctx, KeyWishlist)
	if err != nil {
		return err
	}

	if rawCart != nil {
		if errUnmarshal := json.Unmarshal(rawCart, &lines); errUnmarshal != nil {
			m.log.Warn("discarding unreadable cart", zap.Error(errUnmarshal))
			lines = nil
		}
	}
	if rawWish != nil {
		if errUnmarshal := json.Unmarshal(rawWish, &wish); errUnmarshal != nil {
			m.log.Warn("discarding unreadable wishlist", zap.Error(errUnmarshal))
			wish = nil
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.lines = make(map[string]*domain.CartLine, len(lines))
	m.lineOrder = m.lineOrder[:0]
	for _, l := range lines {
		if l.ProductID == "" || l.Qty <= 0 {
			continue
		}
		if existing, ok := m.lines[l.ProductID]; ok {
			existing.Qty += l.Qty
			continue
		}
		line := l
		m.lines[l.ProductID] = &line
		m.lineOrder = append(m.lineOrder, l.ProductID)
	}

	m.wishlist = make(map[string]domain.Product, len(wish))
	m.wishOrder = m.wishOrder[:0]
	for _, p := range wish {
		if _, ok := m.wishlist[p.ID]; ok || p.ID == "" {
			continue
		}
		m.wishlist[p.ID] = p
		m.wishOrder = append(m.wishOrder, p.ID)
	}

	m.ready = true
	m.notifyLocked()
	return nil
}

func (m *Manager) read(ctx context.Context, key string) ([]byte, error) {
	data, err := m.store.Get(ctx, m.storeKey(key))
	if errors.Is(err, cache.ErrKeyNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load %s: %w", key, err)
	}
	return data, nil
}

func (m *Manager) Ready() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.ready
}

func (m *Manager) AddToCart(p domain.Product) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if line, ok := m.lines[p.ID]; ok {
		line.Qty++
	} else {
		m.insertLocked(domain.NewCartLine(p, 1))
	}
	m.changedLocked(true, false)
}

// MoveToCart adds qty units of p, defaulting to one. Used when restoring the
// items of an order.
func (m *Manager) MoveToCart(p domain.Product, qty int) {
	if qty <= 0 {
		qty = 1
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if line, ok := m.lines[p.ID]; ok {
		line.Qty += qty
	} else {
		m.insertLocked(domain.NewCartLine(p, qty))
	}
	m.changedLocked(true, false)
}

// UpdateQty sets the quantity exactly. Zero or less removes the line.
func (m *Manager) UpdateQty(productID string, qty int) {
	if qty <= 0 {
		m.RemoveFromCart(productID)
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	line, ok := m.lines[productID]
	if !ok {
		return
	}
	line.Qty = qty
	m.changedLocked(true, false)
}

func (m *Manager) RemoveFromCart(productID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.lines[productID]; !ok {
		return
	}
	delete(m.lines, productID)
	m.lineOrder = removeID(m.lineOrder, productID)
	m.changedLocked(true, false)
}

func (m *Manager) ClearCart() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.lines = make(map[string]*domain.CartLine)
	m.lineOrder = nil
	m.changedLocked(true, false)
}

// ToggleWishlist flips p's membership and reports the new state. onMessage,
// when set, receives a line describing what happened.
func (m *Manager) ToggleWishlist(p domain.Product, onMessage func(string)) bool {
	m.mu.Lock()

	var added bool
	if _, ok := m.wishlist[p.ID]; ok {
		delete(m.wishlist, p.ID)
		m.wishOrder = removeID(m.wishOrder, p.ID)
	} else {
		m.wishlist[p.ID] = p
		m.wishOrder = append(m.wishOrder, p.ID)
		added = true
	}
	m.changedLocked(false, true)
	m.mu.Unlock()

	if onMessage != nil {
		if added {
			onMessage(p.Title + " is added to Wishlist")
		} else {
			onMessage(p.Title + " is removed from Wishlist")
		}
	}
	return added
}

func (m *Manager) InWishlist(productID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.wishlist[productID]
	return ok
}

func (m *Manager) Cart() []domain.CartLine {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cartLocked()
}

func (m *Manager) Wishlist() []domain.Product {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.wishlistLocked()
}

func (m *Manager) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return Snapshot{Lines: m.cartLocked(), Wishlist: m.wishlistLocked()}
}

// Subscribe delivers the current snapshot and then one per change until
// cancel is called. A slow reader only ever sees the latest snapshot.
func (m *Manager) Subscribe() (<-chan Snapshot, func()) {
	ch := make(chan Snapshot, 1)

	m.mu.Lock()
	id := m.nextSub
	m.nextSub++
	m.subs[id] = ch
	ch <- Snapshot{Lines: m.cartLocked(), Wishlist: m.wishlistLocked()}
	m.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			m.mu.Lock()
			delete(m.subs, id)
			m.mu.Unlock()
			close(ch)
		})
	}
	return ch, cancel
}

// Flush waits until every scheduled write has reached the store.
func (m *Manager) Flush(ctx context.Context) error {
	for {
		m.mu.Lock()
		if !m.writing {
			m.mu.Unlock()
			return nil
		}
		idle := m.idle
		m.mu.Unlock()

		select {
		case <-idle:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// quiet reports whether nobody is subscribed and nothing is being written.
func (m *Manager) quiet() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.subs) == 0 && !m.writing
}

func (m *Manager) insertLocked(line domain.CartLine) {
	m.lines[line.ProductID] = &line
	m.lineOrder = append(m.lineOrder, line.ProductID)
}

func (m *Manager) cartLocked() []domain.CartLine {
	out := make([]domain.CartLine, 0, len(m.lineOrder))
	for _, id := range m.lineOrder {
		out = append(out, *m.lines[id])
	}
	return out
}

func (m *Manager) wishlistLocked() []domain.Product {
	out := make([]domain.Product, 0, len(m.wishOrder))
	for _, id := range m.wishOrder {
		out = append(out, m.wishlist[id])
	}
	return out
}

func (m *Manager) changedLocked(cartChanged, wishChanged bool) {
	m.notifyLocked()
	if !m.ready {
		return
	}
	m.cartDirty = m.cartDirty || cartChanged
	m.wishDirty = m.wishDirty || wishChanged
	if m.writing {
		return
	}
	m.writing = true
	m.idle = make(chan struct{})
	go m.persist()
}

// persist drains dirty flags until nothing is left to write. Each pass
// serializes the collections as they are at that moment, so a burst of
// mutations collapses into a few writes of the latest state. An emptied
// collection is deleted rather than stored.
func (m *Manager) persist() {
	for {
		m.mu.Lock()
		if !m.cartDirty && !m.wishDirty {
			m.writing = false
			close(m.idle)
			m.mu.Unlock()
			return
		}
		var writes []pendingWrite
		if m.cartDirty {
			if w, ok := m.encodeLocked(KeyCart, len(m.lineOrder), m.cartLocked()); ok {
				writes = append(writes, w)
			}
		}
		if m.wishDirty {
			if w, ok := m.encodeLocked(KeyWishlist, len(m.wishOrder), m.wishlistLocked()); ok {
				writes = append(writes, w)
			}
		}
		m.cartDirty, m.wishDirty = false, false
		m.mu.Unlock()

		for _, w := range writes {
			m.write(w)
		}
	}
}

type pendingWrite struct {
	key   string
	value []byte // nil deletes the key
}

func (m *Manager) encodeLocked(key string, n int, v interface{}) (pendingWrite, bool) {
	if n == 0 {
		return pendingWrite{key: key}, true
	}
	b, err := json.Marshal(v)
	if err != nil {
		m.log.Error("marshal failed", zap.String("key", key), zap.Error(err))
		return pendingWrite{}, false
	}
	return pendingWrite{key: key, value: b}, true
}

func (m *Manager) write(w pendingWrite) {
	ctx, cancel := context.WithTimeout(context.Background(), saveTimeout)
	defer cancel()

	var err error
	if w.value == nil {
		err = m.store.Delete(ctx, m.storeKey(w.key))
	} else {
		err = m.store.Set(ctx, m.storeKey(w.key), w.value)
	}
	if err != nil {
		m.log.Error("persist failed", zap.String("key", w.key), zap.Error(err))
	}
}

func (m *Manager) notifyLocked() {
	if len(m.subs) == 0 {
		return
	}
	snap := Snapshot{Lines: m.cartLocked(), Wishlist: m.wishlistLocked()}
	for _, ch := range m.subs {
		select {
		case ch <- snap:
		default:
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- snap:
			default:
			}
		}
	}
}

func (m *Manager) storeKey(key string) string {
	return SessionKey(m.userID, key)
}

// SessionKey namespaces a collection key under its user.
func SessionKey(userID, key string) string {
	return fmt.Sprintf("session:%s:%s", userID, key)
}

func removeID(ids []string, id string) []string {
	for i, v := range ids {
		if v == id {
			return append(ids[:i], ids[i+1:]...)
		}
	}
	return ids
}
