package handlers

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"

	"quotagate/internal/common/pagination"
	"quotagate/internal/common/ratelimit"
	"quotagate/internal/common/validation"
)

type OrderRequest struct {
	Item     string `json:"item" validate:"required,max=128"`
	Quantity int    `json:"quantity" validate:"min=1,max=1000"`
}

type Order struct {
	ID        string    `json:"id"`
	ClientID  string    `json:"client_id"`
	Item      string    `json:"item"`
	Quantity  int       `json:"quantity"`
	CreatedAt time.Time `json:"created_at"`
}

// OrderBook keeps orders in memory, per client
type OrderBook struct {
	mu     sync.RWMutex
	orders map[string][]Order
}

func NewOrderBook() *OrderBook {
	return &OrderBook{orders: make(map[string][]Order)}
}

func (b *OrderBook) Add(o Order) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.orders[o.ClientID] = append(b.orders[o.ClientID], o)
}

// List returns a copy of the client's orders, oldest first
func (b *OrderBook) List(clientID string) []Order {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]Order, len(b.orders[clientID]))
	copy(out, b.orders[clientID])
	return out
}

// CreateOrder handles POST /orders. Admission has already been granted.
func (h *Handlers) CreateOrder(w http.ResponseWriter, r *http.Request) {
	var req OrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid JSON", http.StatusBadRequest)
		return
	}
	if err := validation.ValidateStruct(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	order := Order{
		ID:        uuid.NewString(),
		ClientID:  r.Header.Get(ratelimit.ClientIDHeader),
		Item:      req.Item,
		Quantity:  req.Quantity,
		CreatedAt: time.Now().UTC(),
	}
	h.orders.Add(order)

	writeJSON(w, http.StatusCreated, order)
}

type OrdersResponse struct {
	ClientID string                     `json:"client_id"`
	Orders   pagination.Response[Order] `json:"orders"`
}

// GetOrders handles GET /orders?page=&per_page=
func (h *Handlers) GetOrders(w http.ResponseWriter, r *http.Request) {
	clientID := r.Header.Get(ratelimit.ClientIDHeader)
	writeJSON(w, http.StatusOK, OrdersResponse{
		ClientID: clientID,
		Orders:   pagination.Paginate(h.orders.List(clientID), pagination.ParseParams(r)),
	})
}
