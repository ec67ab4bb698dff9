// Package tradeapitest is an in memory trading API, for tests and for running
// the worker without the real API.
package tradeapitest

import (
	"encoding/json"
	"fmt"
	"math/rand/v2"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"supplierbot/internal/supplier"
	"sync"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/mazen160/go-random"
)

type Order struct {
	ID           int                  `json:"id"`
	SupplierCode *string              `json:"codigo_fornecedor"`
	Status       *string              `json:"status"`
	Items        []supplier.OrderItem `json:"itens"`
}

type Server struct {
	mutex    sync.Mutex
	users    map[string]string
	tokens   map[string]string
	orders   map[int]*Order
	nextId   int
	products []supplier.ProductRecord
	calls    map[string]int
}

func New() *Server {
	return &Server{
		users:  map[string]string{},
		tokens: map[string]string{},
		orders: map[int]*Order{},
		nextId: 1,
		calls:  map[string]int{},
	}
}

// NewTestServer starts s on a local port for the duration of the test.
func NewTestServer(t testing.TB) (*Server, *httptest.Server) {
	s := New()
	server := httptest.NewServer(s.Handler())
	t.Cleanup(server.Close)
	return s, server
}

func (s *Server) AddUser(username, password string) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.users[username] = password
}

// Calls returns how many requests a route received, routes are named like
// "POST /pedido".
func (s *Server) Calls(route string) int {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return s.calls[route]
}

// TotalCalls is the amount of requests received on any route.
func (s *Server) TotalCalls() int {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	total := 0
	for _, n := range s.calls {
		total += n
	}
	return total
}

// Products returns every product submitted so far.
func (s *Server) Products() []supplier.ProductRecord {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return append([]supplier.ProductRecord(nil), s.products...)
}

func (s *Server) Order(id int) (Order, bool) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	order, ok := s.orders[id]
	if !ok {
		return Order{}, false
	}
	return *order, true
}

func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(s.count)
	r.Post("/oauth/signup", s.signup)
	r.Post("/oauth/token", s.token)
	r.Get("/healthcheck", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	r.Group(func(r chi.Router) {
		r.Use(s.authenticated)
		r.Post("/produto", s.submitProducts)
		r.Get("/pedido", s.listOrders)
		r.Post("/pedido", s.createOrder)
		r.Get("/pedido/{id}", s.showOrder)
		r.Patch("/pedido/{id}", s.patchOrder)
	})
	return r
}

func (s *Server) count(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		route := r.Method + " " + r.URL.Path
		if strings.HasPrefix(r.URL.Path, "/pedido/") {
			route = r.Method + " /pedido/{id}"
		}
		s.mutex.Lock()
		s.calls[route]++
		s.mutex.Unlock()
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("content-type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

func writeDetail(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, map[string]string{"detail": detail})
}

func (s *Server) authenticated(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		s.mutex.Lock()
		_, known := s.tokens[token]
		s.mutex.Unlock()
		if !ok || !known {
			writeDetail(w, http.StatusUnauthorized, "Invalid token")
			return
		}
		next.ServeHTTP(w, r)
	})
}

type credentials struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

func (s *Server) signup(w http.ResponseWriter, r *http.Request) {
	var body credentials
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeDetail(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	if len(body.Username) < 3 || len(body.Username) > 50 {
		writeDetail(w, http.StatusUnprocessableEntity, "username length")
		return
	}
	if len(body.Password) < 8 || len(body.Password) > 64 {
		writeDetail(w, http.StatusUnprocessableEntity, "password length")
		return
	}
	s.AddUser(body.Username, body.Password)
	writeJSON(w, http.StatusOK, map[string]string{"message": "User created"})
}

func (s *Server) token(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		writeDetail(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	username := r.PostForm.Get("username")
	password := r.PostForm.Get("password")

	s.mutex.Lock()
	expected, ok := s.users[username]
	s.mutex.Unlock()
	if !ok || expected != password {
		writeDetail(w, http.StatusUnauthorized, "Invalid credentials")
		return
	}

	suffix, err := random.String(20)
	if err != nil {
		writeDetail(w, http.StatusInternalServerError, err.Error())
		return
	}
	token := "mock_" + suffix

	s.mutex.Lock()
	s.tokens[token] = username
	s.mutex.Unlock()

	writeJSON(w, http.StatusOK, map[string]any{
		"access_token": token,
		"token_type":   "bearer",
		"expires_in":   3600,
	})
}

func (s *Server) submitProducts(w http.ResponseWriter, r *http.Request) {
	var products []supplier.ProductRecord
	if err := json.NewDecoder(r.Body).Decode(&products); err != nil {
		writeDetail(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	s.mutex.Lock()
	s.products = append(s.products, products...)
	s.mutex.Unlock()
	writeJSON(w, http.StatusOK, map[string]any{
		"message":   "Produtos recebidos",
		"recebidos": len(products),
	})
}

func (s *Server) listOrders(w http.ResponseWriter, r *http.Request) {
	s.mutex.Lock()
	orders := make([]Order, 0, len(s.orders))
	for id := 1; id < s.nextId; id++ {
		if order, ok := s.orders[id]; ok {
			orders = append(orders, *order)
		}
	}
	s.mutex.Unlock()
	writeJSON(w, http.StatusOK, orders)
}

func (s *Server) createOrder(w http.ResponseWriter, r *http.Request) {
	items := make([]supplier.OrderItem, 1+rand.IntN(4))
	for i := range items {
		items[i] = supplier.OrderItem{
			GTIN:     "1234567890123",
			Code:     fmt.Sprintf("A%d", i),
			Quantity: 1 + rand.IntN(5),
		}
	}

	s.mutex.Lock()
	order := &Order{ID: s.nextId, Items: items}
	s.orders[order.ID] = order
	s.nextId++
	created := *order
	s.mutex.Unlock()

	writeJSON(w, http.StatusOK, created)
}

func (s *Server) lookup(w http.ResponseWriter, r *http.Request) (int, bool) {
	id, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil {
		writeDetail(w, http.StatusUnprocessableEntity, "id must be an integer")
		return 0, false
	}
	s.mutex.Lock()
	_, ok := s.orders[id]
	s.mutex.Unlock()
	if !ok {
		writeDetail(w, http.StatusNotFound, "Not Found")
		return 0, false
	}
	return id, true
}

func (s *Server) showOrder(w http.ResponseWriter, r *http.Request) {
	id, ok := s.lookup(w, r)
	if !ok {
		return
	}
	order, _ := s.Order(id)
	writeJSON(w, http.StatusOK, order)
}

type updateOrder struct {
	ConfirmationCode string `json:"codigo_confirmacao"`
	Status           string `json:"status"`
}

func (s *Server) patchOrder(w http.ResponseWriter, r *http.Request) {
	id, ok := s.lookup(w, r)
	if !ok {
		return
	}
	var body updateOrder
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeDetail(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	s.mutex.Lock()
	order := s.orders[id]
	order.SupplierCode = &body.ConfirmationCode
	order.Status = &body.Status
	updated := *order
	s.mutex.Unlock()

	writeJSON(w, http.StatusOK, updated)
}
