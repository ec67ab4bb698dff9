// Package supplier holds the records exchanged between the supplier portal
// scrapers and the job worker.
package supplier

import (
	"fmt"
	"strings"
)

// Credentials are supplied per job and never persisted.
type Credentials struct {
	Username string
	Password string
}

func (c Credentials) Complete() bool {
	return strings.TrimSpace(c.Username) != "" && c.Password != ""
}

// String never prints the password.
func (c Credentials) String() string {
	return fmt.Sprintf("%s:<redacted>", c.Username)
}

// ProductRecord is one row of the supplier catalog. Every field is always
// present, unextractable values are left as "" or 0.
type ProductRecord struct {
	GTIN         string  `json:"gtin"`
	Code         string  `json:"codigo"`
	Description  string  `json:"descricao"`
	FactoryPrice float64 `json:"preco_fabrica"`
	Stock        float64 `json:"estoque"`
}

// Identified is false when the record carries nothing that identifies a product.
func (p ProductRecord) Identified() bool {
	return p.GTIN != "" || p.Code != "" || p.Description != ""
}

type OrderItem struct {
	GTIN     string `json:"gtin"`
	Code     string `json:"codigo"`
	Quantity int    `json:"quantidade"`
}

type OrderStatus string

const (
	ORDER_PLACED OrderStatus = "pedido_realizado"
	ORDER_FAILED OrderStatus = "pedido_falhou"
)

// OrderResult is produced exactly once per order flow run.
type OrderResult struct {
	confirmationCode string
	status           OrderStatus
	simulated        bool
}

func NewOrderResult(code string, status OrderStatus, simulated bool) OrderResult {
	return OrderResult{confirmationCode: code, status: status, simulated: simulated}
}

func (r OrderResult) ConfirmationCode() string {
	return r.confirmationCode
}

func (r OrderResult) Status() OrderStatus {
	return r.status
}

// Simulated is true when the confirmation code was synthesized instead of
// read from the supplier's confirmation page.
func (r OrderResult) Simulated() bool {
	return r.simulated
}
