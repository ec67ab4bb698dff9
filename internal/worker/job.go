package worker

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"
	"supplierbot/internal/supplier"
	"supplierbot/lib/textutil"
)

type Kind string

const (
	KIND_SCRAPE Kind = "scrape"
	KIND_ORDER  Kind = "order"
)

// Job is one unit of queued work. ExternalOrderID and Items are only
// meaningful for order jobs.
type Job struct {
	Kind            Kind
	Credentials     supplier.Credentials
	ExternalOrderID string
	Items           []supplier.OrderItem
}

// Validate checks everything that can be checked without touching the
// network.
func (j Job) Validate() error {
	if strings.TrimSpace(j.Credentials.Username) == "" {
		return supplier.InvalidPayload("missing supplier username (usuario)")
	}
	if j.Credentials.Password == "" {
		return supplier.InvalidPayload("missing supplier password (senha)")
	}
	switch j.Kind {
	case KIND_SCRAPE:
	case KIND_ORDER:
		if strings.TrimSpace(j.ExternalOrderID) == "" {
			return supplier.InvalidPayload("missing external order id (id_pedido)")
		}
	default:
		return supplier.InvalidPayload("unknown job kind %q", j.Kind)
	}
	return nil
}

// payload is the wire format of a job, it accepts every alias producers have
// been using.
type payload struct {
	Kind     Kind            `json:"kind,omitempty"`
	Usuario  string          `json:"usuario,omitempty"`
	User     string          `json:"user,omitempty"`
	Senha    string          `json:"senha,omitempty"`
	Password string          `json:"password,omitempty"`
	OrderID  json.RawMessage `json:"id_pedido,omitempty"`
	Products []payloadItem   `json:"produtos,omitempty"`
}

type payloadItem struct {
	GTIN     json.RawMessage `json:"gtin"`
	Code     json.RawMessage `json:"codigo"`
	Quantity json.RawMessage `json:"quantidade"`
}

// scalar reads a json string or number as a string, anything else is "".
func scalar(raw json.RawMessage) string {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return ""
	}
	var s string
	if json.Unmarshal(raw, &s) == nil {
		return strings.TrimSpace(s)
	}
	var n json.Number
	if json.Unmarshal(raw, &n) == nil {
		return n.String()
	}
	return ""
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// DecodeJob parses a queued payload. When the payload names no kind, fallback
// is used, and without a fallback a payload carrying id_pedido is an order.
// Quantities are coerced to positive integers.
func DecodeJob(data []byte, fallback Kind) (Job, error) {
	var p payload
	err := json.Unmarshal(data, &p)
	if err != nil {
		return Job{}, supplier.InvalidPayload("decode job: %v", err)
	}

	job := Job{
		Kind: p.Kind,
		Credentials: supplier.Credentials{
			Username: firstNonEmpty(p.Usuario, p.User),
			Password: firstNonEmpty(p.Senha, p.Password),
		},
		ExternalOrderID: scalar(p.OrderID),
	}
	if job.Kind == "" {
		job.Kind = fallback
	}
	if job.Kind == "" {
		job.Kind = KIND_SCRAPE
		if job.ExternalOrderID != "" {
			job.Kind = KIND_ORDER
		}
	}

	for _, item := range p.Products {
		job.Items = append(job.Items, supplier.OrderItem{
			GTIN:     scalar(item.GTIN),
			Code:     scalar(item.Code),
			Quantity: textutil.ParseQuantity(scalar(item.Quantity)),
		})
	}
	return job, nil
}

// EncodeJob produces the payload DecodeJob reads.
func EncodeJob(job Job) ([]byte, error) {
	p := payload{
		Kind:    job.Kind,
		Usuario: job.Credentials.Username,
		Senha:   job.Credentials.Password,
	}
	if job.ExternalOrderID != "" {
		n, err := strconv.ParseInt(job.ExternalOrderID, 10, 64)
		if err == nil && strconv.FormatInt(n, 10) == job.ExternalOrderID {
			p.OrderID = json.RawMessage(job.ExternalOrderID)
		} else {
			encoded, err := json.Marshal(job.ExternalOrderID)
			if err != nil {
				return nil, err
			}
			p.OrderID = encoded
		}
	}
	for _, item := range job.Items {
		gtin, _ := json.Marshal(item.GTIN)
		code, _ := json.Marshal(item.Code)
		p.Products = append(p.Products, payloadItem{
			GTIN:     gtin,
			Code:     code,
			Quantity: json.RawMessage(strconv.Itoa(item.Quantity)),
		})
	}
	return json.Marshal(p)
}
