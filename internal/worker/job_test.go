package worker

import (
	"errors"
	"supplierbot/internal/supplier"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

func TestDecodeJob(t *testing.T) {
	cases := []struct {
		name     string
		payload  string
		fallback Kind
		expected Job
	}{
		{
			name:    "scrape with portuguese keys",
			payload: `{"usuario": "farmacia@example.com", "senha": "s3cret"}`,
			expected: Job{
				Kind:        KIND_SCRAPE,
				Credentials: supplier.Credentials{Username: "farmacia@example.com", Password: "s3cret"},
			},
		},
		{
			name:    "english aliases",
			payload: `{"user": "a", "password": "b"}`,
			expected: Job{
				Kind:        KIND_SCRAPE,
				Credentials: supplier.Credentials{Username: "a", Password: "b"},
			},
		},
		{
			name:    "portuguese keys win over aliases",
			payload: `{"usuario": "a", "user": "x", "senha": "b", "password": "y"}`,
			expected: Job{
				Kind:        KIND_SCRAPE,
				Credentials: supplier.Credentials{Username: "a", Password: "b"},
			},
		},
		{
			name:    "numeric order id implies order",
			payload: `{"usuario": "a", "senha": "b", "id_pedido": 1234, "produtos": []}`,
			expected: Job{
				Kind:            KIND_ORDER,
				Credentials:     supplier.Credentials{Username: "a", Password: "b"},
				ExternalOrderID: "1234",
			},
		},
		{
			name: "items are coerced",
			payload: `{"usuario": "a", "senha": "b", "id_pedido": "PED-9", "produtos": [
				{"gtin": 7891234567890, "codigo": "A1", "quantidade": "3"},
				{"gtin": "7890000000000", "codigo": 55, "quantidade": 0},
				{"gtin": "", "codigo": "C3", "quantidade": "muitos"},
				{"gtin": null, "codigo": "D4", "quantidade": 2.7}
			]}`,
			expected: Job{
				Kind:            KIND_ORDER,
				Credentials:     supplier.Credentials{Username: "a", Password: "b"},
				ExternalOrderID: "PED-9",
				Items: []supplier.OrderItem{
					{GTIN: "7891234567890", Code: "A1", Quantity: 3},
					{GTIN: "7890000000000", Code: "55", Quantity: 1},
					{GTIN: "", Code: "C3", Quantity: 1},
					{GTIN: "", Code: "D4", Quantity: 2},
				},
			},
		},
		{
			name:     "fallback kind from the queue",
			payload:  `{"usuario": "a", "senha": "b"}`,
			fallback: KIND_ORDER,
			expected: Job{
				Kind:        KIND_ORDER,
				Credentials: supplier.Credentials{Username: "a", Password: "b"},
			},
		},
		{
			name:     "explicit kind beats the queue",
			payload:  `{"kind": "scrape", "usuario": "a", "senha": "b", "id_pedido": 1}`,
			fallback: KIND_ORDER,
			expected: Job{
				Kind:            KIND_SCRAPE,
				Credentials:     supplier.Credentials{Username: "a", Password: "b"},
				ExternalOrderID: "1",
			},
		},
		{
			name:    "missing credentials still decode",
			payload: `{}`,
			expected: Job{
				Kind: KIND_SCRAPE,
			},
		},
	}

	for _, test := range cases {
		t.Run(test.name, func(t *testing.T) {
			job, err := DecodeJob([]byte(test.payload), test.fallback)
			require.NoError(t, err)
			if diff := cmp.Diff(test.expected, job); diff != "" {
				t.Fatal(diff)
			}
		})
	}
}

func TestDecodeJobMalformed(t *testing.T) {
	for _, payload := range []string{``, `[]`, `{"usuario": `, `"text"`} {
		_, err := DecodeJob([]byte(payload), "")
		require.ErrorIs(t, err, supplier.ErrInvalidPayload, payload)
	}
}

func TestEncodeJobRoundTrip(t *testing.T) {
	jobs := []Job{
		{
			Kind:            KIND_ORDER,
			Credentials:     supplier.Credentials{Username: "a", Password: "b"},
			ExternalOrderID: "42",
			Items:           []supplier.OrderItem{{GTIN: "7891", Code: "A1", Quantity: 2}},
		},
		{
			Kind:            KIND_ORDER,
			Credentials:     supplier.Credentials{Username: "a", Password: "b"},
			ExternalOrderID: "007",
		},
		{
			Kind:        KIND_SCRAPE,
			Credentials: supplier.Credentials{Username: "a", Password: "b"},
		},
	}
	for _, job := range jobs {
		encoded, err := EncodeJob(job)
		require.NoError(t, err)
		decoded, err := DecodeJob(encoded, "")
		require.NoError(t, err)
		if diff := cmp.Diff(job, decoded); diff != "" {
			t.Fatal(diff)
		}
	}

	encoded, err := EncodeJob(jobs[0])
	require.NoError(t, err)
	require.Contains(t, string(encoded), `"id_pedido":42`)
}

func TestJobValidate(t *testing.T) {
	creds := supplier.Credentials{Username: "a", Password: "b"}
	cases := []struct {
		name  string
		job   Job
		valid bool
	}{
		{name: "scrape", job: Job{Kind: KIND_SCRAPE, Credentials: creds}, valid: true},
		{name: "order", job: Job{Kind: KIND_ORDER, Credentials: creds, ExternalOrderID: "1"}, valid: true},
		{name: "blank username", job: Job{Kind: KIND_SCRAPE, Credentials: supplier.Credentials{Username: "  ", Password: "b"}}},
		{name: "no password", job: Job{Kind: KIND_SCRAPE, Credentials: supplier.Credentials{Username: "a"}}},
		{name: "order without id", job: Job{Kind: KIND_ORDER, Credentials: creds, ExternalOrderID: " "}},
		{name: "unknown kind", job: Job{Kind: "audit", Credentials: creds}},
	}
	for _, test := range cases {
		t.Run(test.name, func(t *testing.T) {
			err := test.job.Validate()
			if test.valid {
				require.NoError(t, err)
				return
			}
			require.True(t, errors.Is(err, supplier.ErrInvalidPayload), err)
		})
	}
}
