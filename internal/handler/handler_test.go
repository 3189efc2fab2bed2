package handler

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/rentkart/internal/core"
	"github.com/xenking/rentkart/internal/domain/discount"
	"github.com/xenking/rentkart/internal/domain/item"
	"github.com/xenking/rentkart/internal/domain/order"
	"github.com/xenking/rentkart/internal/domain/txn"
	"github.com/xenking/rentkart/internal/payment"
	"github.com/xenking/rentkart/internal/storage/memory"
	"github.com/xenking/rentkart/pkg/httpmiddleware"
)

const (
	owner    = "owner-1"
	renter   = "renter-1"
	stranger = "stranger-1"
)

type testAPI struct {
	handler http.Handler
	store   *memory.Store
	sandbox *payment.Sandbox
	start   time.Time
	end     time.Time
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()

	policy := order.DefaultPolicy()
	policy.Retry = txn.Policy{Attempts: 1, InitialInterval: time.Millisecond}
	store := memory.NewStore()
	sandbox := payment.NewSandbox()

	mux := http.NewServeMux()
	New(core.New(core.Memory(store), sandbox, policy)).Register(mux)

	start := time.Now().Add(96 * time.Hour).Truncate(time.Hour).UTC()
	api := &testAPI{
		handler: httpmiddleware.Wrap(mux, httpmiddleware.Actor()),
		store:   store,
		sandbox: sandbox,
		start:   start,
		end:     start.Add(48 * time.Hour),
	}

	require.NoError(t, store.Items().Create(context.Background(), &item.Item{
		ID:                "bike",
		OwnerID:           owner,
		Title:             "Road bike",
		BasePrice:         decimal.NewFromInt(50000),
		PriceUnit:         item.PerDay,
		DepositPerUnit:    decimal.NewFromInt(100000),
		Quantity:          1,
		AvailableQuantity: 1,
		Status:            item.StatusAvailable,
	}))
	return api
}

// do sends a request as who and decodes the response object into fields.
func (a *testAPI) do(t *testing.T, who, method, path, body string) (int, map[string]string) {
	t.Helper()

	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if who != "" {
		req.Header.Set(httpmiddleware.ActorHeader, who)
	}
	w := httptest.NewRecorder()
	a.handler.ServeHTTP(w, req)

	raw, err := io.ReadAll(w.Body)
	require.NoError(t, err)
	return w.Code, flatten(t, raw)
}

// flatten collects the top-level scalar fields of a JSON object as strings.
func flatten(t *testing.T, raw []byte) map[string]string {
	t.Helper()
	out := map[string]string{}
	if len(raw) == 0 || raw[0] != '{' {
		return out
	}
	err := jx.DecodeBytes(raw).ObjBytes(func(d *jx.Decoder, key []byte) error {
		switch d.Next() {
		case jx.String:
			v, err := d.Str()
			out[string(key)] = v
			return err
		case jx.Number:
			v, err := d.Num()
			out[string(key)] = v.String()
			return err
		case jx.Bool:
			v, err := d.Bool()
			out[string(key)] = strconv.FormatBool(v)
			return err
		default:
			return d.Skip()
		}
	})
	require.NoError(t, err)
	return out
}

func (a *testAPI) orderBody() string {
	return `{"item_id":"bike","unit_count":1,"start_at":"` + a.start.Format(time.RFC3339) +
		`","end_at":"` + a.end.Format(time.RFC3339) + `"}`
}

func (a *testAPI) createOrder(t *testing.T) string {
	t.Helper()
	status, o := a.do(t, renter, http.MethodPost, "/api/orders", a.orderBody())
	require.Equal(t, http.StatusCreated, status, o)
	return o["id"]
}

func TestAPI_RentalFlow(t *testing.T) {
	a := newTestAPI(t)

	status, o := a.do(t, renter, http.MethodPost, "/api/orders", a.orderBody())
	require.Equal(t, http.StatusCreated, status, o)
	assert.Equal(t, "pending_payment", o["status"])
	assert.Equal(t, "100000.00", o["subtotal"])
	assert.Equal(t, "100000.00", o["deposit_amount"])
	assert.Equal(t, "200000.00", o["total_amount"])
	id := o["id"]

	status, o = a.do(t, renter, http.MethodPost, "/api/orders/"+id+"/payment", "")
	require.Equal(t, http.StatusOK, status, o)
	assert.Equal(t, "confirmed", o["status"])
	assert.Equal(t, "paid", o["payment_status"])

	status, body := a.do(t, owner, http.MethodPost, "/api/orders/"+id+"/start", "")
	assert.Equal(t, http.StatusConflict, status)
	assert.Equal(t, "contract_not_signed", body["kind"])

	status, c := a.do(t, owner, http.MethodPost, "/api/orders/"+id+"/contract/sign", "")
	require.Equal(t, http.StatusOK, status, c)
	assert.Equal(t, "true", c["signed_by_owner"])
	status, c = a.do(t, renter, http.MethodPost, "/api/orders/"+id+"/contract/sign", "")
	require.Equal(t, http.StatusOK, status, c)
	assert.Equal(t, "active", c["status"])

	status, o = a.do(t, renter, http.MethodPost, "/api/orders/"+id+"/start", "")
	require.Equal(t, http.StatusOK, status, o)
	assert.Equal(t, "in_progress", o["status"])

	status, _ = a.do(t, renter, http.MethodPost, "/api/orders/"+id+"/complete", "")
	assert.Equal(t, http.StatusForbidden, status)

	status, o = a.do(t, owner, http.MethodPost, "/api/orders/"+id+"/complete",
		`{"condition":"scratched","damage_fee":"30000"}`)
	require.Equal(t, http.StatusOK, status, o)
	assert.Equal(t, "completed", o["status"])

	status, o = a.do(t, renter, http.MethodPost, "/api/orders/"+id+"/reviews", `{"rating":5,"comment":"great"}`)
	require.Equal(t, http.StatusCreated, status, o)

	status, bal := a.do(t, renter, http.MethodGet, "/api/ledger/balance", "")
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "130000.00", bal["balance"])
}

func TestAPI_Errors(t *testing.T) {
	a := newTestAPI(t)
	id := a.createOrder(t)

	tests := []struct {
		name   string
		who    string
		method string
		path   string
		body   string
		status int
		kind   string
	}{
		{
			name: "MissingActor", who: "", method: http.MethodPost, path: "/api/orders",
			body: a.orderBody(), status: http.StatusUnauthorized, kind: "unauthenticated",
		},
		{
			name: "CapacityExceeded", who: "renter-2", method: http.MethodPost, path: "/api/orders",
			body: a.orderBody(), status: http.StatusConflict, kind: "capacity_exceeded",
		},
		{
			name: "UnknownDiscount", who: renter, method: http.MethodPost, path: "/api/discounts/validate",
			body: `{"code":"NOPE","base_amount":"1000"}`, status: http.StatusUnprocessableEntity, kind: "discount_invalid",
		},
		{
			name: "NotParty", who: stranger, method: http.MethodGet, path: "/api/orders/" + id,
			status: http.StatusForbidden, kind: "forbidden",
		},
		{
			name: "OrderNotFound", who: renter, method: http.MethodGet, path: "/api/orders/missing",
			status: http.StatusNotFound, kind: "not_found",
		},
		{
			name: "OwnerCannotPay", who: owner, method: http.MethodPost, path: "/api/orders/" + id + "/payment",
			status: http.StatusForbidden, kind: "forbidden",
		},
		{
			name: "Underpayment", who: renter, method: http.MethodPost, path: "/api/orders/" + id + "/payment",
			body: `{"amount":"10"}`, status: http.StatusBadRequest, kind: "invalid_argument",
		},
		{
			name: "MalformedJSON", who: renter, method: http.MethodPost, path: "/api/orders",
			body: `{"item_id":`, status: http.StatusBadRequest, kind: "invalid_argument",
		},
		{
			name: "StartUnpaid", who: renter, method: http.MethodPost, path: "/api/orders/" + id + "/start",
			status: http.StatusConflict, kind: "invalid_state_transition",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, body := a.do(t, tt.who, tt.method, tt.path, tt.body)
			assert.Equal(t, tt.status, status, body)
			assert.Equal(t, tt.kind, body["kind"])
		})
	}
}

func TestAPI_ProviderFailure(t *testing.T) {
	a := newTestAPI(t)
	id := a.createOrder(t)

	a.sandbox.FailNext(10)
	status, body := a.do(t, renter, http.MethodPost, "/api/orders/"+id+"/payment", "")
	assert.Equal(t, http.StatusBadGateway, status)
	assert.Equal(t, "provider_failure", body["kind"])

	a.sandbox.FailNext(0)
	status, o := a.do(t, renter, http.MethodPost, "/api/orders/"+id+"/payment", "")
	require.Equal(t, http.StatusOK, status, o)
	assert.Equal(t, "confirmed", o["status"])
}

func TestAPI_DiscountedOrder(t *testing.T) {
	a := newTestAPI(t)
	require.NoError(t, a.store.Discounts().Upsert(context.Background(), &discount.Discount{
		Code:     "BIKE5",
		Type:     discount.TypeFixed,
		Value:    decimal.NewFromInt(5000),
		Active:   true,
		IsPublic: true,
	}))

	status, res := a.do(t, renter, http.MethodPost, "/api/discounts/validate",
		`{"code":"bike5","item_id":"bike","base_amount":100000}`)
	require.Equal(t, http.StatusOK, status, res)
	assert.Equal(t, "5000.00", res["amount"])

	body := strings.Replace(a.orderBody(), `}`, `,"discount_code":"bike5"}`, 1)
	status, o := a.do(t, renter, http.MethodPost, "/api/orders", body)
	require.Equal(t, http.StatusCreated, status, o)
	assert.Equal(t, "5000.00", o["discount_amount"])
	assert.Equal(t, "195000.00", o["total_amount"])
}

func TestAPI_CancelAndDispute(t *testing.T) {
	a := newTestAPI(t)
	id := a.createOrder(t)

	status, _ := a.do(t, renter, http.MethodPost, "/api/orders/"+id+"/payment", "")
	require.Equal(t, http.StatusOK, status)

	status, d := a.do(t, renter, http.MethodPost, "/api/orders/"+id+"/disputes", `{"reason":"wrong size"}`)
	require.Equal(t, http.StatusCreated, status, d)
	assert.Equal(t, "pending", d["status"])
	assert.Equal(t, owner, d["reported_id"])
	disputeID := d["id"]

	status, _ = a.do(t, owner, http.MethodPost, "/api/orders/"+id+"/disputes", `{"reason":"again"}`)
	assert.Equal(t, http.StatusConflict, status)

	status, d = a.do(t, "moderator", http.MethodPost, "/api/disputes/"+disputeID+"/review", `{"note":"checking"}`)
	require.Equal(t, http.StatusOK, status, d)
	assert.Equal(t, "reviewed", d["status"])

	status, d = a.do(t, "moderator", http.MethodPost, "/api/disputes/"+disputeID+"/reject", `{"note":"no evidence"}`)
	require.Equal(t, http.StatusOK, status, d)
	assert.Equal(t, "rejected", d["status"])

	status, o := a.do(t, renter, http.MethodGet, "/api/orders/"+id, "")
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "confirmed", o["status"])

	status, o = a.do(t, owner, http.MethodPost, "/api/orders/"+id+"/cancel", `{"reason":"bike broke"}`)
	require.Equal(t, http.StatusOK, status, o)
	assert.Equal(t, "cancelled", o["status"])
	assert.Equal(t, "refunded", o["payment_status"])
	assert.Equal(t, "200000.00", o["amount_refunded"])

	status, it := a.do(t, renter, http.MethodGet, "/api/items/bike", "")
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "1", it["available_quantity"])
}

func TestAPI_CreateItem(t *testing.T) {
	a := newTestAPI(t)

	status, it := a.do(t, owner, http.MethodPost, "/api/items",
		`{"title":"Tent","base_price":"20000","price_unit":"day","deposit_per_unit":"5000","quantity":3,"images":["a.jpg"]}`)
	require.Equal(t, http.StatusCreated, status, it)
	assert.Equal(t, owner, it["owner_id"])
	assert.Equal(t, "3", it["available_quantity"])
	assert.Equal(t, "available", it["status"])

	status, body := a.do(t, owner, http.MethodPost, "/api/items", `{"title":"Tent","base_price":"1","price_unit":"year","quantity":1}`)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "invalid_argument", body["kind"])
}
