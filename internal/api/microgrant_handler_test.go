package api

import (
	"net/http"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/circles-api/internal/domain"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func createMicrogrant(t *testing.T, a *testAPI, token, business, amount string) domain.Microgrant {
	t.Helper()
	rr := a.do(t, http.MethodPost, "/api/microgrants", token, map[string]any{
		"business_name":    business,
		"description":      "Expansion",
		"amount_requested": amount,
	})
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	var grant domain.Microgrant
	decodeBody(t, rr, &grant)
	return grant
}

func TestMicrograntHandler_Create(t *testing.T) {
	t.Parallel()
	a := newTestAPI(t)
	owner := a.register(t, "Ada", "ada@example.com")

	grant := createMicrogrant(t, a, owner.Token, "Corner bakery", "2500.50")
	assert.Equal(t, owner.ID, grant.OwnerID)
	assert.Equal(t, "Ada", grant.OwnerName)
	assert.Equal(t, "Corner bakery", grant.BusinessName)
	assert.Equal(t, domain.MicrograntStatusPending, grant.Status)
	assert.True(t, grant.AmountRequested.Equal(decimal.RequireFromString("2500.5")))

	tests := []struct {
		name    string
		body    any
		message string
	}{
		{"zero amount", map[string]any{"business_name": "Shop", "amount_requested": "0"}, "Invalid amount_requested: must be positive"},
		{"negative amount", map[string]any{"business_name": "Shop", "amount_requested": "-10"}, "Invalid amount_requested: must be positive"},
		{"blank business", map[string]any{"business_name": "   ", "amount_requested": "10"}, "Invalid business_name: cannot be empty"},
		{"missing business", map[string]any{"amount_requested": "10"}, ""},
		{"missing amount", map[string]any{"business_name": "Shop"}, ""},
		{"no body", nil, ""},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			rr := a.do(t, http.MethodPost, "/api/microgrants", owner.Token, tc.body)
			require.Equal(t, http.StatusBadRequest, rr.Code, rr.Body.String())
			if tc.message != "" {
				assert.Equal(t, tc.message, errorMessage(t, rr))
			}
		})
	}
}

func TestMicrograntHandler_RequiresAuth(t *testing.T) {
	t.Parallel()
	a := newTestAPI(t)

	rr := a.do(t, http.MethodPost, "/api/microgrants", "", map[string]any{
		"business_name": "Shop", "amount_requested": "10",
	})
	assert.Equal(t, http.StatusUnauthorized, rr.Code)

	rr = a.do(t, http.MethodGet, "/api/microgrants", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestMicrograntHandler_Get(t *testing.T) {
	t.Parallel()
	a := newTestAPI(t)
	owner := a.register(t, "Ada", "ada@example.com")
	viewer := a.register(t, "Eve", "eve@example.com")
	grant := createMicrogrant(t, a, owner.Token, "Corner bakery", "100")

	rr := a.do(t, http.MethodGet, "/api/microgrants/"+grant.ID.String(), viewer.Token, nil)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	var got domain.Microgrant
	decodeBody(t, rr, &got)
	assert.Equal(t, grant.ID, got.ID)
	assert.Equal(t, "Ada", got.OwnerName)

	rr = a.do(t, http.MethodGet, "/api/microgrants/"+uuid.NewString(), viewer.Token, nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)

	rr = a.do(t, http.MethodGet, "/api/microgrants/not-a-uuid", viewer.Token, nil)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestMicrograntHandler_List(t *testing.T) {
	t.Parallel()
	a := newTestAPI(t)
	ada := a.register(t, "Ada", "ada@example.com")
	eve := a.register(t, "Eve", "eve@example.com")

	bakery := createMicrogrant(t, a, ada.Token, "Bakery", "100")
	a.clock.Advance(time.Minute)
	florist := createMicrogrant(t, a, eve.Token, "Florist", "200")
	a.clock.Advance(time.Minute)
	printer := createMicrogrant(t, a, ada.Token, "Print shop", "300")

	list := func(query string) MicrograntListResponse {
		t.Helper()
		rr := a.do(t, http.MethodGet, "/api/microgrants"+query, eve.Token, nil)
		require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
		var resp MicrograntListResponse
		decodeBody(t, rr, &resp)
		return resp
	}
	ids := func(resp MicrograntListResponse) []uuid.UUID {
		out := make([]uuid.UUID, 0, len(resp.Microgrants))
		for _, g := range resp.Microgrants {
			out = append(out, g.ID)
		}
		return out
	}

	all := list("")
	assert.Equal(t, []uuid.UUID{printer.ID, florist.ID, bakery.ID}, ids(all), "newest first")
	assert.Equal(t, 50, all.Limit)
	assert.Equal(t, "Ada", all.Microgrants[0].OwnerName)

	assert.Equal(t, []uuid.UUID{florist.ID}, ids(list("?owner=me")))
	assert.Equal(t, []uuid.UUID{printer.ID, bakery.ID}, ids(list("?owner="+ada.ID.String())))
	assert.Equal(t, []uuid.UUID{florist.ID}, ids(list("?limit=1&offset=1")))
	assert.Len(t, list("?status=pending").Microgrants, 3)
	assert.Empty(t, list("?status=funded").Microgrants)
	assert.NotNil(t, list("?status=funded").Microgrants)

	for _, query := range []string{"?status=bogus", "?owner=nobody", "?limit=-1", "?offset=x"} {
		rr := a.do(t, http.MethodGet, "/api/microgrants"+query, eve.Token, nil)
		assert.Equal(t, http.StatusBadRequest, rr.Code, query)
	}
}
