/*
handlers_test.go - HTTP tests for the API

Tests for:
- Error table (status, code, details)
- Authentication required on /api routes
- Request schema validation
- Pay / unpay flow and the bank account balance
- Insufficient funds details
- Partial updates with explicit nulls
- Demo scenarios
*/
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/finance-engine/auth"
	"github.com/warp/finance-engine/finance"
	"github.com/warp/finance-engine/store/sqlite"
)

// =============================================================================
// HARNESS
// =============================================================================

type testAPI struct {
	t   *testing.T
	srv *httptest.Server
	h   *Handler
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()
	store, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	h, err := NewHandler(store, auth.NewIssuer("test-secret", time.Hour), zerolog.Nop())
	require.NoError(t, err)

	srv := httptest.NewServer(NewRouter(h, Options{
		AllowOrigins:    []string{"*"},
		Log:             zerolog.Nop(),
		EnableScenarios: true,
	}))
	t.Cleanup(srv.Close)
	return &testAPI{t: t, srv: srv, h: h}
}

type response struct {
	Status int
	Body   map[string]any
}

func (r response) data() map[string]any {
	d, _ := r.Body["data"].(map[string]any)
	return d
}

func (r response) list() []any {
	l, _ := r.Body["data"].([]any)
	return l
}

func (r response) details() map[string]any {
	d, _ := r.Body["details"].(map[string]any)
	return d
}

// do sends body as JSON. A string body is sent verbatim.
func (a *testAPI) do(method, path, token string, body any) response {
	a.t.Helper()
	var rd io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		rd = bytes.NewBufferString(b)
	default:
		raw, err := json.Marshal(b)
		require.NoError(a.t, err)
		rd = bytes.NewReader(raw)
	}

	req, err := http.NewRequest(method, a.srv.URL+path, rd)
	require.NoError(a.t, err)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := a.srv.Client().Do(req)
	require.NoError(a.t, err)
	defer resp.Body.Close()

	out := response{Status: resp.StatusCode}
	raw, err := io.ReadAll(resp.Body)
	require.NoError(a.t, err)
	if len(raw) > 0 {
		require.NoError(a.t, json.Unmarshal(raw, &out.Body), "body: %s", raw)
	}
	return out
}

type session struct {
	token    string
	userID   int64
	personal int64
}

func (a *testAPI) signup(name, email string) session {
	a.t.Helper()
	resp := a.do(http.MethodPost, "/api/auth/signup", "", map[string]any{
		"name": name, "email": email, "password": "secret123",
	})
	require.Equal(a.t, http.StatusCreated, resp.Status, "%v", resp.Body)

	d := resp.data()
	s := session{token: d["token"].(string)}
	s.userID = int64(d["user"].(map[string]any)["id"].(float64))

	me := a.do(http.MethodGet, "/api/groups/me", s.token, nil)
	require.Equal(a.t, http.StatusOK, me.Status)
	s.personal = int64(me.data()["id"].(float64))
	return s
}

func (a *testAPI) openAccount(s session, balance string) int64 {
	a.t.Helper()
	resp := a.do(http.MethodPost, "/api/bank-accounts", s.token, map[string]any{
		"name": "Conta", "bank": "Nubank", "balance": balance,
	})
	require.Equal(a.t, http.StatusCreated, resp.Status, "%v", resp.Body)
	return int64(resp.data()["id"].(float64))
}

func (a *testAPI) createTx(s session, body map[string]any) int64 {
	a.t.Helper()
	resp := a.do(http.MethodPost, "/api/transactions", s.token, body)
	require.Equal(a.t, http.StatusCreated, resp.Status, "%v", resp.Body)
	return int64(resp.data()["id"].(float64))
}

func (a *testAPI) accountBalance(s session, id int64) string {
	a.t.Helper()
	resp := a.do(http.MethodGet, "/api/bank-accounts", s.token, nil)
	require.Equal(a.t, http.StatusOK, resp.Status)
	for _, item := range resp.list() {
		acct := item.(map[string]any)
		if int64(acct["id"].(float64)) == id {
			return acct["balance"].(string)
		}
	}
	a.t.Fatalf("account %d not listed", id)
	return ""
}

// =============================================================================
// ERROR TABLE
// =============================================================================

func TestErrorResponse_StatusTable(t *testing.T) {
	funds := &finance.InsufficientFundsError{
		AccountID:      7,
		AccountName:    "Nubank",
		CurrentBalance: decimal.RequireFromString("10"),
		RequiredAmount: decimal.RequireFromString("25.5"),
	}

	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{"unauthorized", finance.ErrUnauthorized, http.StatusUnauthorized, "unauthorized"},
		{"forbidden", finance.ErrForbidden, http.StatusForbidden, "forbidden"},
		{"not found", &finance.NotFoundError{Entity: "transaction", ID: 1}, http.StatusNotFound, "not_found"},
		{"validation", (&finance.ValidationError{}).Add("amount", "must be greater than zero"), http.StatusBadRequest, "validation_failed"},
		{"insufficient funds before conflict", funds, http.StatusBadRequest, "insufficient_funds"},
		{"wrapped insufficient funds", fmt.Errorf("pay: %w", funds), http.StatusBadRequest, "insufficient_funds"},
		{"concurrent modification", finance.ErrConcurrentModification, http.StatusConflict, "concurrent_modification"},
		{"conflict", &finance.ConflictError{Reason: "already paid"}, http.StatusConflict, "conflict"},
		{"unknown", errors.New("disk on fire"), http.StatusInternalServerError, "internal"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, resp := errorResponse(tt.err)
			assert.Equal(t, tt.wantStatus, status)
			assert.Equal(t, tt.wantCode, resp.Code)
		})
	}
}

func TestErrorResponse_Details(t *testing.T) {
	// Insufficient funds carry the remediation data.
	_, resp := errorResponse(&finance.InsufficientFundsError{
		AccountID:      7,
		AccountName:    "Nubank",
		CurrentBalance: decimal.RequireFromString("10"),
		RequiredAmount: decimal.RequireFromString("25.5"),
	})
	assert.Equal(t, InsufficientFundsDetails{
		AccountID: 7, AccountName: "Nubank", CurrentBalance: "10.00", RequiredAmount: "25.50",
	}, resp.Details)

	// Validation errors carry field messages.
	_, resp = errorResponse((&finance.ValidationError{}).Add("amount", "must be greater than zero"))
	assert.Equal(t, map[string]string{"amount": "must be greater than zero"}, resp.Details)
	assert.Equal(t, "invalid request", resp.Error)

	// Internal errors leak nothing.
	_, resp = errorResponse(errors.New("pq: password authentication failed"))
	assert.Equal(t, "internal server error", resp.Error)
	assert.Nil(t, resp.Details)
}

// =============================================================================
// AUTHENTICATION
// =============================================================================

func TestAPI_Health(t *testing.T) {
	a := newTestAPI(t)

	resp := a.do(http.MethodGet, "/health", "", nil)

	assert.Equal(t, http.StatusOK, resp.Status)
	assert.Equal(t, "ok", resp.Body["status"])
}

// failingPing reports the database as unreachable.
type failingPing struct {
	*sqlite.Store
}

func (failingPing) Ping(context.Context) error { return errors.New("database is locked") }

func TestAPI_Health_Unavailable(t *testing.T) {
	// GIVEN: A store that fails its ping and a router logging to a buffer
	store, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	buf := &bytes.Buffer{}
	log := zerolog.New(buf)
	h, err := NewHandler(failingPing{store}, auth.NewIssuer("test-secret", time.Hour), log)
	require.NoError(t, err)
	router := NewRouter(h, Options{Log: log})

	// WHEN
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	// THEN: 503 and the failure is logged through the request logger
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), "unavailable")
	assert.Contains(t, buf.String(), "health check failed")
	assert.Contains(t, buf.String(), "database is locked")
}

func TestAPI_RequiresToken(t *testing.T) {
	a := newTestAPI(t)

	for _, token := range []string{"", "not-a-jwt"} {
		resp := a.do(http.MethodGet, "/api/balance", token, nil)
		assert.Equal(t, http.StatusUnauthorized, resp.Status)
		assert.Equal(t, "unauthorized", resp.Body["code"])
	}
}

func TestAPI_SignupAndLogin(t *testing.T) {
	a := newTestAPI(t)
	a.signup("Ana", "ana@example.com")

	// Duplicate email names the field.
	resp := a.do(http.MethodPost, "/api/auth/signup", "", map[string]any{
		"name": "Outra Ana", "email": "ANA@example.com", "password": "secret123",
	})
	assert.Equal(t, http.StatusConflict, resp.Status)
	assert.Equal(t, "email", resp.details()["field"])

	// Wrong password.
	resp = a.do(http.MethodPost, "/api/auth/login", "", map[string]any{"email": "ana@example.com", "password": "nope"})
	assert.Equal(t, http.StatusUnauthorized, resp.Status)

	// Right password, any casing of the email.
	resp = a.do(http.MethodPost, "/api/auth/login", "", map[string]any{"email": "Ana@Example.com", "password": "secret123"})
	require.Equal(t, http.StatusOK, resp.Status)
	assert.NotEmpty(t, resp.data()["token"])
	assert.NotContains(t, resp.data()["user"], "passwordHash")
}

func TestAPI_UnknownRoute(t *testing.T) {
	a := newTestAPI(t)

	resp := a.do(http.MethodGet, "/nope", "", nil)

	assert.Equal(t, http.StatusNotFound, resp.Status)
	assert.Equal(t, "not_found", resp.Body["code"])
}

// =============================================================================
// VALIDATION
// =============================================================================

func TestAPI_CreateTransaction_Validation(t *testing.T) {
	a := newTestAPI(t)
	s := a.signup("Ana", "ana@example.com")

	tests := []struct {
		name       string
		body       any
		wantFields []string
	}{
		{"empty body", "", []string{"body"}},
		{"malformed json", "{", []string{"body"}},
		{"missing fields", map[string]any{"amount": 10}, []string{"type", "description", "groupId"}},
		{"wrong enum", map[string]any{"amount": 10, "type": "GIFT", "description": "x", "groupId": s.personal}, []string{"type"}},
		{"three decimals", map[string]any{"amount": "1.005", "type": "INCOME", "description": "x", "groupId": s.personal}, []string{"amount"}},
		{"zero amount", map[string]any{"amount": 0, "type": "INCOME", "description": "x", "groupId": s.personal}, []string{"amount"}},
		{"bad category kind", map[string]any{
			"amount": 1, "type": "INCOME", "description": "x", "groupId": s.personal,
			"category": map[string]any{"kind": "team", "id": 1},
		}, []string{"category.kind"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := a.do(http.MethodPost, "/api/transactions", s.token, tt.body)

			assert.Equal(t, http.StatusBadRequest, resp.Status)
			assert.Equal(t, "validation_failed", resp.Body["code"])
			for _, f := range tt.wantFields {
				assert.Contains(t, resp.details(), f)
			}
		})
	}
}

func TestAPI_InvalidID(t *testing.T) {
	a := newTestAPI(t)
	s := a.signup("Ana", "ana@example.com")

	resp := a.do(http.MethodGet, "/api/transactions/abc", s.token, nil)

	assert.Equal(t, http.StatusBadRequest, resp.Status)
	assert.Contains(t, resp.details(), "id")
}

// =============================================================================
// PAY FLOW
// =============================================================================

func TestAPI_PayFlow(t *testing.T) {
	// GIVEN: An account at 100 and a linked pending expense of 40
	a := newTestAPI(t)
	s := a.signup("Ana", "ana@example.com")
	acct := a.openAccount(s, "100")
	id := a.createTx(s, map[string]any{
		"amount": "40", "type": "EXPENSE", "description": "luz",
		"groupId": s.personal, "bankAccountId": acct,
	})
	assert.Equal(t, "100.00", a.accountBalance(s, acct))

	// WHEN: It is paid
	resp := a.do(http.MethodPost, fmt.Sprintf("/api/transactions/%d/pay", id), s.token, nil)

	// THEN: The balance drops
	require.Equal(t, http.StatusOK, resp.Status, "%v", resp.Body)
	assert.Equal(t, "PAID", resp.data()["status"])
	assert.Equal(t, "60.00", a.accountBalance(s, acct))

	// AND: Paying again is a conflict that changes nothing
	resp = a.do(http.MethodPost, fmt.Sprintf("/api/transactions/%d/pay", id), s.token, nil)
	assert.Equal(t, http.StatusConflict, resp.Status)
	assert.Equal(t, "60.00", a.accountBalance(s, acct))

	// WHEN: It is unpaid
	resp = a.do(http.MethodDelete, fmt.Sprintf("/api/transactions/%d/pay", id), s.token, nil)

	// THEN: The balance is restored
	require.Equal(t, http.StatusOK, resp.Status)
	assert.Equal(t, "PENDING", resp.data()["status"])
	assert.Equal(t, "100.00", a.accountBalance(s, acct))
}

func TestAPI_Pay_InsufficientFunds(t *testing.T) {
	// GIVEN: An expense larger than the account balance
	a := newTestAPI(t)
	s := a.signup("Ana", "ana@example.com")
	acct := a.openAccount(s, "100")
	id := a.createTx(s, map[string]any{
		"amount": 150, "type": "EXPENSE", "description": "notebook",
		"groupId": s.personal, "bankAccountId": acct,
	})

	// WHEN
	resp := a.do(http.MethodPost, fmt.Sprintf("/api/transactions/%d/pay", id), s.token, nil)

	// THEN: 400 with what the client needs to offer a top-up
	require.Equal(t, http.StatusBadRequest, resp.Status)
	assert.Equal(t, "insufficient_funds", resp.Body["code"])
	d := resp.details()
	assert.Equal(t, float64(acct), d["accountId"])
	assert.Equal(t, "Conta", d["accountName"])
	assert.Equal(t, "100.00", d["currentBalance"])
	assert.Equal(t, "150.00", d["requiredAmount"])

	// AND: Nothing moved
	assert.Equal(t, "100.00", a.accountBalance(s, acct))
	got := a.do(http.MethodGet, fmt.Sprintf("/api/transactions/%d", id), s.token, nil)
	assert.Equal(t, "PENDING", got.data()["status"])
}

func TestAPI_Update_NullUnlinksAccount(t *testing.T) {
	// GIVEN: A PAID expense of 30 linked to an account at 100
	a := newTestAPI(t)
	s := a.signup("Ana", "ana@example.com")
	acct := a.openAccount(s, "100")
	id := a.createTx(s, map[string]any{
		"amount": 30, "type": "EXPENSE", "description": "mercado",
		"groupId": s.personal, "bankAccountId": acct, "status": "PAID",
	})
	assert.Equal(t, "70.00", a.accountBalance(s, acct))

	// WHEN: Only the description changes
	resp := a.do(http.MethodPut, fmt.Sprintf("/api/transactions/%d", id), s.token, map[string]any{"description": "feira"})
	require.Equal(t, http.StatusOK, resp.Status)
	assert.Equal(t, "70.00", a.accountBalance(s, acct))

	// WHEN: The account is explicitly unlinked
	resp = a.do(http.MethodPut, fmt.Sprintf("/api/transactions/%d", id), s.token, `{"bankAccountId": null}`)

	// THEN: The effect is reversed
	require.Equal(t, http.StatusOK, resp.Status, "%v", resp.Body)
	assert.Nil(t, resp.data()["bankAccountId"])
	assert.Equal(t, "100.00", a.accountBalance(s, acct))
}

func TestAPI_Delete_ReversesPaid(t *testing.T) {
	a := newTestAPI(t)
	s := a.signup("Ana", "ana@example.com")
	acct := a.openAccount(s, "10")
	id := a.createTx(s, map[string]any{
		"amount": "5.25", "type": "INCOME", "description": "reembolso",
		"groupId": s.personal, "bankAccountId": acct, "status": "PAID",
	})
	assert.Equal(t, "15.25", a.accountBalance(s, acct))

	resp := a.do(http.MethodDelete, fmt.Sprintf("/api/transactions/%d", id), s.token, nil)

	require.Equal(t, http.StatusOK, resp.Status)
	assert.Equal(t, "10.00", a.accountBalance(s, acct))
	assert.Equal(t, http.StatusNotFound, a.do(http.MethodGet, fmt.Sprintf("/api/transactions/%d", id), s.token, nil).Status)
}

func TestAPI_OtherUsersTransactionIsNotFound(t *testing.T) {
	a := newTestAPI(t)
	ana := a.signup("Ana", "ana@example.com")
	bia := a.signup("Bia", "bia@example.com")
	id := a.createTx(ana, map[string]any{"amount": 1, "type": "INCOME", "description": "x", "groupId": ana.personal})

	resp := a.do(http.MethodGet, fmt.Sprintf("/api/transactions/%d", id), bia.token, nil)
	assert.Equal(t, http.StatusNotFound, resp.Status)

	resp = a.do(http.MethodPost, fmt.Sprintf("/api/transactions/%d/pay", id), bia.token, nil)
	assert.Equal(t, http.StatusNotFound, resp.Status)
}

// =============================================================================
// BALANCES AND GROUPS
// =============================================================================

func TestAPI_Balance(t *testing.T) {
	// GIVEN: Cash income 20 and a paid bank expense of 30 on an account at 100
	a := newTestAPI(t)
	s := a.signup("Ana", "ana@example.com")
	acct := a.openAccount(s, "100")
	a.createTx(s, map[string]any{"amount": 20, "type": "INCOME", "description": "troco", "groupId": s.personal, "status": "PAID"})
	a.createTx(s, map[string]any{
		"amount": 30, "type": "EXPENSE", "description": "luz",
		"groupId": s.personal, "bankAccountId": acct, "status": "PAID",
	})

	// WHEN
	resp := a.do(http.MethodGet, "/api/balance", s.token, nil)

	// THEN
	require.Equal(t, http.StatusOK, resp.Status)
	d := resp.data()
	assert.Equal(t, "-10.00", d["totalBalance"])
	assert.Equal(t, "70.00", d["totalBankBalance"])
	assert.Equal(t, "60.00", d["consolidatedBalance"])
	assert.Len(t, d["balanceByGroup"], 1)
	assert.Len(t, d["bankAccounts"], 1)

	// AND: The personal group splits cash and bank
	me := a.do(http.MethodGet, "/api/groups/me", s.token, nil)
	require.Equal(t, http.StatusOK, me.Status)
	breakdown := me.data()["breakdown"].(map[string]any)
	assert.Equal(t, "20.00", breakdown["cashBalance"])
	assert.Equal(t, "70.00", breakdown["bankBalance"])
	assert.Equal(t, "90.00", me.data()["balance"])
}

func TestAPI_GroupsAndInvitations(t *testing.T) {
	a := newTestAPI(t)
	ana := a.signup("Ana", "ana@example.com")
	bia := a.signup("Bia", "bia@example.com")

	// Ana creates a shared group.
	resp := a.do(http.MethodPost, "/api/groups", ana.token, map[string]any{"name": "Casa"})
	require.Equal(t, http.StatusCreated, resp.Status)
	groupID := int64(resp.data()["id"].(float64))

	// Bia cannot see it yet.
	assert.Equal(t, http.StatusForbidden, a.do(http.MethodGet, fmt.Sprintf("/api/groups/%d", groupID), bia.token, nil).Status)

	// Invites answer the same whether or not the email is registered.
	known := a.do(http.MethodPost, "/api/invitations", ana.token, map[string]any{"groupId": groupID, "email": "bia@example.com"})
	unknown := a.do(http.MethodPost, "/api/invitations", ana.token, map[string]any{"groupId": groupID, "email": "ghost@example.com"})
	assert.Equal(t, http.StatusOK, known.Status)
	assert.Equal(t, known, unknown)

	// Bia accepts.
	pending := a.do(http.MethodGet, "/api/invitations", bia.token, nil)
	require.Equal(t, http.StatusOK, pending.Status)
	require.Len(t, pending.list(), 1)
	inv := pending.list()[0].(map[string]any)
	assert.Equal(t, "Casa", inv["groupName"])

	resp = a.do(http.MethodPut, "/api/invitations", bia.token, map[string]any{"invitationId": inv["id"], "status": "ACCEPTED"})
	require.Equal(t, http.StatusOK, resp.Status, "%v", resp.Body)

	// Now Bia sees the group and its members.
	detail := a.do(http.MethodGet, fmt.Sprintf("/api/groups/%d", groupID), bia.token, nil)
	require.Equal(t, http.StatusOK, detail.Status)
	assert.Len(t, detail.data()["members"], 2)
	assert.Equal(t, "0.00", detail.data()["balance"])

	// Bia leaves.
	resp = a.do(http.MethodDelete, fmt.Sprintf("/api/groups/%d/members/%d", groupID, bia.userID), bia.token, nil)
	assert.Equal(t, http.StatusOK, resp.Status)
	assert.Equal(t, http.StatusForbidden, a.do(http.MethodGet, fmt.Sprintf("/api/groups/%d", groupID), bia.token, nil).Status)
}

func TestAPI_Categories(t *testing.T) {
	a := newTestAPI(t)
	s := a.signup("Ana", "ana@example.com")

	mine := a.do(http.MethodGet, "/api/categories/mine", s.token, nil)
	require.Equal(t, http.StatusOK, mine.Status)
	assert.Equal(t, float64(len(finance.DefaultCategories)), mine.Body["count"])

	resp := a.do(http.MethodPost, "/api/categories", s.token, map[string]any{"groupId": s.personal, "name": "Padaria"})
	require.Equal(t, http.StatusCreated, resp.Status)
	catID := resp.data()["id"]

	// A transaction can use it.
	id := a.createTx(s, map[string]any{
		"amount": 8, "type": "EXPENSE", "description": "pão", "groupId": s.personal,
		"category": map[string]any{"kind": "group", "id": catID},
	})

	// And clear it.
	resp = a.do(http.MethodPut, fmt.Sprintf("/api/transactions/%d/category", id), s.token, `{"category": null}`)
	require.Equal(t, http.StatusOK, resp.Status, "%v", resp.Body)
	assert.Nil(t, resp.data()["category"])

	assert.Equal(t, http.StatusBadRequest, a.do(http.MethodGet, "/api/categories", s.token, nil).Status)
}

// =============================================================================
// SCENARIOS
// =============================================================================

func TestAPI_Scenario_Household(t *testing.T) {
	// GIVEN: The household scenario is loaded
	a := newTestAPI(t)
	resp := a.do(http.MethodPost, "/api/scenarios/load", "", map[string]any{"scenario_id": "household"})
	require.Equal(t, http.StatusOK, resp.Status, "%v", resp.Body)
	assert.Len(t, resp.data()["logins"], 2)

	current := a.do(http.MethodGet, "/api/scenarios/current", "", nil)
	assert.Equal(t, "household", current.data()["id"])

	// WHEN: Ana logs in
	login := a.do(http.MethodPost, "/api/auth/login", "", map[string]any{"email": "ana@example.com", "password": demoPassword})
	require.Equal(t, http.StatusOK, login.Status)
	token := login.data()["token"].(string)

	// THEN: Her account reflects the paid seeds only
	bal := a.do(http.MethodGet, "/api/balance", token, nil)
	require.Equal(t, http.StatusOK, bal.Status)
	assert.Equal(t, "3900.00", bal.data()["totalBankBalance"])
	assert.Equal(t, "5684.55", bal.data()["totalBalance"])
	assert.Equal(t, "9584.55", bal.data()["consolidatedBalance"])
}

func TestAPI_Scenario_LoadIsLogged(t *testing.T) {
	// GIVEN: A router logging to a buffer
	store, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	buf := &bytes.Buffer{}
	log := zerolog.New(buf)
	h, err := NewHandler(store, auth.NewIssuer("test-secret", time.Hour), log)
	require.NoError(t, err)
	router := NewRouter(h, Options{Log: log, EnableScenarios: true})

	// WHEN
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/scenarios/load", bytes.NewBufferString(`{"scenario_id": "low-balance"}`))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(rec, req)

	// THEN
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Contains(t, buf.String(), "scenario loaded")
	assert.Contains(t, buf.String(), `"scenario":"low-balance"`)
}

func TestAPI_Scenario_LowBalance(t *testing.T) {
	a := newTestAPI(t)
	resp := a.do(http.MethodPost, "/api/scenarios/load", "", map[string]any{"scenario_id": "low-balance"})
	require.Equal(t, http.StatusOK, resp.Status, "%v", resp.Body)

	login := a.do(http.MethodPost, "/api/auth/login", "", map[string]any{"email": "carla@example.com", "password": demoPassword})
	require.Equal(t, http.StatusOK, login.Status)
	token := login.data()["token"].(string)

	var pendingID float64
	for _, item := range a.do(http.MethodGet, "/api/transactions", token, nil).list() {
		tx := item.(map[string]any)
		if tx["status"] == "PENDING" {
			pendingID = tx["id"].(float64)
		}
	}
	require.NotZero(t, pendingID)

	pay := a.do(http.MethodPost, fmt.Sprintf("/api/transactions/%d/pay", int64(pendingID)), token, nil)
	assert.Equal(t, http.StatusBadRequest, pay.Status)
	assert.Equal(t, "50.00", pay.details()["currentBalance"])
	assert.Equal(t, "480.00", pay.details()["requiredAmount"])
}

func TestAPI_Scenario_Unknown(t *testing.T) {
	a := newTestAPI(t)

	resp := a.do(http.MethodPost, "/api/scenarios/load", "", map[string]any{"scenario_id": "nope"})

	assert.Equal(t, http.StatusBadRequest, resp.Status)
	assert.Contains(t, resp.details(), "scenario_id")
}

// =============================================================================
// NULLABLE
// =============================================================================

func TestUpdateTransactionRequest_Nullable(t *testing.T) {
	tests := []struct {
		name        string
		body        string
		wantSet     bool
		wantAccount *finance.AccountID
	}{
		{"absent", `{"description": "x"}`, false, nil},
		{"null", `{"bankAccountId": null}`, true, nil},
		{"value", `{"bankAccountId": 4}`, true, accountIDPtr(ptr(int64(4)))},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var req UpdateTransactionRequest
			require.NoError(t, json.Unmarshal([]byte(tt.body), &req))

			in := req.toInput()
			assert.Equal(t, tt.wantSet, in.SetBankAccount)
			assert.Equal(t, tt.wantAccount, in.BankAccountID)
			assert.Nil(t, in.Category)
		})
	}
}

func ptr[T any](v T) *T { return &v }
