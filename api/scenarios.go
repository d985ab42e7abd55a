/*
scenarios.go - Demo scenario loaders for testing and demonstrations

PURPOSE:

	Provides pre-built scenarios that populate the database with realistic
	data for demos. Each scenario creates users, groups, bank accounts and
	transactions through the same services the API uses, so every seeded
	balance already obeys the ledger rules.

AVAILABLE SCENARIOS:

	household:   Two people sharing a "Casa" group, salaries paid into
	             their accounts, bills some paid and some pending
	low-balance: One account almost empty and a pending bill larger than
	             what is left, to demonstrate the insufficient funds answer

HOW SCENARIOS WORK:
 1. Reset database (clear all data)
 2. Sign users up (personal group and categories are seeded)
 3. Create shared groups and add members
 4. Open bank accounts with an opening balance
 5. Create transactions, paying some through the Engine

USAGE VIA API:

	POST /api/scenarios/load
	{"scenario_id": "household"}

	The response lists the demo logins.

ADDING NEW SCENARIOS:
 1. Add to 'scenarios' slice with ID, name, description
 2. Create loader function: loadXxxScenario(ctx)
 3. Add case to scenarioLoaders

NOTE:

	Scenarios reset the database. Routes are only mounted when
	ENABLE_SCENARIOS is set.

SEE ALSO:
  - server.go: Scenario routes
*/
package api

import (
	"context"
	"fmt"
	"net/http"

	"github.com/shopspring/decimal"
	"github.com/warp/finance-engine/finance"
	"github.com/warp/finance-engine/logger"
)

// =============================================================================
// SCENARIO DEFINITIONS
// =============================================================================

var scenarios = []ScenarioDTO{
	{
		ID:          "household",
		Name:        "Household",
		Description: "Two people sharing a group, salaries paid into bank accounts, bills paid and pending",
	},
	{
		ID:          "low-balance",
		Name:        "Low Balance",
		Description: "A pending bill larger than the linked account balance; paying it is rejected",
	},
}

const demoPassword = "demo1234"

type scenarioLoader func(h *Handler, ctx context.Context) ([]DemoLoginDTO, error)

var scenarioLoaders = map[string]scenarioLoader{
	"household":   (*Handler).loadHouseholdScenario,
	"low-balance": (*Handler).loadLowBalanceScenario,
}

// ListScenarios returns available scenarios.
func (h *Handler) ListScenarios(w http.ResponseWriter, r *http.Request) {
	writeList(w, scenarios)
}

// GetCurrentScenario returns the currently loaded scenario, if any.
func (h *Handler) GetCurrentScenario(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	current := h.currentScenario
	h.mu.Unlock()

	for _, s := range scenarios {
		if s.ID == current {
			writeJSON(w, http.StatusOK, DataResponse{Data: s})
			return
		}
	}
	writeJSON(w, http.StatusOK, DataResponse{Data: nil})
}

// LoadScenario resets the database and loads a predefined scenario.
func (h *Handler) LoadScenario(w http.ResponseWriter, r *http.Request) {
	var req LoadScenarioRequest
	if err := h.schemas.decode(r, "scenario_load", &req); err != nil {
		writeError(w, r, err)
		return
	}
	load, ok := scenarioLoaders[req.ScenarioID]
	if !ok {
		writeError(w, r, (&finance.ValidationError{}).Add("scenario_id", "unknown scenario"))
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	ctx := r.Context()
	if err := h.Store.Reset(ctx); err != nil {
		writeError(w, r, fmt.Errorf("reset database: %w", err))
		return
	}
	h.currentScenario = ""

	logins, err := load(h, ctx)
	if err != nil {
		writeError(w, r, fmt.Errorf("load scenario %s: %w", req.ScenarioID, err))
		return
	}
	h.currentScenario = req.ScenarioID

	log := logger.FromContext(ctx)
	log.Info().Str("scenario", req.ScenarioID).Msg("scenario loaded")
	writeJSON(w, http.StatusOK, DataResponse{
		Data:    map[string]any{"scenario": req.ScenarioID, "logins": logins},
		Message: "scenario loaded",
	})
}

// ResetDatabase clears all data.
func (h *Handler) ResetDatabase(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if err := h.Store.Reset(r.Context()); err != nil {
		writeError(w, r, fmt.Errorf("reset database: %w", err))
		return
	}
	h.currentScenario = ""
	writeJSON(w, http.StatusOK, DataResponse{Data: nil, Message: "database reset"})
}

// =============================================================================
// SCENARIO LOADERS
// =============================================================================

func (h *Handler) loadHouseholdScenario(ctx context.Context) ([]DemoLoginDTO, error) {
	ana, err := h.signupDemo(ctx, "Ana Souza", "ana@example.com")
	if err != nil {
		return nil, err
	}
	bruno, err := h.signupDemo(ctx, "Bruno Lima", "bruno@example.com")
	if err != nil {
		return nil, err
	}

	casa, err := h.Directory.CreateGroup(ctx, ana, "Casa", "Contas da casa")
	if err != nil {
		return nil, err
	}
	if err := h.Directory.AddMember(ctx, ana, casa.ID, bruno.UserID); err != nil {
		return nil, err
	}

	nubank, err := h.openDemoAccount(ctx, ana, "Conta Corrente", "Nubank", "1200.00")
	if err != nil {
		return nil, err
	}
	itau, err := h.openDemoAccount(ctx, bruno, "Conta Salário", "Itaú", "800.00")
	if err != nil {
		return nil, err
	}

	anaPersonal, err := h.personalGroup(ctx, ana)
	if err != nil {
		return nil, err
	}

	seeds := []struct {
		who     finance.Principal
		group   finance.GroupID
		account *finance.AccountID
		typ     finance.TransactionType
		amount  string
		desc    string
		pay     bool
	}{
		{ana, anaPersonal, &nubank.ID, finance.Income, "4500.00", "Salário", true},
		{bruno, casa.ID, &itau.ID, finance.Income, "3200.00", "Salário", true},
		{ana, casa.ID, &nubank.ID, finance.Expense, "1800.00", "Aluguel", true},
		{bruno, casa.ID, &itau.ID, finance.Expense, "320.45", "Supermercado", true},
		{ana, casa.ID, &nubank.ID, finance.Expense, "189.90", "Conta de luz", false},
		{bruno, casa.ID, nil, finance.Expense, "45.00", "Feira", true},
		{ana, anaPersonal, nil, finance.Income, "150.00", "Venda de livros", true},
	}
	for _, s := range seeds {
		if err := h.seedTransaction(ctx, s.who, s.group, s.account, s.typ, s.amount, s.desc, s.pay); err != nil {
			return nil, err
		}
	}

	return []DemoLoginDTO{
		{Name: "Ana Souza", Email: "ana@example.com", Password: demoPassword},
		{Name: "Bruno Lima", Email: "bruno@example.com", Password: demoPassword},
	}, nil
}

func (h *Handler) loadLowBalanceScenario(ctx context.Context) ([]DemoLoginDTO, error) {
	carla, err := h.signupDemo(ctx, "Carla Dias", "carla@example.com")
	if err != nil {
		return nil, err
	}
	acct, err := h.openDemoAccount(ctx, carla, "Conta Corrente", "Inter", "300.00")
	if err != nil {
		return nil, err
	}
	personal, err := h.personalGroup(ctx, carla)
	if err != nil {
		return nil, err
	}

	if err := h.seedTransaction(ctx, carla, personal, &acct.ID, finance.Expense, "250.00", "Internet e celular", true); err != nil {
		return nil, err
	}
	// Left PENDING: paying it needs 480.00 with 50.00 available.
	if err := h.seedTransaction(ctx, carla, personal, &acct.ID, finance.Expense, "480.00", "Parcela do notebook", false); err != nil {
		return nil, err
	}

	return []DemoLoginDTO{{Name: "Carla Dias", Email: "carla@example.com", Password: demoPassword}}, nil
}

// =============================================================================
// HELPERS
// =============================================================================

func (h *Handler) signupDemo(ctx context.Context, name, email string) (finance.Principal, error) {
	s, err := h.Auth.Signup(ctx, name, email, demoPassword)
	if err != nil {
		return finance.Principal{}, fmt.Errorf("signup %s: %w", email, err)
	}
	return finance.Principal{UserID: s.User.ID}, nil
}

func (h *Handler) openDemoAccount(ctx context.Context, p finance.Principal, name, bank, balance string) (*finance.BankAccount, error) {
	return h.Directory.CreateBankAccount(ctx, p, finance.CreateBankAccountInput{
		Name:           name,
		Bank:           bank,
		OpeningBalance: decimal.RequireFromString(balance),
	})
}

func (h *Handler) personalGroup(ctx context.Context, p finance.Principal) (finance.GroupID, error) {
	g, err := h.Store.GetPersonalGroup(ctx, p.UserID)
	if err != nil {
		return 0, err
	}
	if g == nil {
		return 0, fmt.Errorf("user %d has no personal group", p.UserID)
	}
	return g.ID, nil
}

// seedTransaction creates a PENDING transaction and pays it through the
// Engine when pay is set, so the funds check applies to seeds too.
func (h *Handler) seedTransaction(
	ctx context.Context,
	p finance.Principal,
	group finance.GroupID,
	account *finance.AccountID,
	typ finance.TransactionType,
	amount, description string,
	pay bool,
) error {
	t, err := h.Engine.Create(ctx, p, finance.CreateTransactionInput{
		Amount:        decimal.RequireFromString(amount),
		Type:          typ,
		Description:   description,
		GroupID:       group,
		BankAccountID: account,
	})
	if err != nil {
		return fmt.Errorf("create %q: %w", description, err)
	}
	if !pay {
		return nil
	}
	if _, err := h.Engine.MarkPaid(ctx, p, t.ID); err != nil {
		return fmt.Errorf("pay %q: %w", description, err)
	}
	return nil
}
