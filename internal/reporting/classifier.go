package reporting

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// AccountType is the top-level classification of an account.
type AccountType string

const (
	AccountAsset     AccountType = "ASSET"
	AccountLiability AccountType = "LIABILITY"
	AccountEquity    AccountType = "EQUITY"
	AccountRevenue   AccountType = "REVENUE"
	AccountExpense   AccountType = "EXPENSE"
)

// BalanceSide is the side on which an account normally carries its balance.
type BalanceSide string

const (
	SideDebit  BalanceSide = "DEBIT"
	SideCredit BalanceSide = "CREDIT"
)

// CashFlowCategory classifies the counter account of a cash movement.
type CashFlowCategory string

const (
	CashFlowOperating CashFlowCategory = "OPERATING"
	CashFlowInvesting CashFlowCategory = "INVESTING"
	CashFlowFinancing CashFlowCategory = "FINANCING"
)

// Account subtypes the builders care about.
const (
	SubtypeCash      = "CASH"
	SubtypeCOGS      = "COGS"
	SubtypeInventory = "INVENTORY"
)

// Account is an entry of the chart of accounts.
type Account struct {
	Code       string
	Name       string
	Type       AccountType
	NormalSide BalanceSide
	Subtype    string
	CashFlow   CashFlowCategory
}

// IsCash reports whether the account holds cash or bank balances.
func (a Account) IsCash() bool {
	return a.Subtype == SubtypeCash
}

func (a Account) cashFlowCategory() CashFlowCategory {
	if a.CashFlow == "" {
		return CashFlowOperating
	}
	return a.CashFlow
}

func normalSideFor(t AccountType) (BalanceSide, bool) {
	switch t {
	case AccountAsset, AccountExpense:
		return SideDebit, true
	case AccountLiability, AccountEquity, AccountRevenue:
		return SideCredit, true
	}
	return "", false
}

// Chart is an immutable chart of accounts keyed by code.
type Chart struct {
	accounts map[string]Account
	ordered  []Account
}

// NewChart validates the accounts and builds a lookup table. Missing normal
// sides default from the account type.
func NewChart(accounts []Account) (*Chart, error) {
	c := &Chart{accounts: make(map[string]Account, len(accounts))}
	for _, acc := range accounts {
		acc.Code = strings.TrimSpace(acc.Code)
		if acc.Code == "" {
			return nil, errors.New("reporting: account code required")
		}
		side, ok := normalSideFor(acc.Type)
		if !ok {
			return nil, fmt.Errorf("reporting: account %s has invalid type %q", acc.Code, acc.Type)
		}
		if acc.NormalSide == "" {
			acc.NormalSide = side
		}
		if _, dup := c.accounts[acc.Code]; dup {
			return nil, fmt.Errorf("reporting: duplicate account code %s", acc.Code)
		}
		c.accounts[acc.Code] = acc
		c.ordered = append(c.ordered, acc)
	}
	sort.Slice(c.ordered, func(i, j int) bool { return c.ordered[i].Code < c.ordered[j].Code })
	return c, nil
}

// Lookup returns the account for code.
func (c *Chart) Lookup(code string) (Account, bool) {
	if c == nil {
		return Account{}, false
	}
	acc, ok := c.accounts[strings.TrimSpace(code)]
	return acc, ok
}

// Classify maps a ledger entry to its account. Unknown codes are an error:
// dropping the entry would corrupt the balance.
func (c *Chart) Classify(entry LedgerEntry) (Account, error) {
	acc, ok := c.Lookup(entry.AccountCode)
	if !ok {
		return Account{}, fmt.Errorf("%w: code %q on entry %s", ErrUnknownAccount, entry.AccountCode, entry.ID)
	}
	return acc, nil
}

// Accounts returns the chart ordered by code.
func (c *Chart) Accounts() []Account {
	if c == nil {
		return nil
	}
	out := make([]Account, len(c.ordered))
	copy(out, c.ordered)
	return out
}

// DefaultChart returns the standard textile manufacturing chart of accounts.
func DefaultChart() *Chart {
	chart, err := NewChart([]Account{
		{Code: "1000", Name: "Cash on Hand", Type: AccountAsset, Subtype: SubtypeCash},
		{Code: "1010", Name: "Bank Accounts", Type: AccountAsset, Subtype: SubtypeCash},
		{Code: "1100", Name: "Accounts Receivable", Type: AccountAsset},
		{Code: "1200", Name: "Raw Materials Inventory", Type: AccountAsset, Subtype: SubtypeInventory},
		{Code: "1210", Name: "Work in Progress", Type: AccountAsset, Subtype: SubtypeInventory},
		{Code: "1220", Name: "Finished Goods Inventory", Type: AccountAsset, Subtype: SubtypeInventory},
		{Code: "1300", Name: "Input Tax Receivable", Type: AccountAsset},
		{Code: "1500", Name: "Machinery and Equipment", Type: AccountAsset, CashFlow: CashFlowInvesting},
		{Code: "1510", Name: "Accumulated Depreciation", Type: AccountAsset, NormalSide: SideCredit, CashFlow: CashFlowInvesting},
		{Code: "2000", Name: "Accounts Payable", Type: AccountLiability},
		{Code: "2100", Name: "Output Tax Payable", Type: AccountLiability},
		{Code: "2200", Name: "Accrued Wages", Type: AccountLiability},
		{Code: "2500", Name: "Long-term Loans", Type: AccountLiability, CashFlow: CashFlowFinancing},
		{Code: "3000", Name: "Owner Capital", Type: AccountEquity, CashFlow: CashFlowFinancing},
		{Code: "3100", Name: "Retained Earnings", Type: AccountEquity},
		{Code: "3200", Name: "Owner Drawings", Type: AccountEquity, NormalSide: SideDebit, CashFlow: CashFlowFinancing},
		{Code: "4000", Name: "Fabric Sales", Type: AccountRevenue},
		{Code: "4010", Name: "Yarn Sales", Type: AccountRevenue},
		{Code: "4100", Name: "Job Work Income", Type: AccountRevenue},
		{Code: "4900", Name: "Other Income", Type: AccountRevenue},
		{Code: "5000", Name: "Cost of Goods Sold", Type: AccountExpense, Subtype: SubtypeCOGS},
		{Code: "5010", Name: "Raw Material Consumed", Type: AccountExpense, Subtype: SubtypeCOGS},
		{Code: "5020", Name: "Dyeing and Processing", Type: AccountExpense, Subtype: SubtypeCOGS},
		{Code: "6000", Name: "Wages and Salaries", Type: AccountExpense},
		{Code: "6100", Name: "Power and Fuel", Type: AccountExpense},
		{Code: "6200", Name: "Machine Maintenance", Type: AccountExpense},
		{Code: "6300", Name: "Rent", Type: AccountExpense},
		{Code: "6400", Name: "Freight Outward", Type: AccountExpense},
		{Code: "6500", Name: "Depreciation", Type: AccountExpense},
		{Code: "6900", Name: "Bank Charges", Type: AccountExpense},
	})
	if err != nil {
		panic(err)
	}
	return chart
}

// classifiedEntry pairs a ledger entry with its resolved account.
type classifiedEntry struct {
	LedgerEntry
	Account Account
}

// classifyAll resolves every entry; the first unknown code aborts.
func classifyAll(chart *Chart, entries []LedgerEntry) ([]classifiedEntry, error) {
	out := make([]classifiedEntry, 0, len(entries))
	for _, e := range entries {
		acc, err := chart.Classify(e)
		if err != nil {
			return nil, err
		}
		out = append(out, classifiedEntry{LedgerEntry: e, Account: acc})
	}
	return out, nil
}
