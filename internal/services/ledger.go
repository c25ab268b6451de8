package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"casino-engine/internal/models"
	"casino-engine/internal/storage"
)

const (
	DefaultHistoryLimit = 50
	MaxHistoryLimit     = 500
)

var (
	DemoDepositAmount = decimal.RequireFromString("500.00")
	MaxLedgerAmount   = decimal.RequireFromString("999999999.99")
)

// Ledger moves money between the house and player accounts. Debit and
// Credit run on the caller's transaction so the balance change commits
// together with the game record it pays for.
type Ledger struct {
	store           *storage.Store
	log             *zap.Logger
	now             func() time.Time
	startingBalance decimal.Decimal
}

func NewLedger(store *storage.Store, log *zap.Logger, startingBalance decimal.Decimal) *Ledger {
	return &Ledger{
		store:           store,
		log:             log.Named("ledger"),
		now:             time.Now,
		startingBalance: startingBalance,
	}
}

// Account loads the user's account, creating it on first use. A configured
// starting balance is granted as a bonus entry in the same transaction.
func (l *Ledger) Account(ctx context.Context, q *storage.Queries, userID int64) (*models.Account, error) {
	acct, err := q.GetAccount(ctx, userID)
	if err == nil {
		return acct, nil
	}
	if !errors.Is(err, models.ErrNotFound) {
		return nil, err
	}

	now := l.now()
	if _, err := q.InsertAccount(ctx, &models.Account{UserID: userID, CreatedAt: now, UpdatedAt: now}); err != nil {
		return nil, err
	}
	if l.startingBalance.IsPositive() {
		if _, err := l.Credit(ctx, q, userID, l.startingBalance, models.EntryBonus, "Welcome bonus", ""); err != nil {
			return nil, err
		}
	}
	return q.GetAccount(ctx, userID)
}

// Debit takes a bet stake from the account.
func (l *Ledger) Debit(ctx context.Context, q *storage.Queries, userID int64, amount decimal.Decimal, desc, ref string) (*models.LedgerEntry, error) {
	if !amount.IsPositive() {
		return nil, fmt.Errorf("%w: debit amount must be positive", models.ErrValidation)
	}

	acct, err := l.Account(ctx, q, userID)
	if err != nil {
		return nil, err
	}
	if acct.Balance.LessThan(amount) {
		return nil, fmt.Errorf("%w: balance %s, required %s",
			models.ErrInsufficientFunds, acct.Balance.StringFixed(2), amount.StringFixed(2))
	}

	before := acct.Balance
	acct.Balance = acct.Balance.Sub(amount)
	acct.TotalWagered = acct.TotalWagered.Add(amount)
	return l.apply(ctx, q, acct, before, amount, models.EntryBet, desc, ref)
}

// Credit adds amount to the account. A zero amount is a no-op and returns
// a nil entry.
func (l *Ledger) Credit(ctx context.Context, q *storage.Queries, userID int64, amount decimal.Decimal, kind models.EntryKind, desc, ref string) (*models.LedgerEntry, error) {
	if amount.IsNegative() {
		return nil, fmt.Errorf("%w: credit amount must not be negative", models.ErrValidation)
	}
	if kind == models.EntryBet || !kind.Valid() {
		return nil, fmt.Errorf("%w: cannot credit entry kind %q", models.ErrValidation, kind)
	}
	if amount.IsZero() {
		return nil, nil
	}

	acct, err := l.Account(ctx, q, userID)
	if err != nil {
		return nil, err
	}

	before := acct.Balance
	acct.Balance = acct.Balance.Add(amount)
	if kind == models.EntryWin {
		acct.TotalWon = acct.TotalWon.Add(amount)
	}
	return l.apply(ctx, q, acct, before, amount, kind, desc, ref)
}

func (l *Ledger) apply(ctx context.Context, q *storage.Queries, acct *models.Account, before, amount decimal.Decimal, kind models.EntryKind, desc, ref string) (*models.LedgerEntry, error) {
	now := l.now()
	acct.UpdatedAt = now
	if err := q.UpdateAccount(ctx, acct); err != nil {
		return nil, err
	}

	entry := &models.LedgerEntry{
		UserID:        acct.UserID,
		Kind:          kind,
		Status:        models.EntryCompleted,
		Amount:        amount,
		BalanceBefore: before,
		BalanceAfter:  acct.Balance,
		Description:   desc,
		GameRef:       ref,
		CreatedAt:     now,
	}
	if err := q.InsertEntry(ctx, entry); err != nil {
		return nil, err
	}

	l.log.Info("balance changed",
		zap.Int64("user_id", acct.UserID),
		zap.String("kind", string(kind)),
		zap.String("amount", amount.StringFixed(2)),
		zap.String("before", before.StringFixed(2)),
		zap.String("after", acct.Balance.StringFixed(2)),
		zap.String("ref", ref))
	return entry, nil
}

func (l *Ledger) GetBalance(ctx context.Context, userID int64) (*models.Account, error) {
	var acct *models.Account
	err := l.store.InTx(ctx, func(q *storage.Queries) error {
		var err error
		acct, err = l.Account(ctx, q, userID)
		return err
	})
	return acct, err
}

// Deposit credits demo funds. A nil amount deposits DemoDepositAmount.
func (l *Ledger) Deposit(ctx context.Context, userID int64, amount *decimal.Decimal, desc string) (*models.LedgerEntry, error) {
	value := DemoDepositAmount
	if amount != nil {
		value = *amount
	}
	if err := models.ValidateAmount("deposit", value, decimal.Zero, MaxLedgerAmount, true); err != nil {
		return nil, err
	}
	if desc == "" {
		desc = fmt.Sprintf("Demo deposit %s", value.StringFixed(2))
	}
	return l.creditTx(ctx, userID, value, models.EntryDeposit, desc)
}

func (l *Ledger) AddBonus(ctx context.Context, userID int64, amount decimal.Decimal, desc string) (*models.LedgerEntry, error) {
	if err := models.ValidateAmount("bonus", amount, decimal.Zero, MaxLedgerAmount, true); err != nil {
		return nil, err
	}
	if desc == "" {
		desc = "Bonus"
	}
	return l.creditTx(ctx, userID, amount, models.EntryBonus, desc)
}

func (l *Ledger) creditTx(ctx context.Context, userID int64, amount decimal.Decimal, kind models.EntryKind, desc string) (*models.LedgerEntry, error) {
	var entry *models.LedgerEntry
	err := l.store.InTx(ctx, func(q *storage.Queries) error {
		var err error
		entry, err = l.Credit(ctx, q, userID, amount, kind, desc, "")
		return err
	})
	return entry, err
}

func (l *Ledger) History(ctx context.Context, userID int64, f models.HistoryFilter) ([]*models.LedgerEntry, error) {
	f.Limit = models.ClampLimit(f.Limit, DefaultHistoryLimit, MaxHistoryLimit)
	return l.store.Queries().ListEntries(ctx, userID, f)
}

func (l *Ledger) Entry(ctx context.Context, userID, entryID int64) (*models.LedgerEntry, error) {
	return l.store.Queries().GetEntry(ctx, userID, entryID)
}

func (l *Ledger) Summary(ctx context.Context, userID int64) (*models.Summary, error) {
	acct, err := l.GetBalance(ctx, userID)
	if err != nil {
		return nil, err
	}
	totals, err := l.store.Queries().SumEntries(ctx, userID)
	if err != nil {
		return nil, err
	}
	return &models.Summary{
		Balance:       acct.Balance,
		TotalWagered:  acct.TotalWagered,
		TotalWon:      acct.TotalWon,
		TotalDeposits: models.FromCents(totals.Deposits),
		TotalBets:     models.FromCents(totals.Bets),
		TotalWins:     models.FromCents(totals.Wins),
		TotalBonuses:  models.FromCents(totals.Bonuses),
		EntryCount:    totals.Count,
		NetProfit:     acct.TotalWon.Sub(acct.TotalWagered),
	}, nil
}
