package ledger

import (
	"context"
	"errors"
	"io"
	"math/rand"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"household-ledger/internal/config"
	"household-ledger/internal/database"
	"household-ledger/internal/logger"
	"household-ledger/internal/models"

	"github.com/shopspring/decimal"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

type fixture struct {
	db      *gorm.DB
	ledger  *Ledger
	scope   Scope
	food    models.Category
	salary  models.Category
	a       models.Account
	b       models.Account
	ctx     context.Context
	opening map[uint]decimal.Decimal
}

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func setupLedger(t *testing.T) *fixture {
	t.Helper()

	db, err := database.Init(config.DatabaseConfig{
		Driver: "sqlite",
		Path:   filepath.Join(t.TempDir(), "ledger.db"),
	})
	if err != nil {
		t.Fatalf("Init test database failed: %v", err)
	}
	if err := database.AutoMigrate(db); err != nil {
		t.Fatalf("AutoMigrate failed: %v", err)
	}
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})

	master := models.MasterAccount{Name: "Familia"}
	mustCreate(t, db, &master)
	user := models.User{MasterAccountID: master.ID, Username: "ana", PasswordHash: "x", Tier: models.TierWrite, Active: true}
	mustCreate(t, db, &user)

	f := &fixture{
		db:      db,
		ledger:  New(db, logger.NewWithWriter(io.Discard)),
		scope:   Scope{MasterAccountID: master.ID, UserID: user.ID},
		ctx:     context.Background(),
		opening: map[uint]decimal.Decimal{},
	}

	f.food = models.Category{MasterAccountID: master.ID, Name: "Food", Kind: models.KindExpense, Active: true}
	mustCreate(t, db, &f.food)
	f.salary = models.Category{MasterAccountID: master.ID, Name: "Salary", Kind: models.KindIncome, Active: true}
	mustCreate(t, db, &f.salary)

	f.a = models.Account{MasterAccountID: master.ID, Name: "Cash", Balance: d("100.00"), Type: models.AccountCash, Active: true}
	mustCreate(t, db, &f.a)
	f.b = models.Account{MasterAccountID: master.ID, Name: "Bank", Balance: d("200.00"), Type: models.AccountBank, Active: true}
	mustCreate(t, db, &f.b)
	f.opening[f.a.ID] = d("100.00")
	f.opening[f.b.ID] = d("200.00")

	return f
}

func mustCreate(t *testing.T, db *gorm.DB, v interface{}) {
	t.Helper()
	if err := db.Omit("MasterAccount").Create(v).Error; err != nil {
		t.Fatalf("create %T: %v", v, err)
	}
}

func (f *fixture) balance(t *testing.T, id uint) decimal.Decimal {
	t.Helper()
	var acc models.Account
	if err := f.db.First(&acc, id).Error; err != nil {
		t.Fatalf("load account %d: %v", id, err)
	}
	return acc.Balance
}

func (f *fixture) assertBalance(t *testing.T, id uint, want string) {
	t.Helper()
	if got := f.balance(t, id); !got.Equal(d(want)) {
		t.Errorf("account %d balance = %s, want %s", id, got.StringFixed(2), want)
	}
}

func (f *fixture) countTransactions(t *testing.T) int64 {
	t.Helper()
	var n int64
	if err := f.db.Model(&models.Transaction{}).Count(&n).Error; err != nil {
		t.Fatalf("count transactions: %v", err)
	}
	return n
}

func (f *fixture) expense(amount string, accountID uint) CreateInput {
	return CreateInput{
		Kind:       models.KindExpense,
		Amount:     d(amount),
		CategoryID: f.food.ID,
		AccountID:  accountID,
		Date:       time.Now(),
	}
}

func (f *fixture) income(amount string, accountID uint) CreateInput {
	return CreateInput{
		Kind:       models.KindIncome,
		Amount:     d(amount),
		CategoryID: f.salary.ID,
		AccountID:  accountID,
		Date:       time.Now(),
	}
}

func TestCreate_ExpenseThenOverdraft(t *testing.T) {
	f := setupLedger(t)

	if _, err := f.ledger.Create(f.ctx, f.scope, f.expense("30.00", f.a.ID)); err != nil {
		t.Fatalf("create expense: %v", err)
	}
	f.assertBalance(t, f.a.ID, "70.00")

	_, err := f.ledger.Create(f.ctx, f.scope, f.expense("80.00", f.a.ID))
	if !errors.Is(err, ErrInsufficientBalance) {
		t.Fatalf("overdraft error = %v, want ErrInsufficientBalance", err)
	}
	f.assertBalance(t, f.a.ID, "70.00")
	if n := f.countTransactions(t); n != 1 {
		t.Errorf("transactions = %d, want 1", n)
	}
}

func TestCreate_IncomeThenDelete(t *testing.T) {
	f := setupLedger(t)

	if _, err := f.ledger.Create(f.ctx, f.scope, f.expense("30.00", f.a.ID)); err != nil {
		t.Fatalf("create expense: %v", err)
	}
	inc, err := f.ledger.Create(f.ctx, f.scope, f.income("50.00", f.a.ID))
	if err != nil {
		t.Fatalf("create income: %v", err)
	}
	f.assertBalance(t, f.a.ID, "120.00")

	if err := f.ledger.Delete(f.ctx, f.scope, inc.ID); err != nil {
		t.Fatalf("delete income: %v", err)
	}
	f.assertBalance(t, f.a.ID, "70.00")
}

func TestCreate_ExactBalanceAllowed(t *testing.T) {
	f := setupLedger(t)

	if _, err := f.ledger.Create(f.ctx, f.scope, f.expense("100.00", f.a.ID)); err != nil {
		t.Fatalf("spend full balance: %v", err)
	}
	f.assertBalance(t, f.a.ID, "0")
}

func TestCreate_Preconditions(t *testing.T) {
	f := setupLedger(t)

	inactiveCat := models.Category{MasterAccountID: f.scope.MasterAccountID, Name: "Old", Kind: models.KindExpense, Active: false}
	mustCreate(t, f.db, &inactiveCat)
	// gorm skips false on create when the column has a default
	f.db.Model(&inactiveCat).Update("active", false)

	inactiveAcc := models.Account{MasterAccountID: f.scope.MasterAccountID, Name: "Closed", Balance: d("10"), Type: models.AccountBank, Active: true}
	mustCreate(t, f.db, &inactiveAcc)
	f.db.Model(&inactiveAcc).Update("active", false)

	other := models.MasterAccount{Name: "Vecinos"}
	mustCreate(t, f.db, &other)
	foreignAcc := models.Account{MasterAccountID: other.ID, Name: "Theirs", Balance: d("500"), Type: models.AccountBank, Active: true}
	mustCreate(t, f.db, &foreignAcc)

	cases := []struct {
		name string
		in   CreateInput
		want error
	}{
		{"missing category", CreateInput{Kind: models.KindExpense, Amount: d("1"), CategoryID: 9999, AccountID: f.a.ID}, ErrCategoryNotFound},
		{"inactive category", CreateInput{Kind: models.KindExpense, Amount: d("1"), CategoryID: inactiveCat.ID, AccountID: f.a.ID}, ErrCategoryNotFound},
		{"kind mismatch", CreateInput{Kind: models.KindIncome, Amount: d("1"), CategoryID: f.food.ID, AccountID: f.a.ID}, ErrKindMismatch},
		{"missing account", CreateInput{Kind: models.KindExpense, Amount: d("1"), CategoryID: f.food.ID, AccountID: 9999}, ErrAccountNotFound},
		{"inactive account", CreateInput{Kind: models.KindExpense, Amount: d("1"), CategoryID: f.food.ID, AccountID: inactiveAcc.ID}, ErrAccountNotFound},
		{"other tenant account", CreateInput{Kind: models.KindExpense, Amount: d("1"), CategoryID: f.food.ID, AccountID: foreignAcc.ID}, ErrAccountNotFound},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.ledger.Create(f.ctx, f.scope, tc.in)
			if !errors.Is(err, tc.want) {
				t.Errorf("error = %v, want %v", err, tc.want)
			}
		})
	}

	if n := f.countTransactions(t); n != 0 {
		t.Errorf("transactions = %d, want 0", n)
	}
	f.assertBalance(t, f.a.ID, "100.00")
	f.assertBalance(t, foreignAcc.ID, "500")
}

func TestUpdate_MoveToOtherAccount(t *testing.T) {
	f := setupLedger(t)

	txn, err := f.ledger.Create(f.ctx, f.scope, f.expense("30.00", f.a.ID))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	f.assertBalance(t, f.a.ID, "70.00")

	target := f.b.ID
	updated, err := f.ledger.Update(f.ctx, f.scope, txn.ID, UpdateInput{AccountID: &target})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.AccountID != f.b.ID {
		t.Errorf("account = %d, want %d", updated.AccountID, f.b.ID)
	}
	f.assertBalance(t, f.a.ID, "100.00")
	f.assertBalance(t, f.b.ID, "170.00")
}

func TestUpdate_AmountOverdraftRollsBack(t *testing.T) {
	f := setupLedger(t)

	txn, err := f.ledger.Create(f.ctx, f.scope, f.expense("30.00", f.a.ID))
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	// 100 - 130 < 0 on the same account
	amount := d("130.00")
	_, err = f.ledger.Update(f.ctx, f.scope, txn.ID, UpdateInput{Amount: &amount})
	if !errors.Is(err, ErrInsufficientBalance) {
		t.Fatalf("error = %v, want ErrInsufficientBalance", err)
	}
	f.assertBalance(t, f.a.ID, "70.00")

	// move to B while raising beyond B's 200
	target := f.b.ID
	big := d("250.00")
	_, err = f.ledger.Update(f.ctx, f.scope, txn.ID, UpdateInput{Amount: &big, AccountID: &target})
	if !errors.Is(err, ErrInsufficientBalance) {
		t.Fatalf("error = %v, want ErrInsufficientBalance", err)
	}
	f.assertBalance(t, f.a.ID, "70.00")
	f.assertBalance(t, f.b.ID, "200.00")

	var stored models.Transaction
	if err := f.db.First(&stored, txn.ID).Error; err != nil {
		t.Fatalf("reload: %v", err)
	}
	if !stored.Amount.Equal(d("30.00")) || stored.AccountID != f.a.ID {
		t.Errorf("stored transaction changed: amount %s account %d", stored.Amount, stored.AccountID)
	}
}

func TestUpdate_AmountWithinSameAccountNets(t *testing.T) {
	f := setupLedger(t)

	txn, err := f.ledger.Create(f.ctx, f.scope, f.expense("30.00", f.a.ID))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	// raise to the full opening balance: revert +30 then apply -100 nets -70
	amount := d("100.00")
	if _, err := f.ledger.Update(f.ctx, f.scope, txn.ID, UpdateInput{Amount: &amount}); err != nil {
		t.Fatalf("update: %v", err)
	}
	f.assertBalance(t, f.a.ID, "0")
}

func TestUpdate_KindChangeRequiresMatchingCategory(t *testing.T) {
	f := setupLedger(t)

	txn, err := f.ledger.Create(f.ctx, f.scope, f.expense("30.00", f.a.ID))
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	kind := models.KindIncome
	if _, err := f.ledger.Update(f.ctx, f.scope, txn.ID, UpdateInput{Kind: &kind}); !errors.Is(err, ErrKindMismatch) {
		t.Fatalf("kind-only update error = %v, want ErrKindMismatch", err)
	}
	f.assertBalance(t, f.a.ID, "70.00")

	cat := f.salary.ID
	if _, err := f.ledger.Update(f.ctx, f.scope, txn.ID, UpdateInput{Kind: &kind, CategoryID: &cat}); err != nil {
		t.Fatalf("kind+category update: %v", err)
	}
	// expense 30 reverted, income 30 applied
	f.assertBalance(t, f.a.ID, "130.00")
}

func TestUpdate_NonBalanceFieldsSkipLedger(t *testing.T) {
	f := setupLedger(t)

	txn, err := f.ledger.Create(f.ctx, f.scope, f.expense("30.00", f.a.ID))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	var before models.Account
	f.db.First(&before, f.a.ID)

	notes := "supermarket"
	receipt := "receipts/2025/06/15.jpg"
	day := time.Date(2025, 6, 15, 0, 0, 0, 0, time.UTC)
	updated, err := f.ledger.Update(f.ctx, f.scope, txn.ID, UpdateInput{Notes: &notes, ReceiptReference: &receipt, Date: &day})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.Notes != notes || updated.ReceiptReference != receipt {
		t.Errorf("fields not updated: %+v", updated)
	}

	var after models.Account
	f.db.First(&after, f.a.ID)
	if after.Version != before.Version {
		t.Errorf("account version changed %d -> %d on a non-balance update", before.Version, after.Version)
	}
	f.assertBalance(t, f.a.ID, "70.00")
}

func TestUpdate_MoveToInactiveAccountRejected(t *testing.T) {
	f := setupLedger(t)

	txn, err := f.ledger.Create(f.ctx, f.scope, f.expense("30.00", f.a.ID))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	f.db.Model(&models.Account{}).Where("id = ?", f.b.ID).Update("active", false)

	target := f.b.ID
	if _, err := f.ledger.Update(f.ctx, f.scope, txn.ID, UpdateInput{AccountID: &target}); !errors.Is(err, ErrAccountNotFound) {
		t.Fatalf("error = %v, want ErrAccountNotFound", err)
	}
	f.assertBalance(t, f.a.ID, "70.00")
	f.assertBalance(t, f.b.ID, "200.00")
}

func TestUpdateDelete_NotFound(t *testing.T) {
	f := setupLedger(t)

	notes := "x"
	if _, err := f.ledger.Update(f.ctx, f.scope, 424242, UpdateInput{Notes: &notes}); !errors.Is(err, ErrTransactionNotFound) {
		t.Errorf("update error = %v, want ErrTransactionNotFound", err)
	}
	if err := f.ledger.Delete(f.ctx, f.scope, 424242); !errors.Is(err, ErrTransactionNotFound) {
		t.Errorf("delete error = %v, want ErrTransactionNotFound", err)
	}

	txn, err := f.ledger.Create(f.ctx, f.scope, f.expense("5.00", f.a.ID))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	stranger := Scope{MasterAccountID: f.scope.MasterAccountID + 100, UserID: 1}
	if err := f.ledger.Delete(f.ctx, stranger, txn.ID); !errors.Is(err, ErrTransactionNotFound) {
		t.Errorf("cross-tenant delete error = %v, want ErrTransactionNotFound", err)
	}
	f.assertBalance(t, f.a.ID, "95.00")
}

func TestDelete_IncomeAlreadySpentRejected(t *testing.T) {
	f := setupLedger(t)

	inc, err := f.ledger.Create(f.ctx, f.scope, f.income("50.00", f.a.ID))
	if err != nil {
		t.Fatalf("create income: %v", err)
	}
	if _, err := f.ledger.Create(f.ctx, f.scope, f.expense("140.00", f.a.ID)); err != nil {
		t.Fatalf("create expense: %v", err)
	}
	f.assertBalance(t, f.a.ID, "10.00")

	if err := f.ledger.Delete(f.ctx, f.scope, inc.ID); !errors.Is(err, ErrInsufficientBalance) {
		t.Fatalf("error = %v, want ErrInsufficientBalance", err)
	}
	f.assertBalance(t, f.a.ID, "10.00")
	if n := f.countTransactions(t); n != 2 {
		t.Errorf("transactions = %d, want 2", n)
	}
}

// TestBalanceMatchesContributions drives a random sequence of ledger
// operations and checks balance == opening + sum(contributions) after each.
func TestBalanceMatchesContributions(t *testing.T) {
	f := setupLedger(t)
	rng := rand.New(rand.NewSource(42))
	accounts := []uint{f.a.ID, f.b.ID}
	var live []uint

	randAmount := func() decimal.Decimal {
		return decimal.New(int64(rng.Intn(9000)+1), -2) // 0.01 .. 90.00
	}

	for step := 0; step < 120; step++ {
		switch op := rng.Intn(4); {
		case op <= 1 || len(live) == 0:
			in := f.income("1", accounts[rng.Intn(2)])
			if rng.Intn(2) == 0 {
				in = f.expense("1", accounts[rng.Intn(2)])
			}
			in.Amount = randAmount()
			txn, err := f.ledger.Create(f.ctx, f.scope, in)
			if err == nil {
				live = append(live, txn.ID)
			} else if !errors.Is(err, ErrInsufficientBalance) {
				t.Fatalf("step %d create: %v", step, err)
			}
		case op == 2:
			id := live[rng.Intn(len(live))]
			amount := randAmount()
			acc := accounts[rng.Intn(2)]
			_, err := f.ledger.Update(f.ctx, f.scope, id, UpdateInput{Amount: &amount, AccountID: &acc})
			if err != nil && !errors.Is(err, ErrInsufficientBalance) {
				t.Fatalf("step %d update: %v", step, err)
			}
		default:
			i := rng.Intn(len(live))
			err := f.ledger.Delete(f.ctx, f.scope, live[i])
			if err == nil {
				live = append(live[:i], live[i+1:]...)
			} else if !errors.Is(err, ErrInsufficientBalance) {
				t.Fatalf("step %d delete: %v", step, err)
			}
		}

		for _, acc := range accounts {
			var txns []models.Transaction
			if err := f.db.Where("account_id = ?", acc).Find(&txns).Error; err != nil {
				t.Fatalf("load transactions: %v", err)
			}
			want := f.opening[acc]
			for i := range txns {
				want = want.Add(txns[i].Contribution())
			}
			got := f.balance(t, acc)
			if !got.Equal(want) {
				t.Fatalf("step %d: account %d balance %s, contributions say %s", step, acc, got, want)
			}
			if got.IsNegative() {
				t.Fatalf("step %d: account %d negative balance %s", step, acc, got)
			}
		}
	}
}

func TestApplyDelta_StaleVersionConflicts(t *testing.T) {
	f := setupLedger(t)

	var acc models.Account
	if err := f.db.First(&acc, f.a.ID).Error; err != nil {
		t.Fatalf("load: %v", err)
	}
	// another writer bumps the version first
	if err := f.db.Model(&models.Account{}).Where("id = ?", acc.ID).
		Update("version", gorm.Expr("version + 1")).Error; err != nil {
		t.Fatalf("bump version: %v", err)
	}

	err := applyDelta(f.db, &acc, d("-10"))
	if !errors.Is(err, ErrConcurrentUpdate) {
		t.Fatalf("error = %v, want ErrConcurrentUpdate", err)
	}
	f.assertBalance(t, f.a.ID, "100.00")
}

func TestUpdate_RefreshesUpdatedAt(t *testing.T) {
	f := setupLedger(t)

	txn, err := f.ledger.Create(f.ctx, f.scope, f.expense("10.00", f.a.ID))
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	before := time.Now()
	notes := "bus"
	updated, err := f.ledger.Update(f.ctx, f.scope, txn.ID, UpdateInput{Notes: &notes})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.UpdatedAt.Before(before) {
		t.Errorf("returned updated_at %v is older than the update at %v", updated.UpdatedAt, before)
	}

	var stored models.Transaction
	if err := f.db.First(&stored, txn.ID).Error; err != nil {
		t.Fatalf("reload: %v", err)
	}
	if !stored.UpdatedAt.Equal(updated.UpdatedAt) {
		t.Errorf("stored updated_at %v != returned %v", stored.UpdatedAt, updated.UpdatedAt)
	}
}

func TestLockScoped(t *testing.T) {
	pg, err := gorm.Open(postgres.New(postgres.Config{DSN: "host=localhost user=ledger dbname=ledger sslmode=disable"}),
		&gorm.Config{DryRun: true, DisableAutomaticPing: true})
	if err != nil {
		t.Fatalf("open postgres dialector: %v", err)
	}
	stmt := lockScoped(pg).Where("id = ?", 1).Find(&models.Account{}).Statement
	if sql := stmt.SQL.String(); !strings.Contains(sql, "FOR UPDATE") {
		t.Errorf("postgres query %q lacks FOR UPDATE", sql)
	}

	f := setupLedger(t)
	stmt = lockScoped(f.db.Session(&gorm.Session{DryRun: true})).Where("id = ?", 1).Find(&models.Account{}).Statement
	if sql := stmt.SQL.String(); strings.Contains(sql, "FOR UPDATE") {
		t.Errorf("sqlite query %q should not lock rows", sql)
	}
}
