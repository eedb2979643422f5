package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/splitledger/splitledger/internal/models"
	"github.com/splitledger/splitledger/internal/storage"
)

// pgTx implements storage.Tx over one pgx transaction.
type pgTx struct {
	ctx context.Context
	tx  pgx.Tx
}

var _ storage.Tx = (*pgTx)(nil)

func (t *pgTx) InsertExpense(e *models.Expense) error {
	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	if e.CreatedAt == 0 {
		e.CreatedAt = time.Now().Unix()
	}
	_, err := t.tx.Exec(t.ctx,
		`INSERT INTO expenses (id, group_id, payer_id, title, amount, currency, category, expense_date, recurring_id, created_at, deleted_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, 0)`,
		e.ID, e.GroupID, e.PayerID, e.Title, e.Amount, e.Currency,
		e.Category, e.ExpenseDate, e.RecurringID, e.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert expense: %w", err)
	}
	return nil
}

func (t *pgTx) GetExpense(id string) (*models.Expense, error) {
	e := &models.Expense{}
	err := t.tx.QueryRow(t.ctx,
		`SELECT id, group_id, payer_id, title, amount, currency, category, expense_date, recurring_id, created_at, deleted_at
		 FROM expenses WHERE id = $1 AND deleted_at = 0`,
		id,
	).Scan(&e.ID, &e.GroupID, &e.PayerID, &e.Title, &e.Amount, &e.Currency,
		&e.Category, &e.ExpenseDate, &e.RecurringID, &e.CreatedAt, &e.DeletedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("expense %s: %w", id, storage.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get expense: %w", err)
	}
	return e, nil
}

func (t *pgTx) UpdateExpense(e *models.Expense) error {
	tag, err := t.tx.Exec(t.ctx,
		`UPDATE expenses SET payer_id = $1, title = $2, amount = $3, currency = $4, category = $5, expense_date = $6
		 WHERE id = $7 AND deleted_at = 0`,
		e.PayerID, e.Title, e.Amount, e.Currency, e.Category, e.ExpenseDate, e.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update expense: %w", err)
	}
	return requireRow(tag.RowsAffected(), "expense", e.ID)
}

func (t *pgTx) SoftDeleteExpense(id string, at int64) error {
	tag, err := t.tx.Exec(t.ctx,
		"UPDATE expenses SET deleted_at = $1 WHERE id = $2 AND deleted_at = 0",
		at, id,
	)
	if err != nil {
		return fmt.Errorf("failed to soft delete expense: %w", err)
	}
	return requireRow(tag.RowsAffected(), "expense", id)
}

func (t *pgTx) InsertShares(shares []models.ExpenseShare) error {
	for i := range shares {
		sh := &shares[i]
		if sh.ID == "" {
			sh.ID = uuid.New().String()
		}
		if sh.CreatedAt == 0 {
			sh.CreatedAt = time.Now().Unix()
		}
		_, err := t.tx.Exec(t.ctx,
			`INSERT INTO expense_shares (id, expense_id, member_id, amount, created_at, deleted_at)
			 VALUES ($1, $2, $3, $4, $5, 0)`,
			sh.ID, sh.ExpenseID, sh.MemberID, sh.Amount, sh.CreatedAt,
		)
		if err != nil {
			return fmt.Errorf("failed to insert share: %w", err)
		}
	}
	return nil
}

func (t *pgTx) ActiveSharesByExpense(expenseID string) ([]models.ExpenseShare, error) {
	rows, err := t.tx.Query(t.ctx,
		`SELECT id, expense_id, member_id, amount, created_at, deleted_at
		 FROM expense_shares WHERE expense_id = $1 AND deleted_at = 0 ORDER BY created_at, id`,
		expenseID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query shares: %w", err)
	}
	defer rows.Close()

	var shares []models.ExpenseShare
	for rows.Next() {
		var sh models.ExpenseShare
		if err := rows.Scan(&sh.ID, &sh.ExpenseID, &sh.MemberID, &sh.Amount, &sh.CreatedAt, &sh.DeletedAt); err != nil {
			return nil, fmt.Errorf("failed to scan share: %w", err)
		}
		shares = append(shares, sh)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate shares: %w", err)
	}
	return shares, nil
}

func (t *pgTx) SoftDeleteShares(expenseID string, at int64) error {
	_, err := t.tx.Exec(t.ctx,
		"UPDATE expense_shares SET deleted_at = $1 WHERE expense_id = $2 AND deleted_at = 0",
		at, expenseID,
	)
	if err != nil {
		return fmt.Errorf("failed to soft delete shares: %w", err)
	}
	return nil
}

// GetDebt locks the row FOR UPDATE: the ledger reads both directions of a
// pair (in deterministic order) before writing either, so the locks also
// serialize concurrent mutations of the same pair.
func (t *pgTx) GetDebt(groupID, lenderID, borrowerID, currency string) (decimal.Decimal, error) {
	var amount decimal.Decimal
	err := t.tx.QueryRow(t.ctx,
		`SELECT amount FROM group_debts
		 WHERE group_id = $1 AND lender_id = $2 AND borrower_id = $3 AND currency = $4 AND deleted_at = 0
		 FOR UPDATE`,
		groupID, lenderID, borrowerID, currency,
	).Scan(&amount)
	if errors.Is(err, pgx.ErrNoRows) {
		return decimal.Zero, fmt.Errorf("debt %s->%s: %w", lenderID, borrowerID, storage.ErrNotFound)
	}
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to get debt: %w", err)
	}
	return amount, nil
}

func (t *pgTx) SetDebt(groupID, lenderID, borrowerID, currency string, amount decimal.Decimal, at int64) error {
	tag, err := t.tx.Exec(t.ctx,
		`UPDATE group_debts SET amount = $1, updated_at = $2
		 WHERE group_id = $3 AND lender_id = $4 AND borrower_id = $5 AND currency = $6 AND deleted_at = 0`,
		amount, at, groupID, lenderID, borrowerID, currency,
	)
	if err != nil {
		return fmt.Errorf("failed to set debt: %w", err)
	}
	return requireRow(tag.RowsAffected(), "debt row", lenderID+"->"+borrowerID)
}

func (t *pgTx) InsertDebtRow(d *models.GroupDebt) error {
	if d.UpdatedAt == 0 {
		d.UpdatedAt = time.Now().Unix()
	}
	_, err := t.tx.Exec(t.ctx,
		`INSERT INTO group_debts (group_id, lender_id, borrower_id, currency, amount, updated_at, deleted_at)
		 VALUES ($1, $2, $3, $4, $5, $6, 0)
		 ON CONFLICT (group_id, lender_id, borrower_id, currency) DO NOTHING`,
		d.GroupID, d.LenderID, d.BorrowerID, d.Currency, d.Amount, d.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert debt row: %w", err)
	}
	return nil
}

func (t *pgTx) ActiveDebtsForUser(groupID, userID string) ([]models.GroupDebt, error) {
	rows, err := t.tx.Query(t.ctx,
		`SELECT group_id, lender_id, borrower_id, currency, amount, updated_at, deleted_at
		 FROM group_debts
		 WHERE group_id = $1 AND (lender_id = $2 OR borrower_id = $2) AND deleted_at = 0`,
		groupID, userID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query debts: %w", err)
	}
	defer rows.Close()

	var debts []models.GroupDebt
	for rows.Next() {
		var d models.GroupDebt
		if err := rows.Scan(&d.GroupID, &d.LenderID, &d.BorrowerID, &d.Currency, &d.Amount, &d.UpdatedAt, &d.DeletedAt); err != nil {
			return nil, fmt.Errorf("failed to scan debt: %w", err)
		}
		debts = append(debts, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate debts: %w", err)
	}
	return debts, nil
}

func (t *pgTx) InsertSettlement(s *models.Settlement) error {
	if s.ID == "" {
		s.ID = uuid.New().String()
	}
	if s.CreatedAt == 0 {
		s.CreatedAt = time.Now().Unix()
	}
	_, err := t.tx.Exec(t.ctx,
		`INSERT INTO settlements (id, group_id, from_user_id, to_user_id, amount, currency, note, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		s.ID, s.GroupID, s.FromUserID, s.ToUserID, s.Amount, s.Currency, s.Note, s.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert settlement: %w", err)
	}
	return nil
}

func (t *pgTx) SettlementsByGroup(groupID string) ([]models.Settlement, error) {
	rows, err := t.tx.Query(t.ctx,
		`SELECT id, group_id, from_user_id, to_user_id, amount, currency, note, created_at
		 FROM settlements WHERE group_id = $1 ORDER BY created_at DESC, id`,
		groupID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query settlements: %w", err)
	}
	defer rows.Close()

	var settlements []models.Settlement
	for rows.Next() {
		var s models.Settlement
		if err := rows.Scan(&s.ID, &s.GroupID, &s.FromUserID, &s.ToUserID, &s.Amount, &s.Currency, &s.Note, &s.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan settlement: %w", err)
		}
		settlements = append(settlements, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate settlements: %w", err)
	}
	return settlements, nil
}

func (t *pgTx) InsertRecurring(r *models.RecurringExpense) error {
	if r.ID == "" {
		r.ID = uuid.New().String()
	}
	if r.CreatedAt == 0 {
		r.CreatedAt = time.Now().Unix()
	}
	_, err := t.tx.Exec(t.ctx,
		`INSERT INTO recurring_expenses (id, group_id, payer_id, title, amount, currency, category, start_date, unit, interval_count, last_occurrence, created_at, deleted_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, 0)`,
		r.ID, r.GroupID, r.PayerID, r.Title, r.Amount, r.Currency,
		r.Category, r.StartDate, string(r.Unit), r.Interval, r.LastOccurrence, r.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert recurring expense: %w", err)
	}
	for i, member := range r.Participants {
		var weight int64
		if len(r.Weights) == len(r.Participants) {
			weight = r.Weights[i]
		}
		_, err := t.tx.Exec(t.ctx,
			"INSERT INTO recurring_participants (recurring_id, member_id, weight, position) VALUES ($1, $2, $3, $4)",
			r.ID, member, weight, i,
		)
		if err != nil {
			return fmt.Errorf("failed to insert recurring participant: %w", err)
		}
	}
	return nil
}

func (t *pgTx) GetRecurring(id string) (*models.RecurringExpense, error) {
	r := &models.RecurringExpense{}
	var unit string
	err := t.tx.QueryRow(t.ctx,
		`SELECT id, group_id, payer_id, title, amount, currency, category, start_date, unit, interval_count, last_occurrence, created_at, deleted_at
		 FROM recurring_expenses WHERE id = $1`,
		id,
	).Scan(&r.ID, &r.GroupID, &r.PayerID, &r.Title, &r.Amount, &r.Currency, &r.Category,
		&r.StartDate, &unit, &r.Interval, &r.LastOccurrence, &r.CreatedAt, &r.DeletedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("recurring expense %s: %w", id, storage.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get recurring expense: %w", err)
	}
	r.Unit = models.RecurrenceUnit(unit)
	if err := t.loadParticipants(r); err != nil {
		return nil, err
	}
	return r, nil
}

func (t *pgTx) ActiveRecurring() ([]models.RecurringExpense, error) {
	rows, err := t.tx.Query(t.ctx,
		`SELECT id, group_id, payer_id, title, amount, currency, category, start_date, unit, interval_count, last_occurrence, created_at, deleted_at
		 FROM recurring_expenses WHERE deleted_at = 0 ORDER BY created_at, id`,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query recurring expenses: %w", err)
	}
	defer rows.Close()

	var templates []models.RecurringExpense
	for rows.Next() {
		var r models.RecurringExpense
		var unit string
		if err := rows.Scan(&r.ID, &r.GroupID, &r.PayerID, &r.Title, &r.Amount, &r.Currency, &r.Category,
			&r.StartDate, &unit, &r.Interval, &r.LastOccurrence, &r.CreatedAt, &r.DeletedAt); err != nil {
			return nil, fmt.Errorf("failed to scan recurring expense: %w", err)
		}
		r.Unit = models.RecurrenceUnit(unit)
		templates = append(templates, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate recurring expenses: %w", err)
	}
	for i := range templates {
		if err := t.loadParticipants(&templates[i]); err != nil {
			return nil, err
		}
	}
	return templates, nil
}

func (t *pgTx) loadParticipants(r *models.RecurringExpense) error {
	rows, err := t.tx.Query(t.ctx,
		"SELECT member_id, weight FROM recurring_participants WHERE recurring_id = $1 ORDER BY position",
		r.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to query recurring participants: %w", err)
	}
	defer rows.Close()

	r.Participants = nil
	r.Weights = nil
	anyWeight := false
	for rows.Next() {
		var member string
		var weight int64
		if err := rows.Scan(&member, &weight); err != nil {
			return fmt.Errorf("failed to scan recurring participant: %w", err)
		}
		r.Participants = append(r.Participants, member)
		r.Weights = append(r.Weights, weight)
		if weight > 0 {
			anyWeight = true
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("failed to iterate recurring participants: %w", err)
	}
	if !anyWeight {
		r.Weights = nil
	}
	return nil
}

func (t *pgTx) SetLastOccurrence(id string, occurrence int64) error {
	tag, err := t.tx.Exec(t.ctx,
		"UPDATE recurring_expenses SET last_occurrence = $1 WHERE id = $2 AND deleted_at = 0",
		occurrence, id,
	)
	if err != nil {
		return fmt.Errorf("failed to set last occurrence: %w", err)
	}
	return requireRow(tag.RowsAffected(), "recurring expense", id)
}

func (t *pgTx) SoftDeleteRecurring(id string, at int64) error {
	tag, err := t.tx.Exec(t.ctx,
		"UPDATE recurring_expenses SET deleted_at = $1 WHERE id = $2 AND deleted_at = 0",
		at, id,
	)
	if err != nil {
		return fmt.Errorf("failed to soft delete recurring expense: %w", err)
	}
	return requireRow(tag.RowsAffected(), "recurring expense", id)
}

// requireRow maps zero affected rows to storage.ErrNotFound.
func requireRow(n int64, kind, id string) error {
	if n == 0 {
		return fmt.Errorf("%s %s: %w", kind, id, storage.ErrNotFound)
	}
	return nil
}
