package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/splitledger/splitledger/internal/models"
	"github.com/splitledger/splitledger/internal/storage"
)

// sqliteTx implements storage.Tx over one database transaction.
type sqliteTx struct {
	ctx context.Context
	tx  *sql.Tx
}

var _ storage.Tx = (*sqliteTx)(nil)

func (t *sqliteTx) InsertExpense(e *models.Expense) error {
	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	if e.CreatedAt == 0 {
		e.CreatedAt = time.Now().Unix()
	}
	_, err := t.tx.ExecContext(t.ctx,
		`INSERT INTO expenses (id, group_id, payer_id, title, amount, currency, category, expense_date, recurring_id, created_at, deleted_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 0)`,
		e.ID, e.GroupID, e.PayerID, e.Title, e.Amount.StringFixed(2), e.Currency,
		e.Category, e.ExpenseDate, e.RecurringID, e.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert expense: %w", err)
	}
	return nil
}

func (t *sqliteTx) GetExpense(id string) (*models.Expense, error) {
	e := &models.Expense{}
	var amount string
	err := t.tx.QueryRowContext(t.ctx,
		`SELECT id, group_id, payer_id, title, amount, currency, category, expense_date, recurring_id, created_at, deleted_at
		 FROM expenses WHERE id = ? AND deleted_at = 0`,
		id,
	).Scan(&e.ID, &e.GroupID, &e.PayerID, &e.Title, &amount, &e.Currency,
		&e.Category, &e.ExpenseDate, &e.RecurringID, &e.CreatedAt, &e.DeletedAt)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("expense %s: %w", id, storage.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get expense: %w", err)
	}
	if e.Amount, err = decimal.NewFromString(amount); err != nil {
		return nil, fmt.Errorf("failed to parse expense amount %q: %w", amount, err)
	}
	return e, nil
}

func (t *sqliteTx) UpdateExpense(e *models.Expense) error {
	res, err := t.tx.ExecContext(t.ctx,
		`UPDATE expenses SET payer_id = ?, title = ?, amount = ?, currency = ?, category = ?, expense_date = ?
		 WHERE id = ? AND deleted_at = 0`,
		e.PayerID, e.Title, e.Amount.StringFixed(2), e.Currency, e.Category, e.ExpenseDate, e.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update expense: %w", err)
	}
	return requireRow(res, "expense", e.ID)
}

func (t *sqliteTx) SoftDeleteExpense(id string, at int64) error {
	res, err := t.tx.ExecContext(t.ctx,
		"UPDATE expenses SET deleted_at = ? WHERE id = ? AND deleted_at = 0",
		at, id,
	)
	if err != nil {
		return fmt.Errorf("failed to soft delete expense: %w", err)
	}
	return requireRow(res, "expense", id)
}

func (t *sqliteTx) InsertShares(shares []models.ExpenseShare) error {
	for i := range shares {
		sh := &shares[i]
		if sh.ID == "" {
			sh.ID = uuid.New().String()
		}
		if sh.CreatedAt == 0 {
			sh.CreatedAt = time.Now().Unix()
		}
		_, err := t.tx.ExecContext(t.ctx,
			`INSERT INTO expense_shares (id, expense_id, member_id, amount, created_at, deleted_at)
			 VALUES (?, ?, ?, ?, ?, 0)`,
			sh.ID, sh.ExpenseID, sh.MemberID, sh.Amount.StringFixed(2), sh.CreatedAt,
		)
		if err != nil {
			return fmt.Errorf("failed to insert share: %w", err)
		}
	}
	return nil
}

func (t *sqliteTx) ActiveSharesByExpense(expenseID string) ([]models.ExpenseShare, error) {
	rows, err := t.tx.QueryContext(t.ctx,
		`SELECT id, expense_id, member_id, amount, created_at, deleted_at
		 FROM expense_shares WHERE expense_id = ? AND deleted_at = 0 ORDER BY created_at, id`,
		expenseID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query shares: %w", err)
	}
	defer rows.Close()

	var shares []models.ExpenseShare
	for rows.Next() {
		var sh models.ExpenseShare
		var amount string
		if err := rows.Scan(&sh.ID, &sh.ExpenseID, &sh.MemberID, &amount, &sh.CreatedAt, &sh.DeletedAt); err != nil {
			return nil, fmt.Errorf("failed to scan share: %w", err)
		}
		if sh.Amount, err = decimal.NewFromString(amount); err != nil {
			return nil, fmt.Errorf("failed to parse share amount %q: %w", amount, err)
		}
		shares = append(shares, sh)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate shares: %w", err)
	}
	return shares, nil
}

func (t *sqliteTx) SoftDeleteShares(expenseID string, at int64) error {
	_, err := t.tx.ExecContext(t.ctx,
		"UPDATE expense_shares SET deleted_at = ? WHERE expense_id = ? AND deleted_at = 0",
		at, expenseID,
	)
	if err != nil {
		return fmt.Errorf("failed to soft delete shares: %w", err)
	}
	return nil
}

func (t *sqliteTx) GetDebt(groupID, lenderID, borrowerID, currency string) (decimal.Decimal, error) {
	var amount string
	err := t.tx.QueryRowContext(t.ctx,
		`SELECT amount FROM group_debts
		 WHERE group_id = ? AND lender_id = ? AND borrower_id = ? AND currency = ? AND deleted_at = 0`,
		groupID, lenderID, borrowerID, currency,
	).Scan(&amount)
	if err == sql.ErrNoRows {
		return decimal.Zero, fmt.Errorf("debt %s->%s: %w", lenderID, borrowerID, storage.ErrNotFound)
	}
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to get debt: %w", err)
	}
	d, err := decimal.NewFromString(amount)
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to parse debt amount %q: %w", amount, err)
	}
	return d, nil
}

func (t *sqliteTx) SetDebt(groupID, lenderID, borrowerID, currency string, amount decimal.Decimal, at int64) error {
	res, err := t.tx.ExecContext(t.ctx,
		`UPDATE group_debts SET amount = ?, updated_at = ?
		 WHERE group_id = ? AND lender_id = ? AND borrower_id = ? AND currency = ? AND deleted_at = 0`,
		amount.StringFixed(2), at, groupID, lenderID, borrowerID, currency,
	)
	if err != nil {
		return fmt.Errorf("failed to set debt: %w", err)
	}
	return requireRow(res, "debt row", lenderID+"->"+borrowerID)
}

func (t *sqliteTx) InsertDebtRow(d *models.GroupDebt) error {
	if d.UpdatedAt == 0 {
		d.UpdatedAt = time.Now().Unix()
	}
	_, err := t.tx.ExecContext(t.ctx,
		`INSERT INTO group_debts (group_id, lender_id, borrower_id, currency, amount, updated_at, deleted_at)
		 VALUES (?, ?, ?, ?, ?, ?, 0)
		 ON CONFLICT (group_id, lender_id, borrower_id, currency) DO NOTHING`,
		d.GroupID, d.LenderID, d.BorrowerID, d.Currency, d.Amount.StringFixed(2), d.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert debt row: %w", err)
	}
	return nil
}

func (t *sqliteTx) ActiveDebtsForUser(groupID, userID string) ([]models.GroupDebt, error) {
	rows, err := t.tx.QueryContext(t.ctx,
		`SELECT group_id, lender_id, borrower_id, currency, amount, updated_at, deleted_at
		 FROM group_debts
		 WHERE group_id = ? AND (lender_id = ? OR borrower_id = ?) AND deleted_at = 0`,
		groupID, userID, userID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query debts: %w", err)
	}
	defer rows.Close()

	var debts []models.GroupDebt
	for rows.Next() {
		var d models.GroupDebt
		var amount string
		if err := rows.Scan(&d.GroupID, &d.LenderID, &d.BorrowerID, &d.Currency, &amount, &d.UpdatedAt, &d.DeletedAt); err != nil {
			return nil, fmt.Errorf("failed to scan debt: %w", err)
		}
		if d.Amount, err = decimal.NewFromString(amount); err != nil {
			return nil, fmt.Errorf("failed to parse debt amount %q: %w", amount, err)
		}
		debts = append(debts, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate debts: %w", err)
	}
	return debts, nil
}

func (t *sqliteTx) InsertSettlement(s *models.Settlement) error {
	if s.ID == "" {
		s.ID = uuid.New().String()
	}
	if s.CreatedAt == 0 {
		s.CreatedAt = time.Now().Unix()
	}
	_, err := t.tx.ExecContext(t.ctx,
		`INSERT INTO settlements (id, group_id, from_user_id, to_user_id, amount, currency, note, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		s.ID, s.GroupID, s.FromUserID, s.ToUserID, s.Amount.StringFixed(2), s.Currency, s.Note, s.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert settlement: %w", err)
	}
	return nil
}

func (t *sqliteTx) SettlementsByGroup(groupID string) ([]models.Settlement, error) {
	rows, err := t.tx.QueryContext(t.ctx,
		`SELECT id, group_id, from_user_id, to_user_id, amount, currency, note, created_at
		 FROM settlements WHERE group_id = ? ORDER BY created_at DESC, id`,
		groupID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query settlements: %w", err)
	}
	defer rows.Close()

	var settlements []models.Settlement
	for rows.Next() {
		var s models.Settlement
		var amount string
		if err := rows.Scan(&s.ID, &s.GroupID, &s.FromUserID, &s.ToUserID, &amount, &s.Currency, &s.Note, &s.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan settlement: %w", err)
		}
		if s.Amount, err = decimal.NewFromString(amount); err != nil {
			return nil, fmt.Errorf("failed to parse settlement amount %q: %w", amount, err)
		}
		settlements = append(settlements, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate settlements: %w", err)
	}
	return settlements, nil
}

func (t *sqliteTx) InsertRecurring(r *models.RecurringExpense) error {
	if r.ID == "" {
		r.ID = uuid.New().String()
	}
	if r.CreatedAt == 0 {
		r.CreatedAt = time.Now().Unix()
	}
	_, err := t.tx.ExecContext(t.ctx,
		`INSERT INTO recurring_expenses (id, group_id, payer_id, title, amount, currency, category, start_date, unit, interval_count, last_occurrence, created_at, deleted_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 0)`,
		r.ID, r.GroupID, r.PayerID, r.Title, r.Amount.StringFixed(2), r.Currency,
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
		_, err := t.tx.ExecContext(t.ctx,
			"INSERT INTO recurring_participants (recurring_id, member_id, weight, position) VALUES (?, ?, ?, ?)",
			r.ID, member, weight, i,
		)
		if err != nil {
			return fmt.Errorf("failed to insert recurring participant: %w", err)
		}
	}
	return nil
}

func (t *sqliteTx) GetRecurring(id string) (*models.RecurringExpense, error) {
	r := &models.RecurringExpense{}
	var amount, unit string
	err := t.tx.QueryRowContext(t.ctx,
		`SELECT id, group_id, payer_id, title, amount, currency, category, start_date, unit, interval_count, last_occurrence, created_at, deleted_at
		 FROM recurring_expenses WHERE id = ?`,
		id,
	).Scan(&r.ID, &r.GroupID, &r.PayerID, &r.Title, &amount, &r.Currency, &r.Category,
		&r.StartDate, &unit, &r.Interval, &r.LastOccurrence, &r.CreatedAt, &r.DeletedAt)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("recurring expense %s: %w", id, storage.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get recurring expense: %w", err)
	}
	r.Unit = models.RecurrenceUnit(unit)
	if r.Amount, err = decimal.NewFromString(amount); err != nil {
		return nil, fmt.Errorf("failed to parse recurring amount %q: %w", amount, err)
	}
	if err := t.loadParticipants(r); err != nil {
		return nil, err
	}
	return r, nil
}

func (t *sqliteTx) ActiveRecurring() ([]models.RecurringExpense, error) {
	rows, err := t.tx.QueryContext(t.ctx,
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
		var amount, unit string
		if err := rows.Scan(&r.ID, &r.GroupID, &r.PayerID, &r.Title, &amount, &r.Currency, &r.Category,
			&r.StartDate, &unit, &r.Interval, &r.LastOccurrence, &r.CreatedAt, &r.DeletedAt); err != nil {
			return nil, fmt.Errorf("failed to scan recurring expense: %w", err)
		}
		r.Unit = models.RecurrenceUnit(unit)
		if r.Amount, err = decimal.NewFromString(amount); err != nil {
			return nil, fmt.Errorf("failed to parse recurring amount %q: %w", amount, err)
		}
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

func (t *sqliteTx) loadParticipants(r *models.RecurringExpense) error {
	rows, err := t.tx.QueryContext(t.ctx,
		"SELECT member_id, weight FROM recurring_participants WHERE recurring_id = ? ORDER BY position",
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
		r.Weights = nil // zero weights mean equal split
	}
	return nil
}

func (t *sqliteTx) SetLastOccurrence(id string, occurrence int64) error {
	res, err := t.tx.ExecContext(t.ctx,
		"UPDATE recurring_expenses SET last_occurrence = ? WHERE id = ? AND deleted_at = 0",
		occurrence, id,
	)
	if err != nil {
		return fmt.Errorf("failed to set last occurrence: %w", err)
	}
	return requireRow(res, "recurring expense", id)
}

func (t *sqliteTx) SoftDeleteRecurring(id string, at int64) error {
	res, err := t.tx.ExecContext(t.ctx,
		"UPDATE recurring_expenses SET deleted_at = ? WHERE id = ? AND deleted_at = 0",
		at, id,
	)
	if err != nil {
		return fmt.Errorf("failed to soft delete recurring expense: %w", err)
	}
	return requireRow(res, "recurring expense", id)
}

// requireRow maps zero affected rows to storage.ErrNotFound.
func requireRow(res sql.Result, kind, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%s %s: %w", kind, id, storage.ErrNotFound)
	}
	return nil
}
