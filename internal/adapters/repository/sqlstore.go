package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/Bronze2001/CityuDS5003-crowdlabel-system/internal/domain/model"
)

// SQL-backed Store implementation.
//
// One schema serves both SQLite (modernc.org/sqlite, pure Go) and
// Postgres (lib/pq); statements use $n placeholders, which both drivers
// accept. A store-level mutex serializes transactions so the engine
// gets the same all-or-nothing guarantees as the in-memory store
// regardless of driver isolation level.

// SQLStore persists entities through database/sql.
type SQLStore struct {
	mu sync.Mutex
	db *sql.DB
}

// NewSQLStore opens driver/dsn and creates the schema if missing.
// Supported drivers: "sqlite" and "postgres".
func NewSQLStore(driver, dsn string) (*SQLStore, error) {
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s store: %w", driver, err)
	}
	if err := createSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &SQLStore{db: db}, nil
}

// createSchema creates all tables needed by the engine.
// Safe to call multiple times - uses IF NOT EXISTS.
func createSchema(db *sql.DB) error {
	if _, err := db.Exec(schema); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

const schema = `
CREATE TABLE IF NOT EXISTS account (
    id TEXT PRIMARY KEY,
    username TEXT NOT NULL UNIQUE,
    role TEXT NOT NULL CHECK (role IN ('admin', 'annotator')),
    status TEXT NOT NULL DEFAULT 'active' CHECK (status IN ('active', 'warning', 'banned')),
    wallet_balance REAL NOT NULL DEFAULT 0,
    created_at TIMESTAMP NOT NULL
);

CREATE TABLE IF NOT EXISTS task (
    id TEXT PRIMARY KEY,
    image_ref TEXT NOT NULL,
    category_options TEXT NOT NULL,
    final_label TEXT,
    review_status TEXT NOT NULL DEFAULT 'none' CHECK (review_status IN ('none', 'pending', 'reviewed')),
    bounty REAL NOT NULL,
    assigned_count INTEGER NOT NULL DEFAULT 0,
    status TEXT NOT NULL DEFAULT 'active' CHECK (status IN ('active', 'completed')),
    created_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_task_status_assigned ON task(status, assigned_count);
CREATE INDEX IF NOT EXISTS idx_task_review_status ON task(review_status);

CREATE TABLE IF NOT EXISTS annotation (
    id TEXT PRIMARY KEY,
    user_id TEXT NOT NULL REFERENCES account(id),
    task_id TEXT NOT NULL REFERENCES task(id),
    label TEXT NOT NULL,
    is_correct BOOLEAN,
    payment REAL,
    payment_id TEXT,
    created_at TIMESTAMP NOT NULL,
    UNIQUE (user_id, task_id)
);

CREATE INDEX IF NOT EXISTS idx_annotation_task_id ON annotation(task_id);
CREATE INDEX IF NOT EXISTS idx_annotation_user_id ON annotation(user_id);

CREATE TABLE IF NOT EXISTS payment (
    id TEXT PRIMARY KEY,
    user_id TEXT NOT NULL REFERENCES account(id),
    amount REAL NOT NULL,
    created_at TIMESTAMP NOT NULL
);

CREATE TABLE IF NOT EXISTS reservation (
    task_id TEXT NOT NULL REFERENCES task(id),
    user_id TEXT NOT NULL REFERENCES account(id),
    created_at TIMESTAMP NOT NULL,
    PRIMARY KEY (user_id, task_id)
);

CREATE INDEX IF NOT EXISTS idx_reservation_created_at ON reservation(created_at);
`

// Atomically runs fn inside a database transaction under the store mutex.
func (s *SQLStore) Atomically(ctx context.Context, fn func(tx Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	dbTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	if err := fn(&sqlTx{tx: dbTx}); err != nil {
		_ = dbTx.Rollback()
		return err
	}
	if err := dbTx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// Close closes the underlying database handle.
func (s *SQLStore) Close() error {
	return s.db.Close()
}

// translateErr maps driver errors onto the store sentinels.
func translateErr(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "unique constraint") || strings.Contains(msg, "duplicate key") {
		return ErrDuplicate
	}
	return err
}

type sqlTx struct {
	tx *sql.Tx
}

func (t *sqlTx) CreateUser(u model.User) error {
	_, err := t.tx.Exec(`
		INSERT INTO account (id, username, role, status, wallet_balance, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, u.ID, u.Username, string(u.Role), string(u.Status), u.WalletBalance, u.CreatedAt)
	return translateErr(err)
}

func scanUser(row interface{ Scan(...any) error }) (model.User, error) {
	var u model.User
	var role, status string
	err := row.Scan(&u.ID, &u.Username, &role, &status, &u.WalletBalance, &u.CreatedAt)
	if err != nil {
		return model.User{}, translateErr(err)
	}
	u.Role = model.Role(role)
	u.Status = model.UserStatus(status)
	return u, nil
}

func (t *sqlTx) GetUser(id string) (model.User, error) {
	row := t.tx.QueryRow(`
		SELECT id, username, role, status, wallet_balance, created_at
		FROM account WHERE id = $1
	`, id)
	return scanUser(row)
}

func (t *sqlTx) ListUsers() ([]model.User, error) {
	rows, err := t.tx.Query(`
		SELECT id, username, role, status, wallet_balance, created_at
		FROM account ORDER BY username
	`)
	if err != nil {
		return nil, translateErr(err)
	}
	defer rows.Close()

	var users []model.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, translateErr(rows.Err())
}

func (t *sqlTx) CreditWallet(userID string, amount float64) error {
	res, err := t.tx.Exec(`
		UPDATE account SET wallet_balance = wallet_balance + $1 WHERE id = $2
	`, amount, userID)
	if err != nil {
		return translateErr(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return translateErr(err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (t *sqlTx) CreateTask(task model.Task) error {
	_, err := t.tx.Exec(`
		INSERT INTO task (id, image_ref, category_options, final_label, review_status, bounty, assigned_count, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, task.ID, task.ImageRef, strings.Join(task.Options, ","), nullString(task.FinalLabel),
		string(task.ReviewStatus), task.Bounty, task.AssignedCount, string(task.Status), task.CreatedAt)
	return translateErr(err)
}

const taskColumns = `id, image_ref, category_options, final_label, review_status, bounty, assigned_count, status, created_at`

func scanTask(row interface{ Scan(...any) error }) (model.Task, error) {
	var task model.Task
	var options string
	var finalLabel sql.NullString
	var reviewStatus, status string
	err := row.Scan(&task.ID, &task.ImageRef, &options, &finalLabel, &reviewStatus,
		&task.Bounty, &task.AssignedCount, &status, &task.CreatedAt)
	if err != nil {
		return model.Task{}, translateErr(err)
	}
	task.Options = model.ParseOptions(options)
	if finalLabel.Valid {
		task.FinalLabel = &finalLabel.String
	}
	task.ReviewStatus = model.ReviewStatus(reviewStatus)
	task.Status = model.TaskStatus(status)
	return task, nil
}

func (t *sqlTx) GetTask(id string) (model.Task, error) {
	row := t.tx.QueryRow(`SELECT `+taskColumns+` FROM task WHERE id = $1`, id)
	return scanTask(row)
}

func (t *sqlTx) UpdateTask(task model.Task) error {
	res, err := t.tx.Exec(`
		UPDATE task SET image_ref = $1, category_options = $2, final_label = $3,
			review_status = $4, bounty = $5, assigned_count = $6, status = $7
		WHERE id = $8
	`, task.ImageRef, strings.Join(task.Options, ","), nullString(task.FinalLabel),
		string(task.ReviewStatus), task.Bounty, task.AssignedCount, string(task.Status), task.ID)
	if err != nil {
		return translateErr(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return translateErr(err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (t *sqlTx) queryTasks(query string, args ...any) ([]model.Task, error) {
	rows, err := t.tx.Query(query, args...)
	if err != nil {
		return nil, translateErr(err)
	}
	defer rows.Close()

	tasks := make([]model.Task, 0)
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, task)
	}
	return tasks, translateErr(rows.Err())
}

func (t *sqlTx) TasksByStatus(status model.TaskStatus) ([]model.Task, error) {
	return t.queryTasks(`SELECT `+taskColumns+` FROM task WHERE status = $1 ORDER BY created_at, id`, string(status))
}

func (t *sqlTx) TasksByReview(status model.ReviewStatus) ([]model.Task, error) {
	return t.queryTasks(`SELECT `+taskColumns+` FROM task WHERE review_status = $1 ORDER BY created_at, id`, string(status))
}

func (t *sqlTx) EligibleTask(userID string, cap int) (model.Task, bool, error) {
	row := t.tx.QueryRow(`
		SELECT `+taskColumns+` FROM task
		WHERE status = 'active' AND assigned_count < $1
		  AND NOT EXISTS (SELECT 1 FROM annotation a WHERE a.task_id = task.id AND a.user_id = $2)
		  AND NOT EXISTS (SELECT 1 FROM reservation r WHERE r.task_id = task.id AND r.user_id = $2)
		ORDER BY created_at, id
		LIMIT 1
	`, cap, userID)
	task, err := scanTask(row)
	if errors.Is(err, ErrNotFound) {
		return model.Task{}, false, nil
	}
	if err != nil {
		return model.Task{}, false, err
	}
	return task, true, nil
}

func (t *sqlTx) CreateAnnotation(a model.Annotation) error {
	_, err := t.tx.Exec(`
		INSERT INTO annotation (id, user_id, task_id, label, is_correct, payment, payment_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, a.ID, a.UserID, a.TaskID, a.Label, nullBool(a.IsCorrect), nullFloat(a.Payment), nullString(a.PaymentID), a.CreatedAt)
	return translateErr(err)
}

func (t *sqlTx) UpdateAnnotation(a model.Annotation) error {
	res, err := t.tx.Exec(`
		UPDATE annotation SET is_correct = $1, payment = $2, payment_id = $3 WHERE id = $4
	`, nullBool(a.IsCorrect), nullFloat(a.Payment), nullString(a.PaymentID), a.ID)
	if err != nil {
		return translateErr(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return translateErr(err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (t *sqlTx) HasAnnotation(userID, taskID string) (bool, error) {
	var one int
	err := t.tx.QueryRow(`
		SELECT 1 FROM annotation WHERE user_id = $1 AND task_id = $2
	`, userID, taskID).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, translateErr(err)
	}
	return true, nil
}

const annotationColumns = `id, user_id, task_id, label, is_correct, payment, payment_id, created_at`

func scanAnnotation(row interface{ Scan(...any) error }) (model.Annotation, error) {
	var a model.Annotation
	var isCorrect sql.NullBool
	var payment sql.NullFloat64
	var paymentID sql.NullString
	err := row.Scan(&a.ID, &a.UserID, &a.TaskID, &a.Label, &isCorrect, &payment, &paymentID, &a.CreatedAt)
	if err != nil {
		return model.Annotation{}, translateErr(err)
	}
	if isCorrect.Valid {
		a.IsCorrect = &isCorrect.Bool
	}
	if payment.Valid {
		a.Payment = &payment.Float64
	}
	if paymentID.Valid {
		a.PaymentID = &paymentID.String
	}
	return a, nil
}

func (t *sqlTx) queryAnnotations(query string, args ...any) ([]model.Annotation, error) {
	rows, err := t.tx.Query(query, args...)
	if err != nil {
		return nil, translateErr(err)
	}
	defer rows.Close()

	anns := make([]model.Annotation, 0)
	for rows.Next() {
		a, err := scanAnnotation(rows)
		if err != nil {
			return nil, err
		}
		anns = append(anns, a)
	}
	return anns, translateErr(rows.Err())
}

func (t *sqlTx) AnnotationsByTask(taskID string) ([]model.Annotation, error) {
	return t.queryAnnotations(`
		SELECT `+annotationColumns+` FROM annotation WHERE task_id = $1 ORDER BY created_at, id
	`, taskID)
}

func (t *sqlTx) AnnotationsByUser(userID string) ([]model.Annotation, error) {
	return t.queryAnnotations(`
		SELECT `+annotationColumns+` FROM annotation WHERE user_id = $1 ORDER BY created_at DESC, id DESC
	`, userID)
}

func (t *sqlTx) UnpaidAnnotations() ([]model.Annotation, error) {
	return t.queryAnnotations(`
		SELECT ` + annotationColumns + ` FROM annotation
		WHERE is_correct = TRUE AND payment_id IS NULL
		ORDER BY created_at, id
	`)
}

func (t *sqlTx) CreatePayment(p model.Payment) error {
	_, err := t.tx.Exec(`
		INSERT INTO payment (id, user_id, amount, created_at) VALUES ($1, $2, $3, $4)
	`, p.ID, p.UserID, p.Amount, p.CreatedAt)
	return translateErr(err)
}

func (t *sqlTx) GetPayment(id string) (model.Payment, error) {
	var p model.Payment
	err := t.tx.QueryRow(`
		SELECT id, user_id, amount, created_at FROM payment WHERE id = $1
	`, id).Scan(&p.ID, &p.UserID, &p.Amount, &p.CreatedAt)
	if err != nil {
		return model.Payment{}, translateErr(err)
	}
	return p, nil
}

func (t *sqlTx) CreateReservation(r model.Reservation) error {
	_, err := t.tx.Exec(`
		INSERT INTO reservation (task_id, user_id, created_at) VALUES ($1, $2, $3)
	`, r.TaskID, r.UserID, r.CreatedAt)
	return translateErr(err)
}

func (t *sqlTx) HasReservation(userID, taskID string) (bool, error) {
	var one int
	err := t.tx.QueryRow(`
		SELECT 1 FROM reservation WHERE user_id = $1 AND task_id = $2
	`, userID, taskID).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, translateErr(err)
	}
	return true, nil
}

func (t *sqlTx) DeleteReservation(userID, taskID string) error {
	res, err := t.tx.Exec(`
		DELETE FROM reservation WHERE user_id = $1 AND task_id = $2
	`, userID, taskID)
	if err != nil {
		return translateErr(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return translateErr(err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (t *sqlTx) ExpiredReservations(cutoff time.Time) ([]model.Reservation, error) {
	rows, err := t.tx.Query(`
		SELECT task_id, user_id, created_at FROM reservation WHERE created_at < $1 ORDER BY created_at, task_id
	`, cutoff)
	if err != nil {
		return nil, translateErr(err)
	}
	defer rows.Close()

	var expired []model.Reservation
	for rows.Next() {
		var r model.Reservation
		if err := rows.Scan(&r.TaskID, &r.UserID, &r.CreatedAt); err != nil {
			return nil, translateErr(err)
		}
		expired = append(expired, r)
	}
	return expired, translateErr(rows.Err())
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func nullBool(b *bool) sql.NullBool {
	if b == nil {
		return sql.NullBool{}
	}
	return sql.NullBool{Bool: *b, Valid: true}
}

func nullFloat(f *float64) sql.NullFloat64 {
	if f == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *f, Valid: true}
}
