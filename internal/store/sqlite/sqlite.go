// Package sqlite is the concrete store.Adapter backed by a single SQLite
// file, opened through the pure-Go glebarez/sqlite driver and scanned with
// sqlx. Schema is applied with golang-migrate against the embedded
// migrations package.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-migrate/migrate/v4"
	migdb "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jmoiron/sqlx"
	_ "github.com/glebarez/sqlite" // registers the "sqlite" database/sql driver

	"github.com/rapidcontrol/server/internal/store"
	"github.com/rapidcontrol/server/internal/store/sqlite/migrations"
	"github.com/rapidcontrol/server/internal/types"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/text/unicode/norm"
)

// Adapter implements store.Adapter against a SQLite file.
type Adapter struct {
	db   *sqlx.DB
	path string
	cost int
}

// Option configures an Adapter at construction time.
type Option func(*Adapter)

// WithBcryptCost overrides the default bcrypt work factor.
func WithBcryptCost(cost int) Option {
	return func(a *Adapter) { a.cost = cost }
}

// New returns an Adapter reading/writing the SQLite file at path. Call
// Open before use.
func New(path string, opts ...Option) *Adapter {
	a := &Adapter{path: path, cost: bcrypt.DefaultCost}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Open opens the database file and applies any pending migrations.
func (a *Adapter) Open(ctx context.Context) error {
	db, err := sqlx.Open("sqlite", a.path)
	if err != nil {
		return fmt.Errorf("sqlite: open %s: %w", a.path, err)
	}
	db.SetMaxOpenConns(1) // single-writer model
	// Columns are named exactly like the struct fields (Id, Name, ...);
	// sqlx's default mapper lowercases field names and would not match.
	db.MapperFunc(func(s string) string { return s })

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return fmt.Errorf("sqlite: ping: %w", err)
	}

	driver, err := migdb.WithInstance(db.DB, &migdb.Config{})
	if err != nil {
		db.Close()
		return fmt.Errorf("sqlite: migration driver: %w", err)
	}

	src, err := iofs.New(migrations.FS, ".")
	if err != nil {
		db.Close()
		return fmt.Errorf("sqlite: migration source: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", src, "sqlite", driver)
	if err != nil {
		db.Close()
		return fmt.Errorf("sqlite: migrate instance: %w", err)
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		db.Close()
		return fmt.Errorf("sqlite: apply migrations: %w", err)
	}

	a.db = db
	return nil
}

// Close releases the underlying connection.
func (a *Adapter) Close() error {
	if a.db == nil {
		return nil
	}
	return a.db.Close()
}

// normalizeName applies Unicode NFC normalization so visually identical
// login names and farm IDs collide instead of silently creating
// duplicate accounts.
func normalizeName(name string) string {
	return norm.NFC.String(name)
}

// FindUserByName implements store.Adapter.
func (a *Adapter) FindUserByName(ctx context.Context, name string) (*types.User, error) {
	name = normalizeName(name)
	var u types.User
	err := a.db.GetContext(ctx, &u,
		`SELECT Id, Name, Password, CreatedAt FROM Users WHERE Name = ?`, name)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite: find user %q: %w", name, err)
	}
	return &u, nil
}

// CreateUser implements store.Adapter, hashing password with bcrypt
// before persisting it rather than storing it in the clear.
func (a *Adapter) CreateUser(ctx context.Context, name, password string) (int64, error) {
	name = normalizeName(name)
	hash, err := bcrypt.GenerateFromPassword([]byte(password), a.cost)
	if err != nil {
		return 0, fmt.Errorf("sqlite: hash password: %w", err)
	}

	res, err := a.db.ExecContext(ctx,
		`INSERT INTO Users (Name, Password, CreatedAt) VALUES (?, ?, ?)`,
		name, string(hash), time.Now().UTC())
	if err != nil {
		if isUniqueViolation(err) {
			return 0, store.ErrAlreadyExists
		}
		return 0, fmt.Errorf("sqlite: create user %q: %w", name, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("sqlite: create user %q: %w", name, err)
	}
	return id, nil
}

// CheckPassword implements store.Adapter.
func (a *Adapter) CheckPassword(ctx context.Context, name, password string) (*types.User, error) {
	u, err := a.FindUserByName(ctx, name)
	if err != nil {
		return nil, err
	}
	if bcrypt.CompareHashAndPassword([]byte(u.Password), []byte(password)) != nil {
		return nil, store.ErrNotFound
	}
	return u, nil
}

// CreateSession implements store.Adapter.
func (a *Adapter) CreateSession(ctx context.Context, userId int64) (int64, error) {
	res, err := a.db.ExecContext(ctx,
		`INSERT INTO Session (UserId, CreatedAt) VALUES (?, ?)`, userId, time.Now().UTC())
	if err != nil {
		return 0, fmt.Errorf("sqlite: create session for user %d: %w", userId, err)
	}
	return res.LastInsertId()
}

// DeleteSession implements store.Adapter.
func (a *Adapter) DeleteSession(ctx context.Context, sessionId int64) error {
	if _, err := a.db.ExecContext(ctx, `DELETE FROM Session WHERE Id = ?`, sessionId); err != nil {
		return fmt.Errorf("sqlite: delete session %d: %w", sessionId, err)
	}
	return nil
}

// SessionUser implements store.Adapter.
func (a *Adapter) SessionUser(ctx context.Context, sessionId int64) (int64, error) {
	var userId int64
	err := a.db.GetContext(ctx, &userId, `SELECT UserId FROM Session WHERE Id = ?`, sessionId)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, store.ErrNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("sqlite: session user %d: %w", sessionId, err)
	}
	return userId, nil
}

// IsInGroup implements store.Adapter.
func (a *Adapter) IsInGroup(ctx context.Context, userId int64, groupName string) (bool, error) {
	var n int
	err := a.db.GetContext(ctx, &n, `
		SELECT COUNT(*) FROM UserGroup ug
		JOIN Groups g ON g.Id = ug.GroupId
		WHERE ug.UserId = ? AND g.Name = ?`, userId, groupName)
	if err != nil {
		return false, fmt.Errorf("sqlite: is-in-group %d/%s: %w", userId, groupName, err)
	}
	return n > 0, nil
}

// AddToGroup implements store.Adapter.
func (a *Adapter) AddToGroup(ctx context.Context, userId int64, groupName string) (bool, error) {
	return addToGroup(ctx, a.db, userId, groupName)
}

// addToGroup is shared by AddToGroup and the NewFarm transaction.
func addToGroup(ctx context.Context, q sqlx.ExtContext, userId int64, groupName string) (bool, error) {
	groupId, err := ensureGroup(ctx, q, groupName)
	if err != nil {
		return false, err
	}

	var n int
	if err := sqlx.GetContext(ctx, q, &n,
		`SELECT COUNT(*) FROM UserGroup WHERE UserId = ? AND GroupId = ?`, userId, groupId); err != nil {
		return false, fmt.Errorf("sqlite: check membership %d/%s: %w", userId, groupName, err)
	}
	if n > 0 {
		return false, nil
	}

	if _, err := q.ExecContext(ctx,
		`INSERT INTO UserGroup (UserId, GroupId) VALUES (?, ?)`, userId, groupId); err != nil {
		return false, fmt.Errorf("sqlite: add %d to group %s: %w", userId, groupName, err)
	}
	return true, nil
}

func ensureGroup(ctx context.Context, q sqlx.ExtContext, name string) (int64, error) {
	var id int64
	err := sqlx.GetContext(ctx, q, &id, `SELECT Id FROM Groups WHERE Name = ?`, name)
	if err == nil {
		return id, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("sqlite: lookup group %s: %w", name, err)
	}

	res, err := q.ExecContext(ctx, `INSERT INTO Groups (Name) VALUES (?)`, name)
	if err != nil {
		if isUniqueViolation(err) {
			// Lost a race to create the group; re-read.
			if err2 := sqlx.GetContext(ctx, q, &id, `SELECT Id FROM Groups WHERE Name = ?`, name); err2 == nil {
				return id, nil
			}
		}
		return 0, fmt.Errorf("sqlite: create group %s: %w", name, err)
	}
	return res.LastInsertId()
}

// LinkFarm implements store.Adapter.
func (a *Adapter) LinkFarm(ctx context.Context, ownerUserId, farmUserId int64) error {
	_, err := a.db.ExecContext(ctx,
		`INSERT INTO Farm (UserId, FarmId) VALUES (?, ?)`, ownerUserId, farmUserId)
	if err != nil {
		return fmt.Errorf("sqlite: link farm owner=%d farm=%d: %w", ownerUserId, farmUserId, err)
	}
	return nil
}

// OwnedFarm implements store.Adapter.
func (a *Adapter) OwnedFarm(ctx context.Context, ownerUserId int64) (*types.Farm, error) {
	var f types.Farm
	err := a.db.GetContext(ctx, &f,
		`SELECT Id, UserId, FarmId FROM Farm WHERE UserId = ? LIMIT 1`, ownerUserId)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite: owned farm of %d: %w", ownerUserId, err)
	}
	return &f, nil
}

// NewFarm implements store.Adapter, wrapping user-create, link and
// group-add in a single transaction so a mid-sequence failure leaves no
// partial state.
func (a *Adapter) NewFarm(ctx context.Context, ownerUserId int64, farmName, password string) (int64, error) {
	farmName = normalizeName(farmName)
	hash, err := bcrypt.GenerateFromPassword([]byte(password), a.cost)
	if err != nil {
		return 0, fmt.Errorf("sqlite: hash farm password: %w", err)
	}

	tx, err := a.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("sqlite: new farm tx: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		`INSERT INTO Users (Name, Password, CreatedAt) VALUES (?, ?, ?)`,
		farmName, string(hash), time.Now().UTC())
	if err != nil {
		if isUniqueViolation(err) {
			return 0, store.ErrAlreadyExists
		}
		return 0, fmt.Errorf("sqlite: new farm create user: %w", err)
	}
	farmUserId, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("sqlite: new farm user id: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO Farm (UserId, FarmId) VALUES (?, ?)`, ownerUserId, farmUserId); err != nil {
		return 0, fmt.Errorf("sqlite: new farm link: %w", err)
	}

	if _, err := addToGroup(ctx, tx, farmUserId, types.FarmGroup); err != nil {
		return 0, err
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("sqlite: new farm commit: %w", err)
	}
	return farmUserId, nil
}

func isUniqueViolation(err error) bool {
	// The pure-Go sqlite driver surfaces constraint violations as plain
	// errors carrying the sqlite error text; there is no typed sentinel.
	return err != nil && (strings.Contains(err.Error(), "UNIQUE constraint") ||
		strings.Contains(err.Error(), "constraint failed"))
}

// FarmOwner implements store.Adapter.
func (a *Adapter) FarmOwner(ctx context.Context, farmUserId int64) (int64, error) {
	var ownerId int64
	err := a.db.GetContext(ctx, &ownerId, `SELECT UserId FROM Farm WHERE FarmId = ? LIMIT 1`, farmUserId)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, store.ErrNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("sqlite: farm owner of %d: %w", farmUserId, err)
	}
	return ownerId, nil
}

// ActiveSession implements store.Adapter.
func (a *Adapter) ActiveSession(ctx context.Context, userId int64) (int64, error) {
	var sessionId int64
	err := a.db.GetContext(ctx, &sessionId,
		`SELECT Id FROM Session WHERE UserId = ? ORDER BY Id DESC LIMIT 1`, userId)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, store.ErrNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("sqlite: active session of user %d: %w", userId, err)
	}
	return sessionId, nil
}

var _ store.Adapter = (*Adapter)(nil)
