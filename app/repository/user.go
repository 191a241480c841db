package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/vibast-solutions/ms-go-market-auth/app/entity"
)

const mysqlDuplicateEntry = 1062

// IsDuplicateKey reports whether err is a MySQL unique constraint violation.
func IsDuplicateKey(err error) bool {
	var mysqlErr *mysql.MySQLError
	return errors.As(err, &mysqlErr) && mysqlErr.Number == mysqlDuplicateEntry
}

const selectUserColumns = `
		SELECT u.id, u.email, u.username, u.password_hash, u.is_active, u.is_superadmin,
		       u.role_id, r.name, u.created_at, u.updated_at
		FROM users u JOIN roles r ON r.id = u.role_id`

type UserRepository struct {
	db DBTX
}

func NewUserRepository(db DBTX) *UserRepository {
	return &UserRepository{db: db}
}

// Create inserts the user with the role referenced by user.Role.
func (r *UserRepository) Create(ctx context.Context, user *entity.User) error {
	query := `
		INSERT INTO users (email, username, password_hash, is_active, is_superadmin, role_id, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, (SELECT id FROM roles WHERE name = ?), ?, ?)
	`
	result, err := r.db.ExecContext(ctx, query,
		user.Email,
		user.Username,
		user.PasswordHash,
		user.IsActive,
		user.IsSuperadmin,
		user.Role,
		user.CreatedAt,
		user.UpdatedAt,
	)
	if err != nil {
		return err
	}

	id, err := result.LastInsertId()
	if err != nil {
		return err
	}
	user.ID = uint64(id)
	return nil
}

func (r *UserRepository) FindByID(ctx context.Context, id uint64) (*entity.User, error) {
	return r.findOne(ctx, selectUserColumns+` WHERE u.id = ?`, id)
}

func (r *UserRepository) FindByEmail(ctx context.Context, email string) (*entity.User, error) {
	return r.findOne(ctx, selectUserColumns+` WHERE u.email = ?`, email)
}

// FindByEmailOrUsername prefers the row whose email matches when both fields collide with different users.
func (r *UserRepository) FindByEmailOrUsername(ctx context.Context, email, username string) (*entity.User, error) {
	query := selectUserColumns + `
		WHERE u.email = ? OR u.username = ?
		ORDER BY u.email = ? DESC
		LIMIT 1`
	return r.findOne(ctx, query, email, username, email)
}

func (r *UserRepository) Activate(ctx context.Context, id uint64, at time.Time) error {
	_, err := r.db.ExecContext(ctx, `UPDATE users SET is_active = TRUE, updated_at = ? WHERE id = ?`, at, id)
	return err
}

func (r *UserRepository) UpdatePassword(ctx context.Context, id uint64, passwordHash string, at time.Time) error {
	_, err := r.db.ExecContext(ctx, `UPDATE users SET password_hash = ?, updated_at = ? WHERE id = ?`, passwordHash, at, id)
	return err
}

func (r *UserRepository) SetSuperadmin(ctx context.Context, id uint64, role string, at time.Time) error {
	query := `
		UPDATE users SET is_superadmin = TRUE, role_id = (SELECT id FROM roles WHERE name = ?), updated_at = ?
		WHERE id = ?
	`
	_, err := r.db.ExecContext(ctx, query, role, at, id)
	return err
}

// List returns users ordered by id. Permissions are not loaded.
func (r *UserRepository) List(ctx context.Context, limit, offset int) ([]*entity.User, error) {
	rows, err := r.db.QueryContext(ctx, selectUserColumns+` ORDER BY u.id LIMIT ? OFFSET ?`, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []*entity.User
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, user)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return users, nil
}

func (r *UserRepository) findOne(ctx context.Context, query string, args ...any) (*entity.User, error) {
	user, err := scanUser(r.db.QueryRowContext(ctx, query, args...))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	permissions, err := r.listRolePermissions(ctx, user.RoleID)
	if err != nil {
		return nil, err
	}
	user.Permissions = permissions
	return user, nil
}

func (r *UserRepository) listRolePermissions(ctx context.Context, roleID uint64) ([]string, error) {
	query := `
		SELECT p.name FROM permissions p
		JOIN role_permissions rp ON rp.permission_id = p.id
		WHERE rp.role_id = ? ORDER BY p.name
	`
	rows, err := r.db.QueryContext(ctx, query, roleID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var permissions []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		permissions = append(permissions, name)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return permissions, nil
}

func scanUser(s scanner) (*entity.User, error) {
	user := &entity.User{}
	err := s.Scan(
		&user.ID,
		&user.Email,
		&user.Username,
		&user.PasswordHash,
		&user.IsActive,
		&user.IsSuperadmin,
		&user.RoleID,
		&user.Role,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return user, nil
}
