package sqlxrepos

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/shuleapp/shule/core/user"
)

type dbUser struct {
	ID           string         `db:"id"`
	TenantID     sql.NullString `db:"tenant_id"`
	Name         string         `db:"name"`
	Username     string         `db:"username"`
	Email        string         `db:"email"`
	Role         string         `db:"role"`
	IsActive     bool           `db:"is_active"`
	IsSuperuser  bool           `db:"is_superuser"`
	PasswordHash []byte         `db:"password_hash"`
	CreatedAt    time.Time      `db:"created_at"`
	UpdatedAt    time.Time      `db:"updated_at"`
	LastLogin    sql.NullTime   `db:"last_login"`
}

func (u dbUser) unmarshal() user.User {
	usr := user.User{
		ID:           u.ID,
		TenantID:     u.TenantID.String,
		Name:         u.Name,
		Username:     u.Username,
		Email:        u.Email,
		Role:         u.Role,
		IsActive:     u.IsActive,
		IsSuperuser:  u.IsSuperuser,
		PasswordHash: u.PasswordHash,
		CreatedAt:    u.CreatedAt.UTC(),
		UpdatedAt:    u.UpdatedAt.UTC(),
	}
	if u.LastLogin.Valid {
		usr.LastLogin = u.LastLogin.Time.UTC()
	}
	return usr
}

func marshalUser(usr user.User) dbUser {
	return dbUser{
		ID:           usr.ID,
		TenantID:     sql.NullString{String: usr.TenantID, Valid: usr.TenantID != ""},
		Name:         usr.Name,
		Username:     usr.Username,
		Email:        usr.Email,
		Role:         usr.Role,
		IsActive:     usr.IsActive,
		IsSuperuser:  usr.IsSuperuser,
		PasswordHash: usr.PasswordHash,
		CreatedAt:    usr.CreatedAt.UTC(),
		UpdatedAt:    usr.UpdatedAt.UTC(),
		LastLogin:    sql.NullTime{Time: usr.LastLogin.UTC(), Valid: !usr.LastLogin.IsZero()},
	}
}

type userRepository struct {
	db *sqlx.DB
}

var _ user.Repository = (*userRepository)(nil) // interface compliance check

func NewUserRepository(db *sqlx.DB) *userRepository {
	return &userRepository{db: db}
}

func (repo userRepository) CheckUsernameUniqueness(ctx context.Context, tenantID, username, email string, excludedUsers ...user.User) error {
	args := []interface{}{tenantID, username, email}
	q := `SELECT username, email FROM "user"
	      WHERE (tenant_id = $1 OR (tenant_id IS NULL AND $1 = ''))
	        AND (username = $2 OR email = $3)`
	if len(excludedUsers) > 0 {
		ids := make([]string, 0, len(excludedUsers))
		for i, usr := range excludedUsers {
			ids = append(ids, fmt.Sprintf("$%d", i+4))
			args = append(args, usr.ID)
		}
		q += fmt.Sprintf(" AND id NOT IN (%s)", strings.Join(ids, ","))
	}

	rows, err := repo.db.QueryxContext(ctx, q, args...)
	if err != nil {
		return errors.Wrap(err, "checking username uniqueness")
	}
	defer func() { _ = rows.Close() }()
	for rows.Next() {
		var uname, mail string
		if err = rows.Scan(&uname, &mail); err != nil {
			return errors.Wrap(err, "checking username uniqueness")
		}
		if username != "" && uname == username {
			return user.ErrUsernameExists
		}
		if mail == email {
			return user.ErrEmailExists
		}
	}
	return rows.Err()
}

func (repo userRepository) CreateUser(ctx context.Context, usr user.User) (user.User, error) {
	u := marshalUser(usr)
	_, err := repo.db.NamedExecContext(ctx, `
		INSERT INTO "user" (id, tenant_id, name, username, email, role, is_active, is_superuser, password_hash, created_at, updated_at, last_login)
		VALUES (:id, :tenant_id, :name, :username, :email, :role, :is_active, :is_superuser, :password_hash, :created_at, :updated_at, :last_login)`, u)
	if err != nil {
		return user.User{}, errors.Wrap(err, "creating user")
	}
	return usr, nil
}

func (repo userRepository) GetUserByID(ctx context.Context, id string) (user.User, error) {
	var u dbUser
	err := repo.db.GetContext(ctx, &u, `SELECT * FROM "user" WHERE id = $1`, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return user.User{}, user.ErrNotFound
		}
		return user.User{}, errors.Wrap(err, "getting user by id")
	}
	return u.unmarshal(), nil
}

func (repo userRepository) GetUserByUsernameOrEmail(ctx context.Context, tenantID, uname string) (user.User, error) {
	var u dbUser
	err := repo.db.GetContext(ctx, &u, `
		SELECT * FROM "user"
		WHERE (username = $2 OR email = $2)
		  AND (is_superuser OR tenant_id = $1)`, tenantID, uname)
	if err != nil {
		if err == sql.ErrNoRows {
			return user.User{}, user.ErrNotFound
		}
		return user.User{}, errors.Wrap(err, "getting user by username or email")
	}
	return u.unmarshal(), nil
}

func (repo userRepository) FilterUsers(ctx context.Context, tenantID string, filter user.QueryFilter) ([]user.User, error) {
	q := `SELECT * FROM "user" WHERE tenant_id = $1`
	args := []interface{}{tenantID}
	idx := 2

	if filter.Search != "" {
		q += fmt.Sprintf(" AND (name ILIKE $%d OR username ILIKE $%d OR email ILIKE $%d)", idx, idx, idx)
		args = append(args, "%"+filter.Search+"%")
		idx++
	}
	if filter.Role != "" {
		q += fmt.Sprintf(" AND role = $%d", idx)
		args = append(args, filter.Role)
		idx++
	}
	if filter.IsActive != nil {
		q += fmt.Sprintf(" AND is_active = $%d", idx)
		args = append(args, *filter.IsActive)
		idx++
	}
	if !filter.CreatedFrom.IsZero() {
		q += fmt.Sprintf(" AND created_at >= $%d", idx)
		args = append(args, filter.CreatedFrom.UTC())
		idx++
	}
	if !filter.CreatedTo.IsZero() {
		q += fmt.Sprintf(" AND created_at <= $%d", idx)
		args = append(args, filter.CreatedTo.UTC())
		idx++
	}
	q += " ORDER BY created_at DESC"

	var us []dbUser
	if err := repo.db.SelectContext(ctx, &us, q, args...); err != nil {
		return nil, errors.Wrap(err, "filtering users")
	}
	res := make([]user.User, 0, len(us))
	for _, u := range us {
		res = append(res, u.unmarshal())
	}
	return res, nil
}

func (repo userRepository) CountUsers(ctx context.Context, tenantID string, roles ...string) (int, error) {
	q := `SELECT COUNT(*) FROM "user" WHERE tenant_id = $1`
	args := []interface{}{tenantID}
	if len(roles) > 0 {
		ph := make([]string, 0, len(roles))
		for i, role := range roles {
			ph = append(ph, fmt.Sprintf("$%d", i+2))
			args = append(args, role)
		}
		q += fmt.Sprintf(" AND role IN (%s)", strings.Join(ph, ","))
	}
	var n int
	if err := repo.db.GetContext(ctx, &n, q, args...); err != nil {
		return 0, errors.Wrap(err, "counting users")
	}
	return n, nil
}

func (repo userRepository) UpdateUser(ctx context.Context, usr user.User, isActive *bool) (user.User, error) {
	q := `UPDATE "user" SET updated_at = $2`
	args := []interface{}{usr.ID, usr.UpdatedAt.UTC()}
	idx := 3

	set := func(col string, val interface{}) {
		q += fmt.Sprintf(", %s = $%d", col, idx)
		args = append(args, val)
		idx++
	}
	if usr.Name != "" {
		set("name", usr.Name)
	}
	if usr.Username != "" {
		set("username", usr.Username)
	}
	if usr.Email != "" {
		set("email", usr.Email)
	}
	if usr.Role != "" {
		set("role", usr.Role)
	}
	if usr.PasswordHash != nil {
		set("password_hash", usr.PasswordHash)
	}
	if isActive != nil {
		set("is_active", *isActive)
	}
	q += " WHERE id = $1"

	res, err := repo.db.ExecContext(ctx, q, args...)
	if err != nil {
		return user.User{}, errors.Wrap(err, "updating user")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return user.User{}, user.ErrNotFound
	}
	return repo.GetUserByID(ctx, usr.ID)
}

func (repo userRepository) UpdateLastLogin(ctx context.Context, id string, t time.Time) error {
	_, err := repo.db.ExecContext(ctx, `UPDATE "user" SET last_login = $2 WHERE id = $1`, id, t.UTC())
	return errors.Wrap(err, "updating last login")
}

func (repo userRepository) DeleteUsersByID(ctx context.Context, tenantID string, ids ...string) error {
	if len(ids) == 0 {
		return nil
	}
	q, args, err := sqlx.In(`DELETE FROM "user" WHERE tenant_id = ? AND id IN (?)`, tenantID, ids)
	if err != nil {
		return errors.Wrap(err, "deleting users")
	}
	_, err = repo.db.ExecContext(ctx, repo.db.Rebind(q), args...)
	return errors.Wrap(err, "deleting users")
}
