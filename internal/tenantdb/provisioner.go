// Package tenantdb creates tenant-scoped databases and principals on the
// shared database server.
package tenantdb

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"

	_ "github.com/go-sql-driver/mysql"
	"go.uber.org/zap"
)

// identifierPattern is the charset of internally generated database names and
// principals. Nothing outside it ever reaches an identifier position.
var identifierPattern = regexp.MustCompile(`^[a-z0-9_]+$`)

// Options configure the administrative connection. The admin principal is
// distinct from the per-tenant principals it creates.
type Options struct {
	Host          string
	Port          int
	AdminUser     string
	AdminPassword string
}

// DSN renders the driver connection string. interpolateParams lets account
// management statements take placeholders for the principal and credential.
func (o Options) DSN() string {
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/?interpolateParams=true&timeout=10s",
		o.AdminUser, o.AdminPassword, o.Host, o.Port)
}

type conn interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// Provisioner implements domain.DatabaseProvisioner.
type Provisioner struct {
	db     conn
	logger *zap.Logger
}

func New(opts Options, logger *zap.Logger) (*Provisioner, error) {
	db, err := sql.Open("mysql", opts.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to open tenant database server connection: %w", err)
	}
	return &Provisioner{db: db, logger: logger}, nil
}

func (p *Provisioner) Exists(ctx context.Context, name string) (bool, error) {
	var schema string
	err := p.db.QueryRowContext(ctx,
		`SELECT SCHEMA_NAME FROM INFORMATION_SCHEMA.SCHEMATA WHERE SCHEMA_NAME = ?`,
		name,
	).Scan(&schema)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to check database %s: %w", name, err)
	}
	return true, nil
}

// Create provisions the database, its principal and a grant scoped to exactly
// that one database. Identifiers are validated against the generated charset;
// the principal name and credential go through placeholders.
func (p *Provisioner) Create(ctx context.Context, name, user, password string) error {
	if err := validateIdentifier(name); err != nil {
		return fmt.Errorf("database name: %w", err)
	}
	if err := validateIdentifier(user); err != nil {
		return fmt.Errorf("database user: %w", err)
	}

	statements := []struct {
		query string
		args  []any
	}{
		{fmt.Sprintf("CREATE DATABASE IF NOT EXISTS `%s`", name), nil},
		{"CREATE USER IF NOT EXISTS ?@'%' IDENTIFIED BY ?", []any{user, password}},
		{fmt.Sprintf("GRANT ALL PRIVILEGES ON `%s`.* TO ?@'%%'", name), []any{user}},
		{"FLUSH PRIVILEGES", nil},
	}

	for _, stmt := range statements {
		if _, err := p.db.ExecContext(ctx, stmt.query, stmt.args...); err != nil {
			return fmt.Errorf("failed to provision database %s: %w", name, err)
		}
	}

	p.logger.Info("provisioned tenant database",
		zap.String("database", name),
		zap.String("user", user))
	return nil
}

func validateIdentifier(s string) error {
	if !identifierPattern.MatchString(s) {
		return fmt.Errorf("invalid identifier %q", s)
	}
	return nil
}
