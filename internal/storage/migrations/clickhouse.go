package migrations

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	chstore "larpx402/internal/storage/clickhouse"
)

// RunClickhouseMigrations creates the scan-history database if needed and
// applies every embedded migration. ClickHouse files use IF NOT EXISTS and
// are replayed on each run. It returns a connection to the database and the
// names of the files applied.
func RunClickhouseMigrations(ctx context.Context, dsn string) (*chstore.Conn, []string, error) {
	dbName, err := databaseFromDSN(dsn)
	if err != nil {
		return nil, nil, err
	}
	all, err := load(ClickhouseFS, "clickhouse")
	if err != nil {
		return nil, nil, err
	}

	adminConn, err := chstore.NewConnWithDatabase(ctx, dsn, "")
	if err != nil {
		return nil, nil, fmt.Errorf("connect clickhouse admin: %w", err)
	}
	if err := adminConn.Exec(ctx, fmt.Sprintf("CREATE DATABASE IF NOT EXISTS %s", dbName)); err != nil {
		adminConn.Close()
		return nil, nil, fmt.Errorf("create database %s: %w", dbName, err)
	}
	if err := adminConn.Close(); err != nil {
		return nil, nil, fmt.Errorf("close admin connection: %w", err)
	}

	conn, err := chstore.NewConnWithDatabase(ctx, dsn, dbName)
	if err != nil {
		return nil, nil, fmt.Errorf("connect clickhouse db: %w", err)
	}

	var applied []string
	for _, m := range all {
		stmts, err := splitStatements(m.SQL)
		if err != nil {
			conn.Close()
			return nil, applied, fmt.Errorf("migration %s: %w", m.Name, err)
		}
		// The driver runs one statement per Exec
		for _, stmt := range stmts {
			if err := conn.Exec(ctx, stmt); err != nil {
				conn.Close()
				return nil, applied, fmt.Errorf("apply migration %s: %w", m.Name, err)
			}
		}
		applied = append(applied, m.Name)
	}
	return conn, applied, nil
}

// splitStatements drops -- comment lines and splits on semicolons.
// A semicolon inside a quoted literal is rejected rather than split.
func splitStatements(sql string) ([]string, error) {
	if err := checkQuotedSemicolons(sql); err != nil {
		return nil, err
	}

	var kept []string
	for _, line := range strings.Split(sql, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || strings.HasPrefix(trimmed, "--") {
			continue
		}
		kept = append(kept, line)
	}

	var stmts []string
	for _, part := range strings.Split(strings.Join(kept, "\n"), ";") {
		if stmt := strings.TrimSpace(part); stmt != "" {
			stmts = append(stmts, stmt)
		}
	}
	return stmts, nil
}

func checkQuotedSemicolons(sql string) error {
	quoted := false
	for i := 0; i < len(sql); i++ {
		switch sql[i] {
		case '\'':
			if quoted && i+1 < len(sql) && sql[i+1] == '\'' {
				i++
				continue
			}
			quoted = !quoted
		case ';':
			if quoted {
				return fmt.Errorf("semicolon inside string literal at offset %d", i)
			}
		}
	}
	return nil
}

func databaseFromDSN(dsn string) (string, error) {
	u, err := url.Parse(dsn)
	if err != nil {
		return "", fmt.Errorf("parse clickhouse dsn: %w", err)
	}
	db := strings.TrimPrefix(u.Path, "/")
	if db == "" {
		return "", fmt.Errorf("clickhouse dsn missing database")
	}
	return db, nil
}
