package pg

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// MigrationRunner 执行向上迁移。
// 目录中形如 0001_init_up.sql 的文件按数字前缀排序，每个文件一个事务，
// 已应用版本记录在 schema_migrations 表。
type MigrationRunner struct {
	Dir string
}

type migrationFile struct {
	Version int64
	Path    string
}

// Up 应用所有未执行的迁移
func (m MigrationRunner) Up(ctx context.Context, db *pgxpool.Pool) error {
	if m.Dir == "" {
		return errors.New("migrations dir is empty")
	}
	if err := m.ensureTable(ctx, db); err != nil {
		return err
	}
	applied, err := m.appliedVersions(ctx, db)
	if err != nil {
		return err
	}

	fsys := os.DirFS(m.Dir)
	ups, err := discoverUpMigrations(fsys)
	if err != nil {
		return err
	}

	for _, mf := range ups {
		if applied[mf.Version] {
			continue
		}
		content, err := fs.ReadFile(fsys, mf.Path)
		if err != nil {
			return err
		}
		if err := m.applyOne(ctx, db, mf.Version, string(content)); err != nil {
			return err
		}
	}
	return nil
}

func (m MigrationRunner) ensureTable(ctx context.Context, db *pgxpool.Pool) error {
	_, err := db.Exec(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (
        version BIGINT PRIMARY KEY,
        applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
    )`)
	return err
}

func (m MigrationRunner) appliedVersions(ctx context.Context, db *pgxpool.Pool) (map[int64]bool, error) {
	rows, err := db.Query(ctx, `SELECT version FROM schema_migrations`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	res := make(map[int64]bool)
	for rows.Next() {
		var v int64
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		res[v] = true
	}
	return res, rows.Err()
}

// applyOne 在单个事务内执行迁移并登记版本
func (m MigrationRunner) applyOne(ctx context.Context, db *pgxpool.Pool, version int64, sql string) error {
	tx, err := db.Begin(ctx)
	if err != nil {
		return err
	}
	_, execErr := tx.Exec(ctx, sql)
	if execErr == nil {
		_, execErr = tx.Exec(ctx, `INSERT INTO schema_migrations(version, applied_at) VALUES($1,$2)`, version, time.Now())
	}
	if execErr != nil {
		_ = tx.Rollback(ctx)
		return execErr
	}
	return tx.Commit(ctx)
}

// discoverUpMigrations 扫描 *_up.sql，数字前缀为版本号，升序返回
func discoverUpMigrations(fsys fs.FS) ([]migrationFile, error) {
	var files []migrationFile
	err := fs.WalkDir(fsys, ".", func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		name := filepath.Base(path)
		if !strings.HasSuffix(name, "_up.sql") {
			return nil
		}
		parts := strings.SplitN(name, "_", 2)
		ver, err := strconv.ParseInt(parts[0], 10, 64)
		if err != nil {
			return nil
		}
		files = append(files, migrationFile{Version: ver, Path: path})
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(files, func(i, j int) bool { return files[i].Version < files[j].Version })
	return files, nil
}
