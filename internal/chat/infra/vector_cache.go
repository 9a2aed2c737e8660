package infra

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/boddenberg/vendas-bot-go/internal/chat/domain"

	_ "modernc.org/sqlite"
)

// ============================================================
// Cache de vetores dos padrões
// ============================================================
//
// Duas implementações de port.VectorCache:
//   - FileVectorCache: um arquivo JSON, reescrito via temp + rename
//   - SQLiteVectorCache: uma linha por hash de corpus (modernc, sem cgo)
//
// Em ambas, Load devolve (nil, nil) quando não há nada salvo. Quem decide
// se o conteúdo serve (hash, tamanho, dimensão) é o classificador.

// FileVectorCache guarda o VectorSet em um único arquivo JSON.
type FileVectorCache struct {
	path string
}

// NewFileVectorCache cria o cache no caminho informado.
func NewFileVectorCache(path string) *FileVectorCache {
	return &FileVectorCache{path: path}
}

// Load lê o arquivo. key não filtra: o arquivo guarda só o último conjunto.
func (c *FileVectorCache) Load(ctx context.Context, key string) (*domain.VectorSet, error) {
	_, span := tracer.Start(ctx, "FileVectorCache.Load")
	defer span.End()

	raw, err := os.ReadFile(c.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read vector cache: %w", err)
	}
	var set domain.VectorSet
	if err := json.Unmarshal(raw, &set); err != nil {
		return nil, fmt.Errorf("corrupt vector cache %s: %w", c.path, err)
	}
	return &set, nil
}

// Save grava em um arquivo temporário no mesmo diretório e renomeia.
// Um leitor concorrente vê o arquivo antigo ou o novo, nunca um parcial.
func (c *FileVectorCache) Save(ctx context.Context, set *domain.VectorSet) error {
	_, span := tracer.Start(ctx, "FileVectorCache.Save")
	defer span.End()

	raw, err := json.Marshal(set)
	if err != nil {
		return fmt.Errorf("marshal vector set: %w", err)
	}
	dir := filepath.Dir(c.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create cache dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".vectors-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(raw); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmpName, c.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("rename vector cache: %w", err)
	}
	return nil
}

// SQLiteVectorCache guarda os conjuntos em uma tabela SQLite.
type SQLiteVectorCache struct {
	db *sql.DB
}

// NewSQLiteVectorCache abre (ou cria) o banco em path.
func NewSQLiteVectorCache(path string) (*SQLiteVectorCache, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create cache dir: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// Um único writer evita SQLITE_BUSY entre Save concorrentes.
	db.SetMaxOpenConns(1)

	const schema = `
	CREATE TABLE IF NOT EXISTS pattern_vectors (
		corpus_key TEXT PRIMARY KEY,
		model      TEXT NOT NULL,
		payload    BLOB NOT NULL,
		created_at TEXT NOT NULL
	);`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return &SQLiteVectorCache{db: db}, nil
}

// Load busca o conjunto do hash key.
func (c *SQLiteVectorCache) Load(ctx context.Context, key string) (*domain.VectorSet, error) {
	ctx, span := tracer.Start(ctx, "SQLiteVectorCache.Load")
	defer span.End()

	var (
		model   string
		payload []byte
		created string
	)
	err := c.db.QueryRowContext(ctx,
		`SELECT model, payload, created_at FROM pattern_vectors WHERE corpus_key = ?`, key,
	).Scan(&model, &payload, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query vector cache: %w", err)
	}

	var vectors []domain.PatternVector
	if err := json.Unmarshal(payload, &vectors); err != nil {
		return nil, fmt.Errorf("corrupt vector payload for %s: %w", key, err)
	}
	at, _ := time.Parse(time.RFC3339Nano, created)
	return &domain.VectorSet{Key: key, Model: model, Vectors: vectors, CreatedAt: at}, nil
}

// Save substitui o conjunto do mesmo hash e descarta os antigos.
func (c *SQLiteVectorCache) Save(ctx context.Context, set *domain.VectorSet) error {
	ctx, span := tracer.Start(ctx, "SQLiteVectorCache.Save")
	defer span.End()

	payload, err := json.Marshal(set.Vectors)
	if err != nil {
		return fmt.Errorf("marshal vectors: %w", err)
	}

	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM pattern_vectors WHERE corpus_key <> ?`, set.Key); err != nil {
		return fmt.Errorf("prune vector cache: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO pattern_vectors (corpus_key, model, payload, created_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT(corpus_key) DO UPDATE SET model = excluded.model, payload = excluded.payload, created_at = excluded.created_at`,
		set.Key, set.Model, payload, set.CreatedAt.UTC().Format(time.RFC3339Nano),
	); err != nil {
		return fmt.Errorf("upsert vector cache: %w", err)
	}
	return tx.Commit()
}

// Close fecha o banco.
func (c *SQLiteVectorCache) Close() error {
	return c.db.Close()
}
