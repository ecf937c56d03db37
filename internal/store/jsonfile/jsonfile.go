// Package jsonfile persists the catalog and ledger as two indented JSON documents.
//
// Every Save rewrites both documents in full. Each one is written to a temp file
// in the same directory, synced and renamed over the previous version, ledger
// first. If the catalog write fails, the previous ledger is put back before Save
// returns. Both documents carry the snapshot revision, and every movement carries
// the revision that appended it. A crash between the two renames leaves the
// ledger one revision ahead. Load detects that and rolls the newer movements
// forward onto the catalog.
package jsonfile

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/abgdnv/stockroom/internal/store"
)

const (
	ProductsFile  = "products.json"
	MovementsFile = "stock_movements.json"

	backupStampLayout = "20060102_150405"
	maxBackupAttempts = 100
)

var (
	_ store.Persister = (*Persister)(nil)
	_ store.Restorer  = (*Persister)(nil)
)

type productsDocument struct {
	Revision int64           `json:"revision"`
	Products []store.Product `json:"products"`
}

type movementsDocument struct {
	Revision  int64            `json:"revision"`
	Movements []store.Movement `json:"movements"`
}

// Persister implements store.Persister on the local filesystem.
type Persister struct {
	dir       string
	backupDir string
	logger    *slog.Logger
}

// New creates the data and backup directories if needed.
func New(dir, backupDir string, logger *slog.Logger) (*Persister, error) {
	for _, d := range []string{dir, backupDir} {
		if err := os.MkdirAll(d, 0o750); err != nil {
			return nil, fmt.Errorf("create directory %s: %w", d, err)
		}
	}
	return &Persister{
		dir:       dir,
		backupDir: backupDir,
		logger:    logger.With("component", "jsonfile"),
	}, nil
}

// Load reads both documents. Missing documents are treated as empty.
func (p *Persister) Load(ctx context.Context) (store.Snapshot, error) {
	return p.load(ctx, filepath.Join(p.dir, ProductsFile), filepath.Join(p.dir, MovementsFile))
}

func (p *Persister) load(ctx context.Context, productsPath, movementsPath string) (store.Snapshot, error) {
	var products productsDocument
	if err := readJSON(productsPath, &products); err != nil {
		return store.Snapshot{}, err
	}
	var movements movementsDocument
	if err := readJSON(movementsPath, &movements); err != nil {
		return store.Snapshot{}, err
	}

	snapshot := store.Snapshot{
		Revision:  max(products.Revision, movements.Revision),
		Products:  products.Products,
		Movements: movements.Movements,
	}
	switch {
	case movements.Revision > products.Revision:
		p.logger.WarnContext(ctx, "Ledger is ahead of catalog, rolling movements forward",
			"catalog_revision", products.Revision,
			"ledger_revision", movements.Revision)
		snapshot.Products = rollForward(products.Products, movements.Movements, products.Revision)
	case products.Revision > movements.Revision:
		p.logger.WarnContext(ctx, "Catalog is ahead of ledger",
			"catalog_revision", products.Revision,
			"ledger_revision", movements.Revision)
	}
	return snapshot, nil
}

// Save writes the ledger document and then the catalog document. When the
// catalog cannot be written the previous ledger is restored, so a failed Save
// leaves both documents at the prior revision.
func (p *Persister) Save(ctx context.Context, snapshot store.Snapshot) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	movements := movementsDocument{Revision: snapshot.Revision, Movements: snapshot.Movements}
	if movements.Movements == nil {
		movements.Movements = []store.Movement{}
	}
	products := productsDocument{Revision: snapshot.Revision, Products: snapshot.Products}
	if products.Products == nil {
		products.Products = []store.Product{}
	}

	ledgerPath := filepath.Join(p.dir, MovementsFile)
	previous, err := os.ReadFile(ledgerPath)
	hadLedger := err == nil
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("read %s: %w", ledgerPath, err)
	}

	if err := writeJSON(ledgerPath, movements); err != nil {
		return err
	}
	if err := writeJSON(filepath.Join(p.dir, ProductsFile), products); err != nil {
		var undo error
		if hadLedger {
			undo = writeFile(ledgerPath, previous)
		} else {
			undo = os.Remove(ledgerPath)
		}
		if undo != nil {
			p.logger.ErrorContext(ctx, "Failed to roll back ledger", "revision", snapshot.Revision, "error", undo)
			return errors.Join(err, fmt.Errorf("roll back %s: %w", ledgerPath, undo))
		}
		return err
	}
	return nil
}

// Restore replaces both documents with a backup written by Backup. path may
// name either file of the pair; a missing partner is treated as empty.
func (p *Persister) Restore(ctx context.Context, path string) error {
	var prefix string
	switch {
	case strings.HasSuffix(path, ProductsFile):
		prefix = strings.TrimSuffix(path, ProductsFile)
	case strings.HasSuffix(path, MovementsFile):
		prefix = strings.TrimSuffix(path, MovementsFile)
	default:
		return fmt.Errorf("%s is not a %s or %s backup", path, ProductsFile, MovementsFile)
	}
	if _, err := os.Stat(path); err != nil {
		return fmt.Errorf("open backup %s: %w", path, err)
	}

	snapshot, err := p.load(ctx, prefix+ProductsFile, prefix+MovementsFile)
	if err != nil {
		return err
	}
	return p.Save(ctx, snapshot)
}

// Backup copies both documents to <backupDir>/<stamp>_<name>.
// Existing backups are never replaced; a numeric suffix is added on collision.
func (p *Persister) Backup(ctx context.Context, at time.Time) ([]string, error) {
	stamp := at.Format(backupStampLayout)
	created := make([]string, 0, 2)
	for _, name := range []string{ProductsFile, MovementsFile} {
		if err := ctx.Err(); err != nil {
			return created, err
		}
		src := filepath.Join(p.dir, name)
		if _, err := os.Stat(src); errors.Is(err, fs.ErrNotExist) {
			p.logger.DebugContext(ctx, "Nothing to back up", "file", src)
			continue
		}
		dst, err := copyExclusive(src, p.backupDir, stamp, name)
		if err != nil {
			return created, err
		}
		created = append(created, dst)
	}
	return created, nil
}

// rollForward applies the movements appended after revision since to the catalog.
func rollForward(products []store.Product, movements []store.Movement, since int64) []store.Product {
	index := make(map[string]int, len(products))
	for i, p := range products {
		index[p.ID] = i
	}
	for _, m := range movements {
		if m.Revision <= since {
			continue
		}
		if i, ok := index[m.ProductID]; ok {
			products[i].StockQuantity += m.Delta()
		}
	}
	return products
}

func readJSON(path string, v any) error {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}

// writeJSON replaces path atomically with the indented encoding of v.
func writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "    ")
	if err != nil {
		return fmt.Errorf("encode %s: %w", path, err)
	}
	return writeFile(path, data)
}

// writeFile replaces path atomically with data.
func writeFile(path string, data []byte) (err error) {
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file for %s: %w", path, err)
	}
	defer func() {
		if err != nil {
			_ = os.Remove(tmp.Name())
		}
	}()

	if _, err = tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write %s: %w", tmp.Name(), err)
	}
	if err = tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("sync %s: %w", tmp.Name(), err)
	}
	if err = tmp.Close(); err != nil {
		return fmt.Errorf("close %s: %w", tmp.Name(), err)
	}
	if err = os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("replace %s: %w", path, err)
	}
	syncDir(filepath.Dir(path))
	return nil
}

// syncDir flushes the directory entry after a rename. Not every platform supports it.
func syncDir(dir string) {
	d, err := os.Open(dir)
	if err != nil {
		return
	}
	_ = d.Sync()
	_ = d.Close()
}

// copyExclusive copies src into dir under a name no other file uses yet.
func copyExclusive(src, dir, stamp, name string) (string, error) {
	in, err := os.Open(src)
	if err != nil {
		return "", fmt.Errorf("open %s: %w", src, err)
	}
	defer in.Close()

	for attempt := 0; attempt < maxBackupAttempts; attempt++ {
		dst := filepath.Join(dir, fmt.Sprintf("%s_%s", stamp, name))
		if attempt > 0 {
			dst = filepath.Join(dir, fmt.Sprintf("%s_%d_%s", stamp, attempt, name))
		}
		out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o640)
		if errors.Is(err, fs.ErrExist) {
			continue
		}
		if err != nil {
			return "", fmt.Errorf("create backup %s: %w", dst, err)
		}
		if _, err := io.Copy(out, in); err != nil {
			_ = out.Close()
			return "", fmt.Errorf("copy %s to %s: %w", src, dst, err)
		}
		if err := out.Close(); err != nil {
			return "", fmt.Errorf("close backup %s: %w", dst, err)
		}
		return dst, nil
	}
	return "", fmt.Errorf("no free backup name for %s after %d attempts", name, maxBackupAttempts)
}
