package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/abgdnv/stockroom/internal/service"
	"github.com/abgdnv/stockroom/internal/store"
	"github.com/abgdnv/stockroom/internal/store/jsonfile"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	content := fmt.Sprintf("storage:\n  dir: %s\nbackup:\n  dir: %s\nlog:\n  level: error\n",
		filepath.Join(dir, "data"), filepath.Join(dir, "backups"))
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func Test_ReportCmd(t *testing.T) {
	testCases := []struct {
		name    string
		kind    string
		wantErr bool
		check   func(t *testing.T, out string)
	}{
		{
			name: "summary of an empty store",
			kind: reportSummary,
			check: func(t *testing.T, out string) {
				var summary map[string]any
				require.NoError(t, json.Unmarshal([]byte(out), &summary))
				assert.EqualValues(t, 0, summary["product_count"])
			},
		},
		{
			name: "low stock of an empty store",
			kind: reportLow,
			check: func(t *testing.T, out string) {
				var products []service.ProductDto
				require.NoError(t, json.Unmarshal([]byte(out), &products))
				assert.Empty(t, products)
			},
		},
		{name: "unknown report", kind: "weekly", wantErr: true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			// given
			path := writeConfig(t)

			// when
			out, err := execute(t, "report", "--config", path, "--kind", tc.kind)

			// then
			if tc.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			tc.check(t, out)
		})
	}
}

func Test_BackupCmd(t *testing.T) {
	// given
	path := writeConfig(t)

	// when
	out, err := execute(t, "backup", "--config", path)

	// then
	require.NoError(t, err)
	var backup service.BackupDto
	require.NoError(t, json.Unmarshal([]byte(out), &backup))
	for _, f := range backup.Files {
		assert.FileExists(t, f)
	}
}

func Test_RestoreCmd(t *testing.T) {
	// given
	path := writeConfig(t)
	root := filepath.Dir(path)
	p, err := jsonfile.New(filepath.Join(root, "data"), filepath.Join(root, "backups"), slog.New(slog.NewJSONHandler(io.Discard, nil)))
	require.NoError(t, err)
	require.NoError(t, p.Save(context.Background(), store.Snapshot{
		Revision: 1,
		Products: []store.Product{{
			ID: "P1", Name: "Tee", Category: "Shirts", Gender: "Men", Sizes: []string{"M"}, Color: "Red",
			PurchasePrice: decimal.NewFromInt(4), Price: decimal.RequireFromString("9.50"), StockQuantity: 2,
		}},
	}))
	out, err := execute(t, "backup", "--config", path)
	require.NoError(t, err)
	var backup service.BackupDto
	require.NoError(t, json.Unmarshal([]byte(out), &backup))
	require.NotEmpty(t, backup.Files)
	require.NoError(t, p.Save(context.Background(), store.Snapshot{Revision: 2}))

	// when
	out, err = execute(t, "restore", "--config", path, "--from", backup.Files[0])

	// then
	require.NoError(t, err)
	var result restoreResult
	require.NoError(t, json.Unmarshal([]byte(out), &result))
	assert.Equal(t, restoreResult{From: backup.Files[0], Revision: 1, Products: 1}, result)

	out, err = execute(t, "report", "--config", path)
	require.NoError(t, err)
	var summary map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &summary))
	assert.EqualValues(t, 1, summary["product_count"])
	assert.Equal(t, "8", summary["inventory_value"])
}

func Test_RestoreCmd_Errors(t *testing.T) {
	testCases := []struct {
		name string
		args []string
	}{
		{name: "missing from flag", args: []string{"restore"}},
		{name: "backup does not exist", args: []string{"restore", "--from", "nope_products.json"}},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			// given
			path := writeConfig(t)

			// when
			_, err := execute(t, append(tc.args, "--config", path)...)

			// then
			assert.Error(t, err)
		})
	}
}
