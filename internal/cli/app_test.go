package cli

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/pterm/pterm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mmynk/blocsheet/internal/models"
	"github.com/mmynk/blocsheet/internal/service"
	"github.com/mmynk/blocsheet/internal/storage/sqlite"
)

const structureYAML = `association: asoc-1
buildings:
  - id: b1
    name: Bloc A
    stairwells:
      - id: s1
        name: Scara 1
        units:
          - {id: u1, number: "1", owner: Popescu, persons: 2}
          - {id: u2, number: "2", owner: Ionescu, persons: 3}
`

func setupEnv(t *testing.T) (dir, dbPath string) {
	t.Helper()
	pterm.DisableStyling()
	t.Cleanup(pterm.EnableStyling)

	dir = t.TempDir()
	dbPath = filepath.Join(dir, "blocsheet.db")
	t.Setenv("BLOCSHEET_STORE", "sqlite")
	t.Setenv("DB_PATH", dbPath)
	t.Setenv("LOG_LEVEL", "error")
	t.Setenv("STRUCTURE_PATH", "")
	require.NoError(t, os.WriteFile(filepath.Join(dir, "structure.yaml"), []byte(structureYAML), 0o644))
	return dir, dbPath
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	err := NewApp(&out).Run(context.Background(), args...)
	return out.String(), err
}

func mustRun(t *testing.T, args ...string) string {
	t.Helper()
	out, err := run(t, args...)
	require.NoError(t, err, out)
	return out
}

func sheetByStatus(t *testing.T, dbPath string, status models.SheetStatus) *models.Sheet {
	t.Helper()
	store, err := sqlite.New(dbPath)
	require.NoError(t, err)
	defer store.Close()
	sheet, err := store.GetSheetByStatus(context.Background(), "asoc-1", status)
	require.NoError(t, err)
	return sheet
}

func TestSheetWorkflow(t *testing.T) {
	dir, dbPath := setupEnv(t)

	out := mustRun(t, "init", "-a", "asoc-1", "-p", "2025-03", "-s", filepath.Join(dir, "structure.yaml"))
	assert.Contains(t, out, "period 2025-03")
	sheet := sheetByStatus(t, dbPath, models.SheetStatusInProgress)

	mustRun(t, "expense", "--sheet", sheet.ID, "--name", "Curatenie", "--amount", "100")

	xlsxPath := filepath.Join(dir, "table.xlsx")
	out = mustRun(t, "table", "--sheet", sheet.ID, "--xlsx", xlsxPath)
	assert.Contains(t, out, "Popescu")
	assert.Contains(t, out, "50.00")
	assert.Contains(t, out, "100.00")
	assert.FileExists(t, xlsxPath)

	out = mustRun(t, "validate", "--sheet", sheet.ID)
	assert.Contains(t, out, "can be published")

	out = mustRun(t, "publish", "--sheet", sheet.ID, "-o", "admin", "--penalty-rate", "0.01")
	assert.Contains(t, out, "published")

	published := sheetByStatus(t, dbPath, models.SheetStatusPublished)
	assert.Equal(t, sheet.ID, published.ID)
	assert.Equal(t, "admin", published.PublishedBy)
	assert.Equal(t, 0.01, published.ConfigSnapshot.Penalty.Rate)

	mustRun(t, "pay", "--sheet", sheet.ID, "--unit", "u1", "--amount", "50", "-o", "casier")
	out = mustRun(t, "balance", "--sheet", sheet.ID, "--unit", "u1")
	assert.Contains(t, out, "Remaining")
	assert.Contains(t, out, "0.00")

	out = mustRun(t, "sheets", "-a", "asoc-1")
	assert.Contains(t, out, string(models.SheetStatusPublished))
	assert.Contains(t, out, string(models.SheetStatusInProgress))
	assert.Contains(t, out, "2025-04")
}

func TestExpenseCommand_ConsumptionInvoice(t *testing.T) {
	dir, dbPath := setupEnv(t)
	mustRun(t, "init", "-a", "asoc-1", "-p", "2025-03", "-s", filepath.Join(dir, "structure.yaml"))
	sheet := sheetByStatus(t, dbPath, models.SheetStatusInProgress)

	mustRun(t, "expense", "--sheet", sheet.ID, "--name", "Apa rece", "--policy", "consumption", "--amount", "60", "--unit-price", "2")
	mustRun(t, "expense", "--sheet", sheet.ID, "--name", "Curatenie", "--amount", "100")

	sheet = sheetByStatus(t, dbPath, models.SheetStatusInProgress)
	require.Len(t, sheet.Expenses, 2)
	water, cleaning := sheet.Expenses[0], sheet.Expenses[1]
	assert.Equal(t, 60.0, water.InvoicedAmount)
	assert.Zero(t, water.Amount)
	assert.Equal(t, 100.0, cleaning.Amount)
	assert.Zero(t, cleaning.InvoicedAmount)
}

func TestCommandErrors(t *testing.T) {
	dir, dbPath := setupEnv(t)
	mustRun(t, "init", "-a", "asoc-1", "-p", "2025-03", "-s", filepath.Join(dir, "structure.yaml"))
	sheet := sheetByStatus(t, dbPath, models.SheetStatusInProgress)

	t.Run("no structure source", func(t *testing.T) {
		_, err := run(t, "init", "-a", "asoc-2", "-p", "2025-03")
		assert.ErrorIs(t, err, service.ErrInvalidInput)
	})

	t.Run("second in-progress sheet", func(t *testing.T) {
		_, err := run(t, "init", "-a", "asoc-1", "-p", "2025-04", "-s", filepath.Join(dir, "structure.yaml"))
		assert.ErrorIs(t, err, service.ErrStateViolation)
	})

	t.Run("payment on in-progress sheet", func(t *testing.T) {
		_, err := run(t, "pay", "--sheet", sheet.ID, "--unit", "u1", "--amount", "10")
		assert.ErrorIs(t, err, service.ErrStateViolation)
	})

	t.Run("publish blocked by validation", func(t *testing.T) {
		mustRun(t, "expense", "--sheet", sheet.ID, "--name", "Apa rece", "--policy", "consumption", "--unit-price", "2")
		out, err := run(t, "publish", "--sheet", sheet.ID)
		var vErr *service.ValidationError
		require.ErrorAs(t, err, &vErr)
		assert.Contains(t, out, "error")
	})

	t.Run("missing flag", func(t *testing.T) {
		_, err := run(t, "table")
		assert.Error(t, err)
	})

	t.Run("unsupported structure file", func(t *testing.T) {
		_, err := run(t, "init", "-a", "asoc-3", "-p", "2025-03", "-s", filepath.Join(dir, "structure.csv"))
		assert.Error(t, err)
	})
}
