package db

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"toolkiosk/models"
)

// newTestRepo opens a per-test in-memory sqlite database and runs the full
// migration, partial indexes included (sqlite supports them).
func newTestRepo(t *testing.T) *Repo {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	require.NoError(t, Migrate(conn))
	return NewRepo(conn)
}

func seedUser(t *testing.T, r *Repo, id, status string) {
	t.Helper()
	card := "card_" + id
	require.NoError(t, r.DB.Create(&models.User{
		ID: id, CardID: &card, FirstName: "Test", LastName: "User", Role: "student", Status: status,
	}).Error)
}

func seedModel(t *testing.T, r *Repo, id string, maxQty, maxHours *int) {
	t.Helper()
	require.NoError(t, r.DB.Create(&models.ToolModel{
		ID: id, Name: "Model " + id, MaxQtyPerUser: maxQty, MaxLoanHours: maxHours,
	}).Error)
}

func seedItem(t *testing.T, r *Repo, id, modelID, slot string) {
	t.Helper()
	require.NoError(t, r.DB.Create(&models.ToolItem{
		ID: id, ToolModelID: modelID, ToolTagID: "tag_" + id, SlotID: slot, Condition: "ok", IsActive: true,
	}).Error)
}

func intptr(n int) *int { return &n }
