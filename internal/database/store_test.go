package database

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"whatsapp-blaster/internal/campaign"
	"whatsapp-blaster/internal/config"
	"whatsapp-blaster/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
	"gorm.io/gorm"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := OpenSQLite(filepath.Join(t.TempDir(), "blaster.db"))
	require.NoError(t, err)
	require.NoError(t, AutoMigrate(db))
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return db
}

func seededStore(t *testing.T) *Store {
	t.Helper()
	store := NewStore(newTestDB(t), nil)
	_, err := store.Seed(context.Background(), &Workbook{
		Contacts: []WorkbookContact{
			{Phone: "+60 12-345 6789", MsgCode: "1", DocCode: "D1", Status: "PENDING", Fields: map[string]string{"Name": "Ali"}},
			{Phone: "60198765432.0", MsgCode: "2.0", Status: "2"},
			{Phone: "60111111111", MsgCode: "1", Status: "SENT"},
			{Phone: "", MsgCode: "1"},
		},
		Messages:     map[string]string{"1": "Hi {name}", "2": "[Hello|Hey] there"},
		Documents:    map[string][]string{"D1": {"b.pdf", "a.pdf"}},
		Media:        map[string][]string{"M1": {"c.jpg"}},
		Placeholders: map[string]string{"name": "Name"},
	})
	require.NoError(t, err)
	return store
}

func TestStoreSource(t *testing.T) {
	store := seededStore(t)
	ctx := context.Background()

	contacts, err := store.Contacts(ctx)
	require.NoError(t, err)
	require.Len(t, contacts, 3)

	assert.Equal(t, campaign.Contact{
		Phone: "60123456789", MsgCode: "1", DocCode: "D1", MediaCode: "0",
		Fields: map[string]string{"Name": "Ali"}, Status: campaign.StatusPending,
	}, contacts[0])
	assert.Equal(t, "60198765432", contacts[1].Phone)
	assert.Equal(t, "2", contacts[1].MsgCode)
	assert.Equal(t, campaign.StatusRetry, contacts[1].Status)
	assert.Equal(t, campaign.StatusSent, contacts[2].Status)

	messages, err := store.MessageCatalog(ctx)
	require.NoError(t, err)
	assert.Equal(t, "Hi+%7Bname%7D", messages["1"])

	texts, err := store.MessageTexts(ctx)
	require.NoError(t, err)
	assert.Equal(t, "[Hello|Hey] there", texts["2"])

	docs, err := store.AttachmentCatalog(ctx, campaign.KindDocument)
	require.NoError(t, err)
	assert.Equal(t, map[string][]string{"D1": {"b.pdf", "a.pdf"}}, docs)

	media, err := store.AttachmentCatalog(ctx, campaign.KindMedia)
	require.NoError(t, err)
	assert.Equal(t, map[string][]string{"M1": {"c.jpg"}}, media)

	fields, err := store.FieldMap(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"name": "Name"}, fields)
}

func TestStoreApplyStatuses(t *testing.T) {
	store := seededStore(t)
	ctx := context.Background()

	n, err := store.ApplyStatuses(ctx, map[string]campaign.Status{
		"60123456789": campaign.StatusSent,
		"60198765432": campaign.StatusInvalid,
		"60000000000": campaign.StatusSent,
	})
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	counts, err := store.StatusCounts(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[string]int64{"SENT": 2, "INVALID": 1}, counts)
}

func TestStoreApplyStatusesStructural(t *testing.T) {
	db, err := OpenSQLite(filepath.Join(t.TempDir(), "broken.db"))
	require.NoError(t, err)
	require.NoError(t, db.Exec("CREATE TABLE contacts (phone TEXT PRIMARY KEY)").Error)

	_, err = NewStore(db, nil).ApplyStatuses(context.Background(), map[string]campaign.Status{"1": campaign.StatusSent})
	require.ErrorIs(t, err, campaign.ErrStructural)
}

func TestStoreLock(t *testing.T) {
	store := NewStore(newTestDB(t), nil)
	other := NewStore(store.DB(), nil)
	ctx := context.Background()
	at := time.Now().Add(-time.Minute).Truncate(time.Second)

	_, held, err := store.Marker(ctx)
	require.NoError(t, err)
	assert.False(t, held)

	ok, err := store.Place(ctx, at)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = other.Place(ctx, time.Now())
	require.NoError(t, err)
	assert.False(t, ok, "second holder must not get the lock")

	placed, held, err := other.Marker(ctx)
	require.NoError(t, err)
	assert.True(t, held)
	assert.WithinDuration(t, at, placed, time.Second)

	require.NoError(t, store.Remove(ctx))
	_, held, err = store.Marker(ctx)
	require.NoError(t, err)
	assert.False(t, held)
}

func TestPersisterAgainstStore(t *testing.T) {
	store := seededStore(t)
	ctx := context.Background()
	p := campaign.NewPersister(store, store, campaign.PersistSettings{
		StaleAfter: time.Minute, Attempts: 1, RetryDelay: time.Millisecond,
	}, nil)

	ok, err := store.Place(ctx, time.Now())
	require.NoError(t, err)
	require.True(t, ok)
	err = p.Flush(ctx, map[string]campaign.Status{"60123456789": campaign.StatusSent})
	require.ErrorIs(t, err, campaign.ErrLockContention)

	require.NoError(t, store.Remove(ctx))
	ok, err = store.Place(ctx, time.Now().Add(-2*time.Minute))
	require.NoError(t, err)
	require.True(t, ok)
	require.NoError(t, p.Flush(ctx, map[string]campaign.Status{"60123456789": campaign.StatusSent}))

	contacts, err := store.Contacts(ctx)
	require.NoError(t, err)
	assert.Equal(t, campaign.StatusSent, contacts[0].Status)
	_, held, err := store.Marker(ctx)
	require.NoError(t, err)
	assert.False(t, held)
}

func TestUpsertAndReset(t *testing.T) {
	store := seededStore(t)
	ctx := context.Background()

	n, err := store.UpsertContacts(ctx, []campaign.Contact{
		{Phone: "60123456789", MsgCode: "2", Status: campaign.StatusInvalid},
		{Phone: "60155555555", MsgCode: "1", Status: campaign.StatusPending},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	all, total, err := store.ListContacts(ctx, ContactFilter{})
	require.NoError(t, err)
	assert.EqualValues(t, 4, total)
	assert.Equal(t, "60123456789", all[0].Phone, "existing contact keeps its position")
	assert.Equal(t, "2", all[0].MsgCode)
	assert.Equal(t, "60155555555", all[3].Phone)

	invalid := campaign.StatusInvalid
	page, total, err := store.ListContacts(ctx, ContactFilter{Status: &invalid, Limit: 10})
	require.NoError(t, err)
	assert.EqualValues(t, 1, total)
	require.Len(t, page, 1)

	reset, err := store.ResetStatuses(ctx, campaign.StatusInvalid, campaign.StatusRetry)
	require.NoError(t, err)
	assert.EqualValues(t, 2, reset)

	reset, err = store.ResetStatuses(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 4, reset)
}

func TestSeedKeepsInvalidStatus(t *testing.T) {
	store := NewStore(newTestDB(t), nil)
	ctx := context.Background()
	_, err := store.Seed(ctx, &Workbook{
		Contacts: []WorkbookContact{
			{Phone: "601", MsgCode: "1", Status: "INVALID"},
			{Phone: "602", MsgCode: "1", Status: "0"},
			{Phone: "603", MsgCode: "1"},
		},
	})
	require.NoError(t, err)

	statuses := func() map[string]campaign.Status {
		contacts, err := store.Contacts(ctx)
		require.NoError(t, err)
		out := map[string]campaign.Status{}
		for _, ct := range contacts {
			out[ct.Phone] = ct.Status
		}
		return out
	}
	assert.Equal(t, map[string]campaign.Status{
		"601": campaign.StatusInvalid,
		"602": campaign.StatusInvalid,
		"603": campaign.StatusPending,
	}, statuses())

	_, err = store.ApplyStatuses(ctx, map[string]campaign.Status{"603": campaign.StatusInvalid})
	require.NoError(t, err)
	_, err = store.UpsertContacts(ctx, []campaign.Contact{
		{Phone: "601", MsgCode: "2", Status: campaign.StatusInvalid},
		{Phone: "603", MsgCode: "2", Status: campaign.StatusInvalid},
	})
	require.NoError(t, err)
	assert.Equal(t, map[string]campaign.Status{
		"601": campaign.StatusInvalid,
		"602": campaign.StatusInvalid,
		"603": campaign.StatusInvalid,
	}, statuses())
}

func TestUpsertDuplicatePhones(t *testing.T) {
	store := NewStore(newTestDB(t), nil)
	ctx := context.Background()

	n, err := store.UpsertContacts(ctx, []campaign.Contact{
		{Phone: "+60 1-2", MsgCode: "1", Status: campaign.StatusPending},
		{Phone: "60777", MsgCode: "1", Status: campaign.StatusPending},
		{Phone: "6012", MsgCode: "3", Status: campaign.StatusRetry},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	contacts, err := store.Contacts(ctx)
	require.NoError(t, err)
	require.Len(t, contacts, 2)
	assert.Equal(t, "6012", contacts[0].Phone, "first occurrence keeps its place")
	assert.Equal(t, "3", contacts[0].MsgCode)
	assert.Equal(t, campaign.StatusRetry, contacts[0].Status)
	assert.Equal(t, "60777", contacts[1].Phone)
}

func TestRunsAndMessages(t *testing.T) {
	store := NewStore(newTestDB(t), nil)
	ctx := context.Background()

	for _, id := range []string{"run-1", "run-2"} {
		require.NoError(t, store.SaveRun(ctx, &campaign.Report{
			RunID:  id,
			Phases: []campaign.PhaseReport{{Phase: campaign.PhaseInitial, Eligible: 3}},
		}))
	}
	runs, err := store.ListRuns(ctx, 10)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "run-2", runs[0].RunID)
	assert.Equal(t, 3, runs[1].Phases[0].Eligible)

	require.NoError(t, store.RecordMessage(ctx, &models.Message{WaID: "wamid.1", Sender: "60123", Content: "hi", Type: "text", Status: "sent"}))
	require.NoError(t, store.UpdateMessageStatus(ctx, "wamid.1", "delivered"))
	msgs, err := store.ListMessages(ctx, 0)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, "delivered", msgs[0].Status)
}

func TestSyncAndSaveSettings(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	require.NoError(t, db.Create(&models.SystemSetting{Key: "MIN_TIMER", Value: "1"}).Error)

	cfg := config.Default()
	require.NoError(t, SyncSettings(ctx, db, cfg, nil))
	assert.Equal(t, time.Second, cfg.Campaign.MinDelay)

	var stored models.SystemSetting
	require.NoError(t, db.Where("key = ?", "INVALID_MSG").First(&stored).Error)
	assert.Equal(t, cfg.Browser.InvalidMarkerText, stored.Value)

	require.Error(t, SaveSettings(ctx, db, cfg, map[string]string{"MAX_TIMER": "0.5"}))
	assert.Equal(t, 5*time.Second, cfg.Campaign.MaxDelay, "rejected values leave the config alone")

	require.NoError(t, SaveSettings(ctx, db, cfg, map[string]string{"MAX_TIMER": "9", "LANES": "4"}))
	assert.Equal(t, 9*time.Second, cfg.Campaign.MaxDelay)
	assert.Equal(t, 4, cfg.Campaign.Lanes)
	require.NoError(t, db.Where("key = ?", "MAX_TIMER").First(&stored).Error)
	assert.Equal(t, "9", stored.Value)
}

func TestSyncSettingsLogsRejectedValues(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	require.NoError(t, db.Create(&models.SystemSetting{Key: "LANES", Value: "many"}).Error)

	core, logs := observer.New(zap.InfoLevel)
	cfg := config.Default()
	lanes := cfg.Campaign.Lanes
	require.NoError(t, SyncSettings(ctx, db, cfg, zap.New(core)))
	assert.Equal(t, lanes, cfg.Campaign.Lanes)

	rejected := logs.FilterMessage("ignoring stored setting").All()
	require.Len(t, rejected, 1)
	assert.Equal(t, "LANES", rejected[0].ContextMap()["key"])
	assert.Equal(t, 1, logs.FilterMessage("system settings synchronized from database").Len())
}
