package database

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"

	"whatsapp-blaster/internal/campaign"
	"whatsapp-blaster/internal/models"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Store is the GORM-backed contact list. It is the campaign's Source, its
// Target and the Lock that guards status writes.
type Store struct {
	db       *gorm.DB
	logger   *zap.Logger
	lockName string
	holder   string
}

func NewStore(db *gorm.DB, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{db: db, logger: logger, lockName: "contacts", holder: lockHolder()}
}

func (s *Store) DB() *gorm.DB { return s.db }

// Contacts returns every contact in list order.
func (s *Store) Contacts(ctx context.Context) ([]campaign.Contact, error) {
	var rows []models.Contact
	if err := s.db.WithContext(ctx).Order("position, phone").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("%w: %v", campaign.ErrStoreUnreadable, err)
	}
	out := make([]campaign.Contact, 0, len(rows))
	for _, r := range rows {
		out = append(out, toContact(r, s.logger))
	}
	return out, nil
}

func (s *Store) MessageCatalog(ctx context.Context) (map[string]string, error) {
	var rows []models.MessageTemplate
	if err := s.db.WithContext(ctx).Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make(map[string]string, len(rows))
	for _, r := range rows {
		out[campaign.NormalizeCode(r.Code)] = r.Body
	}
	return out, nil
}

func (s *Store) AttachmentCatalog(ctx context.Context, kind campaign.AttachmentKind) (map[string][]string, error) {
	var rows []models.Attachment
	err := s.db.WithContext(ctx).
		Where("kind = ?", string(kind)).
		Order("code, position, id").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make(map[string][]string)
	for _, r := range rows {
		code := campaign.NormalizeCode(r.Code)
		out[code] = append(out[code], r.Path)
	}
	return out, nil
}

func (s *Store) FieldMap(ctx context.Context) (map[string]string, error) {
	var rows []models.Placeholder
	if err := s.db.WithContext(ctx).Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make(map[string]string, len(rows))
	for _, r := range rows {
		out[r.Keyword] = r.Field
	}
	return out, nil
}

// ApplyStatuses writes statuses into the contacts table in one transaction.
func (s *Store) ApplyStatuses(ctx context.Context, statuses map[string]campaign.Status) (int, error) {
	db := s.db.WithContext(ctx)
	mig := db.Migrator()
	if !mig.HasTable(&models.Contact{}) {
		return 0, fmt.Errorf("%w: contacts table missing", campaign.ErrStructural)
	}
	for _, col := range []string{"phone", "status"} {
		if !mig.HasColumn(&models.Contact{}, col) {
			return 0, fmt.Errorf("%w: contacts.%s column missing", campaign.ErrStructural, col)
		}
	}

	var rows []struct {
		Phone  string
		Status int
	}
	if err := db.Model(&models.Contact{}).Select("phone", "status").Find(&rows).Error; err != nil {
		return 0, fmt.Errorf("%w: %v", campaign.ErrStoreUnreadable, err)
	}

	updated := 0
	err := db.Transaction(func(tx *gorm.DB) error {
		for _, r := range rows {
			st, ok := statuses[campaign.NormalizePhone(r.Phone)]
			if !ok {
				continue
			}
			updated++
			if int(st) == r.Status {
				continue
			}
			if err := tx.Model(&models.Contact{}).Where("phone = ?", r.Phone).Update("status", int(st)).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("%w: %v", campaign.ErrStoreUnreadable, err)
	}
	return updated, nil
}

// ContactFilter narrows ListContacts.
type ContactFilter struct {
	Status *campaign.Status
	Limit  int
	Offset int
}

func (s *Store) ListContacts(ctx context.Context, f ContactFilter) ([]campaign.Contact, int64, error) {
	base := func() *gorm.DB {
		q := s.db.WithContext(ctx).Model(&models.Contact{})
		if f.Status != nil {
			q = q.Where("status = ?", int(*f.Status))
		}
		return q
	}
	var total int64
	if err := base().Count(&total).Error; err != nil {
		return nil, 0, err
	}
	q := base()
	if f.Limit > 0 {
		q = q.Limit(f.Limit).Offset(f.Offset)
	}
	var rows []models.Contact
	if err := q.Order("position, phone").Find(&rows).Error; err != nil {
		return nil, 0, err
	}
	out := make([]campaign.Contact, 0, len(rows))
	for _, r := range rows {
		out = append(out, toContact(r, s.logger))
	}
	return out, total, nil
}

// UpsertContacts inserts or replaces contacts keyed by normalized phone,
// appending new ones after the existing list. Contacts without a phone are
// skipped.
func (s *Store) UpsertContacts(ctx context.Context, contacts []campaign.Contact) (int, error) {
	db := s.db.WithContext(ctx)
	var next int
	if err := db.Model(&models.Contact{}).Select("COALESCE(MAX(position), 0)").Scan(&next).Error; err != nil {
		return 0, err
	}

	// A phone listed twice keeps its first position and its last values;
	// one statement may not upsert the same row twice.
	rows := make([]models.Contact, 0, len(contacts))
	index := make(map[string]int, len(contacts))
	for _, ct := range contacts {
		phone := campaign.NormalizePhone(ct.Phone)
		if phone == "" {
			continue
		}
		fields, err := json.Marshal(ct.Fields)
		if err != nil {
			return 0, fmt.Errorf("encode fields of %s: %w", phone, err)
		}
		row := models.Contact{
			Phone:     phone,
			MsgCode:   campaign.NormalizeCode(ct.MsgCode),
			DocCode:   campaign.NormalizeCode(ct.DocCode),
			MediaCode: campaign.NormalizeCode(ct.MediaCode),
			Fields:    string(fields),
			Status:    int(ct.Status),
		}
		if i, ok := index[phone]; ok {
			row.Position = rows[i].Position
			rows[i] = row
			s.logger.Debug("duplicate contact in batch", zap.String("phone", phone))
			continue
		}
		next++
		row.Position = next
		index[phone] = len(rows)
		rows = append(rows, row)
	}
	if len(rows) == 0 {
		return 0, nil
	}
	err := db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "phone"}},
		DoUpdates: clause.AssignmentColumns([]string{"msg_code", "doc_code", "media_code", "fields", "status", "updated_at"}),
	}).CreateInBatches(&rows, 200).Error
	if err != nil {
		return 0, err
	}
	return len(rows), nil
}

// ResetStatuses sets contacts back to PENDING. With no statuses given,
// every contact is reset.
func (s *Store) ResetStatuses(ctx context.Context, only ...campaign.Status) (int64, error) {
	q := s.db.WithContext(ctx).Model(&models.Contact{})
	if len(only) > 0 {
		codes := make([]int, len(only))
		for i, st := range only {
			codes[i] = int(st)
		}
		q = q.Where("status IN ?", codes)
	} else {
		q = q.Where("1 = 1")
	}
	res := q.Update("status", int(campaign.StatusPending))
	return res.RowsAffected, res.Error
}

// StatusCounts returns how many contacts are in each status.
func (s *Store) StatusCounts(ctx context.Context) (map[string]int64, error) {
	var rows []struct {
		Status int
		Count  int64
	}
	err := s.db.WithContext(ctx).Model(&models.Contact{}).
		Select("status, COUNT(*) AS count").
		Group("status").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make(map[string]int64, len(rows))
	for _, r := range rows {
		out[campaign.Status(r.Status).String()] = r.Count
	}
	return out, nil
}

// MessageTexts returns the message catalog decoded for display.
func (s *Store) MessageTexts(ctx context.Context) (map[string]string, error) {
	encoded, err := s.MessageCatalog(ctx)
	if err != nil {
		return nil, err
	}
	out := make(map[string]string, len(encoded))
	for code, body := range encoded {
		text, err := url.QueryUnescape(body)
		if err != nil {
			text = body
		}
		out[code] = text
	}
	return out, nil
}

// SetMessages replaces the message catalog. Texts are stored query-encoded.
func (s *Store) SetMessages(ctx context.Context, texts map[string]string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("1 = 1").Delete(&models.MessageTemplate{}).Error; err != nil {
			return err
		}
		for code, text := range texts {
			row := models.MessageTemplate{Code: campaign.NormalizeCode(code), Body: url.QueryEscape(text)}
			if err := tx.Create(&row).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

// SetAttachments replaces the catalog of one attachment kind.
func (s *Store) SetAttachments(ctx context.Context, kind campaign.AttachmentKind, groups map[string][]string) error {
	if !kind.IsValid() {
		return fmt.Errorf("unknown attachment kind %q", kind)
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("kind = ?", string(kind)).Delete(&models.Attachment{}).Error; err != nil {
			return err
		}
		for code, paths := range groups {
			for i, p := range paths {
				row := models.Attachment{Code: campaign.NormalizeCode(code), Kind: string(kind), Position: i, Path: p}
				if err := tx.Create(&row).Error; err != nil {
					return err
				}
			}
		}
		return nil
	})
}

// SetPlaceholders replaces the keyword to field map.
func (s *Store) SetPlaceholders(ctx context.Context, fields map[string]string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("1 = 1").Delete(&models.Placeholder{}).Error; err != nil {
			return err
		}
		for kw, field := range fields {
			if err := tx.Create(&models.Placeholder{Keyword: kw, Field: field}).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

// SaveRun stores a finished run report.
func (s *Store) SaveRun(ctx context.Context, report *campaign.Report) error {
	body, err := json.Marshal(report)
	if err != nil {
		return err
	}
	row := models.CampaignRun{
		RunID:      report.RunID,
		StartedAt:  report.StartedAt,
		FinishedAt: report.FinishedAt,
		Cancelled:  report.Cancelled,
		Error:      report.Error,
		Report:     string(body),
	}
	return s.db.WithContext(ctx).Create(&row).Error
}

// ListRuns returns the most recent runs first.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]campaign.Report, error) {
	if limit <= 0 {
		limit = 20
	}
	var rows []models.CampaignRun
	if err := s.db.WithContext(ctx).Order("id DESC").Limit(limit).Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]campaign.Report, 0, len(rows))
	for _, r := range rows {
		var rep campaign.Report
		if err := json.Unmarshal([]byte(r.Report), &rep); err != nil {
			s.logger.Warn("skipping unreadable run report", zap.String("run_id", r.RunID), zap.Error(err))
			continue
		}
		out = append(out, rep)
	}
	return out, nil
}

// RecordMessage appends to the message log.
func (s *Store) RecordMessage(ctx context.Context, msg *models.Message) error {
	return s.db.WithContext(ctx).Create(msg).Error
}

// UpdateMessageStatus sets the delivery status of a logged message.
func (s *Store) UpdateMessageStatus(ctx context.Context, waID, status string) error {
	return s.db.WithContext(ctx).Model(&models.Message{}).
		Where("wa_id = ?", waID).
		Update("status", status).Error
}

func (s *Store) ListMessages(ctx context.Context, limit int) ([]models.Message, error) {
	if limit <= 0 {
		limit = 100
	}
	var rows []models.Message
	err := s.db.WithContext(ctx).Order("id DESC").Limit(limit).Find(&rows).Error
	return rows, err
}

func toContact(r models.Contact, logger *zap.Logger) campaign.Contact {
	ct := campaign.Contact{
		Phone:     campaign.NormalizePhone(r.Phone),
		MsgCode:   campaign.NormalizeCode(r.MsgCode),
		DocCode:   campaign.NormalizeCode(r.DocCode),
		MediaCode: campaign.NormalizeCode(r.MediaCode),
		Status:    campaign.Status(r.Status),
	}
	if !ct.Status.IsValid() {
		ct.Status = campaign.StatusPending
	}
	if r.Fields != "" {
		if err := json.Unmarshal([]byte(r.Fields), &ct.Fields); err != nil {
			logger.Warn("contact fields are not valid JSON", zap.String("phone", r.Phone), zap.Error(err))
		}
	}
	return ct
}
