package models

import (
	"time"
)

// Contact is one campaign recipient
type Contact struct {
	Phone     string    `gorm:"primaryKey;type:varchar(32)" json:"phone"`
	MsgCode   string    `gorm:"type:varchar(64);default:'0'" json:"msg_code"`
	DocCode   string    `gorm:"type:varchar(64);default:'0'" json:"doc_code"`
	MediaCode string    `gorm:"type:varchar(64);default:'0'" json:"media_code"`
	Fields    string    `gorm:"type:text" json:"fields"` // JSON object of custom columns
	Status    int       `gorm:"not null;index" json:"status"`
	Position  int       `gorm:"index" json:"position"` // row order of the imported list
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (Contact) TableName() string {
	return "contacts"
}

// MessageTemplate is a query-encoded message body addressed by code
type MessageTemplate struct {
	Code      string    `gorm:"primaryKey;type:varchar(64)" json:"code"`
	Body      string    `gorm:"type:text" json:"body"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (MessageTemplate) TableName() string {
	return "message_templates"
}

// Attachment is one file of a document or media group
type Attachment struct {
	ID       uint   `gorm:"primaryKey" json:"id"`
	Code     string `gorm:"type:varchar(64);not null;index:idx_attachment_group" json:"code"`
	Kind     string `gorm:"type:varchar(10);not null;index:idx_attachment_group" json:"kind"` // DOCS or MEDIA
	Position int    `json:"position"`
	Path     string `gorm:"type:text;not null" json:"path"`
}

func (Attachment) TableName() string {
	return "attachments"
}

// Placeholder maps a template keyword to a contact field
type Placeholder struct {
	Keyword string `gorm:"primaryKey;type:varchar(64)" json:"keyword"`
	Field   string `gorm:"type:varchar(128);not null" json:"field"`
}

func (Placeholder) TableName() string {
	return "placeholders"
}

// SystemSetting overrides a config value at runtime
type SystemSetting struct {
	Key       string    `gorm:"primaryKey;type:varchar(64)" json:"key"`
	Value     string    `gorm:"type:text" json:"value"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (SystemSetting) TableName() string {
	return "system_settings"
}

// StoreLock is the advisory lock row guarding contact status writes
type StoreLock struct {
	Name     string    `gorm:"primaryKey;type:varchar(64)" json:"name"`
	PlacedAt time.Time `gorm:"not null" json:"placed_at"`
	Holder   string    `gorm:"type:varchar(128)" json:"holder"`
}

func (StoreLock) TableName() string {
	return "store_locks"
}

// CampaignRun records the report of a finished run
type CampaignRun struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	RunID      string    `gorm:"type:varchar(36);uniqueIndex" json:"run_id"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	Cancelled  bool      `json:"cancelled"`
	Error      string    `gorm:"type:text" json:"error"`
	Report     string    `gorm:"type:text" json:"report"` // JSON report
	CreatedAt  time.Time `gorm:"autoCreateTime" json:"created_at"`
}

func (CampaignRun) TableName() string {
	return "campaign_runs"
}

// Message represents a WhatsApp message
type Message struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	WaID      string    `gorm:"index;not null" json:"wa_id"`
	Sender    string    `gorm:"not null" json:"sender"`
	Content   string    `gorm:"type:text" json:"content"`
	Type      string    `gorm:"type:varchar(50)" json:"type"`
	Status    string    `gorm:"type:varchar(20)" json:"status"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (Message) TableName() string {
	return "messages"
}

// All lists every model, in migration order.
func All() []interface{} {
	return []interface{}{
		&Contact{},
		&MessageTemplate{},
		&Attachment{},
		&Placeholder{},
		&SystemSetting{},
		&StoreLock{},
		&CampaignRun{},
		&Message{},
	}
}
