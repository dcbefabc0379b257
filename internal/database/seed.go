package database

import (
	"context"
	"fmt"
	"os"

	"whatsapp-blaster/internal/campaign"

	"gopkg.in/yaml.v3"
)

// Workbook is the YAML import format: the contact list plus the catalog
// sheets of the desktop tool.
type Workbook struct {
	Contacts     []WorkbookContact   `yaml:"contacts"`
	Messages     map[string]string   `yaml:"messages"`
	Documents    map[string][]string `yaml:"documents"`
	Media        map[string][]string `yaml:"media"`
	Placeholders map[string]string   `yaml:"placeholders"`
	Settings     map[string]string   `yaml:"settings"`
}

type WorkbookContact struct {
	Phone     string            `yaml:"phone"`
	MsgCode   string            `yaml:"msg_code"`
	DocCode   string            `yaml:"doc_code"`
	MediaCode string            `yaml:"media_code"`
	Status    string            `yaml:"status"`
	Fields    map[string]string `yaml:"fields"`
}

func LoadWorkbook(path string) (*Workbook, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var wb Workbook
	if err := yaml.Unmarshal(data, &wb); err != nil {
		return nil, fmt.Errorf("parse workbook %s: %w", path, err)
	}
	return &wb, nil
}

// SeedResult counts what Seed wrote.
type SeedResult struct {
	Contacts     int
	Messages     int
	Documents    int
	Media        int
	Placeholders int
}

// Seed imports a workbook. Contacts are upserted; every catalog present in
// the workbook replaces the stored one. Settings are left to the caller,
// which owns the live config.
func (s *Store) Seed(ctx context.Context, wb *Workbook) (SeedResult, error) {
	var res SeedResult

	contacts := make([]campaign.Contact, 0, len(wb.Contacts))
	for _, c := range wb.Contacts {
		contacts = append(contacts, campaign.Contact{
			Phone:     c.Phone,
			MsgCode:   c.MsgCode,
			DocCode:   c.DocCode,
			MediaCode: c.MediaCode,
			Fields:    c.Fields,
			Status:    campaign.ParseStatus(c.Status),
		})
	}
	n, err := s.UpsertContacts(ctx, contacts)
	if err != nil {
		return res, fmt.Errorf("import contacts: %w", err)
	}
	res.Contacts = n

	if wb.Messages != nil {
		if err := s.SetMessages(ctx, wb.Messages); err != nil {
			return res, fmt.Errorf("import messages: %w", err)
		}
		res.Messages = len(wb.Messages)
	}
	if wb.Documents != nil {
		if err := s.SetAttachments(ctx, campaign.KindDocument, wb.Documents); err != nil {
			return res, fmt.Errorf("import documents: %w", err)
		}
		res.Documents = len(wb.Documents)
	}
	if wb.Media != nil {
		if err := s.SetAttachments(ctx, campaign.KindMedia, wb.Media); err != nil {
			return res, fmt.Errorf("import media: %w", err)
		}
		res.Media = len(wb.Media)
	}
	if wb.Placeholders != nil {
		if err := s.SetPlaceholders(ctx, wb.Placeholders); err != nil {
			return res, fmt.Errorf("import placeholders: %w", err)
		}
		res.Placeholders = len(wb.Placeholders)
	}
	return res, nil
}
