package campaign

import (
	"os"
	"path/filepath"
	"strings"
)

// NoAction is the code value meaning "nothing of this kind requested".
const NoAction = "0"

// Contact is one row of the campaign list.
type Contact struct {
	Phone     string            `json:"phone"`
	MsgCode   string            `json:"msg_code"`
	DocCode   string            `json:"doc_code"`
	MediaCode string            `json:"media_code"`
	Fields    map[string]string `json:"fields,omitempty"`
	Status    Status            `json:"status"`
}

// Catalog bundles the static lookups a lane needs. It is read once per run
// and shared read-only by every lane.
type Catalog struct {
	Messages map[string]string
	Docs     map[string][]string
	Media    map[string][]string
	// FieldMap maps a template keyword to the contact field holding its value.
	FieldMap map[string]string
}

// FieldValues resolves the keyword→value mapping used to render a template
// for this contact. Keywords whose field is absent resolve to "".
func (c Catalog) FieldValues(ct Contact) map[string]string {
	values := make(map[string]string, len(c.FieldMap))
	for keyword, field := range c.FieldMap {
		values[keyword] = ct.Fields[field]
	}
	return values
}

// NormalizePhone turns a spreadsheet-ish phone cell into the identity key.
// "+60 12-345 6789" and "60123456789.0" both become "60123456789".
func NormalizePhone(v string) string {
	v = strings.TrimSpace(v)
	v = strings.TrimSuffix(v, ".0")
	return strings.Map(func(r rune) rune {
		switch r {
		case ' ', '-', '(', ')', '+', '\t':
			return -1
		}
		return r
	}, v)
}

// NormalizeCode trims a catalog code; blank means NoAction.
func NormalizeCode(v string) string {
	v = strings.TrimSpace(v)
	v = strings.TrimSuffix(v, ".0")
	if v == "" {
		return NoAction
	}
	return v
}

// ExistingPaths returns absolute paths of the files that exist, in order.
// Drivers call it before attaching so a missing file is skipped instead of
// failing the whole group.
func ExistingPaths(paths []string) []string {
	out := make([]string, 0, len(paths))
	for _, p := range paths {
		abs, err := filepath.Abs(p)
		if err != nil {
			continue
		}
		if st, err := os.Stat(abs); err == nil && !st.IsDir() {
			out = append(out, abs)
		}
	}
	return out
}
