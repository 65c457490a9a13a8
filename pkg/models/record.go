package models

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/ekaya-inc/relayscout/pkg/jsonutil"
)

// Profile metadata keys read from a record payload.
const (
	FieldName        = "name"
	FieldDisplayName = "display_name"
	FieldLUD16       = "lud16"
)

// ErrMalformedPayload is returned by ParseProfile when the payload is not a JSON object.
var ErrMalformedPayload = errors.New("malformed profile payload")

// RawRecord is the minimum wire shape the ingestion engine needs from a source.
type RawRecord struct {
	ID        string `json:"id"`
	Actor     string `json:"pubkey"`
	CreatedAt int64  `json:"created_at"`
	Content   string `json:"content"`
}

// Profile is the structured view of a profile payload. Every field is optional;
// an empty string means the field is absent.
type Profile struct {
	Name        string                     `json:"name,omitempty"`
	DisplayName string                     `json:"display_name,omitempty"`
	LUD16       string                     `json:"lud16,omitempty"`
	Extra       map[string]json.RawMessage `json:"-"`
}

// ParseProfile decodes a profile payload. Anything other than a JSON object
// (including the literal null) is malformed.
func ParseProfile(content string) (*Profile, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal([]byte(content), &fields); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	if fields == nil {
		return nil, fmt.Errorf("%w: payload is null", ErrMalformedPayload)
	}

	p := &Profile{
		Name:        jsonutil.StringField(fields, FieldName),
		DisplayName: jsonutil.StringField(fields, FieldDisplayName),
		LUD16:       jsonutil.StringField(fields, FieldLUD16),
	}

	delete(fields, FieldName)
	delete(fields, FieldDisplayName)
	delete(fields, FieldLUD16)
	if len(fields) > 0 {
		p.Extra = fields
	}

	return p, nil
}

// Label returns the human-readable name: display_name, falling back to name.
func (p *Profile) Label() string {
	if p == nil {
		return ""
	}
	if p.DisplayName != "" {
		return p.DisplayName
	}
	return p.Name
}

// Address returns the payment address, or "" when the profile has none.
func (p *Profile) Address() string {
	if p == nil {
		return ""
	}
	return p.LUD16
}

// Record is one distinct profile snapshot. Everything except Provenance is
// immutable once the record is stored.
type Record struct {
	ID         string
	Actor      string
	CreatedAt  int64
	Content    string
	Profile    *Profile
	Provenance *Provenance
}

// NewRecord builds a record from a parsed raw record first delivered by source.
func NewRecord(raw RawRecord, profile *Profile, source string) *Record {
	return &Record{
		ID:         raw.ID,
		Actor:      raw.Actor,
		CreatedAt:  raw.CreatedAt,
		Content:    raw.Content,
		Profile:    profile,
		Provenance: NewProvenance(source),
	}
}

// Clone returns a copy whose provenance set can be read without holding
// the owner's lock.
func (r *Record) Clone() *Record {
	c := *r
	if r.Provenance != nil {
		c.Provenance = NewProvenance(r.Provenance.List()...)
	}
	return &c
}

// SeenOn lists the sources that delivered this record.
func (r *Record) SeenOn() []string {
	if r.Provenance == nil {
		return nil
	}
	return r.Provenance.List()
}
