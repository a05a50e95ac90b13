// Package staging holds crawled and hand-entered scheme records awaiting
// moderation, and the workflow that approves them into the published catalog
// or rejects them.
package staging

import (
	"encoding/json"
	"net/url"
	"time"

	"github.com/google/uuid"

	"github.com/JaimeStill/kisaanseva/internal/fanout"
	"github.com/JaimeStill/kisaanseva/internal/schemes"
	"github.com/JaimeStill/kisaanseva/pkg/query"
)

// Status is the moderation state of a staged item.
type Status string

const (
	StatusPending  Status = "pending"
	StatusApproved Status = "approved"
	StatusRejected Status = "rejected"
)

// Sources a staged item can originate from.
const (
	SourceManual      = "manual"
	SourceMyScheme    = "myscheme"
	SourceDataGov     = "data_gov"
	SourceRSSFeed     = "rss_feed"
	SourceStatePortal = "state_portal"
)

const sourceTag = "omitempty,oneof=manual myscheme data_gov rss_feed state_portal"

// Item is a staged scheme or subsidy record.
type Item struct {
	ID uuid.UUID `json:"id"`
	schemes.Content
	Source      string          `json:"source"`
	SourceRef   *string         `json:"source_ref,omitempty"`
	RawData     json.RawMessage `json:"raw_data,omitempty"`
	Status      Status          `json:"status"`
	ReviewedBy  *string         `json:"reviewed_by,omitempty"`
	ReviewNotes *string         `json:"review_notes,omitempty"`
	ReviewedAt  *time.Time      `json:"reviewed_at,omitempty"`
	Version     int             `json:"version"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// CreateCommand is the payload for staging a new item. SourceRef identifies
// the record at its origin; a second item with the same source and reference
// is refused with ErrDuplicate.
type CreateCommand struct {
	schemes.Content
	Source    string          `json:"source,omitempty"`
	SourceRef string          `json:"source_ref,omitempty"`
	RawData   json.RawMessage `json:"raw_data,omitempty"`
}

// UpdateCommand patches a pending item. Omitted fields keep the stored
// value and provided fields replace it. An optional text field sent as an
// empty or blank string is cleared; item_type and name_en cannot be cleared.
// eligibility_rules is replaced as a whole list, so [] removes every rule.
// Version, when set, must equal the stored version.
type UpdateCommand struct {
	ItemType        *string         `json:"item_type,omitempty"`
	NameEn          *string         `json:"name_en,omitempty"`
	NameHi          *string         `json:"name_hi,omitempty"`
	Ministry        *string         `json:"ministry,omitempty"`
	DescriptionEn   *string         `json:"description_en,omitempty"`
	DescriptionHi   *string         `json:"description_hi,omitempty"`
	BenefitType     *string         `json:"benefit_type,omitempty"`
	BenefitAmount   *string         `json:"benefit_amount,omitempty"`
	SubsidyCategory *string         `json:"subsidy_category,omitempty"`
	ApplyURL        *string         `json:"apply_url,omitempty"`
	HowToApply      *string         `json:"how_to_apply,omitempty"`
	TargetState     *string         `json:"target_state,omitempty"`
	SourceURL       *string         `json:"source_url,omitempty"`
	Rules           *[]schemes.Rule `json:"eligibility_rules,omitempty"`
	Version         *int            `json:"version,omitempty"`
}

func (c UpdateCommand) apply(content *schemes.Content) {
	set := func(dst **string, v *string) {
		if v != nil {
			s := *v
			*dst = &s
		}
	}
	if c.ItemType != nil {
		content.ItemType = *c.ItemType
	}
	if c.NameEn != nil {
		content.NameEn = *c.NameEn
	}
	set(&content.NameHi, c.NameHi)
	set(&content.Ministry, c.Ministry)
	set(&content.DescriptionEn, c.DescriptionEn)
	set(&content.DescriptionHi, c.DescriptionHi)
	set(&content.BenefitType, c.BenefitType)
	set(&content.BenefitAmount, c.BenefitAmount)
	set(&content.SubsidyCategory, c.SubsidyCategory)
	set(&content.ApplyURL, c.ApplyURL)
	set(&content.HowToApply, c.HowToApply)
	set(&content.TargetState, c.TargetState)
	set(&content.SourceURL, c.SourceURL)
	if c.Rules != nil {
		content.Rules = append([]schemes.Rule{}, (*c.Rules)...)
	}
}

// ReviewCommand carries the reviewer and notes for approve and reject.
type ReviewCommand struct {
	ReviewedBy  string `json:"reviewed_by,omitempty"`
	ReviewNotes string `json:"review_notes,omitempty"`
}

// Review is a resolved moderation decision.
type Review struct {
	Reviewer string
	Notes    *string
	At       time.Time
}

// Approval is the result of approving an item.
type Approval struct {
	Message       string          `json:"message"`
	Item          *Item           `json:"item"`
	Scheme        *schemes.Scheme `json:"scheme"`
	MatchingStats fanout.Stats    `json:"matching_stats"`
}

// Rejection is the result of rejecting an item.
type Rejection struct {
	Message string `json:"message"`
	Item    *Item  `json:"item"`
}

// PendingCount is the size of the review queue.
type PendingCount struct {
	PendingCount int `json:"pending_count"`
}

// Filters narrows staged item listings.
type Filters struct {
	Status   *string `json:"status,omitempty"`
	ItemType *string `json:"item_type,omitempty"`
	Source   *string `json:"source,omitempty"`
}

// FiltersFromQuery extracts staging filters from URL query parameters.
func FiltersFromQuery(values url.Values) Filters {
	var f Filters
	if v := values.Get("status"); v != "" {
		f.Status = &v
	}
	if v := values.Get("item_type"); v != "" {
		f.ItemType = &v
	}
	if v := values.Get("source"); v != "" {
		f.Source = &v
	}
	return f
}

// Apply adds filter conditions to a query builder.
func (f Filters) Apply(b *query.Builder) *query.Builder {
	return b.
		WhereEquals("Status", f.Status).
		WhereEquals("ItemType", f.ItemType).
		WhereEquals("Source", f.Source)
}

func (f Filters) matches(i *Item) bool {
	if f.Status != nil && *f.Status != string(i.Status) {
		return false
	}
	if f.ItemType != nil && *f.ItemType != i.ItemType {
		return false
	}
	if f.Source != nil && *f.Source != i.Source {
		return false
	}
	return true
}

func (i *Item) publication(at time.Time) schemes.Publication {
	return schemes.Publication{
		StagedItemID: i.ID,
		Source:       i.Source,
		Content:      i.Content,
		PublishedAt:  at,
	}
}
