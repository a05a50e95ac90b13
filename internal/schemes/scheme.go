// Package schemes holds the farmer-visible catalog of published schemes and
// subsidies. Records are created only by approving a staged item and carry
// the bookkeeping of the notification fan-out that follows publication.
package schemes

import (
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/JaimeStill/kisaanseva/pkg/query"
)

// Rule is one eligibility criterion.
type Rule struct {
	RuleType    string `json:"rule_type" validate:"required,oneof=state district crop land_min land_max income_max season ownership irrigation"`
	RuleValue   string `json:"rule_value" validate:"required"`
	IsMandatory bool   `json:"is_mandatory"`
}

// Content is the moderated body of a scheme or subsidy. It is authored on a
// staged item and copied verbatim on publication.
type Content struct {
	ItemType        string  `json:"item_type" validate:"required,oneof=scheme subsidy"`
	NameEn          string  `json:"name_en" validate:"required"`
	NameHi          *string `json:"name_hi,omitempty"`
	Ministry        *string `json:"ministry,omitempty"`
	DescriptionEn   *string `json:"description_en,omitempty"`
	DescriptionHi   *string `json:"description_hi,omitempty"`
	BenefitType     *string `json:"benefit_type,omitempty" validate:"omitempty,oneof=cash subsidy insurance equipment"`
	BenefitAmount   *string `json:"benefit_amount,omitempty"`
	SubsidyCategory *string `json:"subsidy_category,omitempty" validate:"omitempty,oneof=seed fertilizer equipment irrigation organic credit"`
	ApplyURL        *string `json:"apply_url,omitempty" validate:"omitempty,url"`
	HowToApply      *string `json:"how_to_apply,omitempty"`
	TargetState     *string `json:"target_state,omitempty"`
	SourceURL       *string `json:"source_url,omitempty" validate:"omitempty,url"`
	Rules           []Rule  `json:"eligibility_rules" validate:"dive"`
}

// Normalize trims text fields and drops blank optional fields.
func (c *Content) Normalize() {
	c.ItemType = strings.TrimSpace(c.ItemType)
	c.NameEn = strings.TrimSpace(c.NameEn)
	for _, f := range []**string{
		&c.NameHi, &c.Ministry, &c.DescriptionEn, &c.DescriptionHi,
		&c.BenefitType, &c.BenefitAmount, &c.SubsidyCategory, &c.ApplyURL,
		&c.HowToApply, &c.TargetState, &c.SourceURL,
	} {
		if *f == nil {
			continue
		}
		v := strings.TrimSpace(**f)
		if v == "" {
			*f = nil
			continue
		}
		*f = &v
	}
	if c.Rules == nil {
		c.Rules = []Rule{}
	}
}

// FanoutStatus tracks notification delivery for a published record.
type FanoutStatus string

const (
	FanoutPending  FanoutStatus = "pending"
	FanoutComplete FanoutStatus = "complete"
	FanoutFailed   FanoutStatus = "failed"
)

// Fanout is the outcome of the most recent notification run.
type Fanout struct {
	Status    FanoutStatus `json:"status"`
	Attempts  int          `json:"attempts"`
	Matched   int          `json:"matched"`
	Notified  int          `json:"notified"`
	Failed    int          `json:"failed"`
	Error     string       `json:"error,omitempty"`
	UpdatedAt *time.Time   `json:"updated_at,omitempty"`
}

// Scheme is a published scheme or subsidy.
type Scheme struct {
	ID           uuid.UUID `json:"id"`
	StagedItemID uuid.UUID `json:"staged_item_id"`
	Content
	Source      string    `json:"source"`
	IsActive    bool      `json:"is_active"`
	PublishedAt time.Time `json:"published_at"`
	Fanout      Fanout    `json:"fanout"`
}

// Publication is the input to publishing a staged item.
type Publication struct {
	StagedItemID uuid.UUID
	Source       string
	Content      Content
	PublishedAt  time.Time
}

// Outcome records a fan-out run against a published record.
type Outcome struct {
	Status   FanoutStatus
	Matched  int
	Notified int
	Failed   int
	Error    string
	At       time.Time
}

// Filters narrows catalog listings.
type Filters struct {
	ItemType *string `json:"item_type,omitempty"`
	State    *string `json:"state,omitempty"`
}

// FiltersFromQuery extracts catalog filters from URL query parameters.
func FiltersFromQuery(values url.Values) Filters {
	var f Filters
	if v := values.Get("item_type"); v != "" {
		f.ItemType = &v
	}
	if v := values.Get("state"); v != "" {
		f.State = &v
	}
	return f
}

// Apply adds filter conditions to a query builder.
func (f Filters) Apply(b *query.Builder) *query.Builder {
	return b.
		WhereEquals("ItemType", f.ItemType).
		WhereEquals("TargetState", f.State)
}

func (f Filters) matches(s *Scheme) bool {
	if f.ItemType != nil && *f.ItemType != s.ItemType {
		return false
	}
	if f.State != nil && (s.TargetState == nil || *f.State != *s.TargetState) {
		return false
	}
	return true
}
