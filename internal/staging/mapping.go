package staging

import (
	"encoding/json"
	"fmt"

	"github.com/JaimeStill/kisaanseva/pkg/query"
	"github.com/JaimeStill/kisaanseva/pkg/repository"
)

var projection = query.
	NewProjectionMap("public", "staged_items", "si").
	Project("id", "ID").
	Project("item_type", "ItemType").
	Project("name_en", "NameEn").
	Project("name_hi", "NameHi").
	Project("ministry", "Ministry").
	Project("description_en", "DescriptionEn").
	Project("description_hi", "DescriptionHi").
	Project("benefit_type", "BenefitType").
	Project("benefit_amount", "BenefitAmount").
	Project("subsidy_category", "SubsidyCategory").
	Project("apply_url", "ApplyURL").
	Project("how_to_apply", "HowToApply").
	Project("target_state", "TargetState").
	Project("source_url", "SourceURL").
	Project("eligibility_rules", "Rules").
	Project("source", "Source").
	Project("source_ref", "SourceRef").
	Project("raw_data", "RawData").
	Project("status", "Status").
	Project("reviewed_by", "ReviewedBy").
	Project("review_notes", "ReviewNotes").
	Project("reviewed_at", "ReviewedAt").
	Project("version", "Version").
	Project("created_at", "CreatedAt").
	Project("updated_at", "UpdatedAt")

var defaultSort = query.SortField{Field: "CreatedAt", Descending: true}

func scanItem(s repository.Scanner) (Item, error) {
	var (
		i     Item
		rules []byte
		raw   []byte
	)
	err := s.Scan(
		&i.ID,
		&i.ItemType,
		&i.NameEn,
		&i.NameHi,
		&i.Ministry,
		&i.DescriptionEn,
		&i.DescriptionHi,
		&i.BenefitType,
		&i.BenefitAmount,
		&i.SubsidyCategory,
		&i.ApplyURL,
		&i.HowToApply,
		&i.TargetState,
		&i.SourceURL,
		&rules,
		&i.Source,
		&i.SourceRef,
		&raw,
		&i.Status,
		&i.ReviewedBy,
		&i.ReviewNotes,
		&i.ReviewedAt,
		&i.Version,
		&i.CreatedAt,
		&i.UpdatedAt,
	)
	if err != nil {
		return i, err
	}
	if err := json.Unmarshal(rules, &i.Rules); err != nil {
		return i, fmt.Errorf("decode eligibility rules: %w", err)
	}
	if len(raw) > 0 {
		i.RawData = json.RawMessage(raw)
	}
	return i, nil
}

func encodeRules(i *Item) ([]byte, error) {
	rules, err := json.Marshal(i.Rules)
	if err != nil {
		return nil, fmt.Errorf("marshal eligibility rules: %w", err)
	}
	return rules, nil
}

func rawData(i *Item) any {
	if len(i.RawData) == 0 {
		return nil
	}
	return []byte(i.RawData)
}
