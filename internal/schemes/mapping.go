package schemes

import (
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/JaimeStill/kisaanseva/pkg/query"
	"github.com/JaimeStill/kisaanseva/pkg/repository"
)

var projection = query.
	NewProjectionMap("public", "published_items", "p").
	Project("id", "ID").
	Project("staged_item_id", "StagedItemID").
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
	Project("is_active", "IsActive").
	Project("published_at", "PublishedAt").
	Project("fanout_status", "FanoutStatus").
	Project("fanout_attempts", "FanoutAttempts").
	Project("matched_count", "Matched").
	Project("notified_count", "Notified").
	Project("failed_count", "Failed").
	Project("fanout_error", "FanoutError").
	Project("fanout_updated_at", "FanoutUpdatedAt")

var defaultSort = query.SortField{Field: "PublishedAt", Descending: true}

func scanScheme(s repository.Scanner) (Scheme, error) {
	var (
		sc       Scheme
		rules    []byte
		fanError sql.NullString
	)
	err := s.Scan(
		&sc.ID,
		&sc.StagedItemID,
		&sc.ItemType,
		&sc.NameEn,
		&sc.NameHi,
		&sc.Ministry,
		&sc.DescriptionEn,
		&sc.DescriptionHi,
		&sc.BenefitType,
		&sc.BenefitAmount,
		&sc.SubsidyCategory,
		&sc.ApplyURL,
		&sc.HowToApply,
		&sc.TargetState,
		&sc.SourceURL,
		&rules,
		&sc.Source,
		&sc.IsActive,
		&sc.PublishedAt,
		&sc.Fanout.Status,
		&sc.Fanout.Attempts,
		&sc.Fanout.Matched,
		&sc.Fanout.Notified,
		&sc.Fanout.Failed,
		&fanError,
		&sc.Fanout.UpdatedAt,
	)
	if err != nil {
		return sc, err
	}
	sc.Fanout.Error = fanError.String
	if err := json.Unmarshal(rules, &sc.Rules); err != nil {
		return sc, fmt.Errorf("decode eligibility rules: %w", err)
	}
	return sc, nil
}
