package audit

import (
	"encoding/json"

	"github.com/JaimeStill/kisaanseva/pkg/query"
	"github.com/JaimeStill/kisaanseva/pkg/repository"
)

var projection = query.
	NewProjectionMap("public", "audit_events", "ae").
	Project("id", "ID").
	Project("occurred_at", "OccurredAt").
	Project("actor", "Actor").
	Project("action", "Action").
	Project("subject_type", "SubjectType").
	Project("subject_id", "SubjectID").
	Project("details", "Details")

var defaultSort = query.SortField{Field: "OccurredAt", Descending: true}

func scanEvent(s repository.Scanner) (Event, error) {
	var (
		e       Event
		details []byte
	)
	err := s.Scan(
		&e.ID,
		&e.OccurredAt,
		&e.Actor,
		&e.Action,
		&e.SubjectType,
		&e.SubjectID,
		&details,
	)
	if err != nil {
		return e, err
	}
	if len(details) > 0 {
		err = json.Unmarshal(details, &e.Details)
	}
	return e, err
}
