package identity

import (
	"github.com/JaimeStill/kisaanseva/pkg/query"
	"github.com/JaimeStill/kisaanseva/pkg/repository"
)

var projection = query.
	NewProjectionMap("public", "agents", "a").
	Project("id", "ID").
	Project("name", "Name").
	Project("phone", "Phone").
	Project("center_name", "CenterName").
	Project("center_code", "CenterCode").
	Project("center_type", "CenterType").
	Project("is_active", "IsActive").
	Project("password_hash", "PasswordHash").
	Project("created_at", "CreatedAt")

func scanAgent(s repository.Scanner) (Agent, error) {
	var a Agent
	err := s.Scan(
		&a.ID,
		&a.Name,
		&a.Phone,
		&a.CenterName,
		&a.CenterCode,
		&a.CenterType,
		&a.IsActive,
		&a.PasswordHash,
		&a.CreatedAt,
	)
	return a, err
}
