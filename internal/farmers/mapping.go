package farmers

import (
	"github.com/JaimeStill/kisaanseva/pkg/query"
	"github.com/JaimeStill/kisaanseva/pkg/repository"
)

var projection = query.
	NewProjectionMap("public", "farmers", "f").
	Project("farmer_id", "FarmerID").
	Project("name", "Name").
	Project("phone", "Phone").
	Project("pin_code", "PinCode").
	Project("district", "District").
	Project("state", "State").
	Project("land_area", "LandArea").
	Project("land_unit", "LandUnit").
	Project("irrigation_type", "IrrigationType").
	Project("ownership_type", "OwnershipType").
	Project("created_at", "CreatedAt")

var cropProjection = query.
	NewProjectionMap("public", "farmer_crops", "fc").
	Project("farmer_id", "FarmerID").
	Project("crop_name", "CropName").
	Project("season", "Season").
	Project("area", "Area").
	Project("is_active", "IsActive")

var documentProjection = query.
	NewProjectionMap("public", "farmer_documents", "fd").
	Project("farmer_id", "FarmerID").
	Project("doc_type", "DocType").
	Project("file_name", "FileName").
	Project("uploaded_at", "UploadedAt").
	Project("verified", "Verified")

func scanFarmer(s repository.Scanner) (Farmer, error) {
	var f Farmer
	err := s.Scan(
		&f.FarmerID,
		&f.Name,
		&f.Phone,
		&f.PinCode,
		&f.District,
		&f.State,
		&f.LandArea,
		&f.LandUnit,
		&f.Profile.IrrigationType,
		&f.Profile.OwnershipType,
		&f.CreatedAt,
	)
	return f, err
}

func scanCrop(s repository.Scanner) (Crop, error) {
	var (
		c        Crop
		farmerID string
		active   bool
	)
	err := s.Scan(&farmerID, &c.CropName, &c.Season, &c.Area, &active)
	return c, err
}

func scanDocument(s repository.Scanner) (Document, error) {
	var (
		d        Document
		farmerID string
	)
	err := s.Scan(&farmerID, &d.DocType, &d.FileName, &d.UploadedAt, &d.Verified)
	return d, err
}
