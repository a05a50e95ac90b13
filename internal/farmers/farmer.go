// Package farmers implements the farmer directory: registered farmers, their
// land profile, crops, and uploaded documents.
package farmers

import (
	"regexp"
	"time"
)

// IDPattern matches a farmer identifier: "KS" and nine upper-case alphanumerics.
const IDPattern = `^KS[A-Z0-9]{9}$`

var idPattern = regexp.MustCompile(IDPattern)

// ValidID reports whether s is a well-formed farmer identifier.
func ValidID(s string) bool {
	return idPattern.MatchString(s)
}

// Farmer is a registered farmer. Crops and Documents are populated only by
// Record; Resolve returns the base row.
type Farmer struct {
	FarmerID  string     `json:"farmer_id"`
	Name      string     `json:"name"`
	Phone     string     `json:"phone"`
	PinCode   string     `json:"pin_code"`
	District  string     `json:"district"`
	State     string     `json:"state"`
	LandArea  float64    `json:"land_area"`
	LandUnit  string     `json:"land_unit"`
	Profile   Profile    `json:"profile"`
	Crops     []Crop     `json:"crops"`
	Documents []Document `json:"documents"`
	CreatedAt time.Time  `json:"created_at"`
}

// Profile holds the land attributes used by eligibility rules.
type Profile struct {
	IrrigationType string `json:"irrigation_type"`
	OwnershipType  string `json:"ownership_type"`
}

// Crop is a crop a farmer grows in a season.
type Crop struct {
	CropName string  `json:"crop_name"`
	Season   string  `json:"season"`
	Area     float64 `json:"area"`
}

// Document is a document a farmer has uploaded.
type Document struct {
	DocType    string    `json:"doc_type"`
	FileName   string    `json:"file_name"`
	UploadedAt time.Time `json:"uploaded_at"`
	Verified   bool      `json:"verified"`
}

// Summary is the masked view returned by lookup before any consent exists.
type Summary struct {
	FarmerID    string `json:"farmer_id"`
	Name        string `json:"name"`
	PhoneMasked string `json:"phone_masked"`
	District    string `json:"district"`
	State       string `json:"state"`
}

// LookupCommand carries a farmer_id or phone number.
type LookupCommand struct {
	Query string `json:"query"`
}
