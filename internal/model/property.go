package model

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// PropertyRecord is the normalized view of a listing. Legacy rows carry the
// property type in `type` and the bedroom count in `num_bedrooms`; both are
// kept so filtering can tolerate either column.
type PropertyRecord struct {
	ID           string    `json:"id" db:"id"`
	Title        string    `json:"title" db:"title"`
	Description  *string   `json:"description,omitempty" db:"description"`
	Price        *int64    `json:"price,omitempty" db:"price"`
	Address      *string   `json:"address,omitempty" db:"address"`
	City         *string   `json:"city,omitempty" db:"city"`
	State        *string   `json:"state,omitempty" db:"state"`
	ZipCode      *string   `json:"zip_code,omitempty" db:"zip_code"`
	PropertyType *string   `json:"property_type,omitempty" db:"property_type"`
	Type         *string   `json:"type,omitempty" db:"type"`
	ListingType  *string   `json:"listing_type,omitempty" db:"listing_type"`
	Bedrooms     *int      `json:"bedrooms,omitempty" db:"bedrooms"`
	NumBedrooms  *int      `json:"num_bedrooms,omitempty" db:"num_bedrooms"`
	Bathrooms    *float64  `json:"bathrooms,omitempty" db:"bathrooms"`
	SquareFeet   *int      `json:"square_feet,omitempty" db:"square_feet"`
	Features     JSONArray `json:"features,omitempty" db:"features"`
	Images       JSONArray `json:"images,omitempty" db:"images"`
	IsActive     bool      `json:"is_active" db:"is_active"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
}

// PropertyTypes returns the non-empty values of property_type and type.
func (p PropertyRecord) PropertyTypes() []string {
	var out []string
	for _, v := range []*string{p.PropertyType, p.Type} {
		if v != nil && *v != "" {
			out = append(out, *v)
		}
	}
	return out
}

// DisplayType is the type shown to users: property_type, else type.
func (p PropertyRecord) DisplayType() string {
	if types := p.PropertyTypes(); len(types) > 0 {
		return types[0]
	}
	return ""
}

// BedroomCount returns bedrooms, falling back to num_bedrooms.
func (p PropertyRecord) BedroomCount() *int {
	if p.Bedrooms != nil {
		return p.Bedrooms
	}
	return p.NumBedrooms
}

// EmbeddingText renders the record as the text that gets embedded for
// semantic search.
func (p PropertyRecord) EmbeddingText() string {
	var b strings.Builder
	b.WriteString(p.Title)
	b.WriteString(".")
	if p.Description != nil && *p.Description != "" {
		b.WriteString(" ")
		b.WriteString(*p.Description)
	}
	if t := p.DisplayType(); t != "" {
		fmt.Fprintf(&b, "\n%s", t)
		if p.ListingType != nil {
			fmt.Fprintf(&b, " for %s", *p.ListingType)
		}
	}
	fmt.Fprintf(&b, "\nLocated in %s, %s", StringValue(p.City), StringValue(p.State))
	if p.Price != nil {
		fmt.Fprintf(&b, "\nPrice: %d", *p.Price)
	}
	if beds := p.BedroomCount(); beds != nil {
		fmt.Fprintf(&b, "\n%d bedrooms", *beds)
	}
	if p.SquareFeet != nil {
		fmt.Fprintf(&b, "\n%d square feet", *p.SquareFeet)
	}
	if len(p.Features) > 0 {
		fmt.Fprintf(&b, "\nFeatures: %s", strings.Join(p.Features, ", "))
	}
	return b.String()
}

// PropertyIDs collects record ids in order.
func PropertyIDs(records []PropertyRecord) []string {
	ids := make([]string, len(records))
	for i, r := range records {
		ids[i] = r.ID
	}
	return ids
}

// StringValue returns *s, or "" when s is nil.
func StringValue(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// JSONArray represents a JSON array column
type JSONArray []string

// Value implements driver.Valuer interface
func (j JSONArray) Value() (driver.Value, error) {
	if j == nil {
		return nil, nil
	}
	return json.Marshal(j)
}

// Scan implements sql.Scanner interface
func (j *JSONArray) Scan(value interface{}) error {
	switch v := value.(type) {
	case nil:
		*j = nil
		return nil
	case []byte:
		return json.Unmarshal(v, j)
	case string:
		return json.Unmarshal([]byte(v), j)
	default:
		return fmt.Errorf("unsupported JSONArray source %T", value)
	}
}
