package model

import "strconv"

// Filter keys, in the order they are rendered into semantic query text.
const (
	KeyPropertyType = "property_type"
	KeyBedrooms     = "bedrooms"
	KeyState        = "state"
	KeyCity         = "city"
	KeyListingType  = "listing_type"
)

// FilterSet holds search constraints extracted from an utterance. A nil
// field is unconstrained.
type FilterSet struct {
	State        *string `json:"state,omitempty"`
	City         *string `json:"city,omitempty"`
	ListingType  *string `json:"listing_type,omitempty"`
	PropertyType *string `json:"property_type,omitempty"`
	Bedrooms     *int    `json:"bedrooms,omitempty"`
}

// FilterPair is one set key with its rendered value.
type FilterPair struct {
	Key   string
	Value string
}

// IsEmpty reports whether no key is set.
func (f FilterSet) IsEmpty() bool {
	return f.State == nil && f.City == nil && f.ListingType == nil &&
		f.PropertyType == nil && f.Bedrooms == nil
}

// Pairs lists the set keys in a stable order.
func (f FilterSet) Pairs() []FilterPair {
	var pairs []FilterPair
	if f.PropertyType != nil {
		pairs = append(pairs, FilterPair{KeyPropertyType, *f.PropertyType})
	}
	if f.Bedrooms != nil {
		pairs = append(pairs, FilterPair{KeyBedrooms, strconv.Itoa(*f.Bedrooms)})
	}
	if f.State != nil {
		pairs = append(pairs, FilterPair{KeyState, *f.State})
	}
	if f.City != nil {
		pairs = append(pairs, FilterPair{KeyCity, *f.City})
	}
	if f.ListingType != nil {
		pairs = append(pairs, FilterPair{KeyListingType, *f.ListingType})
	}
	return pairs
}

// Fields returns the set keys as a map, for structured logging.
func (f FilterSet) Fields() map[string]string {
	fields := make(map[string]string)
	for _, p := range f.Pairs() {
		fields[p.Key] = p.Value
	}
	return fields
}
