package models

import (
	"strings"
	"time"
)

// IPO status values as exposed to the frontend
const (
	StatusOpen     = "open"
	StatusUpcoming = "upcoming"
	StatusClosed   = "closed"
	StatusUnknown  = "unknown"
)

// Exchange classifications derived from the listing name
const (
	ExchangeMainboard = "MAINBOARD"
	ExchangeBSESME    = "BSE SME"
	ExchangeNSESME    = "NSE SME"
)

// IPORecord is the canonical, normalized IPO listing
type IPORecord struct {
	ID         int64   `json:"id"`
	Name       string  `json:"name"`
	ScriptCode string  `json:"scriptCode"`
	IconURL    *string `json:"iconUrl"`

	// Prices are decimal strings so the source precision survives round trips
	MinPrice     *string `json:"minPrice"`
	MaxPrice     *string `json:"maxPrice"`
	ListingPrice *string `json:"listingPrice"`
	LotSize      *int    `json:"lotSize"`

	Premium            *string    `json:"premium"`
	PremiumPercentage  *float64   `json:"premiumPercentage"`
	PremiumLastUpdated *time.Time `json:"premiumLastUpdated"`

	OpenDate      string  `json:"openDate"`
	CloseDate     string  `json:"closeDate"`
	AllotmentDate *string `json:"allotmentDate"`
	ListingDate   *string `json:"listingDate"`
	AllotmentLink *string `json:"allotmentLink"`

	CurrentStatus string `json:"currentStatus"`
	Exchange      string `json:"exchange"`

	IsBuyer    bool `json:"isBuyer"`
	IsSeller   bool `json:"isSeller"`
	IsPreApply bool `json:"isPreApply"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// IPOInput carries everything a store needs to create a record
type IPOInput struct {
	Name               string
	ScriptCode         string
	IconURL            *string
	MinPrice           *string
	MaxPrice           *string
	ListingPrice       *string
	LotSize            *int
	Premium            *string
	PremiumPercentage  *float64
	PremiumLastUpdated *time.Time
	OpenDate           string
	CloseDate          string
	AllotmentDate      *string
	ListingDate        *string
	AllotmentLink      *string
	CurrentStatus      string
	Exchange           string
	IsBuyer            bool
	IsSeller           bool
	IsPreApply         bool
}

// IPOPatch holds a partial update; nil fields are left untouched
type IPOPatch struct {
	Name               *string
	ScriptCode         *string
	IconURL            *string
	MinPrice           *string
	MaxPrice           *string
	ListingPrice       *string
	LotSize            *int
	Premium            *string
	PremiumPercentage  *float64
	PremiumLastUpdated *time.Time
	OpenDate           *string
	CloseDate          *string
	AllotmentDate      *string
	ListingDate        *string
	AllotmentLink      *string
	CurrentStatus      *string
	Exchange           *string
	IsBuyer            *bool
	IsSeller           *bool
	IsPreApply         *bool
}

// NewIPORecord builds a record from input with the given id and timestamps
func NewIPORecord(id int64, in IPOInput, createdAt, updatedAt time.Time) IPORecord {
	return IPORecord{
		ID:                 id,
		Name:               in.Name,
		ScriptCode:         in.ScriptCode,
		IconURL:            in.IconURL,
		MinPrice:           in.MinPrice,
		MaxPrice:           in.MaxPrice,
		ListingPrice:       in.ListingPrice,
		LotSize:            in.LotSize,
		Premium:            in.Premium,
		PremiumPercentage:  in.PremiumPercentage,
		PremiumLastUpdated: in.PremiumLastUpdated,
		OpenDate:           in.OpenDate,
		CloseDate:          in.CloseDate,
		AllotmentDate:      in.AllotmentDate,
		ListingDate:        in.ListingDate,
		AllotmentLink:      in.AllotmentLink,
		CurrentStatus:      in.CurrentStatus,
		Exchange:           in.Exchange,
		IsBuyer:            in.IsBuyer,
		IsSeller:           in.IsSeller,
		IsPreApply:         in.IsPreApply,
		CreatedAt:          createdAt,
		UpdatedAt:          updatedAt,
	}
}

// Apply merges the non-nil patch fields into the record
func (p IPOPatch) Apply(r *IPORecord) {
	if p.Name != nil {
		r.Name = *p.Name
	}
	if p.ScriptCode != nil {
		r.ScriptCode = *p.ScriptCode
	}
	if p.IconURL != nil {
		r.IconURL = p.IconURL
	}
	if p.MinPrice != nil {
		r.MinPrice = p.MinPrice
	}
	if p.MaxPrice != nil {
		r.MaxPrice = p.MaxPrice
	}
	if p.ListingPrice != nil {
		r.ListingPrice = p.ListingPrice
	}
	if p.LotSize != nil {
		r.LotSize = p.LotSize
	}
	if p.Premium != nil {
		r.Premium = p.Premium
	}
	if p.PremiumPercentage != nil {
		r.PremiumPercentage = p.PremiumPercentage
	}
	if p.PremiumLastUpdated != nil {
		r.PremiumLastUpdated = p.PremiumLastUpdated
	}
	if p.OpenDate != nil {
		r.OpenDate = *p.OpenDate
	}
	if p.CloseDate != nil {
		r.CloseDate = *p.CloseDate
	}
	if p.AllotmentDate != nil {
		r.AllotmentDate = p.AllotmentDate
	}
	if p.ListingDate != nil {
		r.ListingDate = p.ListingDate
	}
	if p.AllotmentLink != nil {
		r.AllotmentLink = p.AllotmentLink
	}
	if p.CurrentStatus != nil {
		r.CurrentStatus = *p.CurrentStatus
	}
	if p.Exchange != nil {
		r.Exchange = *p.Exchange
	}
	if p.IsBuyer != nil {
		r.IsBuyer = *p.IsBuyer
	}
	if p.IsSeller != nil {
		r.IsSeller = *p.IsSeller
	}
	if p.IsPreApply != nil {
		r.IsPreApply = *p.IsPreApply
	}
}

// Clone returns a deep copy so callers cannot mutate stored state through pointers
func (r IPORecord) Clone() IPORecord {
	c := r
	c.IconURL = cloneString(r.IconURL)
	c.MinPrice = cloneString(r.MinPrice)
	c.MaxPrice = cloneString(r.MaxPrice)
	c.ListingPrice = cloneString(r.ListingPrice)
	c.Premium = cloneString(r.Premium)
	c.AllotmentDate = cloneString(r.AllotmentDate)
	c.ListingDate = cloneString(r.ListingDate)
	c.AllotmentLink = cloneString(r.AllotmentLink)
	if r.LotSize != nil {
		v := *r.LotSize
		c.LotSize = &v
	}
	if r.PremiumPercentage != nil {
		v := *r.PremiumPercentage
		c.PremiumPercentage = &v
	}
	if r.PremiumLastUpdated != nil {
		v := *r.PremiumLastUpdated
		c.PremiumLastUpdated = &v
	}
	return c
}

// NaturalKey identifies the same listing across sync runs
func (in IPOInput) NaturalKey() string {
	return NaturalKey(in.ScriptCode, in.Name, in.Exchange)
}

func cloneString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}

// NaturalKey is lower(scriptCode) or lower(name) when the code is blank, joined with the exchange
func NaturalKey(scriptCode, name, exchange string) string {
	id := strings.ToLower(strings.TrimSpace(scriptCode))
	if id == "" {
		id = strings.ToLower(strings.TrimSpace(name))
	}
	return id + "|" + strings.ToUpper(exchange)
}
