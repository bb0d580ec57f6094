package models

import "time"

// PremiumQuote is one grey market premium row scraped from a premium feed page
type PremiumQuote struct {
	IPOName           string    `json:"ipo_name"`
	Premium           string    `json:"premium"`
	PremiumPercentage *float64  `json:"premium_percentage,omitempty"`
	RawText           string    `json:"raw_text"`
	DataSource        string    `json:"data_source"`
	LastUpdated       time.Time `json:"last_updated"`
}

// PremiumRefreshResult reports what a premium refresh run touched
type PremiumRefreshResult struct {
	RowsParsed     int           `json:"rows_parsed"`
	RecordsUpdated int           `json:"records_updated"`
	Unmatched      []string      `json:"unmatched,omitempty"`
	Duration       time.Duration `json:"duration"`
}
