package models

// IPOStats summarizes the store for the dashboard header
type IPOStats struct {
	TotalIPOs    int    `json:"totalIPOs"`
	OpenIPOs     int    `json:"openIPOs"`
	UpcomingIPOs int    `json:"upcomingIPOs"`
	ClosedIPOs   int    `json:"closedIPOs"`
	AvgPremium   string `json:"avgPremium"`
}
