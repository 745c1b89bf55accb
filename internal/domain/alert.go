package domain

import "time"

// ParsedAlert is the structured action extracted from an alert's free text
// by the keyword classifier in the router package.
type ParsedAlert struct {
	Action       AlertAction
	ClosePercent float64 // 0-100, meaningful for close-type actions
}

// Alert is the persistent row tracking one follow-up action bound to a Trade
// by the parent's DiscordID.
type Alert struct {
	ID              int64
	ParentDiscordID string
	Timestamp       time.Time
	Content         string
	Trader          string
	Parsed          ParsedAlert
	BinanceResponse []byte // opaque venue payload, if the alert resulted in an order action
	Error           string // set when the alert could not be applied; row is still retained
	CreatedAt       time.Time
	UpdatedAt       time.Time
}
