package domain

import "time"

// SweepStats holds counters for one pass over all pollable accounts.
type SweepStats struct {
	SweepID          string
	Accounts         int
	Listed           int
	Skipped          int
	Fetched          int
	Created          int
	Cancelled        int
	NoMatch          int
	Unparsed         int
	ParseFailures    int
	Duplicates       int
	MarkReadFailures int
	AuthFailures     int
	Published        int
	Errors           int
	Duration         time.Duration
}
