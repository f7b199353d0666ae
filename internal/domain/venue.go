package domain

// Venue identifies one of the two external trading counterparties. The set is
// closed: executor dispatch switches over exactly these values.
type Venue string

const (
	VenuePolymarket Venue = "polymarket"
	VenueKalshi     Venue = "kalshi"
)
