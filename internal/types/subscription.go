package types

// Subscription is a standing filter registered with every readable relay.
type Subscription struct {
	ID     string
	Filter Filter
}
