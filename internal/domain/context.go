package domain

import "time"

// AggregateContext carries the historical aggregates a single
// transaction is scored against. All counts are computed over the
// stored transaction history; a zero value means "no history", which
// the feature engine treats as a brand-new customer.
type AggregateContext struct {
	// Per-user history
	UserTxnCount      int64     `json:"userTxnCount"`
	UserTotalAmount   float64   `json:"userTotalAmount"`
	FirstTxnAt        time.Time `json:"firstTxnAt"` // zero when unknown
	UserLocationCount int64     `json:"userLocationCount"`
	UserDeviceCount   int64     `json:"userDeviceCount"`
	UserTxnTypeCount  int64     `json:"userTxnTypeCount"`

	// Per-location aggregates
	LocationUserCount  int64   `json:"locationUserCount"`
	LocationAmountMean float64 `json:"locationAmountMean"`
	LocationTxnCount   int64   `json:"locationTxnCount"`

	// Per-network aggregates
	NetworkAmountMean float64 `json:"networkAmountMean"`
	NetworkUserCount  int64   `json:"networkUserCount"`

	// Per-transaction-type aggregates
	TxnTypeAmountMean float64 `json:"txnTypeAmountMean"`
	TxnTypeAmountStd  float64 `json:"txnTypeAmountStd"`
}

// AccountAgeDays returns the age of the account at the given instant,
// or 0 when the first transaction time is unknown.
func (c *AggregateContext) AccountAgeDays(at time.Time) float64 {
	if c == nil || c.FirstTxnAt.IsZero() || at.Before(c.FirstTxnAt) {
		return 0
	}
	return at.Sub(c.FirstTxnAt).Hours() / 24
}
