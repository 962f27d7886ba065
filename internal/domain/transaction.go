package domain

import (
	"fmt"
	"strings"
	"time"
)

// TransactionType classifies a mobile money transaction.
type TransactionType string

const (
	TypeCashIn          TransactionType = "cash_in"
	TypeCashOut         TransactionType = "cash_out"
	TypeP2PTransfer     TransactionType = "p2p_transfer"
	TypeBillPayment     TransactionType = "bill_payment"
	TypeAirtimePurchase TransactionType = "airtime_purchase"
	TypeMerchantPayment TransactionType = "merchant_payment"
	TypeLoanRepayment   TransactionType = "loan_repayment"
	TypeBankToWallet    TransactionType = "bank_to_wallet"
)

// TransactionStatus tracks the settlement outcome of a transaction.
type TransactionStatus string

const (
	StatusCompleted TransactionStatus = "completed"
	StatusPending   TransactionStatus = "pending"
	StatusFailed    TransactionStatus = "failed"
)

var knownTypes = map[TransactionType]bool{
	TypeCashIn:          true,
	TypeCashOut:         true,
	TypeP2PTransfer:     true,
	TypeBillPayment:     true,
	TypeAirtimePurchase: true,
	TypeMerchantPayment: true,
	TypeLoanRepayment:   true,
	TypeBankToWallet:    true,
}

// KnownTransactionTypes returns the full set of supported transaction types.
func KnownTransactionTypes() []TransactionType {
	return []TransactionType{
		TypeCashIn, TypeCashOut, TypeP2PTransfer, TypeBillPayment,
		TypeAirtimePurchase, TypeMerchantPayment, TypeLoanRepayment, TypeBankToWallet,
	}
}

// Transaction represents a single mobile money transfer to be scored.
type Transaction struct {
	// Core identifiers
	ID              string `json:"id"`
	UserID          string `json:"userId"`
	SenderAccount   string `json:"senderAccount"`
	ReceiverAccount string `json:"receiverAccount"`

	// Financial details (amounts are in Malawi Kwacha)
	Amount float64         `json:"amount"`
	Type   TransactionType `json:"type"`
	Status TransactionStatus `json:"status"`

	// Temporal
	Timestamp time.Time `json:"timestamp"`
	CreatedAt time.Time `json:"createdAt"`

	// Channel and geography
	LocationCity     string `json:"locationCity"`
	DeviceType       string `json:"deviceType"`
	OSType           string `json:"osType"`
	NetworkOperator  string `json:"networkOperator"` // "TNM" or "Airtel"
	MerchantCategory string `json:"merchantCategory,omitempty"`

	// First-seen flags supplied by the channel layer
	IsNewDevice   bool `json:"isNewDevice"`
	IsNewLocation bool `json:"isNewLocation"`

	// RiskScore is the upstream heuristic score, later overwritten
	// with the model's enhanced risk score.
	RiskScore float64 `json:"riskScore"`
}

// Validate checks the minimum viable shape of a transaction.
func (t *Transaction) Validate() error {
	if t.Amount <= 0 {
		return fmt.Errorf("amount must be positive, got %v", t.Amount)
	}
	if t.Type != "" && !knownTypes[t.Type] {
		return fmt.Errorf("unknown transaction type %q", t.Type)
	}
	if t.Timestamp.IsZero() {
		return fmt.Errorf("timestamp is required")
	}
	return nil
}

// PredictRequest is the API request payload for transaction scoring.
// Only amount and timestamp are strictly required; everything else is
// optional and falls back to neutral defaults during feature building.
type PredictRequest struct {
	TransactionID    string    `json:"transactionId,omitempty"`
	UserID           string    `json:"userId"`
	SenderAccount    string    `json:"senderAccount"`
	ReceiverAccount  string    `json:"receiverAccount,omitempty"`
	Amount           float64   `json:"amount"`
	Type             string    `json:"transactionType"`
	Timestamp        time.Time `json:"timestamp"`
	LocationCity     string    `json:"locationCity,omitempty"`
	DeviceType       string    `json:"deviceType,omitempty"`
	OSType           string    `json:"osType,omitempty"`
	NetworkOperator  string    `json:"networkOperator,omitempty"`
	MerchantCategory string    `json:"merchantCategory,omitempty"`
	IsNewDevice      bool      `json:"isNewDevice,omitempty"`
	IsNewLocation    bool      `json:"isNewLocation,omitempty"`
}

// ToTransaction converts a request to a Transaction domain object.
func (r *PredictRequest) ToTransaction() *Transaction {
	now := time.Now().UTC()
	ts := r.Timestamp
	if ts.IsZero() {
		ts = now
	}
	sender := r.SenderAccount
	if sender == "" {
		sender = r.UserID
	}
	return &Transaction{
		ID:               r.TransactionID,
		UserID:           r.UserID,
		SenderAccount:    sender,
		ReceiverAccount:  r.ReceiverAccount,
		Amount:           r.Amount,
		Type:             TransactionType(strings.ToLower(r.Type)),
		Status:           StatusCompleted,
		Timestamp:        ts,
		CreatedAt:        now,
		LocationCity:     r.LocationCity,
		DeviceType:       r.DeviceType,
		OSType:           r.OSType,
		NetworkOperator:  r.NetworkOperator,
		MerchantCategory: r.MerchantCategory,
		IsNewDevice:      r.IsNewDevice,
		IsNewLocation:    r.IsNewLocation,
	}
}
