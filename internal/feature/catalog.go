// Package feature builds the engineered feature set for mobile money
// transactions. The catalog pins the column names, reference tables and
// defaults; the engine derives the values.
package feature

// Column names shared between training and inference. The order of
// these slices is the canonical column order.
var (
	// RawNumerical are columns taken directly off the transaction.
	RawNumerical = []string{
		"amount",
		"transaction_hour_of_day",
		"transaction_day_of_week",
		"risk_score",
	}

	// Categorical columns are label-encoded by the preprocessor.
	Categorical = []string{
		"transaction_type",
		"network_operator",
		"device_type",
		"os_type",
		"merchant_category",
		"location_city",
		"status",
	}

	// Boolean columns pass through as 0/1.
	Boolean = []string{
		"is_weekend",
		"is_business_hours",
		"is_new_device",
		"is_new_location",
	}

	// DerivedNumerical are engineered columns, scaled together with
	// the raw numerical set.
	DerivedNumerical = []string{
		"amount_log",
		"amount_sqrt",
		"amount_zscore_global",
		"is_micro_transaction",
		"is_small_transaction",
		"is_large_transaction",
		"is_round_amount",
		"customer_amount_mean",
		"customer_amount_std",
		"customer_amount_count",
		"customer_amount_sum",
		"customer_hour_mean",
		"customer_hour_std",
		"customer_location_nunique",
		"customer_txn_type_nunique",
		"is_new_customer",
		"is_high_frequency_customer",
		"customer_location_diversity",
		"amount_deviation_from_customer",
		"is_market_day",
		"is_late_night",
		"is_early_morning",
		"hour_sin",
		"hour_cos",
		"day_sin",
		"day_cos",
		"day_of_month",
		"is_payday",
		"days_since_payday",
		"cultural_risk_modifier",
		"location_risk_score",
		"is_major_city",
		"is_border_area",
		"transaction_risk_score",
		"is_high_risk_transaction",
		"is_cash_transaction",
		"is_tnm",
		"is_airtel",
		"transaction_velocity_score",
		"device_consistency_score",
		"location_consistency_score",
		"amount_percentile",
		"is_amount_outlier",
		"composite_risk_score",
		"risk_confidence_score",
		"amount_time_interaction",
		"location_amount_interaction",
		"consistency_risk_interaction",
		"txn_type_amount_mean",
		"txn_type_amount_std",
		"txn_type_amount_count",
		"amount_deviation_from_txn_type",
		"account_age_days",
		"user_total_transactions",
		"user_total_amount_spent",
	}
)

// TrainingFeatures returns the canonical model feature list in column
// order: raw numerical, categorical, boolean, then derived.
func TrainingFeatures() []string {
	out := make([]string, 0, len(RawNumerical)+len(Categorical)+len(Boolean)+len(DerivedNumerical))
	out = append(out, RawNumerical...)
	out = append(out, Categorical...)
	out = append(out, Boolean...)
	out = append(out, DerivedNumerical...)
	return out
}

// Amount band thresholds in Malawi Kwacha.
const (
	MicroAmountMax = 1000
	SmallAmountMax = 10000
	LargeAmountMin = 50000
	RoundAmountDiv = 1000
)

// cityRiskScores maps Malawian cities to their baseline risk. Unknown
// cities get the conservative default.
var cityRiskScores = map[string]float64{
	"Lilongwe": 0.1,
	"Blantyre": 0.15,
	"Mzuzu":    0.2,
	"Zomba":    0.25,
	"Kasungu":  0.3,
	"Mangochi": 0.35,
}

const defaultCityRisk = 0.4

var majorCities = map[string]bool{
	"Lilongwe": true,
	"Blantyre": true,
	"Mzuzu":    true,
}

var borderAreas = map[string]bool{
	"Mangochi": true,
	"Nsanje":   true,
	"Karonga":  true,
}

// txnTypeRiskScores maps transaction types to baseline risk. Types not
// listed (loan repayments, bank transfers) take the default.
var txnTypeRiskScores = map[string]float64{
	"cash_out":         0.4,
	"p2p_transfer":     0.2,
	"bill_payment":     0.1,
	"airtime_purchase": 0.05,
	"cash_in":          0.15,
	"merchant_payment": 0.1,
}

const defaultTxnTypeRisk = 0.3

var highRiskTxnTypes = map[string]bool{
	"cash_out":     true,
	"p2p_transfer": true,
}

var cashTxnTypes = map[string]bool{
	"cash_in":  true,
	"cash_out": true,
}

// CityRiskScore returns the baseline risk for a city.
func CityRiskScore(city string) float64 {
	if r, ok := cityRiskScores[city]; ok {
		return r
	}
	return defaultCityRisk
}

// IsMajorCity reports whether the city is one of the three major urban
// centres.
func IsMajorCity(city string) bool { return majorCities[city] }

// IsBorderArea reports whether the city sits on a national border.
func IsBorderArea(city string) bool { return borderAreas[city] }

// TxnTypeRiskScore returns the baseline risk for a transaction type.
func TxnTypeRiskScore(txnType string) float64 {
	if r, ok := txnTypeRiskScores[txnType]; ok {
		return r
	}
	return defaultTxnTypeRisk
}

// IsHighRiskTxnType reports whether the type is in the high-risk set.
func IsHighRiskTxnType(txnType string) bool { return highRiskTxnTypes[txnType] }

// IsCashTxnType reports whether the type moves physical cash.
func IsCashTxnType(txnType string) bool { return cashTxnTypes[txnType] }

// Temporal reference tables.
var (
	// marketDays are the customary market days (Monday=0 weekday
	// convention): Monday, Wednesday and Saturday.
	marketDays = map[int]bool{0: true, 2: true, 5: true}

	// paydays are the days of month when salaries typically land.
	paydays = []int{1, 15, 30, 31}
)

// IsMarketDay reports whether the weekday (Monday=0) is a market day.
func IsMarketDay(day int) bool { return marketDays[day] }

// Paydays returns the salary days of the month.
func Paydays() []int { return paydays }

// CulturalRiskModifier returns the seasonal risk multiplier for a
// month: elevated in December (festive season), reduced during the
// March-May harvest, neutral otherwise.
func CulturalRiskModifier(month int) float64 {
	switch {
	case month == 12:
		return 1.2
	case month >= 3 && month <= 5:
		return 0.9
	default:
		return 1.0
	}
}

// OptionalDefaults is the declared default table for optional columns
// that are absent at inference time. Columns not listed default to 0.
var OptionalDefaults = map[string]float64{
	"transaction_velocity_score": 1.0,
	"device_consistency_score":   0.9,
	"location_consistency_score": 0.9,
	"cultural_risk_modifier":     1.0,
	"amount_percentile":          0.5,
}
