package feature

import (
	"errors"
	"math"
	"sort"
	"time"

	"github.com/MkandawireChico/mobile-money-fraud-final/internal/domain"
)

// ErrEmptyInput is returned when there is nothing to build features from.
var ErrEmptyInput = errors.New("feature: no transactions to build features from")

// Record pairs a transaction with the aggregate context fetched for
// it. Ctx may be nil; batch builds derive group statistics from the
// batch itself, single-row builds substitute zero history.
type Record struct {
	Tx  *domain.Transaction
	Ctx *domain.AggregateContext
}

// Build derives the full engineered feature set for a batch of
// records. A single record with an AggregateContext produces the
// inference-time feature vector; a large batch without contexts
// produces the training frame with group statistics computed over the
// batch.
func Build(records []Record) (*Frame, error) {
	n := len(records)
	if n == 0 {
		return nil, ErrEmptyInput
	}

	f := NewFrame(n)

	amounts := make([]float64, n)
	hours := make([]float64, n)
	days := make([]float64, n)
	riskScores := make([]float64, n)
	for i, r := range records {
		amounts[i] = r.Tx.Amount
		hours[i] = float64(r.Tx.Timestamp.Hour())
		days[i] = float64(pyWeekday(r.Tx.Timestamp))
		riskScores[i] = r.Tx.RiskScore
	}
	f.SetNumeric("amount", amounts)
	f.SetNumeric("transaction_hour_of_day", hours)
	f.SetNumeric("transaction_day_of_week", days)
	f.SetNumeric("risk_score", riskScores)

	setLabelCol(f, records, "transaction_type", func(t *domain.Transaction) string { return string(t.Type) })
	setLabelCol(f, records, "network_operator", func(t *domain.Transaction) string { return t.NetworkOperator })
	setLabelCol(f, records, "device_type", func(t *domain.Transaction) string { return t.DeviceType })
	setLabelCol(f, records, "os_type", func(t *domain.Transaction) string { return t.OSType })
	setLabelCol(f, records, "merchant_category", func(t *domain.Transaction) string { return t.MerchantCategory })
	setLabelCol(f, records, "location_city", func(t *domain.Transaction) string { return t.LocationCity })
	setLabelCol(f, records, "status", func(t *domain.Transaction) string { return string(t.Status) })

	setBoolCol(f, n, "is_weekend", func(i int) bool { d := int(days[i]); return d == 5 || d == 6 })
	setBoolCol(f, n, "is_business_hours", func(i int) bool { h := int(hours[i]); return h >= 8 && h <= 17 })
	setBoolCol(f, n, "is_new_device", func(i int) bool { return records[i].Tx.IsNewDevice })
	setBoolCol(f, n, "is_new_location", func(i int) bool { return records[i].Tx.IsNewLocation })

	buildAmountFeatures(f, amounts)
	buildCustomerFeatures(f, records, amounts, hours)
	buildTemporalFeatures(f, records, hours, days)
	buildGeoNetworkFeatures(f, records, amounts)
	buildBehavioralFeatures(f, records, amounts)
	buildRiskComposite(f, n)
	buildInteractions(f, n)
	buildTxnTypeNorm(f, records, amounts)
	buildContextColumns(f, records)

	return f, nil
}

// pyWeekday maps Go weekdays onto the Monday=0 convention used by the
// temporal reference tables.
func pyWeekday(t time.Time) int {
	return (int(t.Weekday()) + 6) % 7
}

func setLabelCol(f *Frame, records []Record, name string, get func(*domain.Transaction) string) {
	vals := make([]string, len(records))
	for i, r := range records {
		vals[i] = get(r.Tx)
	}
	f.SetLabels(name, vals)
}

func setBoolCol(f *Frame, n int, name string, pred func(i int) bool) {
	vals := make([]float64, n)
	for i := 0; i < n; i++ {
		if pred(i) {
			vals[i] = 1
		}
	}
	f.SetNumeric(name, vals)
}

func buildAmountFeatures(f *Frame, amounts []float64) {
	n := len(amounts)
	logs := make([]float64, n)
	sqrts := make([]float64, n)
	micro := make([]float64, n)
	small := make([]float64, n)
	large := make([]float64, n)
	round := make([]float64, n)
	for i, a := range amounts {
		logs[i] = math.Log1p(a)
		sqrts[i] = math.Sqrt(a)
		if a <= MicroAmountMax {
			micro[i] = 1
		}
		if a > MicroAmountMax && a <= SmallAmountMax {
			small[i] = 1
		}
		if a > LargeAmountMin {
			large[i] = 1
		}
		if math.Mod(a, RoundAmountDiv) == 0 {
			round[i] = 1
		}
	}
	f.SetNumeric("amount_log", logs)
	f.SetNumeric("amount_sqrt", sqrts)

	// Global z-score needs at least two rows to carry information;
	// single-row builds get a neutral 0.
	z := make([]float64, n)
	if n > 1 {
		mean, std := meanStd(amounts)
		if std > 0 {
			for i, a := range amounts {
				z[i] = (a - mean) / std
			}
		}
	}
	f.SetNumeric("amount_zscore_global", z)

	f.SetNumeric("is_micro_transaction", micro)
	f.SetNumeric("is_small_transaction", small)
	f.SetNumeric("is_large_transaction", large)
	f.SetNumeric("is_round_amount", round)
}

// buildCustomerFeatures derives per-sender history statistics. For a
// batch the sender's rows within the batch form the history; for a
// single row the AggregateContext substitutes.
func buildCustomerFeatures(f *Frame, records []Record, amounts, hours []float64) {
	n := len(records)
	mean := make([]float64, n)
	std := make([]float64, n)
	count := make([]float64, n)
	sum := make([]float64, n)
	hourMean := make([]float64, n)
	hourStd := make([]float64, n)
	locN := make([]float64, n)
	typeN := make([]float64, n)

	if n == 1 {
		ctx := records[0].Ctx
		if ctx != nil && ctx.UserTxnCount > 0 {
			count[0] = float64(ctx.UserTxnCount)
			sum[0] = ctx.UserTotalAmount
			mean[0] = ctx.UserTotalAmount / float64(ctx.UserTxnCount)
			locN[0] = float64(ctx.UserLocationCount)
			typeN[0] = float64(ctx.UserTxnTypeCount)
		}
		hourMean[0] = hours[0]
	} else {
		groups := make(map[string][]int)
		for i, r := range records {
			groups[r.Tx.SenderAccount] = append(groups[r.Tx.SenderAccount], i)
		}
		for _, idx := range groups {
			var amtVals, hrVals []float64
			locs := make(map[string]bool)
			types := make(map[string]bool)
			var total float64
			for _, i := range idx {
				amtVals = append(amtVals, amounts[i])
				hrVals = append(hrVals, hours[i])
				total += amounts[i]
				locs[records[i].Tx.LocationCity] = true
				types[string(records[i].Tx.Type)] = true
			}
			am, as := meanStd(amtVals)
			hm, hs := meanStd(hrVals)
			for _, i := range idx {
				mean[i] = am
				std[i] = as
				count[i] = float64(len(idx))
				sum[i] = total
				hourMean[i] = hm
				hourStd[i] = hs
				locN[i] = float64(len(locs))
				typeN[i] = float64(len(types))
			}
		}
	}

	f.SetNumeric("customer_amount_mean", mean)
	f.SetNumeric("customer_amount_std", std)
	f.SetNumeric("customer_amount_count", count)
	f.SetNumeric("customer_amount_sum", sum)
	f.SetNumeric("customer_hour_mean", hourMean)
	f.SetNumeric("customer_hour_std", hourStd)
	f.SetNumeric("customer_location_nunique", locN)
	f.SetNumeric("customer_txn_type_nunique", typeN)

	newCust := make([]float64, n)
	highFreq := make([]float64, n)
	locDiv := make([]float64, n)
	dev := make([]float64, n)
	for i := 0; i < n; i++ {
		if count[i] <= 2 {
			newCust[i] = 1
		}
		if count[i] > 20 {
			highFreq[i] = 1
		}
		locDiv[i] = locN[i]
		dev[i] = math.Abs(amounts[i]-mean[i]) / (std[i] + 1)
	}
	f.SetNumeric("is_new_customer", newCust)
	f.SetNumeric("is_high_frequency_customer", highFreq)
	f.SetNumeric("customer_location_diversity", locDiv)
	f.SetNumeric("amount_deviation_from_customer", dev)
}

func buildTemporalFeatures(f *Frame, records []Record, hours, days []float64) {
	n := len(records)
	market := make([]float64, n)
	lateNight := make([]float64, n)
	earlyMorning := make([]float64, n)
	hourSin := make([]float64, n)
	hourCos := make([]float64, n)
	daySin := make([]float64, n)
	dayCos := make([]float64, n)
	dayOfMonth := make([]float64, n)
	payday := make([]float64, n)
	sincePayday := make([]float64, n)
	cultural := make([]float64, n)

	for i := 0; i < n; i++ {
		h := int(hours[i])
		d := int(days[i])
		if IsMarketDay(d) {
			market[i] = 1
		}
		if h >= 22 || h <= 5 {
			lateNight[i] = 1
		}
		if h >= 5 && h <= 7 {
			earlyMorning[i] = 1
		}
		hourSin[i] = math.Sin(2 * math.Pi * hours[i] / 24)
		hourCos[i] = math.Cos(2 * math.Pi * hours[i] / 24)
		daySin[i] = math.Sin(2 * math.Pi * days[i] / 7)
		dayCos[i] = math.Cos(2 * math.Pi * days[i] / 7)

		ts := records[i].Tx.Timestamp
		dom := ts.Day()
		dayOfMonth[i] = float64(dom)
		minDist := math.MaxFloat64
		for _, p := range Paydays() {
			if p == dom {
				payday[i] = 1
			}
			if dist := math.Abs(float64(dom - p)); dist < minDist {
				minDist = dist
			}
		}
		sincePayday[i] = minDist
		cultural[i] = CulturalRiskModifier(int(ts.Month()))
	}

	f.SetNumeric("is_market_day", market)
	f.SetNumeric("is_late_night", lateNight)
	f.SetNumeric("is_early_morning", earlyMorning)
	f.SetNumeric("hour_sin", hourSin)
	f.SetNumeric("hour_cos", hourCos)
	f.SetNumeric("day_sin", daySin)
	f.SetNumeric("day_cos", dayCos)
	f.SetNumeric("day_of_month", dayOfMonth)
	f.SetNumeric("is_payday", payday)
	f.SetNumeric("days_since_payday", sincePayday)
	f.SetNumeric("cultural_risk_modifier", cultural)
}

func buildGeoNetworkFeatures(f *Frame, records []Record, amounts []float64) {
	n := len(records)
	locRisk := make([]float64, n)
	major := make([]float64, n)
	border := make([]float64, n)
	txnRisk := make([]float64, n)
	highRisk := make([]float64, n)
	cash := make([]float64, n)
	tnm := make([]float64, n)
	airtel := make([]float64, n)

	for i, r := range records {
		city := r.Tx.LocationCity
		locRisk[i] = CityRiskScore(city)
		if IsMajorCity(city) {
			major[i] = 1
		}
		if IsBorderArea(city) {
			border[i] = 1
		}
		typ := string(r.Tx.Type)
		txnRisk[i] = TxnTypeRiskScore(typ)
		if IsHighRiskTxnType(typ) {
			highRisk[i] = 1
		}
		if IsCashTxnType(typ) {
			cash[i] = 1
		}
		switch r.Tx.NetworkOperator {
		case "TNM":
			tnm[i] = 1
		case "Airtel":
			airtel[i] = 1
		}
	}

	f.SetNumeric("location_risk_score", locRisk)
	f.SetNumeric("is_major_city", major)
	f.SetNumeric("is_border_area", border)
	f.SetNumeric("transaction_risk_score", txnRisk)
	f.SetNumeric("is_high_risk_transaction", highRisk)
	f.SetNumeric("is_cash_transaction", cash)
	f.SetNumeric("is_tnm", tnm)
	f.SetNumeric("is_airtel", airtel)
}

func buildBehavioralFeatures(f *Frame, records []Record, amounts []float64) {
	n := len(records)
	velocity := make([]float64, n)
	devCons := make([]float64, n)
	locCons := make([]float64, n)
	for i, r := range records {
		velocity[i] = 1.0
		if r.Tx.IsNewDevice {
			devCons[i] = 0.3
		} else {
			devCons[i] = 0.9
		}
		if r.Tx.IsNewLocation {
			locCons[i] = 0.4
		} else {
			locCons[i] = 0.9
		}
	}
	f.SetNumeric("transaction_velocity_score", velocity)
	f.SetNumeric("device_consistency_score", devCons)
	f.SetNumeric("location_consistency_score", locCons)

	pct := percentileRank(amounts)
	outlier := make([]float64, n)
	for i, p := range pct {
		if p < 0.05 || p > 0.95 {
			outlier[i] = 1
		}
	}
	f.SetNumeric("amount_percentile", pct)
	f.SetNumeric("is_amount_outlier", outlier)
}

// Component confidences for the composite risk score, in component
// order: location, transaction type, late night, large amount,
// behavioral, temporal.
var riskComponentConfidence = []float64{0.8, 0.9, 0.7, 0.85, 0.75, 0.8}

func buildRiskComposite(f *Frame, n int) {
	composite := make([]float64, n)
	confidence := make([]float64, n)

	var confSum float64
	for _, c := range riskComponentConfidence {
		confSum += c
	}
	meanConf := confSum / float64(len(riskComponentConfidence))

	for i := 0; i < n; i++ {
		behavioral := 0.3*(1-f.At("device_consistency_score", i)) +
			0.2*(1-f.At("location_consistency_score", i)) +
			0.25*f.At("is_amount_outlier", i)
		temporal := (0.4*f.At("is_late_night", i) +
			0.2*(1-f.At("is_business_hours", i)) +
			0.1*f.At("is_weekend", i)) * f.At("cultural_risk_modifier", i)

		components := []float64{
			f.At("location_risk_score", i),
			f.At("transaction_risk_score", i),
			0.3 * f.At("is_late_night", i),
			0.4 * f.At("is_large_transaction", i),
			behavioral,
			temporal,
		}
		var weighted float64
		for j, c := range components {
			weighted += c * riskComponentConfidence[j]
		}
		composite[i] = weighted / confSum
		confidence[i] = meanConf
	}
	f.SetNumeric("composite_risk_score", composite)
	f.SetNumeric("risk_confidence_score", confidence)
}

func buildInteractions(f *Frame, n int) {
	amtTime := make([]float64, n)
	locAmt := make([]float64, n)
	consRisk := make([]float64, n)
	for i := 0; i < n; i++ {
		amtTime[i] = f.At("amount_log", i) * f.At("is_late_night", i)
		locAmt[i] = f.At("location_risk_score", i) * f.At("is_large_transaction", i)
		consRisk[i] = f.At("device_consistency_score", i) * f.At("location_consistency_score", i)
	}
	f.SetNumeric("amount_time_interaction", amtTime)
	f.SetNumeric("location_amount_interaction", locAmt)
	f.SetNumeric("consistency_risk_interaction", consRisk)
}

// buildTxnTypeNorm derives amount statistics per transaction type. A
// single row takes them from context; batches compute them over the
// batch.
func buildTxnTypeNorm(f *Frame, records []Record, amounts []float64) {
	n := len(records)
	mean := make([]float64, n)
	std := make([]float64, n)
	count := make([]float64, n)

	if n == 1 {
		if ctx := records[0].Ctx; ctx != nil {
			mean[0] = ctx.TxnTypeAmountMean
			std[0] = ctx.TxnTypeAmountStd
		}
	} else {
		groups := make(map[string][]int)
		for i, r := range records {
			groups[string(r.Tx.Type)] = append(groups[string(r.Tx.Type)], i)
		}
		for _, idx := range groups {
			vals := make([]float64, len(idx))
			for j, i := range idx {
				vals[j] = amounts[i]
			}
			m, s := meanStd(vals)
			for _, i := range idx {
				mean[i] = m
				std[i] = s
				count[i] = float64(len(idx))
			}
		}
	}

	dev := make([]float64, n)
	for i := 0; i < n; i++ {
		dev[i] = amounts[i] - mean[i]
	}
	f.SetNumeric("txn_type_amount_mean", mean)
	f.SetNumeric("txn_type_amount_std", std)
	f.SetNumeric("txn_type_amount_count", count)
	f.SetNumeric("amount_deviation_from_txn_type", dev)
}

func buildContextColumns(f *Frame, records []Record) {
	n := len(records)
	age := make([]float64, n)
	totalTxns := make([]float64, n)
	totalSpent := make([]float64, n)
	for i, r := range records {
		if r.Ctx != nil {
			age[i] = r.Ctx.AccountAgeDays(r.Tx.Timestamp)
			totalTxns[i] = float64(r.Ctx.UserTxnCount)
			totalSpent[i] = r.Ctx.UserTotalAmount
		} else {
			totalTxns[i] = f.At("customer_amount_count", i)
			totalSpent[i] = f.At("customer_amount_sum", i)
		}
	}
	f.SetNumeric("account_age_days", age)
	f.SetNumeric("user_total_transactions", totalTxns)
	f.SetNumeric("user_total_amount_spent", totalSpent)
}

// meanStd returns the mean and the sample standard deviation. Groups
// of one have zero deviation.
func meanStd(vals []float64) (float64, float64) {
	n := len(vals)
	if n == 0 {
		return 0, 0
	}
	var sum float64
	for _, v := range vals {
		sum += v
	}
	mean := sum / float64(n)
	if n < 2 {
		return mean, 0
	}
	var sq float64
	for _, v := range vals {
		d := v - mean
		sq += d * d
	}
	return mean, math.Sqrt(sq / float64(n-1))
}

// percentileRank computes the average-rank percentile of each value
// within the slice. A single value ranks at the neutral 0.5 so that
// one-off inference rows are not flagged as outliers by construction.
func percentileRank(vals []float64) []float64 {
	n := len(vals)
	out := make([]float64, n)
	if n == 1 {
		out[0] = 0.5
		return out
	}
	idx := make([]int, n)
	for i := range idx {
		idx[i] = i
	}
	sort.Slice(idx, func(a, b int) bool { return vals[idx[a]] < vals[idx[b]] })

	// Average ranks over ties, then normalize by n.
	i := 0
	for i < n {
		j := i
		for j+1 < n && vals[idx[j+1]] == vals[idx[i]] {
			j++
		}
		// ranks are 1-based; average of ranks i+1..j+1
		avgRank := float64(i+j+2) / 2
		for k := i; k <= j; k++ {
			out[idx[k]] = avgRank / float64(n)
		}
		i = j + 1
	}
	return out
}
