// Package generator produces synthetic Malawi mobile money
// transactions for local development and model training runs.
package generator

import (
	"fmt"
	"math/rand"
	"sort"
	"time"

	"github.com/MkandawireChico/mobile-money-fraud-final/internal/domain"
)

// Reference ID vocabularies observed on the two operators.
var (
	tnmPatterns    = []string{"CHB", "CH", "CGS", "CF", "CBC", "CHA", "CHC", "CHD", "CHE", "CHF"}
	airtelPrefixes = []string{"CO", "BW", "MP", "PP"}

	phonePrefixes = []string{
		"26588", "26599", "26577", "26521", "26531",
		"26596", "26597", "26598",
	}

	cities = []string{
		"Lilongwe", "Blantyre", "Mzuzu", "Zomba", "Kasungu",
		"Mangochi", "Salima", "Balaka", "Chiradzulu", "Nsanje",
		"Thyolo", "Dedza", "Dowa", "Ntcheu", "Nkhotakota",
		"Rumphi", "Karonga", "Chitipa", "Likoma", "Machinga",
	}

	deviceTypes = []string{"android_phone", "feature_phone", "ios_phone", "ussd"}
	osTypes     = []string{"android", "kaios", "ios", "none"}

	merchantCategories = []string{
		"groceries", "fuel", "utilities", "airtime", "school_fees", "clothing",
	}
)

// amountProfile shapes the kwacha distribution for one transaction type.
type amountProfile struct {
	base   float64
	spread float64
}

var amountProfiles = map[domain.TransactionType]amountProfile{
	domain.TypeCashIn:          {base: 5000, spread: 45000},
	domain.TypeCashOut:         {base: 3000, spread: 60000},
	domain.TypeP2PTransfer:     {base: 1000, spread: 30000},
	domain.TypeBillPayment:     {base: 2000, spread: 20000},
	domain.TypeAirtimePurchase: {base: 200, spread: 4800},
	domain.TypeMerchantPayment: {base: 1500, spread: 25000},
	domain.TypeLoanRepayment:   {base: 5000, spread: 35000},
	domain.TypeBankToWallet:    {base: 10000, spread: 90000},
}

// Config controls a synthetic generation run.
type Config struct {
	// Count is the number of transactions to generate.
	Count int

	// Users is the size of the simulated customer pool.
	Users int

	// Days is the trailing window transactions are spread over.
	Days int

	// FraudRatio is the fraction of transactions generated with
	// anomalous characteristics. Typical production prevalence is
	// around 0.02-0.03.
	FraudRatio float64

	// Seed makes runs reproducible.
	Seed int64
}

func (c *Config) defaults() {
	if c.Count <= 0 {
		c.Count = 1000
	}
	if c.Users <= 0 {
		c.Users = c.Count/20 + 1
	}
	if c.Days <= 0 {
		c.Days = 90
	}
	if c.FraudRatio < 0 || c.FraudRatio >= 1 {
		c.FraudRatio = 0.03
	}
}

// user is a simulated customer with stable habits, so generated
// history has learnable per-customer structure.
type user struct {
	id       string
	phone    string
	city     string
	device   string
	os       string
	network  string
	favType  domain.TransactionType
	joinedAt time.Time
}

// Generator emits synthetic transactions with a small injected
// fraction of anomalous ones.
type Generator struct {
	cfg   Config
	rng   *rand.Rand
	users []user
	now   time.Time
}

// New creates a seeded generator.
func New(cfg Config) *Generator {
	cfg.defaults()
	g := &Generator{
		cfg: cfg,
		rng: rand.New(rand.NewSource(cfg.Seed)),
		now: time.Now().UTC(),
	}
	g.users = g.makeUsers(cfg.Users)
	return g
}

func (g *Generator) makeUsers(n int) []user {
	users := make([]user, n)
	types := domain.KnownTransactionTypes()
	for i := range users {
		network := "TNM"
		if g.rng.Float64() < 0.45 {
			network = "Airtel"
		}
		di := g.rng.Intn(len(deviceTypes))
		users[i] = user{
			id:      fmt.Sprintf("user-%04d", i+1),
			phone:   g.phoneNumber(),
			city:    cities[g.rng.Intn(len(cities))],
			device:  deviceTypes[di],
			os:      osTypes[di],
			network: network,
			favType: types[g.rng.Intn(len(types))],
			// Stagger account ages from brand new to several years
			joinedAt: g.now.AddDate(0, 0, -g.rng.Intn(365*3)),
		}
	}
	return users
}

// Generate produces the configured number of transactions, ordered by
// timestamp ascending.
func (g *Generator) Generate() []*domain.Transaction {
	txs := make([]*domain.Transaction, 0, g.cfg.Count)
	for i := 0; i < g.cfg.Count; i++ {
		u := &g.users[g.rng.Intn(len(g.users))]
		if g.rng.Float64() < g.cfg.FraudRatio {
			txs = append(txs, g.anomalous(u))
		} else {
			txs = append(txs, g.normal(u))
		}
	}
	// Timestamps were drawn independently; order them for realistic
	// insertion and stable trend buckets.
	sortByTimestamp(txs)
	return txs
}

// normal draws a transaction consistent with the user's habits.
func (g *Generator) normal(u *user) *domain.Transaction {
	txType := u.favType
	if g.rng.Float64() < 0.35 {
		types := domain.KnownTransactionTypes()
		txType = types[g.rng.Intn(len(types))]
	}

	ts := g.timestampInWindow()
	// Bias toward business hours
	if g.rng.Float64() < 0.8 {
		ts = time.Date(ts.Year(), ts.Month(), ts.Day(), 8+g.rng.Intn(10), g.rng.Intn(60), g.rng.Intn(60), 0, time.UTC)
	}
	if ts.Before(u.joinedAt) {
		ts = u.joinedAt.Add(time.Duration(g.rng.Intn(72)) * time.Hour)
	}

	tx := g.base(u, txType, ts)
	tx.Amount = g.amount(txType, 1.0)
	return tx
}

// anomalous draws a transaction that breaks the user's pattern: very
// large amounts, late night activity, new devices and locations.
func (g *Generator) anomalous(u *user) *domain.Transaction {
	txType := domain.TypeCashOut
	if g.rng.Float64() < 0.3 {
		txType = domain.TypeP2PTransfer
	}

	ts := g.timestampInWindow()
	// Late night: 22:00-05:00
	hour := (22 + g.rng.Intn(8)) % 24
	ts = time.Date(ts.Year(), ts.Month(), ts.Day(), hour, g.rng.Intn(60), g.rng.Intn(60), 0, time.UTC)
	if ts.Before(u.joinedAt) {
		ts = u.joinedAt.Add(time.Duration(g.rng.Intn(24)) * time.Hour)
	}

	tx := g.base(u, txType, ts)
	tx.Amount = g.amount(txType, 4+g.rng.Float64()*6)
	tx.IsNewDevice = g.rng.Float64() < 0.6
	tx.IsNewLocation = g.rng.Float64() < 0.6
	if tx.IsNewLocation {
		tx.LocationCity = cities[g.rng.Intn(len(cities))]
	}
	if tx.IsNewDevice {
		di := g.rng.Intn(len(deviceTypes))
		tx.DeviceType = deviceTypes[di]
		tx.OSType = osTypes[di]
	}
	return tx
}

func (g *Generator) base(u *user, txType domain.TransactionType, ts time.Time) *domain.Transaction {
	tx := &domain.Transaction{
		ID:              g.referenceID(u.network, txType, ts),
		UserID:          u.id,
		SenderAccount:   u.phone,
		ReceiverAccount: g.phoneNumber(),
		Type:            txType,
		Status:          domain.StatusCompleted,
		Timestamp:       ts,
		CreatedAt:       ts,
		LocationCity:    u.city,
		DeviceType:      u.device,
		OSType:          u.os,
		NetworkOperator: u.network,
	}
	if txType == domain.TypeMerchantPayment {
		tx.MerchantCategory = merchantCategories[g.rng.Intn(len(merchantCategories))]
	}
	if g.rng.Float64() < 0.02 {
		tx.Status = domain.StatusFailed
	} else if g.rng.Float64() < 0.03 {
		tx.Status = domain.StatusPending
	}
	return tx
}

func (g *Generator) amount(txType domain.TransactionType, multiplier float64) float64 {
	p, ok := amountProfiles[txType]
	if !ok {
		p = amountProfile{base: 1000, spread: 20000}
	}
	raw := (p.base + g.rng.Float64()*p.spread) * multiplier
	// Mobile money amounts skew toward round figures
	if g.rng.Float64() < 0.6 {
		raw = float64(int(raw/500) * 500)
		if raw < p.base {
			raw = p.base
		}
	}
	return raw
}

func (g *Generator) timestampInWindow() time.Time {
	offset := time.Duration(g.rng.Int63n(int64(g.cfg.Days) * 24 * int64(time.Hour)))
	return g.now.Add(-offset)
}

func (g *Generator) phoneNumber() string {
	prefix := phonePrefixes[g.rng.Intn(len(phonePrefixes))]
	return fmt.Sprintf("%s%07d", prefix, 1000000+g.rng.Intn(9000000))
}

// referenceID formats a transaction reference the way the operator
// would: TNM Mpamba uses short letter patterns with an alphanumeric
// tail, Airtel Money uses PREFIX + YYMMDD.HHMM.L##### with the prefix
// keyed to the transaction type.
func (g *Generator) referenceID(network string, txType domain.TransactionType, ts time.Time) string {
	if network == "TNM" {
		pattern := tnmPatterns[g.rng.Intn(len(tnmPatterns))]
		return fmt.Sprintf("%s%03d%s", pattern, 100+g.rng.Intn(900), g.randUpper(6))
	}

	prefix := airtelPrefixes[g.rng.Intn(len(airtelPrefixes))]
	switch txType {
	case domain.TypeCashOut:
		prefix = "CO"
	case domain.TypeMerchantPayment:
		prefix = "MP"
	case domain.TypeP2PTransfer:
		prefix = "PP"
	case domain.TypeBankToWallet:
		prefix = "BW"
	}
	return fmt.Sprintf("%s%s.%s.%c%05d",
		prefix,
		ts.Format("060102"),
		ts.Format("1504"),
		'A'+rune(g.rng.Intn(26)),
		10000+g.rng.Intn(90000),
	)
}

func (g *Generator) randUpper(n int) string {
	const alphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	b := make([]byte, n)
	for i := range b {
		b[i] = alphabet[g.rng.Intn(len(alphabet))]
	}
	return string(b)
}

func sortByTimestamp(txs []*domain.Transaction) {
	sort.Slice(txs, func(i, j int) bool {
		return txs[i].Timestamp.Before(txs[j].Timestamp)
	})
}
