package generator

import (
	"regexp"
	"testing"
	"time"

	"github.com/MkandawireChico/mobile-money-fraud-final/internal/domain"
)

var (
	tnmRefPattern    = regexp.MustCompile(`^(CHB|CH|CGS|CF|CBC|CHA|CHC|CHD|CHE|CHF)\d{3}[A-Z0-9]{6}$`)
	airtelRefPattern = regexp.MustCompile(`^(CO|BW|MP|PP)\d{6}\.\d{4}\.[A-Z]\d{5}$`)
	phonePattern     = regexp.MustCompile(`^(26588|26599|26577|26521|26531|26596|26597|26598)\d{7}$`)
)

func TestGenerateCount(t *testing.T) {
	g := New(Config{Count: 500, Seed: 1})
	txs := g.Generate()

	if len(txs) != 500 {
		t.Fatalf("expected 500 transactions, got %d", len(txs))
	}
}

func TestGenerateDefaults(t *testing.T) {
	g := New(Config{Seed: 1})
	txs := g.Generate()

	if len(txs) != 1000 {
		t.Fatalf("expected default count 1000, got %d", len(txs))
	}
}

func TestGenerateDeterministic(t *testing.T) {
	a := New(Config{Count: 200, Seed: 42}).Generate()
	b := New(Config{Count: 200, Seed: 42}).Generate()

	if len(a) != len(b) {
		t.Fatalf("runs differ in length: %d vs %d", len(a), len(b))
	}
	for i := range a {
		if a[i].ID != b[i].ID || a[i].Amount != b[i].Amount || !a[i].Timestamp.Equal(b[i].Timestamp) {
			t.Fatalf("row %d differs between seeded runs", i)
		}
	}
}

func TestGenerateOrdered(t *testing.T) {
	txs := New(Config{Count: 300, Seed: 3}).Generate()

	for i := 1; i < len(txs); i++ {
		if txs[i].Timestamp.Before(txs[i-1].Timestamp) {
			t.Fatalf("transactions out of order at %d", i)
		}
	}
}

func TestGenerateShape(t *testing.T) {
	txs := New(Config{Count: 1000, Seed: 7, Days: 30}).Generate()
	earliest := time.Now().UTC().AddDate(0, 0, -31)
	latest := time.Now().UTC().AddDate(0, 0, 4)

	for _, tx := range txs {
		if err := tx.Validate(); err != nil {
			t.Fatalf("invalid transaction %s: %v", tx.ID, err)
		}
		if tx.UserID == "" || tx.SenderAccount == "" || tx.NetworkOperator == "" {
			t.Fatalf("transaction %s missing identity fields", tx.ID)
		}
		if tx.NetworkOperator != "TNM" && tx.NetworkOperator != "Airtel" {
			t.Fatalf("unexpected operator %q", tx.NetworkOperator)
		}
		// Account-age clamping can nudge rows a little past either edge.
		if tx.Timestamp.Before(earliest) || tx.Timestamp.After(latest) {
			t.Fatalf("timestamp %v outside the generation window", tx.Timestamp)
		}
		if tx.Type == domain.TypeMerchantPayment && tx.MerchantCategory == "" {
			t.Fatalf("merchant payment %s has no category", tx.ID)
		}
	}
}

func TestReferenceIDFormats(t *testing.T) {
	txs := New(Config{Count: 2000, Seed: 11}).Generate()

	var tnm, airtel int
	for _, tx := range txs {
		switch tx.NetworkOperator {
		case "TNM":
			tnm++
			if !tnmRefPattern.MatchString(tx.ID) {
				t.Fatalf("bad TNM reference %q", tx.ID)
			}
		case "Airtel":
			airtel++
			if !airtelRefPattern.MatchString(tx.ID) {
				t.Fatalf("bad Airtel reference %q", tx.ID)
			}
		}
	}
	if tnm == 0 || airtel == 0 {
		t.Fatalf("expected both operators represented, got TNM=%d Airtel=%d", tnm, airtel)
	}
}

func TestAirtelPrefixKeyedToType(t *testing.T) {
	txs := New(Config{Count: 3000, Seed: 13}).Generate()

	prefixes := map[domain.TransactionType]string{
		domain.TypeCashOut:         "CO",
		domain.TypeMerchantPayment: "MP",
		domain.TypeP2PTransfer:     "PP",
		domain.TypeBankToWallet:    "BW",
	}
	for _, tx := range txs {
		if tx.NetworkOperator != "Airtel" {
			continue
		}
		if want, ok := prefixes[tx.Type]; ok && tx.ID[:2] != want {
			t.Fatalf("Airtel %s reference %q does not start with %s", tx.Type, tx.ID, want)
		}
	}
}

func TestPhoneNumbers(t *testing.T) {
	txs := New(Config{Count: 500, Seed: 17}).Generate()

	for _, tx := range txs {
		if !phonePattern.MatchString(tx.SenderAccount) {
			t.Fatalf("bad sender msisdn %q", tx.SenderAccount)
		}
		if !phonePattern.MatchString(tx.ReceiverAccount) {
			t.Fatalf("bad receiver msisdn %q", tx.ReceiverAccount)
		}
	}
}

func TestFraudRatioShapesTail(t *testing.T) {
	clean := New(Config{Count: 4000, Seed: 19, FraudRatio: 0.001}).Generate()
	dirty := New(Config{Count: 4000, Seed: 19, FraudRatio: 0.2}).Generate()

	lateNightLarge := func(txs []*domain.Transaction) int {
		var n int
		for _, tx := range txs {
			h := tx.Timestamp.Hour()
			if (h >= 22 || h <= 5) && tx.Amount > 50000 {
				n++
			}
		}
		return n
	}

	if lateNightLarge(dirty) <= lateNightLarge(clean) {
		t.Errorf("higher fraud ratio should produce more late-night large transactions: %d vs %d",
			lateNightLarge(dirty), lateNightLarge(clean))
	}
}

func TestUserPoolStability(t *testing.T) {
	txs := New(Config{Count: 1000, Users: 10, Seed: 23}).Generate()

	users := make(map[string]bool)
	for _, tx := range txs {
		users[tx.UserID] = true
	}
	if len(users) > 10 {
		t.Errorf("expected at most 10 distinct users, got %d", len(users))
	}
}
