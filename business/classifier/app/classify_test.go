package app

import (
	"testing"

	"github.com/shopspring/decimal"

	"github.com/hlwatch/tracker/business/classifier/domain"
	routerdomain "github.com/hlwatch/tracker/business/router/domain"
	upstreamdomain "github.com/hlwatch/tracker/business/upstream/domain"
)

func testThresholds() Thresholds {
	return Thresholds{
		Whale:   decimal.NewFromInt(1_000_000),
		Large:   decimal.NewFromInt(100_000),
		Medium:  decimal.NewFromInt(10_000),
		Notable: decimal.NewFromInt(1_000),
	}
}

func eventWithUSD(usd string) routerdomain.Event {
	d := decimal.RequireFromString(usd)
	price := decimal.NewFromInt(1)
	size := decimal.NewFromInt(1)
	return routerdomain.Event{
		Kind:    upstreamdomain.KindFills,
		Account: upstreamdomain.Account("0xabc"),
		USDValue: &d,
		Price:    &price,
		Size:     &size,
	}
}

func TestClassify_SizeClass(t *testing.T) {
	tests := []struct {
		name string
		usd  string
		want domain.SizeClass
	}{
		{"whale_at_threshold", "1000000", domain.SizeWhale},
		{"whale_above_threshold", "5000000", domain.SizeWhale},
		{"large_at_threshold", "100000", domain.SizeLarge},
		{"large_below_whale", "999999", domain.SizeLarge},
		{"medium_at_threshold", "10000", domain.SizeMedium},
		{"notable_at_threshold", "1000", domain.SizeNotable},
		{"small_below_notable", "999", domain.SizeSmall},
		{"small_zero", "0", domain.SizeSmall},
	}

	thresholds := testThresholds()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Classify(eventWithUSD(tt.usd), thresholds)
			if got.SizeClass != tt.want {
				t.Errorf("SizeClass = %v, want %v", got.SizeClass, tt.want)
			}
		})
	}
}

func TestClassify_NilUSDValueIsSmallZeroConfidence(t *testing.T) {
	event := routerdomain.Event{Kind: upstreamdomain.KindFills, Account: upstreamdomain.Account("0xabc")}
	got := Classify(event, testThresholds())

	if got.SizeClass != domain.SizeSmall {
		t.Errorf("SizeClass = %v, want %v", got.SizeClass, domain.SizeSmall)
	}
	if got.Confidence != 0 {
		t.Errorf("Confidence = %v, want 0", got.Confidence)
	}
}

func TestClassify_ConfidencePenalizedWhenPriceOrSizeMissing(t *testing.T) {
	thresholds := testThresholds()
	usd := decimal.NewFromInt(50_000)

	full := eventWithUSD("50000")
	withPriceSize := Classify(full, thresholds)

	missing := routerdomain.Event{
		Kind:     upstreamdomain.KindFills,
		Account:  upstreamdomain.Account("0xabc"),
		USDValue: &usd,
	}
	withoutPriceSize := Classify(missing, thresholds)

	if withoutPriceSize.Confidence >= withPriceSize.Confidence {
		t.Errorf("expected lower confidence without price/size: got %v, full-info %v",
			withoutPriceSize.Confidence, withPriceSize.Confidence)
	}
}

func TestClassify_ConfidenceClampedToUnitInterval(t *testing.T) {
	thresholds := testThresholds()
	// Whale-tier usd_value triggers the 1.2x multiplier; confidence must
	// still clamp at 1.0.
	got := Classify(eventWithUSD("10000000"), thresholds)
	if got.Confidence > 1 {
		t.Errorf("Confidence = %v, want <= 1", got.Confidence)
	}

	// Sub-$100 with missing price/size stacks two penalties; confidence
	// must still clamp at >= 0.
	tiny := decimal.NewFromFloat(0.5)
	event := routerdomain.Event{Kind: upstreamdomain.KindFills, Account: upstreamdomain.Account("0xabc"), USDValue: &tiny}
	gotTiny := Classify(event, thresholds)
	if gotTiny.Confidence < 0 {
		t.Errorf("Confidence = %v, want >= 0", gotTiny.Confidence)
	}
}

func TestSizeClass_Rank(t *testing.T) {
	tests := []struct {
		class domain.SizeClass
		want  int
	}{
		{domain.SizeSmall, 0},
		{domain.SizeNotable, 1},
		{domain.SizeMedium, 2},
		{domain.SizeLarge, 3},
		{domain.SizeWhale, 4},
		{domain.SizeClass("unknown"), -1},
	}
	for _, tt := range tests {
		if got := tt.class.Rank(); got != tt.want {
			t.Errorf("Rank(%q) = %d, want %d", tt.class, got, tt.want)
		}
	}
}

func TestThresholds_Validate(t *testing.T) {
	tests := []struct {
		name    string
		t       Thresholds
		wantErr bool
	}{
		{"ordered_correctly", testThresholds(), false},
		{
			"whale_not_greater_than_large",
			Thresholds{
				Whale:   decimal.NewFromInt(100_000),
				Large:   decimal.NewFromInt(100_000),
				Medium:  decimal.NewFromInt(10_000),
				Notable: decimal.NewFromInt(1_000),
			},
			true,
		},
		{
			"medium_not_greater_than_notable",
			Thresholds{
				Whale:   decimal.NewFromInt(1_000_000),
				Large:   decimal.NewFromInt(100_000),
				Medium:  decimal.NewFromInt(1_000),
				Notable: decimal.NewFromInt(1_000),
			},
			true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.t.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
