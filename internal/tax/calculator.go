package tax

import (
	_ "embed"
	"fmt"
	"sort"
	"strings"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/angelmondragon/farmlink-backend/pkg/money"
)

//go:embed rates.yaml
var defaultRatesYAML []byte

// Rate is the pair of sales tax rates for one jurisdiction.
type Rate struct {
	GST decimal.Decimal
	PST decimal.Decimal
}

// Breakdown is the tax owed on an amount. Each field is rounded on its own.
type Breakdown struct {
	Jurisdiction   string          `json:"jurisdiction"`
	GSTAmount      decimal.Decimal `json:"gstAmount"`
	PSTAmount      decimal.Decimal `json:"pstAmount"`
	TotalTaxAmount decimal.Decimal `json:"totalTaxAmount"`
}

// Calculator maps (amount, jurisdiction) to a tax breakdown from a fixed table.
// Unknown jurisdictions use the default jurisdiction's rates.
type Calculator struct {
	rates       map[string]Rate
	defaultCode string
}

type rateFile struct {
	Default       string `yaml:"default"`
	Jurisdictions map[string]struct {
		GST string `yaml:"gst"`
		PST string `yaml:"pst"`
	} `yaml:"jurisdictions"`
}

// NewDefaultCalculator loads the embedded Canadian rate table. A non-empty
// defaultCode overrides the table's default jurisdiction.
func NewDefaultCalculator(defaultCode string) (*Calculator, error) {
	return Parse(defaultRatesYAML, defaultCode)
}

// Parse builds a calculator from a YAML rate table.
func Parse(raw []byte, defaultCode string) (*Calculator, error) {
	var file rateFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return nil, fmt.Errorf("decode tax rates: %w", err)
	}

	rates := make(map[string]Rate, len(file.Jurisdictions))
	for code, entry := range file.Jurisdictions {
		gst, err := decimal.NewFromString(entry.GST)
		if err != nil {
			return nil, fmt.Errorf("jurisdiction %s gst %q: %w", code, entry.GST, err)
		}
		pst, err := decimal.NewFromString(entry.PST)
		if err != nil {
			return nil, fmt.Errorf("jurisdiction %s pst %q: %w", code, entry.PST, err)
		}
		if gst.IsNegative() || pst.IsNegative() {
			return nil, fmt.Errorf("jurisdiction %s has a negative rate", code)
		}
		rates[normalize(code)] = Rate{GST: gst, PST: pst}
	}

	if defaultCode == "" {
		defaultCode = file.Default
	}
	return New(rates, defaultCode)
}

// New builds a calculator from an explicit table.
func New(rates map[string]Rate, defaultCode string) (*Calculator, error) {
	defaultCode = normalize(defaultCode)
	normalized := make(map[string]Rate, len(rates))
	for code, rate := range rates {
		normalized[normalize(code)] = rate
	}
	if _, ok := normalized[defaultCode]; !ok {
		return nil, fmt.Errorf("default jurisdiction %q missing from rate table", defaultCode)
	}
	return &Calculator{rates: normalized, defaultCode: defaultCode}, nil
}

// CalculateTaxes never fails; unknown jurisdictions fall back to the default.
func (c *Calculator) CalculateTaxes(amount decimal.Decimal, jurisdiction string) Breakdown {
	code, rate := c.Resolve(jurisdiction)
	gst := amount.Mul(rate.GST)
	pst := amount.Mul(rate.PST)
	return Breakdown{
		Jurisdiction:   code,
		GSTAmount:      money.Round(gst),
		PSTAmount:      money.Round(pst),
		TotalTaxAmount: money.Round(gst.Add(pst)),
	}
}

// Resolve returns the jurisdiction code actually used and its rates.
func (c *Calculator) Resolve(jurisdiction string) (string, Rate) {
	code := normalize(jurisdiction)
	if rate, ok := c.rates[code]; ok {
		return code, rate
	}
	return c.defaultCode, c.rates[c.defaultCode]
}

// Jurisdictions lists the known codes in order.
func (c *Calculator) Jurisdictions() []string {
	codes := make([]string, 0, len(c.rates))
	for code := range c.rates {
		codes = append(codes, code)
	}
	sort.Strings(codes)
	return codes
}

func normalize(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}
