package domain

// Metric field names in sheet column order (H through R)
const (
	MetricFCFYield      = "fcf_yield"
	MetricROE           = "roe"
	MetricPB            = "pb"
	MetricCurrentRatio  = "current_ratio"
	MetricDebtEquity    = "debt_equity"
	MetricNetMargin     = "net_margin"
	MetricROA           = "roa"
	MetricRevenueGrowth = "revenue_growth"
	MetricEVEBITDA      = "ev_ebitda"
	MetricQuickRatio    = "quick_ratio"
	MetricFairValue     = "fair_value"
)

// MetricNames lists the eleven required metrics in column order
var MetricNames = []string{
	MetricFCFYield,
	MetricROE,
	MetricPB,
	MetricCurrentRatio,
	MetricDebtEquity,
	MetricNetMargin,
	MetricROA,
	MetricRevenueGrowth,
	MetricEVEBITDA,
	MetricQuickRatio,
	MetricFairValue,
}

// Metrics holds possibly-missing metric values while they are being computed
// or parsed back from the sheet.
type Metrics struct {
	FCFYield      *float64
	ROE           *float64
	PB            *float64
	CurrentRatio  *float64
	DebtEquity    *float64
	NetMargin     *float64
	ROA           *float64
	RevenueGrowth *float64
	EVEBITDA      *float64
	QuickRatio    *float64
	FairValue     *float64
}

func (m Metrics) fields() []*float64 {
	return []*float64{
		m.FCFYield,
		m.ROE,
		m.PB,
		m.CurrentRatio,
		m.DebtEquity,
		m.NetMargin,
		m.ROA,
		m.RevenueGrowth,
		m.EVEBITDA,
		m.QuickRatio,
		m.FairValue,
	}
}

// Missing returns the names of absent metrics in column order
func (m Metrics) Missing() []string {
	var missing []string
	for i, v := range m.fields() {
		if v == nil {
			missing = append(missing, MetricNames[i])
		}
	}
	return missing
}

// Complete converts to a MetricsResult when every field is present
func (m Metrics) Complete() (MetricsResult, bool) {
	if len(m.Missing()) > 0 {
		return MetricsResult{}, false
	}
	return MetricsResult{
		FCFYield:      *m.FCFYield,
		ROE:           *m.ROE,
		PB:            *m.PB,
		CurrentRatio:  *m.CurrentRatio,
		DebtEquity:    *m.DebtEquity,
		NetMargin:     *m.NetMargin,
		ROA:           *m.ROA,
		RevenueGrowth: *m.RevenueGrowth,
		EVEBITDA:      *m.EVEBITDA,
		QuickRatio:    *m.QuickRatio,
		FairValue:     *m.FairValue,
	}, true
}

// MetricsResult is a fully computed set of metrics. It only exists when
// every one of the eleven values is known.
type MetricsResult struct {
	FCFYield      float64 `json:"fcf_yield"`
	ROE           float64 `json:"roe"`
	PB            float64 `json:"pb"`
	CurrentRatio  float64 `json:"current_ratio"`
	DebtEquity    float64 `json:"debt_equity"`
	NetMargin     float64 `json:"net_margin"`
	ROA           float64 `json:"roa"`
	RevenueGrowth float64 `json:"revenue_growth"`
	EVEBITDA      float64 `json:"ev_ebitda"`
	QuickRatio    float64 `json:"quick_ratio"`
	FairValue     float64 `json:"fair_value"`
}

// Values returns the metrics in sheet column order
func (r MetricsResult) Values() []float64 {
	return []float64{
		r.FCFYield,
		r.ROE,
		r.PB,
		r.CurrentRatio,
		r.DebtEquity,
		r.NetMargin,
		r.ROA,
		r.RevenueGrowth,
		r.EVEBITDA,
		r.QuickRatio,
		r.FairValue,
	}
}
