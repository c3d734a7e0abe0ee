package domain

import "time"

// EstimateStatus summarises whether a CostEstimate carries a net cost.
type EstimateStatus string

const (
	EstimateOK         EstimateStatus = "ok"
	EstimateIncomplete EstimateStatus = "incomplete"
	EstimateNoTrade    EstimateStatus = "no_trade"
)

const (
	ProportionTaker   = "100% Taker"
	ProportionNoTrade = "N/A (No Trade)"
)

// EstimateRequest is the set of user inputs that drive a cost estimate.
type EstimateRequest struct {
	QuantityUSD float64 `json:"quantity_usd"`
	FeeTier     string  `json:"fee_tier"`
	Volatility  float64 `json:"volatility"`
	Symbol      string  `json:"symbol"`
}

// InputsUpdate is a partial update of the recompute inputs; nil fields are
// left unchanged.
type InputsUpdate struct {
	QuantityUSD *float64 `json:"quantity_usd"`
	FeeTier     *string  `json:"fee_tier"`
	Volatility  *float64 `json:"volatility"`
	Symbol      *string  `json:"symbol"`
}

// SlippageResult is the outcome of walking the ask side for a target
// notional. Nil pointers mean "not available".
type SlippageResult struct {
	SlippagePct    *float64 `json:"slippage_pct"`
	AvgExecPrice   *float64 `json:"avg_exec_price"`
	AssetAcquired  float64  `json:"asset_acquired"`
	USDSpent       float64  `json:"usd_spent"`
	ReferencePrice float64  `json:"reference_price"`
	Crossed        bool     `json:"crossed"`
}

// CostEstimate is the aggregated transaction cost of a market buy.
type CostEstimate struct {
	Request              EstimateRequest `json:"request"`
	SlippagePct          *float64        `json:"slippage_pct"`
	AvgExecPrice         *float64        `json:"avg_exec_price"`
	AssetAcquired        float64         `json:"asset_acquired"`
	USDSpent             float64         `json:"usd_spent"`
	MidPrice             float64         `json:"mid_price"`
	SlippageCostUSD      float64         `json:"slippage_cost_usd"`
	FeeUSD               float64         `json:"fee_usd"`
	ImpactUSD            *float64        `json:"impact_usd"`
	NetCostUSD           *float64        `json:"net_cost_usd"`
	Status               EstimateStatus  `json:"status"`
	MakerTakerProportion string          `json:"maker_taker_proportion"`
	PredictedSlippagePct *float64        `json:"predicted_slippage_pct"`
	BookTimestamp        time.Time       `json:"book_timestamp"`
	LatencyMicros        int64           `json:"latency_us"`
	ComputedAt           time.Time       `json:"computed_at"`
}

// Complete reports whether a net cost is available.
func (e CostEstimate) Complete() bool {
	return e.Status == EstimateOK || e.Status == EstimateNoTrade
}

// Float returns a pointer to v, for optional numeric fields.
func Float(v float64) *float64 {
	return &v
}
