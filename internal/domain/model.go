package domain

import "time"

// FeatureDimension is the number of features a ProbeSample carries:
// order_size_usd, spread_bps, depth_best_ask_usd.
const FeatureDimension = 3

// ProbeSample is a synthetic (features, outcome) pair produced by walking
// the book at a chosen order size.
type ProbeSample struct {
	OrderSizeUSD      float64
	SpreadBps         float64
	DepthBestAskUSD   float64
	TargetSlippagePct float64
}

// Features returns the model input vector in canonical order.
func (p ProbeSample) Features() []float64 {
	return []float64{p.OrderSizeUSD, p.SpreadBps, p.DepthBestAskUSD}
}

// LogRecord is one row of the slippage regression log. Probe rows populate
// the probe columns, prediction rows the user columns.
type LogRecord struct {
	ID                          string    `json:"id"`
	LoggedAt                    time.Time `json:"logged_at"`
	Symbol                      string    `json:"symbol"`
	ProbeOrderSizeUSD           *float64  `json:"probe_order_size_usd"`
	MarketSpreadBps             *float64  `json:"market_spread_bps"`
	MarketDepthBestAskUSD       *float64  `json:"market_depth_best_ask_usd"`
	TrueSlippagePctWalkTheBook  *float64  `json:"true_slippage_pct_walk_the_book"`
	UserOrderSizeUSD            *float64  `json:"user_order_size_usd"`
	PredictedSlippagePctRegress *float64  `json:"predicted_slippage_pct_regression"`
}

// IsProbe reports whether the record is a simulator-derived row.
func (r LogRecord) IsProbe() bool {
	return r.TrueSlippagePctWalkTheBook != nil
}

// ModelEvaluation holds fit metrics from one successful training run.
type ModelEvaluation struct {
	ID                 string    `json:"id"`
	LoggedAt           time.Time `json:"logged_at"`
	NumTrainingSamples int       `json:"num_training_samples"`
	TrainMSE           float64   `json:"train_mse"`
	TrainR2            float64   `json:"train_r2_score"`
	Coefficients       []float64 `json:"coefficients"`
	Intercept          float64   `json:"intercept"`
}

// ModelStatus is the externally visible state of the slippage model.
type ModelStatus struct {
	Trained        bool             `json:"trained"`
	Samples        int              `json:"samples"`
	Capacity       int              `json:"capacity"`
	MinSamples     int              `json:"min_samples"`
	LastEvaluation *ModelEvaluation `json:"last_evaluation,omitempty"`
}
