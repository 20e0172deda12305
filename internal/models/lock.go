package models

import "time"

// FileLock is a binding reservation on a single path. For a given path at
// most one unexpired exclusive lock may exist; shared locks may coexist.
type FileLock struct {
	Path       string        `json:"path"`
	Holder     string        `json:"holder"`
	Exclusive  bool          `json:"exclusive"`
	AcquiredAt time.Time     `json:"acquired_at"`
	TTL        time.Duration `json:"ttl,omitempty"` // 0 = no expiry
}

// Expired reports whether the lock's TTL has elapsed. Expiry is lazy: expired
// locks are filtered at read time, never proactively deleted.
func (l *FileLock) Expired(now time.Time) bool {
	return l.TTL > 0 && now.After(l.AcquiredAt.Add(l.TTL))
}

// ForecastConfidence rates how sure an agent is about a forecast.
type ForecastConfidence string

const (
	ConfidenceLow    ForecastConfidence = "low"
	ConfidenceMedium ForecastConfidence = "medium"
	ConfidenceHigh   ForecastConfidence = "high"
)

// ForecastGrace is how long past its estimated touch time a forecast stays
// visible in active queries.
const ForecastGrace = 2 * time.Hour

// FileForecast is a non-binding declaration of intent to touch files soon.
// Multiple forecasts may reference the same file; forecasts never block a
// reservation. Immutable once created.
type FileForecast struct {
	ForecastID         string             `json:"forecast_id"`
	Agent              string             `json:"agent"`
	TaskID             string             `json:"task_id,omitempty"`
	Files              []string           `json:"files"`
	EstimatedTouchTime time.Time          `json:"estimated_touch_time"`
	Confidence         ForecastConfidence `json:"confidence"`
	CreatedAt          time.Time          `json:"created_at"`
}

// Expired reports whether the forecast's touch time is more than the grace
// window in the past.
func (f *FileForecast) Expired(now time.Time) bool {
	return now.After(f.EstimatedTouchTime.Add(ForecastGrace))
}
