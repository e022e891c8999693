package domain

import "time"

// TrainingStatus is the provider-reported lifecycle of a model training job.
type TrainingStatus string

const (
	StatusStarting   TrainingStatus = "starting"
	StatusProcessing TrainingStatus = "processing"
	StatusSucceeded  TrainingStatus = "succeeded"
	StatusFailed     TrainingStatus = "failed"
	StatusCanceled   TrainingStatus = "canceled"
)

// Rank orders statuses so that transitions only ever move forward. Terminal
// statuses share a rank: a replayed delivery with the same payload is a no-op
// overwrite, while a stale intermediate one is rejected.
func (s TrainingStatus) Rank() int {
	switch s {
	case StatusStarting:
		return 1
	case StatusProcessing:
		return 2
	case StatusSucceeded, StatusFailed, StatusCanceled:
		return 3
	default:
		return 0
	}
}

// Terminal reports whether the provider will send no further updates.
func (s TrainingStatus) Terminal() bool {
	return s == StatusSucceeded || s == StatusFailed || s == StatusCanceled
}

// TrainingJob is a row in the models table. The provider assigns ModelID and
// TrainingID; the webhook reconciler is the only writer after creation.
type TrainingJob struct {
	ID             int64          `json:"id"`
	UserID         string         `json:"user_id"`
	ModelID        string         `json:"model_id"`
	ModelName      string         `json:"model_name"`
	Gender         string         `json:"gender"`
	TrainingStatus TrainingStatus `json:"training_status"`
	TriggerWord    string         `json:"trigger_word"`
	TrainingSteps  int            `json:"training_steps"`
	TrainingID     string         `json:"training_id"`
	TrainingTime   *float64       `json:"training_time,omitempty"`
	Version        *string        `json:"version,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
}

// Credit is the per-user allowance ledger. Absent row reads as zero allowance.
type Credit struct {
	UserID               string    `json:"user_id"`
	ImageGenerationCount int       `json:"image_generation_count"`
	ModelTrainingCount   int       `json:"model_training_count"`
	UpdatedAt            time.Time `json:"updated_at"`
}

// GeneratedImage is a stored generation output; the blob lives in the
// generated-images bucket under {user_id}/{image_name}.
type GeneratedImage struct {
	ID                string    `json:"id"`
	UserID            string    `json:"user_id"`
	Model             string    `json:"model"`
	Prompt            string    `json:"prompt"`
	AspectRatio       string    `json:"aspect_ratio"`
	Guidance          float64   `json:"guidance"`
	NumInferenceSteps int       `json:"num_inference_steps"`
	OutputFormat      string    `json:"output_format"`
	ImageName         string    `json:"image_name"`
	Width             int       `json:"width"`
	Height            int       `json:"height"`
	URL               string    `json:"url,omitempty"`
	CreatedAt         time.Time `json:"created_at"`
}

// Product and Price mirror the payment processor's catalog objects.
type Product struct {
	ID          string            `json:"id"`
	Active      bool              `json:"active"`
	Name        string            `json:"name"`
	Description string            `json:"description"`
	Image       string            `json:"image"`
	Metadata    map[string]string `json:"metadata"`
}

type Price struct {
	ID             string `json:"id"`
	ProductID      string `json:"product_id"`
	Active         bool   `json:"active"`
	Currency       string `json:"currency"`
	UnitAmount     int64  `json:"unit_amount"`
	Type           string `json:"type"`
	Interval       string `json:"interval"`
	IntervalCount  int64  `json:"interval_count"`
	TrialPeriodDay int64  `json:"trial_period_days"`
}

// Subscription is the reconciled subscription state for a user.
type Subscription struct {
	ID                 string     `json:"id"`
	UserID             string     `json:"user_id"`
	Status             string     `json:"status"`
	PriceID            string     `json:"price_id"`
	Quantity           int64      `json:"quantity"`
	CancelAtPeriodEnd  bool       `json:"cancel_at_period_end"`
	CurrentPeriodStart time.Time  `json:"current_period_start"`
	CurrentPeriodEnd   time.Time  `json:"current_period_end"`
	EndedAt            *time.Time `json:"ended_at,omitempty"`
	CreatedAt          time.Time  `json:"created_at"`
}
