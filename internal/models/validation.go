package models

import "time"

// Outcome is the state shown to the operator.
type Outcome string

const (
	OutcomeWaiting  Outcome = "waiting"
	OutcomeApproved Outcome = "approved"
	OutcomeRejected Outcome = "rejected"
	OutcomeError    Outcome = "error"
	OutcomeBlocked  Outcome = "blocked"
)

// Phase is the position of the machine inside a two-slot cycle. It is
// tracked separately from Outcome because a reuse error leaves the cycle
// where it was while the operator still sees an error.
type Phase string

const (
	PhaseIdle                 Phase = "idle"
	PhaseSlot1Filled          Phase = "slot1_filled"
	PhaseCompleted            Phase = "completed"             // approved, auto-reset pending
	PhaseAwaitingConfirmation Phase = "awaiting_confirmation" // rejected, alarm running
	PhaseBlocked              Phase = "blocked"
	PhaseHalted               Phase = "halted" // comparison format error, manual reset only
)

// ValidationConfig is the operator-facing configuration. A copy is taken
// for every validation; the optional fields are tagged onto ledger entries.
type ValidationConfig struct {
	AutoResetSeconds float64 `json:"auto_reset_seconds" yaml:"auto_reset_seconds"`
	SoundEnabled     bool    `json:"sound_enabled" yaml:"sound_enabled"`
	StationID        *string `json:"station_id,omitempty" yaml:"station_id,omitempty"`
	LineID           *string `json:"line_id,omitempty" yaml:"line_id,omitempty"`
	ProductionLine   *string `json:"production_line,omitempty" yaml:"production_line,omitempty"`
	ProductModel     *string `json:"product_model,omitempty" yaml:"product_model,omitempty"`
	Voltage          *string `json:"voltage,omitempty" yaml:"voltage,omitempty"`
}

// AutoResetDelay converts AutoResetSeconds to a duration.
func (c ValidationConfig) AutoResetDelay() time.Duration {
	return time.Duration(c.AutoResetSeconds * float64(time.Second))
}

// ValidationResult is one ledger entry. Serial1 and Serial2 hold the raw
// scanned text, not the canonical code.
type ValidationResult struct {
	ID             string    `json:"id" yaml:"id"`
	Serial1        string    `json:"serial1" yaml:"serial1"`
	Serial2        string    `json:"serial2" yaml:"serial2"`
	State          Outcome   `json:"state" yaml:"state"`
	Message        string    `json:"message" yaml:"message"`
	Timestamp      time.Time `json:"timestamp" yaml:"timestamp"`
	ProductionLine *string   `json:"production_line,omitempty" yaml:"production_line,omitempty"`
	ProductModel   *string   `json:"product_model,omitempty" yaml:"product_model,omitempty"`
	Voltage        *string   `json:"voltage,omitempty" yaml:"voltage,omitempty"`
	StationID      *string   `json:"station_id,omitempty" yaml:"station_id,omitempty"`
	LineID         *string   `json:"line_id,omitempty" yaml:"line_id,omitempty"`
}

// Snapshot is what the presentation layer renders.
type Snapshot struct {
	State                Outcome    `json:"state"`
	Phase                Phase      `json:"phase"`
	Message              string     `json:"message"`
	Serial1              string     `json:"serial1,omitempty"`
	Serial2              string     `json:"serial2,omitempty"`
	AwaitingConfirmation bool       `json:"awaiting_confirmation"`
	AutoResetAt          *time.Time `json:"auto_reset_at,omitempty"`
	UpdatedAt            time.Time  `json:"updated_at"`
}
