package schemas

import (
	"fmt"
	"net/url"
	"strings"
	"time"
)

// ScanStatus is the lifecycle state of a scan request as persisted.
type ScanStatus string

const (
	// StatusPending is stored as "Incomplete" for compatibility with existing records.
	StatusPending  ScanStatus = "Incomplete"
	StatusComplete ScanStatus = "Complete"
)

// StepAction names the UI action a step performs.
type StepAction string

const (
	ActionClick       StepAction = "Click"
	ActionInputText   StepAction = "InputText"
	ActionSelectValue StepAction = "SelectValue"
	ActionNavigate    StepAction = "Navigate"
)

// StepActions lists every supported action in declaration order.
var StepActions = []StepAction{ActionClick, ActionInputText, ActionSelectValue, ActionNavigate}

// Valid reports whether a is one of the known actions.
func (a StepAction) Valid() bool {
	for _, known := range StepActions {
		if a == known {
			return true
		}
	}
	return false
}

// SelectorStrategy names how a step locates its target element.
type SelectorStrategy string

const (
	SelectorXPath       SelectorStrategy = "XPath"
	SelectorID          SelectorStrategy = "Id"
	SelectorName        SelectorStrategy = "Name"
	SelectorClassName   SelectorStrategy = "ClassName"
	SelectorTagName     SelectorStrategy = "TagName"
	SelectorCSSSelector SelectorStrategy = "CssSelector"
)

// SelectorStrategies lists every supported strategy in declaration order.
var SelectorStrategies = []SelectorStrategy{
	SelectorXPath, SelectorID, SelectorName, SelectorClassName, SelectorTagName, SelectorCSSSelector,
}

// Valid reports whether s is one of the known strategies.
func (s SelectorStrategy) Valid() bool {
	for _, known := range SelectorStrategies {
		if s == known {
			return true
		}
	}
	return false
}

// Step is one scripted UI action replayed before analysis begins.
// The JSON field names match the documents produced by the scan editor.
type Step struct {
	URL       string           `json:"url"`
	Depth     FlexString       `json:"depth,omitempty"`
	Type      string           `json:"type,omitempty"`
	FindBy    SelectorStrategy `json:"findBy"`
	FindValue string           `json:"findValue"`
	Action    StepAction       `json:"stepAction"`
	Input     FlexString       `json:"elemInput,omitempty"`
	WaitTime  int              `json:"waitTime"`
	IsActive  bool             `json:"isActive"`
	Notes     string           `json:"notes,omitempty"`
}

// Wait converts the step's wait-time bound into a duration. Zero leaves the
// session's default bound in place.
func (s Step) Wait() time.Duration {
	if s.WaitTime <= 0 {
		return 0
	}
	return time.Duration(s.WaitTime) * time.Second
}

// Validate checks that the step can be dispatched.
func (s Step) Validate() error {
	if !s.Action.Valid() {
		return fmt.Errorf("%w: unsupported step action %q", ErrValidation, s.Action)
	}
	if s.WaitTime < 0 {
		return fmt.Errorf("%w: waitTime must not be negative", ErrValidation)
	}
	if s.Action == ActionNavigate {
		if strings.TrimSpace(s.FindValue) == "" {
			return fmt.Errorf("%w: navigate step requires a target URL in findValue", ErrValidation)
		}
		return nil
	}
	if !s.FindBy.Valid() {
		return fmt.Errorf("%w: unsupported selector type %q", ErrValidation, s.FindBy)
	}
	if strings.TrimSpace(s.FindValue) == "" {
		return fmt.Errorf("%w: step %s requires a findValue", ErrValidation, s.Action)
	}
	return nil
}

// ScanRequest is the persisted description of one accessibility scan.
type ScanRequest struct {
	ID            string     `json:"id"`
	Name          string     `json:"name"`
	URL           string     `json:"url"`
	Guidance      []string   `json:"guidance"`
	Depth         int        `json:"depth"`
	Device        string     `json:"device"`
	Steps         []Step     `json:"steps"`
	URLs          []string   `json:"urls"`
	Status        ScanStatus `json:"status"`
	Username      string     `json:"username,omitempty"`
	ProjectID     string     `json:"projectID,omitempty"`
	DateCreated   time.Time  `json:"date_created"`
	DateLastRan   *time.Time `json:"date_last_ran,omitempty"`
	ScheduledTime *time.Time `json:"scheduled_time,omitempty"`
	WeightedScore *float64   `json:"weighted_score,omitempty"`
}

// CreateScanInput carries the caller supplied fields of a new scan request.
type CreateScanInput struct {
	URL       string   `json:"scan_url"`
	Guidance  []string `json:"guidance"`
	Depth     int      `json:"depth"`
	Device    string   `json:"device_config"`
	Steps     []Step   `json:"steps"`
	Name      string   `json:"name"`
	ProjectID string   `json:"projectID,omitempty"`
	Username  string   `json:"-"`
}

// Validate rejects requests the core must never see.
func (in *CreateScanInput) Validate() error {
	if strings.TrimSpace(in.URL) == "" || len(in.Guidance) == 0 {
		return fmt.Errorf("%w: please provide a scan_url and a guidance", ErrValidation)
	}
	u, err := url.Parse(in.URL)
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return fmt.Errorf("%w: scan_url must be an absolute http(s) URL", ErrValidation)
	}
	// Negative depths are clamped rather than rejected.
	if in.Depth < 0 {
		in.Depth = 0
	}
	for i, step := range in.Steps {
		if err := step.Validate(); err != nil {
			return fmt.Errorf("step %d: %w", i, err)
		}
	}
	return nil
}

// EditScanInput carries the editable fields of an existing scan request.
// A nil Steps slice leaves the stored steps untouched.
type EditScanInput struct {
	ID       string   `json:"scanRequestId"`
	Name     string   `json:"name"`
	Device   string   `json:"device_config"`
	Depth    int      `json:"depth"`
	Guidance []string `json:"guidance"`
	Steps    []Step   `json:"steps,omitempty"`
}

// Validate checks the edit payload.
func (in *EditScanInput) Validate() error {
	if in.ID == "" {
		return fmt.Errorf("%w: please provide a scanRequestId", ErrValidation)
	}
	if in.Depth < 0 {
		in.Depth = 0
	}
	for i, step := range in.Steps {
		if err := step.Validate(); err != nil {
			return fmt.Errorf("step %d: %w", i, err)
		}
	}
	return nil
}

// ScheduleEntry records a pending scheduled run for a scan request.
type ScheduleEntry struct {
	ScanRequestID string    `json:"scanRequestId"`
	RunAt         time.Time `json:"scheduledTime"`
}

// DueScan is a schedule entry hydrated with what the executor needs.
type DueScan struct {
	ScheduleEntry
	URLs   []string `json:"urls"`
	Device string   `json:"device"`
}

// RunStatus classifies the outcome of a single executor run.
type RunStatus string

const (
	RunCompleted   RunStatus = "completed"
	RunStepsFailed RunStatus = "steps_failed"
	RunFailed      RunStatus = "failed"
)

// RunOutcome is what a scan run reports back to its caller.
type RunOutcome struct {
	ScanRequestID string    `json:"scanRequestId"`
	Status        RunStatus `json:"status"`
	Message       string    `json:"message"`
	Score         *float64  `json:"score,omitempty"`
	Processed     int       `json:"processed"`
	Skipped       int       `json:"skipped"`
}

// ScheduleOutcome is the per-id result of a batch scheduling request.
type ScheduleOutcome struct {
	ScanRequestID string `json:"scanRequestId"`
	Message       string `json:"message"`
	Error         string `json:"error,omitempty"`
}

// SweepReport summarises one pass of the expiry sweep.
type SweepReport struct {
	Due       int          `json:"due"`
	Detached  int          `json:"detached"`
	Completed int          `json:"completed"`
	Failed    int          `json:"failed"`
	Outcomes  []RunOutcome `json:"outcomes"`
}
