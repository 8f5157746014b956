package schemas

import "time"

// Impact is the analyzer's severity rating for a rule.
type Impact string

const (
	ImpactMinor    Impact = "minor"
	ImpactModerate Impact = "moderate"
	ImpactSerious  Impact = "serious"
	ImpactCritical Impact = "critical"
)

// NodeResult is one element a rule matched.
type NodeResult struct {
	HTML           string   `json:"html"`
	Target         []string `json:"target"`
	FailureSummary string   `json:"failureSummary,omitempty"`
	Impact         Impact   `json:"impact,omitempty"`
}

// Finding is a single rule outcome reported by the accessibility analyzer.
type Finding struct {
	ID          string       `json:"id"`
	Tags        []string     `json:"tags"`
	Impact      Impact       `json:"impact,omitempty"`
	Description string       `json:"description"`
	Help        string       `json:"help"`
	HelpURL     string       `json:"helpUrl"`
	Nodes       []NodeResult `json:"nodes,omitempty"`
}

// TestEngine identifies the analyzer build that produced a result.
type TestEngine struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// TestEnvironment describes where a page was analysed.
type TestEnvironment struct {
	Device         string `json:"device,omitempty"`
	UserAgent      string `json:"userAgent"`
	WindowWidth    int64  `json:"windowWidth"`
	WindowHeight   int64  `json:"windowHeight"`
	OrientationDeg int64  `json:"orientationAngle,omitempty"`
	OrientationTyp string `json:"orientationType,omitempty"`
}

// AnalysisResult is the fixed taxonomy returned by one analyzer pass.
type AnalysisResult struct {
	URL             string          `json:"url"`
	Timestamp       time.Time       `json:"timestamp"`
	TestEngine      TestEngine      `json:"testEngine"`
	TestEnvironment TestEnvironment `json:"testEnvironment"`
	Violations      []Finding       `json:"violations"`
	Passes          []Finding       `json:"passes"`
	Incomplete      []Finding       `json:"incomplete"`
	Inapplicable    []Finding       `json:"inapplicable"`
}

// PerUrlResult is the stored outcome of analysing one URL within one scan run.
type PerUrlResult struct {
	ID              string          `json:"id"`
	ScanRequestID   string          `json:"scanRequestId"`
	URL             string          `json:"url"`
	Score           float64         `json:"score"`
	Timestamp       time.Time       `json:"timestamp"`
	TestEngine      TestEngine      `json:"testEngine"`
	TestEnvironment TestEnvironment `json:"testEnvironment"`
	Violations      []Finding       `json:"violations"`
	Passes          []Finding       `json:"passes"`
	Incomplete      []Finding       `json:"incomplete"`
	Inapplicable    []Finding       `json:"inapplicable"`
}

// ScanReport is the read-only view handed to report generation.
type ScanReport struct {
	Request *ScanRequest   `json:"request"`
	Results []PerUrlResult `json:"results"`
}
