package plugin

import "strings"

// Status is the label taken from the CSS class of a test's result cell.
type Status string

// Known status labels emitted by the HTML report.
const (
	StatusSuccess Status = "success"
	StatusFailed  Status = "failures"
	StatusSkipped Status = "skipped"
	StatusIgnored Status = "ignored"
)

// IsSuccess reports whether the label marks a passed test.
func (s Status) IsSuccess() bool {
	switch s.normalize() {
	case StatusSuccess, "passed", "pass":
		return true
	}
	return false
}

// IsFailure reports whether the label marks a failed test.
func (s Status) IsFailure() bool {
	switch s.normalize() {
	case StatusFailed, "failed", "failure", "fail":
		return true
	}
	return false
}

// IsSkipped reports whether the label marks a skipped or ignored test.
func (s Status) IsSkipped() bool {
	switch s.normalize() {
	case StatusSkipped, StatusIgnored, "skip":
		return true
	}
	return false
}

func (s Status) normalize() Status {
	return Status(strings.ToLower(string(s)))
}

// TestRecord represents a single test row of a class report.
type TestRecord struct {
	Name           string
	SuiteName      string
	Status         Status
	Duration       float64 // seconds
	FailureMessage *string
	Attachments    []string
}

// TestSuiteRecord represents one class report and its tests in document order.
type TestSuiteRecord struct {
	Name       string
	Tests      []*TestRecord
	Duplicates []string

	index map[string]int
}

// NewTestSuiteRecord creates an empty suite.
func NewTestSuiteRecord(name string) *TestSuiteRecord {
	return &TestSuiteRecord{
		Name:  name,
		index: map[string]int{},
	}
}

// Add appends a record to the suite. A record whose name is already present
// replaces the earlier one in place and the name is reported in Duplicates.
func (s *TestSuiteRecord) Add(record *TestRecord) bool {
	record.SuiteName = s.Name
	if s.index == nil {
		s.index = map[string]int{}
	}
	if i, ok := s.index[record.Name]; ok {
		s.Tests[i] = record
		s.Duplicates = append(s.Duplicates, record.Name)
		return false
	}
	s.index[record.Name] = len(s.Tests)
	s.Tests = append(s.Tests, record)
	return true
}

// Lookup returns the record named name, if any.
func (s *TestSuiteRecord) Lookup(name string) (*TestRecord, bool) {
	i, ok := s.index[name]
	if !ok {
		return nil, false
	}
	return s.Tests[i], true
}

// Results holds aggregated counters for one or more suites.
type Results struct {
	Total    int
	Failures int
	Skipped  int
	Duration float64 // seconds
}

// Add accumulates other into r.
func (r *Results) Add(other Results) {
	r.Total += other.Total
	r.Failures += other.Failures
	r.Skipped += other.Skipped
	r.Duration += other.Duration
}

// Results counts the suite's tests. A test counts as a failure when it carries
// a failure message.
func (s *TestSuiteRecord) Results() Results {
	var results Results
	for _, test := range s.Tests {
		results.Total++
		results.Duration += test.Duration
		if test.FailureMessage != nil {
			results.Failures++
		} else if test.Status.IsSkipped() {
			results.Skipped++
		}
	}
	return results
}
