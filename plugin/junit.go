package plugin

import (
	"encoding/xml"
	"fmt"
	"math"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"
)

// ResultFile is the name of the JUnit report written next to index.html.
const ResultFile = "result.xml"

// AttachmentStyle selects how screenshot references are written to system-out.
type AttachmentStyle string

const (
	// AttachmentStyleMarker joins each relative path to the reports directory
	// and wraps the list as [[ATTACHMENT|<paths>]].
	AttachmentStyleMarker AttachmentStyle = "attachment"
	// AttachmentStyleRaw writes the image sources as found, space separated.
	AttachmentStyleRaw AttachmentStyle = "raw"
)

// Report defines a JUnit XML report
type Report struct {
	XMLName    xml.Name     `xml:"testsuites"`
	Tests      int          `xml:"tests,attr"`
	Failures   int          `xml:"failures,attr"`
	Errors     int          `xml:"errors,attr"`
	Skipped    int          `xml:"skipped,attr"`
	Time       string       `xml:"time,attr"`
	Testsuites []*Testsuite `xml:"testsuite"`
}

// Testsuite defines a JUnit testsuite
type Testsuite struct {
	XMLName   xml.Name    `xml:"testsuite"`
	Name      string      `xml:"name,attr"`
	Tests     int         `xml:"tests,attr"`
	Failures  int         `xml:"failures,attr"`
	Errors    int         `xml:"errors,attr"`
	Skipped   int         `xml:"skipped,attr"`
	Time      string      `xml:"time,attr"`
	Testcases []*Testcase `xml:"testcase"`
}

// Testcase defines a JUnit testcase
type Testcase struct {
	XMLName   xml.Name `xml:"testcase"`
	Name      string   `xml:"name,attr"`
	Classname string   `xml:"classname,attr"`
	Time      string   `xml:"time,attr"`
	Status    string   `xml:"status,attr,omitempty"`
	Skipped   *Skipped `xml:"skipped,omitempty"`
	Failure   *Failure `xml:"failure,omitempty"`
	SystemOut string   `xml:"system-out,omitempty"`
}

// Skipped marks a skipped testcase
type Skipped struct {
	Message string `xml:"message,attr,omitempty"`
}

// Failure defines a JUnit failure
type Failure struct {
	Message string `xml:"message,attr"`
	Type    string `xml:"type,attr"`
	Text    string `xml:",chardata"`
}

// GenerateReport converts parsed suites to a JUnit report.
func GenerateReport(suites []*TestSuiteRecord, style AttachmentStyle, reportsPath string) Report {
	var report Report
	var total Results

	for _, suite := range suites {
		results := suite.Results()
		total.Add(results)

		testsuite := &Testsuite{
			Name:     suite.Name,
			Tests:    results.Total,
			Failures: results.Failures,
			Skipped:  results.Skipped,
			Time:     formatSeconds(results.Duration),
		}
		for _, test := range suite.Tests {
			testsuite.Testcases = append(testsuite.Testcases, newTestcase(test, style, reportsPath))
		}
		report.Testsuites = append(report.Testsuites, testsuite)
	}

	report.Tests = total.Total
	report.Failures = total.Failures
	report.Skipped = total.Skipped
	report.Time = formatSeconds(total.Duration)
	return report
}

func newTestcase(test *TestRecord, style AttachmentStyle, reportsPath string) *Testcase {
	testcase := &Testcase{
		Name:      test.Name,
		Classname: test.SuiteName,
		Time:      formatSeconds(test.Duration),
		Status:    string(test.Status),
	}
	if test.FailureMessage != nil {
		testcase.Failure = &Failure{
			Message: firstLine(*test.FailureMessage),
			Type:    "failure",
			Text:    *test.FailureMessage,
		}
		testcase.SystemOut = formatAttachments(test.Attachments, style, reportsPath)
	} else if test.Status.IsSkipped() {
		testcase.Skipped = &Skipped{}
	}
	return testcase
}

// formatAttachments renders image references for system-out.
func formatAttachments(images []string, style AttachmentStyle, reportsPath string) string {
	if len(images) == 0 {
		return ""
	}
	if style == AttachmentStyleRaw {
		return strings.Join(images, " ")
	}

	paths := make([]string, 0, len(images))
	for _, src := range images {
		paths = append(paths, resolveAttachment(src, reportsPath))
	}
	return "[[ATTACHMENT|" + strings.Join(paths, " ") + "]]"
}

// resolveAttachment places a relative image source under the reports
// directory. Absolute paths and URLs are kept as they are.
func resolveAttachment(src, reportsPath string) string {
	if strings.Contains(src, "://") || path.IsAbs(src) || filepath.IsAbs(src) {
		return src
	}
	return filepath.Join(reportsPath, filepath.FromSlash(src))
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return strings.TrimSpace(s[:i])
	}
	return s
}

// formatSeconds prints a duration in seconds rounded to the millisecond.
func formatSeconds(seconds float64) string {
	return strconv.FormatFloat(math.Round(seconds*1000)/1000, 'f', -1, 64)
}

// render serializes the suites as an indented JUnit XML document.
func render(suites []*TestSuiteRecord, style AttachmentStyle, reportsPath string) ([]byte, error) {
	raw, err := xml.MarshalIndent(GenerateReport(suites, style, reportsPath), "", "\t")
	if err != nil {
		return nil, fmt.Errorf("failed to encode JUnit XML: %w", err)
	}

	xmlHeader := []byte(xml.Header)
	return append(xmlHeader, raw...), nil
}

// write stores the report as result.xml in dir, replacing any previous one.
func write(data []byte, dir string) (string, error) {
	filename := filepath.Join(dir, ResultFile)
	if err := os.WriteFile(filename, data, 0o644); err != nil {
		logrus.WithError(err).WithField("File", filename).Error("Failed to write report")
		return "", fmt.Errorf("failed to write report: %w", err)
	}
	return filename, nil
}
