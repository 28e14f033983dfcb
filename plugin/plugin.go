package plugin

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"
)

// IndexFile is the entry page of an HTML test report.
const IndexFile = "index.html"

// Threshold modes.
const (
	ThresholdModeNone       = 0
	ThresholdModeAbsolute   = 1
	ThresholdModePercentage = 2
)

// Args represents the plugin's configurable arguments.
type Args struct {
	ReportsPath           string `envconfig:"PLUGIN_REPORTS_PATH"`
	AttachmentStyle       string `envconfig:"PLUGIN_ATTACHMENT_STYLE" default:"attachment"`
	FailedFails           int    `envconfig:"PLUGIN_FAILED_FAILS"`
	FailedSkips           int    `envconfig:"PLUGIN_FAILED_SKIPS"`
	UnstableFails         int    `envconfig:"PLUGIN_UNSTABLE_FAILS"`
	UnstableSkips         int    `envconfig:"PLUGIN_UNSTABLE_SKIPS"`
	JobStatus             string `envconfig:"PLUGIN_JOB_STATUS"`
	ThresholdMode         int    `envconfig:"PLUGIN_THRESHOLD_MODE"`
	PluginFailIfNoResults bool   `envconfig:"PLUGIN_FAIL_IF_NO_RESULTS"`
	Level                 string `envconfig:"PLUGIN_LOG_LEVEL"`
}

// ValidateInputs ensures the user inputs meet the plugin requirements.
func ValidateInputs(args Args) error {
	switch AttachmentStyle(args.AttachmentStyle) {
	case "", AttachmentStyleMarker, AttachmentStyleRaw:
	default:
		return fmt.Errorf("invalid AttachmentStyle %q. It must be %q or %q", args.AttachmentStyle, AttachmentStyleMarker, AttachmentStyleRaw)
	}
	if args.FailedFails < 0 || args.FailedSkips < 0 || args.UnstableFails < 0 || args.UnstableSkips < 0 {
		return errors.New("threshold values must be non-negative. Check the configured values for failed, unstable and skipped tests")
	}
	switch args.ThresholdMode {
	case ThresholdModeNone, ThresholdModeAbsolute, ThresholdModePercentage:
	default:
		return errors.New("invalid ThresholdMode value. It must be 0 (disabled), 1 (absolute) or 2 (percentage). Check the configuration")
	}
	return nil
}

// Exec converts the HTML report found in args.ReportsPath into result.xml.
func Exec(ctx context.Context, args Args) error {
	indexFile := filepath.Join(args.ReportsPath, IndexFile)
	logrus.Infof("Processing file: %s", indexFile)

	doc, err := readDocument(indexFile)
	if err != nil {
		return fmt.Errorf("failed to read report index: %w", err)
	}
	classFiles, err := locateClassFiles(doc, indexFile)
	if err != nil {
		logrus.WithError(err).WithField("File", indexFile).Error("Error locating class files")
		return fmt.Errorf("failed to locate class files: %w", err)
	}

	if len(classFiles) == 0 {
		if args.PluginFailIfNoResults {
			return errors.New("no test classes found in the report index. Check the reports path")
		}
		logrus.Warn("No test classes found, continuing execution as PluginFailIfNoResults is false")
	}

	var suites []*TestSuiteRecord
	var aggregatedResults Results

	for _, file := range classFiles {
		if err := ctx.Err(); err != nil {
			return err
		}
		suite, err := parseClassFile(args.ReportsPath, file)
		if err != nil {
			return fmt.Errorf("failed to process file: %w", err)
		}
		results := suite.Results()
		logSuiteSummary(suite.Name, results)
		logSuiteTestDetails(suite)

		suites = append(suites, suite)
		aggregatedResults.Add(results)
	}

	style := AttachmentStyle(args.AttachmentStyle)
	if style == "" {
		style = AttachmentStyleMarker
	}
	data, err := render(suites, style, args.ReportsPath)
	if err != nil {
		return err
	}
	output, err := write(data, args.ReportsPath)
	if err != nil {
		return err
	}
	logrus.WithField("File", output).Info("JUnit report written")

	// Log aggregated results
	logrus.Infof("\n===============================================")
	logrus.Infof("\nTotal Tests Results: %d | Failures: %d | Skips: %d | Duration: %.2f s", aggregatedResults.Total, aggregatedResults.Failures, aggregatedResults.Skipped, aggregatedResults.Duration)
	logrus.Infof("\n===============================================")

	if err := validateThresholds(aggregatedResults, args); err != nil {
		logger := logrus.WithFields(logrus.Fields{
			"Total Tests": aggregatedResults.Total,
			"Failures":    aggregatedResults.Failures,
			"Skipped":     aggregatedResults.Skipped,
			"Duration":    aggregatedResults.Duration,
		})
		logger.Error(err.Error())
		return err
	}

	return nil
}

func logSuiteSummary(name string, results Results) {
	logrus.Infof("\n===============================================")
	logrus.Infof("\nSuite: %s", name)
	logrus.Infof("\nTotal Tests: %d | Failures: %d | Skips: %d | Duration: %.2f s", results.Total, results.Failures, results.Skipped, results.Duration)
	logrus.Infof("\n===============================================")
}

func logSuiteTestDetails(suite *TestSuiteRecord) {
	logrus.Infof("\nTest Details:")
	for _, test := range suite.Tests {
		logrus.Infof("\n- Test: %s | Status: %s | Duration: %.3f s", test.Name, test.Status, test.Duration)
		if test.FailureMessage != nil {
			logrus.Infof("\n    Failure: %s", firstLine(*test.FailureMessage))
		}
		for _, src := range test.Attachments {
			logrus.Infof("\n    Attachment: %s", src)
		}
	}
}

// validateThresholds validates test report thresholds based on aggregate results.
// The unstable limits only apply once the job has already been marked failed.
func validateThresholds(results Results, args Args) error {
	var mode string
	switch args.ThresholdMode {
	case ThresholdModeNone:
		return nil
	case ThresholdModeAbsolute:
		mode = "absolute"
	case ThresholdModePercentage:
		mode = "percentage"
	default:
		return fmt.Errorf("invalid ThresholdMode: %d, expected 0 (disabled), 1 (absolute) or 2 (percentage)", args.ThresholdMode)
	}

	if err := checkLimits(results, args.ThresholdMode, args.FailedFails, args.FailedSkips); err != nil {
		return fmt.Errorf("%s threshold validation failed: %w", mode, err)
	}
	if strings.EqualFold(args.JobStatus, "failed") {
		if err := checkLimits(results, args.ThresholdMode, args.UnstableFails, args.UnstableSkips); err != nil {
			return fmt.Errorf("build marked as failed, unstable %s threshold validation failed: %w", mode, err)
		}
	}
	return nil
}

// checkLimits compares failures and skips with their limits, either as counts
// or as a share of all tests. A zero limit is not checked.
func checkLimits(results Results, mode, maxFails, maxSkips int) error {
	exceeds := func(count, limit int) bool { return count > limit }
	format := strconv.Itoa
	if mode == ThresholdModePercentage {
		if results.Total == 0 {
			return nil // No tests to validate
		}
		exceeds = func(count, limit int) bool { return count*100 > limit*results.Total }
		format = func(count int) string {
			return fmt.Sprintf("%.2f%%", float64(count)*100/float64(results.Total))
		}
	}

	if maxFails > 0 && exceeds(results.Failures, maxFails) {
		return fmt.Errorf("failed tests %s over the limit of %s", format(results.Failures), limitText(mode, maxFails))
	}
	if maxSkips > 0 && exceeds(results.Skipped, maxSkips) {
		return fmt.Errorf("skipped tests %s over the limit of %s", format(results.Skipped), limitText(mode, maxSkips))
	}
	return nil
}

func limitText(mode, limit int) string {
	if mode == ThresholdModePercentage {
		return strconv.Itoa(limit) + "%"
	}
	return strconv.Itoa(limit)
}
