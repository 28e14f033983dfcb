package plugin

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/sirupsen/logrus"
)

// Tab labels of the HTML report pages.
const (
	TabClasses     = "Classes"
	TabTests       = "Tests"
	TabFailedTests = "Failed tests"
)

// ErrTabNotFound is returned when a page has no tab link with the requested label.
var ErrTabNotFound = errors.New("tab not found")

// ParseError reports an HTML page that does not have the expected structure.
type ParseError struct {
	File   string
	Reason string
	Err    error
}

func (e *ParseError) Error() string {
	msg := "failed to parse " + e.File + ": " + e.Reason
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// readDocument loads and parses an HTML file.
func readDocument(filename string) (*goquery.Document, error) {
	f, err := os.Open(filename)
	if err != nil {
		logrus.WithError(err).WithField("File", filename).Error("Failed to open file")
		return nil, fmt.Errorf("failed to read file: %w", err)
	}
	defer f.Close()

	doc, err := goquery.NewDocumentFromReader(f)
	if err != nil {
		logrus.WithError(err).WithField("File", filename).Error("Failed to parse HTML")
		return nil, &ParseError{File: filename, Reason: "invalid HTML", Err: err}
	}
	return doc, nil
}

// findTab returns the content div of the tab whose link text is label.
func findTab(doc *goquery.Document, filename, label string) (*goquery.Selection, error) {
	tabs := doc.Find("div#tabs").First()
	if tabs.Length() == 0 {
		return nil, &ParseError{File: filename, Reason: "missing div#tabs"}
	}
	tabLinks := tabs.Find("ul.tabLinks").First()
	if tabLinks.Length() == 0 {
		return nil, &ParseError{File: filename, Reason: "missing ul.tabLinks"}
	}

	link := tabLinks.Find("a").FilterFunction(func(_ int, a *goquery.Selection) bool {
		return strings.TrimSpace(a.Text()) == label
	}).First()
	if link.Length() == 0 {
		return nil, &ParseError{File: filename, Reason: fmt.Sprintf("no %q tab", label), Err: ErrTabNotFound}
	}

	href, _ := link.Attr("href")
	id := strings.TrimPrefix(href, "#")
	if id == "" {
		return nil, &ParseError{File: filename, Reason: fmt.Sprintf("%q tab link has no target", label)}
	}

	content := doc.Find("div").FilterFunction(func(_ int, div *goquery.Selection) bool {
		divID, ok := div.Attr("id")
		return ok && divID == id
	}).First()
	if content.Length() == 0 {
		return nil, &ParseError{File: filename, Reason: fmt.Sprintf("missing div#%s for %q tab", id, label)}
	}
	return content, nil
}

// locateClassFiles returns the class report files linked from the index page,
// in document order.
func locateClassFiles(doc *goquery.Document, filename string) ([]string, error) {
	classes, err := findTab(doc, filename, TabClasses)
	if err != nil {
		return nil, err
	}

	var files []string
	var parseErr error
	classes.Find("a").EachWithBreak(func(_ int, a *goquery.Selection) bool {
		href, ok := a.Attr("href")
		if !ok || href == "" {
			parseErr = &ParseError{File: filename, Reason: fmt.Sprintf("class link %q has no href", strings.TrimSpace(a.Text()))}
			return false
		}
		files = append(files, href)
		return true
	})
	if parseErr != nil {
		return nil, parseErr
	}
	return files, nil
}

// suiteName derives the suite name from a class report file name.
func suiteName(file string) string {
	base := filepath.Base(filepath.FromSlash(file))
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// parseClassFile reads one class report and returns its suite.
func parseClassFile(reportsPath, file string) (*TestSuiteRecord, error) {
	filename := filepath.Join(reportsPath, filepath.FromSlash(file))
	logrus.Infof("Processing file: %s", filename)

	doc, err := readDocument(filename)
	if err != nil {
		return nil, err
	}

	suite := NewTestSuiteRecord(suiteName(file))
	if err := parseTests(doc, filename, suite); err != nil {
		logrus.WithError(err).WithField("File", filename).Error("Failed to parse tests")
		return nil, err
	}
	if err := parseFailures(doc, filename, suite); err != nil {
		logrus.WithError(err).WithField("File", filename).Error("Failed to parse failed tests")
		return nil, err
	}

	for _, name := range suite.Duplicates {
		logrus.WithFields(logrus.Fields{
			"Suite": suite.Name,
			"Test":  name,
		}).Warn("Duplicate test name, keeping the last row")
	}
	for _, test := range suite.Tests {
		logger := logrus.WithFields(logrus.Fields{
			"Suite":  suite.Name,
			"Test":   test.Name,
			"Status": test.Status,
		})
		switch {
		case test.Status.IsFailure() && test.FailureMessage == nil:
			logger.Warn("Failed test has no failure details")
		case !test.Status.IsSuccess() && !test.Status.IsFailure() && !test.Status.IsSkipped():
			logger.Warn("Unknown test status")
		}
	}
	return suite, nil
}

// parseTests fills suite from the rows of the "Tests" tab.
func parseTests(doc *goquery.Document, filename string, suite *TestSuiteRecord) error {
	tests, err := findTab(doc, filename, TabTests)
	if err != nil {
		return err
	}
	tests.Find("thead").Remove()

	var parseErr error
	tests.Find("tr").EachWithBreak(func(i int, row *goquery.Selection) bool {
		cells := row.ChildrenFiltered("td")
		if cells.Length() == 0 {
			return true
		}
		record, err := parseTestRow(cells)
		if err != nil {
			parseErr = &ParseError{File: filename, Reason: fmt.Sprintf("row %d", i), Err: err}
			return false
		}
		suite.Add(record)
		return true
	})
	return parseErr
}

func parseTestRow(cells *goquery.Selection) (*TestRecord, error) {
	nameCell := cells.FilterFunction(func(_ int, td *goquery.Selection) bool {
		_, ok := td.Attr("class")
		return !ok
	}).First()
	if nameCell.Length() == 0 {
		return nil, errors.New("missing test name cell")
	}

	statusCell := cells.NotSelection(nameCell).First()
	if statusCell.Length() == 0 {
		return nil, errors.New("missing test status cell")
	}
	classes := strings.Fields(statusCell.AttrOr("class", ""))
	if len(classes) == 0 {
		return nil, errors.New("status cell has no class")
	}

	text := statusCell.Text()
	open := strings.LastIndex(text, "(")
	closing := strings.LastIndex(text, ")")
	if open < 0 || closing < open {
		return nil, fmt.Errorf("no duration in %q", text)
	}
	duration, err := parseDuration(text[open+1 : closing])
	if err != nil {
		return nil, err
	}

	return &TestRecord{
		Name:     strings.TrimSpace(nameCell.Text()),
		Status:   Status(classes[0]),
		Duration: duration,
	}, nil
}

// parseDuration converts a report duration such as "12.5s" or "1m 5s" to seconds.
func parseDuration(text string) (float64, error) {
	compact := strings.Join(strings.Fields(text), "")
	d, err := time.ParseDuration(compact)
	if err != nil {
		return 0, fmt.Errorf("invalid duration %q", text)
	}
	if d < 0 {
		return 0, fmt.Errorf("negative duration %q", text)
	}
	return d.Seconds(), nil
}

// parseFailures binds the blocks of the "Failed tests" tab to the suite's
// records. A page without that tab has no failures.
func parseFailures(doc *goquery.Document, filename string, suite *TestSuiteRecord) error {
	failures, err := findTab(doc, filename, TabFailedTests)
	if errors.Is(err, ErrTabNotFound) {
		return nil
	}
	if err != nil {
		return err
	}

	var parseErr error
	failures.Find("div.test").EachWithBreak(func(_ int, block *goquery.Selection) bool {
		if err := parseFailureBlock(block, suite); err != nil {
			parseErr = &ParseError{File: filename, Reason: "failed test block", Err: err}
			return false
		}
		return true
	})
	return parseErr
}

func parseFailureBlock(block *goquery.Selection, suite *TestSuiteRecord) error {
	name, ok := block.Find("a[name]").First().Attr("name")
	if !ok {
		return errors.New("missing anchor name")
	}
	record, ok := suite.Lookup(name)
	if !ok {
		return fmt.Errorf("unknown test %q", name)
	}

	pre := block.Find("pre").First()
	if pre.Length() == 0 {
		return fmt.Errorf("missing failure output for %q", name)
	}

	var images []string
	pre.Find("img").Each(func(_ int, img *goquery.Selection) {
		if src, ok := img.Attr("src"); ok {
			images = append(images, src)
		}
	})
	pre.Find("img").Remove()
	pre.Find("div").Remove()

	message := strings.TrimSpace(pre.Text())
	record.FailureMessage = &message
	record.Attachments = images
	return nil
}
