package plugin

import (
	"errors"
	"io/fs"
	"strings"
	"testing"

	"github.com/PuerkitoBio/goquery"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func loadDocument(t *testing.T, page string) *goquery.Document {
	t.Helper()
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(page))
	require.NoError(t, err)
	return doc
}

// classPage builds a class report page with a "Tests" tab holding rows and,
// when failed is not empty, a "Failed tests" tab holding failed.
func classPage(rows, failed string) string {
	var b strings.Builder
	b.WriteString(`<html><body><div id="tabs"><ul class="tabLinks">`)
	if failed != "" {
		b.WriteString(`<li><a href="#tab0">Failed tests</a></li>`)
	}
	b.WriteString(`<li><a href="#tab1">Tests</a></li></ul>`)
	if failed != "" {
		b.WriteString(`<div id="tab0" class="tab">` + failed + `</div>`)
	}
	b.WriteString(`<div id="tab1" class="tab"><table><thead><tr><th>Test</th><th>Result</th></tr></thead>`)
	b.WriteString(rows)
	b.WriteString(`</table></div></div></body></html>`)
	return b.String()
}

func TestParseDuration(t *testing.T) {
	tests := []struct {
		name     string
		text     string
		expected float64
		err      bool
	}{
		{name: "Seconds", text: "12.5s", expected: 12.5},
		{name: "MinutesAndSeconds", text: "1m 5s", expected: 65},
		{name: "ZeroMinutes", text: "0m 3s", expected: 3},
		{name: "MinutesAndFractionalSeconds", text: "1m 5.5s", expected: 65.5},
		{name: "SurroundingSpaces", text: " 2s ", expected: 2},
		{name: "Milliseconds", text: "250ms", expected: 0.25},
		{name: "Hours", text: "1h 0m 1s", expected: 3601},
		{name: "Empty", text: "", err: true},
		{name: "Garbage", text: "fast", err: true},
		{name: "MissingUnit", text: "5", err: true},
		{name: "Negative", text: "-1s", err: true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := parseDuration(tc.text)
			if tc.err {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.InDelta(t, tc.expected, got, 1e-9)
		})
	}
}

func TestFindTab(t *testing.T) {
	page := `<html><body><div id="tabs"><ul class="tabLinks">
<li><a href="#tab0"> Classes </a></li>
<li><a href="#tab1">Packages</a></li>
<li><a href="">Tests</a></li>
</ul>
<div id="tab0"><p>classes</p></div>
</div></body></html>`
	doc := loadDocument(t, page)

	t.Run("Found", func(t *testing.T) {
		tab, err := findTab(doc, "index.html", TabClasses)
		require.NoError(t, err)
		assert.Equal(t, "classes", tab.Text())
	})

	t.Run("MissingLabel", func(t *testing.T) {
		_, err := findTab(doc, "index.html", TabFailedTests)
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrTabNotFound))
	})

	t.Run("MissingContent", func(t *testing.T) {
		_, err := findTab(doc, "index.html", "Packages")
		require.Error(t, err)
		assert.False(t, errors.Is(err, ErrTabNotFound))
		assert.Contains(t, err.Error(), "missing div#tab1")
	})

	t.Run("EmptyHref", func(t *testing.T) {
		_, err := findTab(doc, "index.html", TabTests)
		require.Error(t, err)
		assert.False(t, errors.Is(err, ErrTabNotFound))
	})

	t.Run("NoTabs", func(t *testing.T) {
		_, err := findTab(loadDocument(t, "<html><body></body></html>"), "index.html", TabClasses)
		var parseErr *ParseError
		require.ErrorAs(t, err, &parseErr)
		assert.Equal(t, "index.html", parseErr.File)
		assert.False(t, errors.Is(err, ErrTabNotFound))
	})
}

func TestLocateClassFiles(t *testing.T) {
	tests := []struct {
		name     string
		file     string
		expected []string
		err      string
	}{
		{
			name:     "ValidIndex",
			file:     "../testdata/report/index.html",
			expected: []string{"com.example.LoginTest.html", "com.example.SettingsTest.html"},
		},
		{
			name: "EmptyClassesTab",
			file: "../testdata/no-classes/index.html",
		},
		{
			name: "NoTabs",
			file: "../testdata/bad-index/index.html",
			err:  "missing div#tabs",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			doc, err := readDocument(tc.file)
			require.NoError(t, err)

			files, err := locateClassFiles(doc, tc.file)
			if tc.err != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tc.err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.expected, files)
		})
	}
}

func TestLocateClassFilesLinkWithoutHref(t *testing.T) {
	doc := loadDocument(t, `<div id="tabs"><ul class="tabLinks"><li><a href="#c">Classes</a></li></ul>
<div id="c"><a href="A.html">A</a><a>B</a></div></div>`)

	_, err := locateClassFiles(doc, "index.html")
	require.Error(t, err)
	assert.Contains(t, err.Error(), `class link "B" has no href`)
}

func TestReadDocumentMissingFile(t *testing.T) {
	_, err := readDocument("../testdata/nonexistent.html")
	require.Error(t, err)
	assert.True(t, errors.Is(err, fs.ErrNotExist))
}

func TestSuiteName(t *testing.T) {
	assert.Equal(t, "com.example.LoginTest", suiteName("com.example.LoginTest.html"))
	assert.Equal(t, "com.example.LoginTest", suiteName("classes/com.example.LoginTest.html"))
	assert.Equal(t, "LoginTest", suiteName("LoginTest"))
}

func TestParseClassFile(t *testing.T) {
	suite, err := parseClassFile("../testdata/report", "com.example.LoginTest.html")
	require.NoError(t, err)

	assert.Equal(t, "com.example.LoginTest", suite.Name)
	require.Len(t, suite.Tests, 2)
	assert.Empty(t, suite.Duplicates)

	login := suite.Tests[0]
	assert.Equal(t, "testLogin", login.Name)
	assert.Equal(t, "com.example.LoginTest", login.SuiteName)
	assert.Equal(t, StatusSuccess, login.Status)
	assert.InDelta(t, 1.2, login.Duration, 1e-9)
	assert.Nil(t, login.FailureMessage)
	assert.Empty(t, login.Attachments)

	logout := suite.Tests[1]
	assert.Equal(t, "testLogout", logout.Name)
	assert.Equal(t, StatusFailed, logout.Status)
	assert.InDelta(t, 3.0, logout.Duration, 1e-9)
	require.NotNil(t, logout.FailureMessage)
	assert.Equal(t, "AssertionError: expected true", *logout.FailureMessage)
	assert.Equal(t, []string{"img/1.png"}, logout.Attachments)
}

func TestParseClassFileWithoutFailedTests(t *testing.T) {
	suite, err := parseClassFile("../testdata/report", "com.example.SettingsTest.html")
	require.NoError(t, err)

	require.Len(t, suite.Tests, 3)
	assert.Equal(t, "testOpenSettings", suite.Tests[0].Name)
	assert.InDelta(t, 65.5, suite.Tests[0].Duration, 1e-9)
	assert.Equal(t, Status("skipped"), suite.Tests[1].Status)
	for _, test := range suite.Tests {
		assert.Nil(t, test.FailureMessage, test.Name)
	}
	assert.Equal(t, Results{Total: 3, Skipped: 1, Duration: 65.75}, suite.Results())
}

func TestParseClassFileBrokenFailedTests(t *testing.T) {
	_, err := parseClassFile("../testdata/broken-failures", "com.example.CallTest.html")

	var parseErr *ParseError
	require.ErrorAs(t, err, &parseErr)
	assert.Contains(t, err.Error(), "missing anchor name")
}

func TestParseClassFileMissing(t *testing.T) {
	_, err := parseClassFile("../testdata/missing-class", "com.example.MissingTest.html")
	require.Error(t, err)
	assert.True(t, errors.Is(err, fs.ErrNotExist))
}

func TestParseTestsZeroRows(t *testing.T) {
	doc := loadDocument(t, classPage("", ""))
	suite := NewTestSuiteRecord("Empty")

	require.NoError(t, parseTests(doc, "Empty.html", suite))
	assert.Empty(t, suite.Tests)
}

func TestParseTestsDuplicateRows(t *testing.T) {
	rows := `<tr><td>a</td><td class="success">Passed(1s)</td></tr>
<tr><td>b</td><td class="success">Passed(2s)</td></tr>
<tr><td>a</td><td class="failures">Failed(3s)</td></tr>`
	doc := loadDocument(t, classPage(rows, ""))
	suite := NewTestSuiteRecord("Dup")

	require.NoError(t, parseTests(doc, "Dup.html", suite))
	require.Len(t, suite.Tests, 2)
	assert.Equal(t, "a", suite.Tests[0].Name)
	assert.Equal(t, Status("failures"), suite.Tests[0].Status)
	assert.InDelta(t, 3.0, suite.Tests[0].Duration, 1e-9)
	assert.Equal(t, "b", suite.Tests[1].Name)
	assert.Equal(t, []string{"a"}, suite.Duplicates)
}

func TestParseTestsMalformedRows(t *testing.T) {
	tests := []struct {
		name string
		row  string
		err  string
	}{
		{
			name: "NoDuration",
			row:  `<tr><td>a</td><td class="success">Passed</td></tr>`,
			err:  "no duration",
		},
		{
			name: "BadDuration",
			row:  `<tr><td>a</td><td class="success">Passed(soon)</td></tr>`,
			err:  "invalid duration",
		},
		{
			name: "NoNameCell",
			row:  `<tr><td class="name">a</td><td class="success">Passed(1s)</td></tr>`,
			err:  "missing test name cell",
		},
		{
			name: "NoStatusCell",
			row:  `<tr><td>a</td></tr>`,
			err:  "missing test status cell",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			doc := loadDocument(t, classPage(tc.row, ""))
			err := parseTests(doc, "Bad.html", NewTestSuiteRecord("Bad"))

			var parseErr *ParseError
			require.ErrorAs(t, err, &parseErr)
			assert.Equal(t, "Bad.html", parseErr.File)
			assert.Contains(t, err.Error(), tc.err)
		})
	}
}

func TestParseFailures(t *testing.T) {
	rows := `<tr><td>testCall</td><td class="failures">Failed(4s)</td></tr>
<tr><td>testHangUp</td><td class="success">Passed(1s)</td></tr>`
	failed := `<div class="test"><a name="testCall"></a><h3>testCall</h3>
<pre>java.lang.AssertionError: no call
	at org.linphone.CallTest.testCall(CallTest.kt:42)<div class="log">noise</div><img src="screenshots/a.png"/><img src="screenshots/b.png"/></pre></div>`
	doc := loadDocument(t, classPage(rows, failed))
	suite := NewTestSuiteRecord("CallTest")
	require.NoError(t, parseTests(doc, "CallTest.html", suite))

	require.NoError(t, parseFailures(doc, "CallTest.html", suite))

	call, ok := suite.Lookup("testCall")
	require.True(t, ok)
	require.NotNil(t, call.FailureMessage)
	assert.Equal(t, "java.lang.AssertionError: no call\n\tat org.linphone.CallTest.testCall(CallTest.kt:42)", *call.FailureMessage)
	assert.NotContains(t, *call.FailureMessage, "noise")
	assert.Equal(t, []string{"screenshots/a.png", "screenshots/b.png"}, call.Attachments)

	hangUp, ok := suite.Lookup("testHangUp")
	require.True(t, ok)
	assert.Nil(t, hangUp.FailureMessage)
	assert.Nil(t, hangUp.Attachments)
}

func TestParseFailuresUnknownTest(t *testing.T) {
	rows := `<tr><td>testCall</td><td class="failures">Failed(4s)</td></tr>`
	failed := `<div class="test"><a name="testGhost"></a><pre>boom</pre></div>`
	doc := loadDocument(t, classPage(rows, failed))
	suite := NewTestSuiteRecord("CallTest")
	require.NoError(t, parseTests(doc, "CallTest.html", suite))

	err := parseFailures(doc, "CallTest.html", suite)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown test "testGhost"`)
}

func TestParseFailuresMissingOutput(t *testing.T) {
	rows := `<tr><td>testCall</td><td class="failures">Failed(4s)</td></tr>`
	failed := `<div class="test"><a name="testCall"></a><h3>testCall</h3></div>`
	doc := loadDocument(t, classPage(rows, failed))
	suite := NewTestSuiteRecord("CallTest")
	require.NoError(t, parseTests(doc, "CallTest.html", suite))

	err := parseFailures(doc, "CallTest.html", suite)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing failure output")
}
