package selector

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestToHostFormat(t *testing.T) {
	tests := []struct {
		name     string
		selector string
		want     string
	}{
		{name: "whole file", selector: "tests/test_a.py", want: "tests/test_a.py"},
		{name: "empty case path", selector: "tests/test_a.py?", want: "tests/test_a.py"},
		{name: "function", selector: "test_a.py?test_x", want: "test_a.py::test_x"},
		{name: "class method", selector: "aa/bb/cc/class_test.py?TestCompute/test_add", want: "aa/bb/cc/class_test.py::TestCompute::test_add"},
		{name: "name prefix", selector: "test_a.py?name=TestA/test_x", want: "test_a.py::TestA::test_x"},
		{name: "name attribute", selector: "test_a.py?owner=foo&name=TestA/test_x&tag=high", want: "test_a.py::TestA::test_x"},
		{name: "positional attribute", selector: "test_a.py?owner=foo&TestA/test_x", want: "test_a.py::TestA::test_x"},
		{name: "no usable attribute", selector: "test_a.py?owner=foo&tag=high", want: "test_a.py"},
		{name: "ascii parameter", selector: "data_drive.py?test_eval/[2+4-6]", want: "data_drive.py::test_eval[2+4-6]"},
		{name: "parameter with slash", selector: "data_drive.py?test_eval/[a/b]", want: "data_drive.py::test_eval[a/b]"},
		{name: "non-ascii parameter", selector: "data.py?test_x/[中文-中文汉字]", want: `data.py::test_x[\u4e2d\u6587-\u4e2d\u6587\u6c49\u5b57]`},
		{name: "latin-1 parameter", selector: "data.py?test_x/[é]", want: `data.py::test_x[\xe9]`},
		{name: "astral parameter", selector: "data.py?test_x/[😀]", want: `data.py::test_x[\U0001f600]`},
		{name: "backslash parameter", selector: `data.py?test_x/[a\b]`, want: `data.py::test_x[a\\b]`},
		{name: "class with parameter", selector: "data.py?TestA/test_x/[1-2]", want: "data.py::TestA::test_x[1-2]"},
		{name: "open bracket parameter", selector: "t.py?test_x/[[]", want: "t.py::test_x[[]"},
		{name: "close bracket parameter", selector: "t.py?test_x/[]]", want: "t.py::test_x[]]"},
		{name: "nested brackets parameter", selector: "t.py?test_x/[[1]", want: "t.py::test_x[[1]"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ToHostFormat(tt.selector)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestToHostFormat_MalformedCasePath(t *testing.T) {
	for _, sel := range []string{"a.py?test_x/[1-2", "a.py?test_x/[1", "a.py?test_x/1]", "a.py?Test[A/test_x", "a.py?test_x/[1]/extra"} {
		t.Run(sel, func(t *testing.T) {
			_, err := ToHostFormat(sel)
			require.Error(t, err)

			var formatErr *FormatError
			require.True(t, errors.As(err, &formatErr), "error should be a FormatError")
			assert.Equal(t, sel, formatErr.Selector)
		})
	}
}

func TestToSelectorFormat(t *testing.T) {
	tests := []struct {
		name   string
		nodeID string
		want   string
	}{
		{name: "function", nodeID: "test_a.py::test_x", want: "test_a.py?test_x"},
		{name: "class method", nodeID: "aa/bb/cc/class_test.py::TestCompute::test_add", want: "aa/bb/cc/class_test.py?TestCompute/test_add"},
		{name: "parameter", nodeID: "data_drive.py::test_eval[6*9-42]", want: "data_drive.py?test_eval/[6*9-42]"},
		{name: "separator inside parameter", nodeID: "data.py::TestA::test_x[a::b]", want: "data.py?TestA/test_x/[a::b]"},
		{name: "escaped parameter", nodeID: `data.py::test_include[\u4e2d\u6587-\u4e2d\u6587\u6c49\u5b57]`, want: "data.py?test_include/[中文-中文汉字]"},
		{name: "surrogate pair", nodeID: `data.py::test_x[\ud83d\ude00]`, want: "data.py?test_x/[😀]"},
		{name: "broken escape kept", nodeID: `data.py::test_x[\u4e]`, want: `data.py?test_x/[\u4e]`},
		{name: "doctest item", nodeID: "mod.py::mod.func", want: "mod.py?mod.func"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ToSelectorFormat(tt.nodeID))
		})
	}
}

func TestToSelectorFormat_PanicsWithoutSeparator(t *testing.T) {
	assert.Panics(t, func() {
		ToSelectorFormat("test_a.py")
	})
}

func TestRoundTrip_NodeIDs(t *testing.T) {
	nodeIDs := []string{
		"test_a.py::test_x",
		"aa/bb/cc/class_test.py::TestCompute::test_add",
		"data_drive.py::test_eval[2+4-6]",
		`data.py::test_include[\u4e2d\u6587-\u4e2d\u6587\u6c49\u5b57]`,
		`data.py::test_x[\xe9]`,
		`data.py::test_x[a\\b]`,
		`data.py::test_x[\U0001f600]`,
		"data.py::TestA::TestB::test_x[a::b]",
		"t.py::test_x[[]",
		"t.py::test_x[]]",
		"t.py::test_x[a]b]",
		"t.py::TestA::test_x[[a]-[b]]",
	}

	for _, nodeID := range nodeIDs {
		t.Run(nodeID, func(t *testing.T) {
			host, err := ToHostFormat(ToSelectorFormat(nodeID))
			require.NoError(t, err)
			assert.Equal(t, nodeID, host)
		})
	}
}

func TestRoundTrip_NonASCIISelector(t *testing.T) {
	sel := "data.py?test_x/[中文-中文汉字]"

	host, err := ToHostFormat(sel)
	require.NoError(t, err)
	assert.NotContains(t, host, "中")

	assert.Equal(t, sel, ToSelectorFormat(host))
}

func TestConverter_DoubleDecode(t *testing.T) {
	nodeID := `data.py::test_x[\\u4e2d\\u6587]`

	single := NewConverter(false)
	assert.Equal(t, `data.py?test_x/[\u4e2d\u6587]`, single.ToSelectorFormat(nodeID))

	double := NewConverter(true)
	assert.True(t, double.DoubleDecode())
	assert.Equal(t, "data.py?test_x/[中文]", double.ToSelectorFormat(nodeID))

	// already readable names are left alone by the second pass
	assert.Equal(t, "data.py?test_x/[中文]", double.ToSelectorFormat(`data.py::test_x[中文]`))
}

func TestDecodeCaseName(t *testing.T) {
	c := NewConverter(false)
	assert.Equal(t, "TestA/test_x", c.DecodeCaseName("TestA::test_x"))
	assert.Equal(t, "test_eval/[3+5-8]", c.DecodeCaseName("test_eval[3+5-8]"))
	assert.Equal(t, "test_x/[中文]", c.DecodeCaseName(`test_x[\u4e2d\u6587]`))
	assert.Equal(t, "test_x/[1]", c.DecodeCaseName("test_x/[1]"), "already expanded names are stable")
}

func TestFilePath(t *testing.T) {
	assert.Equal(t, "a/b.py", FilePath("a/b.py?TestA/test_x"))
	assert.Equal(t, "a/b.py", FilePath("a/b.py"))
}
