package output

import (
	"bytes"
	"strings"
	"testing"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTable_Render(t *testing.T) {
	color.NoColor = true
	var buf bytes.Buffer

	table := NewTable([]string{"NAME", "STATUS"})
	table.AddRow([]string{"tile-10", "succeeded"})
	table.AddRow([]string{"t", "failed"})
	table.Render(&buf)

	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	require.Len(t, lines, 4)
	assert.Equal(t, "NAME     STATUS     ", lines[0])
	assert.Equal(t, "-------  ---------  ", lines[1])
	assert.Equal(t, "t        failed     ", lines[3])
}

func TestVisibleLen(t *testing.T) {
	assert.Equal(t, 6, visibleLen("\x1b[31mfailed\x1b[0m"))
	assert.Equal(t, 3, visibleLen("abc"))
}

func TestPrintJSON(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, PrintJSON(&buf, map[string]int{"runs": 2}))
	assert.Equal(t, "{\n  \"runs\": 2\n}\n", buf.String())
}
