package uploads

import (
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStoredName_KeepsExtension(t *testing.T) {
	name := StoredName("Site Report.PDF")
	assert.True(t, strings.HasSuffix(name, ".pdf"), "got %q", name)
	assert.NotEqual(t, StoredName("a.pdf"), StoredName("a.pdf"))
}

func TestSaveAndReadBack(t *testing.T) {
	d := New(t.TempDir())

	stored, err := d.SaveVisitFile("v1", "report.pdf", strings.NewReader("pdf bytes"))
	require.NoError(t, err)

	data, err := os.ReadFile(d.VisitFilePath("v1", stored))
	require.NoError(t, err)
	assert.Equal(t, "pdf bytes", string(data))
}

func TestVisitFilePath_StripsTraversal(t *testing.T) {
	d := New("/data/uploads")
	path := d.VisitFilePath("v1", "../../etc/passwd")
	assert.Equal(t, "/data/uploads/visits/v1/passwd", path)
}

func TestRemoveVisitFiles(t *testing.T) {
	d := New(t.TempDir())

	stored, err := d.SaveVisitFile("v1", "report.pdf", strings.NewReader("x"))
	require.NoError(t, err)
	require.NoError(t, d.RemoveVisitFiles("v1"))

	_, err = os.Stat(d.VisitFilePath("v1", stored))
	assert.True(t, os.IsNotExist(err))
}

func TestSaveProjectFile(t *testing.T) {
	d := New(t.TempDir())

	stored, err := d.SaveProjectFile("p1", "quote.xlsx", strings.NewReader("sheet"))
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(stored, ".xlsx"))

	data, err := os.ReadFile(d.ProjectFilePath("p1", stored))
	require.NoError(t, err)
	assert.Equal(t, "sheet", string(data))
}
