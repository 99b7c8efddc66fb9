// Package uploads stores files attached to visits and projects on local
// disk. Files are written under <root>/visits/<id>/ or <root>/projects/<id>/
// with a generated name; the original filename lives in the database.
package uploads

import (
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
)

// Dir is a root directory for stored uploads.
type Dir struct {
	root string
}

// New returns a Dir rooted at the given path. The directory is created on
// first write, not here.
func New(root string) Dir {
	return Dir{root: root}
}

// StoredName generates the on-disk name for an upload, keeping the
// original extension so content can be served with a sensible type.
func StoredName(originalName string) string {
	ext := strings.ToLower(filepath.Ext(originalName))
	return uuid.New().String() + ext
}

// SaveVisitFile writes r to the visit's directory and returns the stored name.
func (d Dir) SaveVisitFile(visitID, originalName string, r io.Reader) (string, error) {
	return d.save(filepath.Join("visits", visitID), originalName, r)
}

// SaveProjectFile writes r to the project's directory and returns the stored name.
func (d Dir) SaveProjectFile(projectID, originalName string, r io.Reader) (string, error) {
	return d.save(filepath.Join("projects", projectID), originalName, r)
}

func (d Dir) save(sub, originalName string, r io.Reader) (string, error) {
	dir := filepath.Join(d.root, sub)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", eris.Wrapf(err, "uploads: create %s", dir)
	}

	stored := StoredName(originalName)
	f, err := os.Create(filepath.Join(dir, stored))
	if err != nil {
		return "", eris.Wrapf(err, "uploads: create file %s", stored)
	}
	defer f.Close()

	if _, err := io.Copy(f, r); err != nil {
		os.Remove(f.Name())
		return "", eris.Wrapf(err, "uploads: write %s", stored)
	}
	return stored, nil
}

// VisitFilePath returns the on-disk path of a stored visit file. The stored
// name is reduced to its base so a crafted name cannot escape the directory.
func (d Dir) VisitFilePath(visitID, storedName string) string {
	return filepath.Join(d.root, "visits", visitID, filepath.Base(storedName))
}

// ProjectFilePath returns the on-disk path of a stored project file.
func (d Dir) ProjectFilePath(projectID, storedName string) string {
	return filepath.Join(d.root, "projects", projectID, filepath.Base(storedName))
}

// RemoveVisitFiles deletes everything stored for a visit.
func (d Dir) RemoveVisitFiles(visitID string) error {
	return eris.Wrapf(os.RemoveAll(filepath.Join(d.root, "visits", visitID)),
		"uploads: remove visit %s", visitID)
}

// RemoveProjectFiles deletes everything stored for a project.
func (d Dir) RemoveProjectFiles(projectID string) error {
	return eris.Wrapf(os.RemoveAll(filepath.Join(d.root, "projects", projectID)),
		"uploads: remove project %s", projectID)
}
