// Package template loads quotation document templates and fills their
// placeholders.
package template

import (
	"errors"
	"os"
	"path/filepath"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

// ErrTemplateNotFound is returned when no template exists under a name.
var ErrTemplateNotFound = errors.New("template: not found")

// Repository resolves short template names to template content.
type Repository interface {
	// Get returns the template bytes and the file name it was loaded from.
	// Absent templates return ErrTemplateNotFound.
	Get(name string) (data []byte, fileName string, err error)

	// List returns the available template names.
	List() ([]string, error)
}

// manifest is the optional templates.yaml file mapping short names to
// files. Without one, template names resolve to <name>.docx in the
// directory.
type manifest struct {
	Templates []manifestEntry `yaml:"templates"`
}

type manifestEntry struct {
	Name        string `yaml:"name"`
	File        string `yaml:"file"`
	Description string `yaml:"description"`
}

// DirRepository is a filesystem-backed Repository.
type DirRepository struct {
	dir     string
	entries map[string]string // name -> file
}

// NewDirRepository loads the template directory, reading templates.yaml if
// present.
func NewDirRepository(dir string) (*DirRepository, error) {
	r := &DirRepository{dir: dir, entries: make(map[string]string)}

	manifestPath := filepath.Join(dir, "templates.yaml")
	data, err := os.ReadFile(manifestPath)
	if err != nil {
		if os.IsNotExist(err) {
			return r, nil
		}
		return nil, eris.Wrap(err, "template: read manifest")
	}

	var m manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, eris.Wrap(err, "template: parse manifest")
	}
	for _, e := range m.Templates {
		r.entries[e.Name] = e.File
	}
	return r, nil
}

func (r *DirRepository) Get(name string) ([]byte, string, error) {
	fileName, ok := r.entries[name]
	if !ok {
		fileName = name + ".docx"
	}

	data, err := os.ReadFile(filepath.Join(r.dir, fileName))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, "", ErrTemplateNotFound
		}
		return nil, "", eris.Wrapf(err, "template: read %s", fileName)
	}
	return data, fileName, nil
}

func (r *DirRepository) List() ([]string, error) {
	names := make([]string, 0, len(r.entries))
	for name := range r.entries {
		names = append(names, name)
	}

	files, err := os.ReadDir(r.dir)
	if err != nil {
		return nil, eris.Wrap(err, "template: read dir")
	}
	for _, f := range files {
		if f.IsDir() || filepath.Ext(f.Name()) != ".docx" {
			continue
		}
		name := f.Name()[:len(f.Name())-len(".docx")]
		if _, listed := r.entries[name]; !listed {
			names = append(names, name)
		}
	}
	return names, nil
}
