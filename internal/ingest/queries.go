package ingest

import (
	_ "embed"
	"os"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

//go:embed queries.yaml
var defaultQueriesYAML []byte

type queryFile struct {
	Queries []string `yaml:"queries"`
}

// LoadQueries returns the search query list. With an empty path the embedded
// default set is used; otherwise the YAML file at path replaces it.
func LoadQueries(path string) ([]string, error) {
	raw := defaultQueriesYAML
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, eris.Wrapf(err, "ingest: read queries file %s", path)
		}
		raw = b
	}

	var qf queryFile
	if err := yaml.Unmarshal(raw, &qf); err != nil {
		return nil, eris.Wrap(err, "ingest: parse queries yaml")
	}
	if len(qf.Queries) == 0 {
		return nil, eris.New("ingest: queries file contains no queries")
	}
	return qf.Queries, nil
}
