package benchmark

import (
	"encoding/json"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/cockroachdb/errors"
)

// defaultPayload is written when no payload directory is configured
var defaultPayload = []byte(`{"type":"benchmark","name":"docstore-bench","tags":["load","test"],"attributes":{"size":"small","version":1}}`)

// LoadPayloads reads every *.json file under dir (recursively, in lexical
// path order). Each file must hold one valid JSON document. An empty dir
// yields the built-in default document.
func LoadPayloads(dir string) ([][]byte, error) {
	if dir == "" {
		return [][]byte{defaultPayload}, nil
	}

	var paths []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.Type().IsRegular() && strings.EqualFold(filepath.Ext(path), ".json") {
			paths = append(paths, path)
		}
		return nil
	})
	if err != nil {
		return nil, errors.Wrapf(err, "walk payload directory %s", dir)
	}
	if len(paths) == 0 {
		return nil, errors.Newf("no .json payload files found in %s", dir)
	}
	sort.Strings(paths)

	payloads := make([][]byte, 0, len(paths))
	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, errors.Wrapf(err, "read payload %s", path)
		}
		if !json.Valid(data) {
			return nil, errors.Newf("payload %s is not valid JSON", path)
		}
		payloads = append(payloads, data)
	}
	return payloads, nil
}

// payloadForWorker assigns payloads to workers round-robin
func payloadForWorker(payloads [][]byte, worker int) []byte {
	return payloads[worker%len(payloads)]
}
