package store

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/devrev/designer/internal/errors"
	"github.com/devrev/designer/internal/model"
	"go.mongodb.org/mongo-driver/bson"
)

// DatasetExt is the extension of a collection dump inside a dataset directory
const DatasetExt = ".json"

// FileSessionSource reads sessions from a file of newline-delimited MongoDB
// Extended JSON documents, one session per line
type FileSessionSource struct {
	Path string
}

// Sessions implements SessionSource
func (f *FileSessionSource) Sessions(ctx context.Context) ([]model.Session, error) {
	var sessions []model.Session
	err := readExtJSONLines(ctx, f.Path, func(lineNo int, line []byte) error {
		var s model.Session
		if err := bson.UnmarshalExtJSON(line, false, &s); err != nil {
			return malformed(f.Path, lineNo, err)
		}
		sessions = append(sessions, s)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return sessions, nil
}

// FileDocumentSampler reads a dataset directory holding one newline-delimited
// Extended JSON file per collection, as written by mongoexport
type FileDocumentSampler struct {
	Dir string
}

// Collections implements DocumentSampler
func (f *FileDocumentSampler) Collections(ctx context.Context) ([]string, error) {
	entries, err := os.ReadDir(f.Dir)
	if err != nil {
		return nil, errors.Unavailable(fmt.Sprintf("failed to list dataset %s", f.Dir), err)
	}

	var names []string
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != DatasetExt {
			continue
		}
		names = append(names, strings.TrimSuffix(e.Name(), DatasetExt))
	}
	sort.Strings(names)
	return names, nil
}

// Documents implements DocumentSampler
func (f *FileDocumentSampler) Documents(ctx context.Context, collection string, visit func(bson.D) error) error {
	path := filepath.Join(f.Dir, collection+DatasetExt)
	if _, err := os.Stat(path); err != nil {
		return errUnknownCollection(collection)
	}
	return readExtJSONLines(ctx, path, func(lineNo int, line []byte) error {
		var doc bson.D
		if err := bson.UnmarshalExtJSON(line, false, &doc); err != nil {
			return malformed(path, lineNo, err)
		}
		return visit(doc)
	})
}

// readExtJSONLines calls fn with every non-blank line of path and its number
func readExtJSONLines(ctx context.Context, path string, fn func(int, []byte) error) error {
	file, err := os.Open(path)
	if err != nil {
		return errors.Unavailable(fmt.Sprintf("failed to open %s", path), err)
	}
	defer file.Close()

	r := bufio.NewReader(file)
	for lineNo := 1; ; lineNo++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		line, readErr := r.ReadBytes('\n')
		if readErr != nil && readErr != io.EOF {
			return errors.Unavailable(fmt.Sprintf("failed to read %s", path), readErr)
		}
		if line = bytes.TrimSpace(line); len(line) > 0 {
			if err := fn(lineNo, line); err != nil {
				return err
			}
		}
		if readErr == io.EOF {
			return nil
		}
	}
}

func malformed(path string, lineNo int, err error) error {
	return errors.NewDesignerError(errors.ErrCodeInvalidWorkload,
		fmt.Sprintf("%s:%d: malformed document", path, lineNo), err)
}

func errUnknownCollection(collection string) error {
	return errors.UnknownCollection(collection)
}

func sortedNames[V any](m map[string]V) []string {
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
