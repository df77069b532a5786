package artifact

import (
	"bytes"
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// ErrArtifactNotFound is returned when no artifact exists for a name.
var ErrArtifactNotFound = errors.New("artifact not found")

// Resolver finds artifacts by contract name.
type Resolver interface {
	LoadArtifact(ctx context.Context, contractName string) (Artifact, error)
}

//go:embed schema.json
var schemaJSON string

const schemaURL = "https://ignite.schemas.local/artifact.schema.json"

var (
	schemaOnce sync.Once
	schema     *jsonschema.Schema
	schemaErr  error
)

func compiledSchema() (*jsonschema.Schema, error) {
	schemaOnce.Do(func() {
		c := jsonschema.NewCompiler()
		c.Draft = jsonschema.Draft2020
		if err := c.AddResource(schemaURL, bytes.NewReader([]byte(schemaJSON))); err != nil {
			schemaErr = fmt.Errorf("artifact schema load failed: %w", err)
			return
		}
		schema, schemaErr = c.Compile(schemaURL)
	})
	return schema, schemaErr
}

// Decode validates data against the artifact JSON schema and decodes it.
func Decode(data []byte) (Artifact, error) {
	s, err := compiledSchema()
	if err != nil {
		return Artifact{}, err
	}

	var doc any
	if err := json.Unmarshal(data, &doc); err != nil {
		return Artifact{}, fmt.Errorf("decode artifact: %w", err)
	}
	if err := s.Validate(doc); err != nil {
		return Artifact{}, fmt.Errorf("artifact schema validation failed: %w", err)
	}

	var a Artifact
	if err := json.Unmarshal(data, &a); err != nil {
		return Artifact{}, fmt.Errorf("decode artifact: %w", err)
	}
	return a, nil
}

// Map is an in-memory Resolver keyed by contract name.
type Map map[string]Artifact

// LoadArtifact implements Resolver.
func (m Map) LoadArtifact(_ context.Context, contractName string) (Artifact, error) {
	a, ok := m[contractName]
	if !ok {
		return Artifact{}, fmt.Errorf("%s: %w", contractName, ErrArtifactNotFound)
	}
	return a, nil
}

// Dir resolves artifacts from <dir>/<ContractName>.json files.
type Dir struct {
	Path string
}

// LoadArtifact implements Resolver.
func (d Dir) LoadArtifact(_ context.Context, contractName string) (Artifact, error) {
	if contractName == "" || filepath.Base(contractName) != contractName {
		return Artifact{}, fmt.Errorf("invalid contract name %q", contractName)
	}

	data, err := os.ReadFile(filepath.Join(d.Path, contractName+".json"))
	if errors.Is(err, os.ErrNotExist) {
		return Artifact{}, fmt.Errorf("%s: %w", contractName, ErrArtifactNotFound)
	}
	if err != nil {
		return Artifact{}, fmt.Errorf("read artifact %s: %w", contractName, err)
	}

	a, err := Decode(data)
	if err != nil {
		return Artifact{}, fmt.Errorf("artifact %s: %w", contractName, err)
	}
	if a.ContractName != contractName {
		return Artifact{}, fmt.Errorf("artifact file %s.json declares contract %q", contractName, a.ContractName)
	}
	return a, nil
}
