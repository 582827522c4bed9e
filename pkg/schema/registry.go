// Package schema provides optional JSON Schema validation for every wire
// document exchanged through the substrate: message envelopes, commands,
// acks, task states, DAGs, alerts, decision records, and release
// manifests. Validation degrades gracefully: a Registry with no schema
// directory configured, or asked to validate against a filename it has no
// schema for, is a no-op success rather than a hard failure, matching the
// original substrate's "validation is a safety net, not a gate" posture.
package schema

import (
	"fmt"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/jiazeyu1987/AgentTalk/pkg/substrate/errs"
)

// Registry compiles and caches *.schema.json documents found under a base
// directory, keyed by filename (e.g. "message_envelope.schema.json").
// Every schema file in the directory is registered as a local compiler
// resource under a shared synthetic URL prefix, so a cross-schema $ref
// (e.g. the envelope schema referencing command.schema.json) resolves
// from the local document store and never triggers a network fetch.
type Registry struct {
	baseDir string

	mu      sync.Mutex
	cache   map[string]*jsonschema.Schema
	missing map[string]bool
}

// NewRegistry returns a Registry rooted at baseDir. An empty baseDir
// disables validation entirely: Validate always succeeds.
func NewRegistry(baseDir string) *Registry {
	return &Registry{
		baseDir: baseDir,
		cache:   make(map[string]*jsonschema.Schema),
		missing: make(map[string]bool),
	}
}

// Validate checks doc (already-decoded JSON, e.g. map[string]any) against
// the schema named schemaFile. If the registry has no base directory, or
// the named schema file does not exist on disk, Validate succeeds: callers
// that need validation to be mandatory should check Enabled() first.
func (r *Registry) Validate(doc any, schemaFile string) error {
	if r == nil || r.baseDir == "" {
		return nil
	}
	compiled, ok, err := r.compile(schemaFile)
	if err != nil {
		return errs.New(errs.CodeSchemaInvalid, "compiling %s: %v", schemaFile, err)
	}
	if !ok {
		return nil
	}
	if err := compiled.Validate(doc); err != nil {
		return errs.New(errs.CodeSchemaInvalid, "%s: %v", schemaFile, err)
	}
	return nil
}

// Enabled reports whether this registry has a schema directory configured.
func (r *Registry) Enabled() bool {
	return r != nil && r.baseDir != ""
}

const schemaURLPrefix = "mem://agenttalk/schemas/"

func (r *Registry) compile(schemaFile string) (*jsonschema.Schema, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.missing[schemaFile] {
		return nil, false, nil
	}
	if s, ok := r.cache[schemaFile]; ok {
		return s, true, nil
	}
	if !fileExists(r.baseDir + "/" + schemaFile) {
		r.missing[schemaFile] = true
		return nil, false, nil
	}

	c := jsonschema.NewCompiler()
	c.Draft = jsonschema.Draft2020
	if err := r.addLocalResources(c); err != nil {
		return nil, false, err
	}
	compiled, err := c.Compile(schemaURLPrefix + schemaFile)
	if err != nil {
		return nil, false, fmt.Errorf("compiling %s: %w", schemaFile, err)
	}
	r.cache[schemaFile] = compiled
	return compiled, true, nil
}

// addLocalResources registers every schema file under baseDir with the
// compiler so sibling $refs resolve locally. Since sibling schemas share
// the same synthetic URL prefix, a relative "$ref": "command.schema.json"
// resolves against the document store rather than the network.
func (r *Registry) addLocalResources(c *jsonschema.Compiler) error {
	names, err := listSchemaFiles(r.baseDir)
	if err != nil {
		return fmt.Errorf("listing schema dir: %w", err)
	}
	for _, name := range names {
		data, err := readFile(r.baseDir + "/" + name)
		if err != nil {
			continue
		}
		if err := c.AddResource(schemaURLPrefix+name, strings.NewReader(string(data))); err != nil {
			return fmt.Errorf("loading %s: %w", name, err)
		}
	}
	return nil
}
