// Package loader reads deployment documents from disk and turns them into
// resolved entities, a dependency graph and the managers that apply them.
// This is the Imperative Shell around the config and graph cores.
package loader

import (
	"log/slog"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/artpar/stackdeploy/internal/core/config"
	"github.com/artpar/stackdeploy/internal/core/graph"
)

// =============================================================================
// Loader
// =============================================================================

// Loader turns one deployment document into a Result. Loading activates
// extension modules on the registry, so a registry should not be shared
// between unrelated documents.
type Loader struct {
	registry  *config.Registry
	logger    *slog.Logger
	lookupEnv config.LookupEnv
}

// New creates a loader on top of a module registry.
func New(registry *config.Registry, logger *slog.Logger) *Loader {
	if logger == nil {
		logger = slog.Default()
	}
	return &Loader{
		registry:  registry,
		logger:    logger,
		lookupEnv: os.LookupEnv,
	}
}

// Load reads the document at path and resolves it completely: includes are
// merged, variables resolved, extension modules activated, entities
// preprocessed, filtered and parsed, and the dependency graph built. Any
// failure aborts the whole load, there are no partial results.
func (l *Loader) Load(path string, provided map[string]string) (*Result, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	baseDir := filepath.Dir(absPath)

	root, err := readMapping(path, absPath)
	if err != nil {
		return nil, err
	}
	if root == nil {
		return nil, config.NewError(nil, "config file %s is empty", path)
	}

	// 1. Merge include files into the root mapping
	if err := l.mergeIncludes(root, baseDir); err != nil {
		return nil, err
	}

	// 2. Decode the merged document
	doc, err := config.ParseDocument(root)
	if err != nil {
		return nil, err
	}

	// 3. Resolve variables eagerly, before any entity is looked at
	vars, err := config.ResolveVariables(doc.Variables, provided, l.lookupEnv)
	if err != nil {
		return nil, err
	}
	l.logger.Debug("resolved variables", "declared", len(doc.Variables), "resolved", vars.Len())

	// 4. Activate extension modules requested by the document
	for _, name := range doc.Modules {
		if err := l.registry.Activate(name); err != nil {
			return nil, err
		}
		l.logger.Debug("activated module", "module", name)
	}

	// 5. Run the entity pipeline
	files := NewHelper(baseDir, vars)
	entities, err := l.runPipeline(doc, vars, files)
	if err != nil {
		return nil, err
	}

	// 6. Build the dependency graph
	graphEntities := make([]graph.Entity, len(entities))
	for i, entity := range entities {
		graphEntities[i] = graph.Entity{
			Name:         entity.Name,
			Object:       entity.Object,
			Dependencies: entity.Dependencies,
		}
	}
	g, err := graph.Build(graphEntities)
	if err != nil {
		return nil, err
	}

	l.logger.Debug("loaded deployment config", "file", path, "entities", len(entities))

	return &Result{
		Entities:  entities,
		Graph:     g,
		Managers:  l.registry.Managers(),
		Variables: vars,
	}, nil
}

// =============================================================================
// Document Reading
// =============================================================================

// readMapping reads and parses a YAML file down to its root mapping node.
// name is the path as the user wrote it, used in error messages.
func readMapping(name, absPath string) (*yaml.Node, error) {
	data, err := os.ReadFile(absPath)
	if err != nil {
		return nil, config.NewError(nil, "could not read config file %s: %v", name, err)
	}

	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, config.NewError(config.ErrInvalidYAML, "could not parse %s: %v", name, err)
	}
	mapping, err := config.MappingNode(&doc)
	if err != nil {
		return nil, config.NewError(config.ErrNotMapping, "config file %s must be a mapping", name)
	}
	return mapping, nil
}

// mergeIncludes merges every include file into the root mapping. The merge
// is shallow: whole top-level keys move over, and a key that already exists
// is a hard error naming the key and the include. Include paths resolve
// relative to the root document's directory. Includes of include files are
// not expanded.
func (l *Loader) mergeIncludes(root *yaml.Node, baseDir string) error {
	includes, err := includeList(root)
	if err != nil {
		return err
	}
	if len(includes) == 0 {
		return nil
	}

	seen := make(map[string]bool, len(root.Content)/2)
	for i := 0; i < len(root.Content); i += 2 {
		seen[root.Content[i].Value] = true
	}

	for _, include := range includes {
		path := include
		if !filepath.IsAbs(path) {
			path = filepath.Join(baseDir, include)
		}
		mapping, err := readMapping(include, path)
		if err != nil {
			return err
		}
		if mapping == nil {
			continue // empty include contributes nothing
		}
		for i := 0; i < len(mapping.Content); i += 2 {
			key := mapping.Content[i].Value
			if seen[key] {
				return config.NewError(config.ErrIncludeCollision,
					"%s found in base config and include file %s", key, include)
			}
			seen[key] = true
			root.Content = append(root.Content, mapping.Content[i], mapping.Content[i+1])
		}
		l.logger.Debug("merged include", "file", include)
	}
	return nil
}

func includeList(root *yaml.Node) ([]string, error) {
	for i := 0; i < len(root.Content); i += 2 {
		if root.Content[i].Value != config.KeyIncludes {
			continue
		}
		value := root.Content[i+1]
		if value.Tag == "!!null" {
			return nil, nil
		}
		var includes []string
		if err := value.Decode(&includes); err != nil {
			return nil, config.NewError(config.ErrInvalidYAML, "includes must be a list of strings")
		}
		return includes, nil
	}
	return nil, nil
}

// =============================================================================
// Entity Pipeline
// =============================================================================

// runPipeline walks the document entities in order: preprocessor fan-out,
// condition filtering, then parser dispatch by type. Skipped entities leave
// no trace. Entities sharing a name silently overwrite each other, the
// first appearance keeps its position in the order.
func (l *Loader) runPipeline(doc *config.Document, vars *config.Container, files config.Helper) ([]ResolvedEntity, error) {
	var resolved []ResolvedEntity
	index := make(map[string]int)

	for _, item := range doc.Entities {
		if item.Entity.Type == "" {
			return nil, config.NewError(config.ErrMissingType, "entity %s has no type", item.Name)
		}
		module, ok := l.registry.ForType(item.Entity.Type)
		if !ok {
			return nil, config.NewError(config.ErrUnknownType,
				"unknown type %s for entity %s", item.Entity.Type, item.Name)
		}

		pairs := []config.NamedEntity{item}
		if pre, ok := module.(config.Preprocessor); ok {
			expanded, err := pre.Preprocess(item.Name, item.Entity, files)
			if err != nil {
				return nil, err
			}
			pairs = expanded
		}

		for _, pair := range pairs {
			if config.ShouldSkip(vars, pair.Entity.Only, pair.Entity.Except) {
				l.logger.Debug("skipping entity", "entity", pair.Name)
				continue
			}

			object, err := module.Parse(pair.Name, pair.Entity, files)
			if err != nil {
				return nil, err
			}

			entity := ResolvedEntity{
				Name:         pair.Name,
				Type:         module.TypeName(),
				ManagerKey:   module.ManagerKey(),
				Object:       object,
				Dependencies: pair.Entity.Dependencies,
			}
			if pos, ok := index[pair.Name]; ok {
				resolved[pos] = entity
			} else {
				index[pair.Name] = len(resolved)
				resolved = append(resolved, entity)
			}
		}
	}

	return resolved, nil
}
