package apps

import (
	"context"
	"sort"
	"strings"

	"github.com/compose-spec/compose-go/v2/loader"
	"github.com/compose-spec/compose-go/v2/types"
	"gopkg.in/yaml.v3"

	"github.com/artpar/stackdeploy/internal/core/config"
)

// =============================================================================
// Compose Fan-Out
// =============================================================================

// composeConfig is the subset of the entity schema the preprocessor needs.
type composeConfig struct {
	ID          string `yaml:"id"`
	ComposeFile string `yaml:"compose_file"`
}

// Preprocess expands an entity with a compose_file into one app entity per
// service. Entities without a compose_file pass through unchanged. Service
// entities are named <entity>-<service>, compose depends_on links become
// dependencies between them, and only/except restrictions carry over.
func (m *Module) Preprocess(name string, entity *config.Entity, files config.Helper) ([]config.NamedEntity, error) {
	var cfg composeConfig
	if err := entity.Node.Decode(&cfg); err != nil {
		return nil, config.NewError(config.ErrInvalidYAML, "invalid configuration for %s: %v", name, err)
	}
	if cfg.ComposeFile == "" {
		return []config.NamedEntity{{Name: name, Entity: entity}}, nil
	}

	path, err := files.Render(cfg.ComposeFile, nil)
	if err != nil {
		return nil, err
	}
	raw, err := files.ReadFile(path, true)
	if err != nil {
		return nil, err
	}
	project, err := loadComposeProject(path, raw, files.Variables())
	if err != nil {
		return nil, err
	}
	if len(project.Services) == 0 {
		return nil, config.NewError(config.ErrInvalidConfig, "compose file %s has no services", path)
	}

	prefix := cfg.ID
	if prefix == "" {
		prefix = name
	}
	prefix, err = files.Render(prefix, nil)
	if err != nil {
		return nil, err
	}
	prefix = strings.TrimSuffix(normalizeAppID(prefix), "/")

	serviceNames := make([]string, 0, len(project.Services))
	for svcName := range project.Services {
		serviceNames = append(serviceNames, svcName)
	}
	sort.Strings(serviceNames)

	produced := make([]config.NamedEntity, 0, len(serviceNames))
	for _, svcName := range serviceNames {
		svc := project.Services[svcName]
		spec, err := serviceSpec(name, path, prefix, svcName, svc, entity.Dependencies)
		if err != nil {
			return nil, err
		}
		entityName := name + "-" + svcName
		serviceEntity, err := config.EntityFrom(entityName, spec)
		if err != nil {
			return nil, err
		}
		serviceEntity.Only = entity.Only
		serviceEntity.Except = entity.Except
		produced = append(produced, config.NamedEntity{Name: entityName, Entity: serviceEntity})
	}
	return produced, nil
}

// loadComposeProject parses compose YAML with compose-go. The resolved
// document variables double as the interpolation environment, so ${VAR}
// references in the compose file see the same values as placeholders
// elsewhere in the deployment.
func loadComposeProject(path string, raw []byte, vars map[string]string) (*types.Project, error) {
	var dict map[string]interface{}
	if err := yaml.Unmarshal(raw, &dict); err != nil {
		return nil, config.NewError(config.ErrInvalidYAML, "could not parse compose file %s: %v", path, err)
	}
	if dict == nil {
		return nil, config.NewError(config.ErrInvalidConfig, "compose file %s is empty", path)
	}

	project, err := loader.LoadWithContext(context.Background(), types.ConfigDetails{
		Environment: vars,
		ConfigFiles: []types.ConfigFile{
			{
				Content: raw,
				Config:  dict,
			},
		},
	}, func(opts *loader.Options) {
		opts.SetProjectName("stackdeploy", false)
		opts.SkipValidation = false
		opts.SkipInterpolation = false
		// Paths stay untouched since the file never leaves memory.
		opts.SkipNormalization = true
		opts.SkipExtends = true
	})
	if err != nil {
		return nil, config.NewError(config.ErrInvalidYAML, "could not parse compose file %s: %v", path, err)
	}
	return project, nil
}

// serviceSpec builds the entity mapping for a single compose service.
func serviceSpec(entityName, path, prefix, svcName string, svc types.ServiceConfig, parentDeps []string) (map[string]any, error) {
	if svc.Image == "" {
		return nil, config.NewError(config.ErrInvalidConfig,
			"service %s in compose file %s has no image", svcName, path)
	}

	spec := map[string]any{
		"type":  "app",
		"id":    prefix + "/" + svcName,
		"image": svc.Image,
	}
	if len(svc.Command) > 0 {
		spec["cmd"] = strings.Join(svc.Command, " ")
	}
	if len(svc.Environment) > 0 {
		env := make(map[string]string, len(svc.Environment))
		for key, value := range svc.Environment {
			if value != nil {
				env[key] = *value
			}
		}
		if len(env) > 0 {
			spec["env"] = env
		}
	}
	if svc.Deploy != nil && svc.Deploy.Replicas != nil {
		spec["instances"] = *svc.Deploy.Replicas
	}
	if svc.Deploy != nil && svc.Deploy.Resources.Limits != nil {
		limits := svc.Deploy.Resources.Limits
		if limits.NanoCPUs > 0 {
			spec["cpus"] = float64(limits.NanoCPUs)
		}
		if limits.MemoryBytes > 0 {
			spec["mem"] = float64(limits.MemoryBytes) / (1024 * 1024)
		}
	}
	if len(svc.Ports) > 0 {
		ports := make([]int, 0, len(svc.Ports))
		for _, port := range svc.Ports {
			ports = append(ports, int(port.Target))
		}
		spec["ports"] = ports
	}

	deps := make([]string, 0, len(svc.DependsOn)+len(parentDeps))
	for dep := range svc.DependsOn {
		deps = append(deps, entityName+"-"+dep)
	}
	sort.Strings(deps)
	deps = append(deps, parentDeps...)
	if len(deps) > 0 {
		spec["dependencies"] = deps
	}
	return spec, nil
}
