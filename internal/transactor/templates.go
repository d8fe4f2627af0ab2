package transactor

import (
	"embed"
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"

	"github.com/speckit/sdd/internal/spec"
)

//go:embed templates/*.toml
var builtinTemplates embed.FS

// templateFile is the on-disk shape of a spec-creation template (§3):
// nested phase/group/task tables, decoded with BurntSushi/toml the same
// way the teacher decodes its TOML config.
type templateFile struct {
	Phases []templatePhase `toml:"phase"`
}

type templatePhase struct {
	ID     string          `toml:"id"`
	Title  string          `toml:"title"`
	Groups []templateGroup `toml:"group"`
}

type templateGroup struct {
	ID    string         `toml:"id"`
	Title string         `toml:"title"`
	Tasks []templateTask `toml:"task"`
}

type templateTask struct {
	ID          string   `toml:"id"`
	Title       string   `toml:"title"`
	Category    string   `toml:"category"`
	BlockedBy   []string `toml:"blocked_by"`
	SoftDepends []string `toml:"soft_depends"`
}

// hierarchyFromTemplate loads templateName from <specsRoot>/.templates
// if present, falling back to the built-in templates embedded at build
// time. An unknown name with no override on disk falls back to "default".
func hierarchyFromTemplate(specsRoot, templateName string) ([]*spec.Node, error) {
	if templateName == "" {
		templateName = "default"
	}

	var tf templateFile
	diskPath := filepath.Join(specsRoot, ".templates", templateName+".toml")
	if raw, err := os.ReadFile(diskPath); err == nil {
		if _, err := toml.Decode(string(raw), &tf); err != nil {
			return nil, fmt.Errorf("parsing template %s: %w", diskPath, err)
		}
	} else {
		raw, err := builtinTemplates.ReadFile("templates/" + templateName + ".toml")
		if err != nil {
			raw, err = builtinTemplates.ReadFile("templates/default.toml")
			if err != nil {
				return nil, fmt.Errorf("no built-in default template: %w", err)
			}
		}
		if _, err := toml.Decode(string(raw), &tf); err != nil {
			return nil, fmt.Errorf("parsing built-in template %s: %w", templateName, err)
		}
	}

	nodes := make([]*spec.Node, 0, len(tf.Phases))
	for _, p := range tf.Phases {
		phase := &spec.Node{ID: p.ID, Type: spec.TypePhase, Title: p.Title, Status: spec.StatusPending}
		for _, g := range p.Groups {
			group := &spec.Node{ID: g.ID, Type: spec.TypeGroup, Title: g.Title, Status: spec.StatusPending, Parent: phase}
			for _, t := range g.Tasks {
				task := &spec.Node{ID: t.ID, Type: spec.TypeTask, Title: t.Title, Status: spec.StatusPending, Parent: group,
					Dependencies: spec.Dependencies{BlockedBy: t.BlockedBy, SoftDepends: t.SoftDepends}}
				if t.Category != "" {
					task.Metadata = spec.Metadata{}
					task.Metadata.SetTaskCategory(spec.TaskCategory(t.Category))
				}
				group.Children = append(group.Children, task)
			}
			phase.Children = append(phase.Children, group)
		}
		nodes = append(nodes, phase)
	}
	return nodes, nil
}
