package extensions

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/corelane/agentrun/internal/mcpclient"
)

// SkillsExtension loads skill definitions (named markdown files with
// instructions) from a directory on disk and exposes them as a listable,
// loadable catalog (§4.5 "skills … load skills from disk").
type SkillsExtension struct {
	dir string
}

// listSkillsArgs is list_skills' input: no fields, listing takes no
// arguments.
type listSkillsArgs struct{}

// loadSkillArgs is load_skill's input.
type loadSkillArgs struct {
	Name string `json:"name" jsonschema:"required"`
}

// NewSkillsExtension builds the skills platform client, reading *.md files
// directly under dir (non-recursive, matching the teacher's flat hints
// layout).
func NewSkillsExtension(dir string) (*mcpclient.PlatformClient, *SkillsExtension) {
	ext := &SkillsExtension{dir: dir}

	tools := []mcpclient.Tool{
		{
			Name:        "list_skills",
			Description: "List available named skills (short how-to guides) loadable from disk.",
			InputSchema: toolSchema(listSkillsArgs{}),
			Annotations: mcpclient.ToolAnnotations{ReadOnlyHint: true},
		},
		{
			Name:        "load_skill",
			Description: "Load the full instructions for a named skill.",
			InputSchema: toolSchema(loadSkillArgs{}),
			Annotations: mcpclient.ToolAnnotations{ReadOnlyHint: true},
		},
	}

	handlers := map[string]mcpclient.PlatformHandler{
		"list_skills": ext.handleList,
		"load_skill":  ext.handleLoad,
	}

	client, err := mcpclient.NewPlatformClient("skills", tools, handlers)
	if err != nil {
		panic(err)
	}
	return client, ext
}

func (e *SkillsExtension) names() ([]string, error) {
	entries, err := os.ReadDir(e.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var names []string
	for _, ent := range entries {
		if ent.IsDir() || !strings.HasSuffix(ent.Name(), ".md") {
			continue
		}
		names = append(names, strings.TrimSuffix(ent.Name(), ".md"))
	}
	return names, nil
}

func (e *SkillsExtension) handleList(ctx context.Context, args map[string]any, meta mcpclient.Meta) (mcpclient.CallResult, error) {
	names, err := e.names()
	if err != nil {
		return mcpclient.CallResult{ForLLM: err.Error(), IsError: true}, nil
	}
	if len(names) == 0 {
		return mcpclient.CallResult{ForLLM: "no skills available"}, nil
	}
	return mcpclient.CallResult{ForLLM: strings.Join(names, "\n")}, nil
}

func (e *SkillsExtension) handleLoad(ctx context.Context, args map[string]any, meta mcpclient.Meta) (mcpclient.CallResult, error) {
	name, _ := args["name"].(string)
	clean := filepath.Base(name) // reject path traversal (../, absolute paths)
	if clean != name || name == "" {
		return mcpclient.CallResult{ForLLM: fmt.Sprintf("invalid skill name %q", name), IsError: true}, nil
	}
	path := filepath.Join(e.dir, clean+".md")
	data, err := os.ReadFile(path)
	if err != nil {
		return mcpclient.CallResult{ForLLM: fmt.Sprintf("skill %q not found", name), IsError: true}, nil
	}
	return mcpclient.CallResult{ForLLM: string(data)}, nil
}
