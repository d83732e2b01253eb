package topic

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Topic is one entry of the learning curriculum.
type Topic struct {
	ID          string   `yaml:"id" json:"id"`
	Title       string   `yaml:"title" json:"title"`
	Category    string   `yaml:"category" json:"category"`
	Description string   `yaml:"description" json:"description"`
	KeyPoints   []string `yaml:"key_points" json:"keyPoints,omitempty"`
}

// Catalog is the static topic catalogue. Loaded once at startup; read-only
// afterwards.
type Catalog struct {
	topics []Topic
	byID   map[string]Topic
}

// Load reads the catalogue from a YAML file, or falls back to the bundled
// Godot curriculum when no path is configured.
func Load(path string) (*Catalog, error) {
	raw := []byte(defaultCatalogYAML)
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read topic catalog: %w", err)
		}
		raw = data
	}

	var doc struct {
		Topics []Topic `yaml:"topics"`
	}
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("parse topic catalog: %w", err)
	}
	if len(doc.Topics) == 0 {
		return nil, fmt.Errorf("topic catalog is empty")
	}

	byID := make(map[string]Topic, len(doc.Topics))
	for _, t := range doc.Topics {
		if t.ID == "" {
			return nil, fmt.Errorf("topic catalog entry without id (title %q)", t.Title)
		}
		byID[t.ID] = t
	}

	return &Catalog{topics: doc.Topics, byID: byID}, nil
}

func (c *Catalog) All() []Topic {
	return c.topics
}

func (c *Catalog) Get(id string) (Topic, bool) {
	t, ok := c.byID[id]
	return t, ok
}

const defaultCatalogYAML = `
topics:
  - id: game-loop
    title: The Game Loop
    category: basics
    description: How Godot drives _process and _physics_process each frame.
    key_points:
      - Delta time keeps movement frame-rate independent
      - _physics_process runs on a fixed timestep
  - id: scene-tree
    title: Scene Tree & Nodes
    category: basics
    description: Scenes, node hierarchies, and how instancing composes them.
    key_points:
      - Everything in a scene is a node
      - Scenes instance other scenes
  - id: signals
    title: Signals
    category: basics
    description: Godot's observer pattern for decoupled node communication.
    key_points:
      - Connect signals instead of hard references
      - Custom signals declare intent
  - id: gdscript-basics
    title: GDScript Basics
    category: scripting
    description: Variables, typing, and control flow in GDScript.
  - id: input-handling
    title: Input Handling
    category: scripting
    description: Input actions, _input vs _unhandled_input, and input maps.
  - id: physics
    title: Physics Bodies
    category: systems
    description: StaticBody, RigidBody, CharacterBody and when to use each.
    key_points:
      - move_and_slide lives on CharacterBody
  - id: resources
    title: Resources & Data
    category: systems
    description: Custom Resource types for shared, serializable game data.
  - id: state-machines
    title: State Machines
    category: patterns
    description: Structuring entity behavior with explicit states.
    key_points:
      - One script per state keeps transitions auditable
`
