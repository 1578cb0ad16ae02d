package avatar3d

import (
	"fmt"

	"github.com/qmuntal/gltf"
)

// ModelChannels are the animatable names a model file exposes.
type ModelChannels struct {
	Morphs []string
	Bones  []string
}

func (m ModelChannels) Empty() bool {
	return len(m.Morphs) == 0 && len(m.Bones) == 0
}

func (m ModelChannels) HasBone(name string) bool {
	for _, b := range m.Bones {
		if b == name {
			return true
		}
	}
	return false
}

// ChannelNamesFromGLTF reads morph target names from mesh.extras.targetNames
// and the names of all nodes. Targets without a name are reported as
// target_<i>. Geometry is never decoded.
func ChannelNamesFromGLTF(path string) (ModelChannels, error) {
	doc, err := gltf.Open(path)
	if err != nil {
		return ModelChannels{}, fmt.Errorf("open gltf: %w", err)
	}

	var out ModelChannels
	seen := make(map[string]bool)
	for _, mesh := range doc.Meshes {
		count := 0
		for _, prim := range mesh.Primitives {
			if len(prim.Targets) > count {
				count = len(prim.Targets)
			}
		}

		names := make([]string, count)
		for i := range names {
			names[i] = fmt.Sprintf("target_%d", i)
		}
		if extras, ok := mesh.Extras.(map[string]any); ok {
			if targetNames, ok := extras["targetNames"].([]any); ok {
				for i, name := range targetNames {
					s, ok := name.(string)
					if !ok || s == "" {
						continue
					}
					if i < len(names) {
						names[i] = s
					} else {
						names = append(names, s)
					}
				}
			}
		}

		for _, name := range names {
			if seen[name] {
				continue
			}
			seen[name] = true
			out.Morphs = append(out.Morphs, name)
		}
	}

	for _, node := range doc.Nodes {
		if node.Name != "" {
			out.Bones = append(out.Bones, node.Name)
		}
	}
	return out, nil
}

// ChannelsFor builds the channel set of a concrete model: only the morphs the
// model carries, plus the jaw bone when the model has it.
func (p Profile) ChannelsFor(model ModelChannels) *ChannelSet {
	if model.Empty() {
		return p.Channels()
	}
	set := NewChannelSet()
	set.AddMorph(model.Morphs...)
	if p.Jaw.Channel != "" && model.HasBone(p.Jaw.Channel) {
		set.AddRotation(p.Jaw.Channel, p.Jaw.Neutral)
	}
	return set
}
