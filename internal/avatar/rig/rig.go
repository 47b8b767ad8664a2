// Package rig describes the animatable surface of an avatar asset: its morph
// target names and its bones with their rest rotations.
//
// A [Rig] is loaded once per asset and shared by every animation driver that
// uses it. It is immutable after construction; the resolvers it carries are
// safe for concurrent use.
package rig

import (
	"errors"
	"fmt"
	"slices"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/qmuntal/gltf"

	"github.com/MrWong99/facetalk/internal/avatar/resolve"
)

// Bone is a joint of the skeleton.
type Bone struct {
	Name string

	// Rest is the rotation captured at load. Animation targets are composed
	// as Rest times a delta rotation.
	Rest mgl64.Quat
}

// Rig is the loaded asset.
type Rig struct {
	morphs []string
	bones  []Bone
	rest   map[string]mgl64.Quat

	morphResolver *resolve.Resolver
	boneResolver  *resolve.Resolver
}

// New builds a rig from explicit names. Duplicate morph and bone names are
// dropped, keeping the first. The morph resolver is warmed with
// [resolve.ARKit].
func New(morphs []string, bones []Bone) *Rig {
	r := &Rig{rest: make(map[string]mgl64.Quat, len(bones))}
	seen := make(map[string]bool, len(morphs))
	for _, m := range morphs {
		if m == "" || seen[m] {
			continue
		}
		seen[m] = true
		r.morphs = append(r.morphs, m)
	}
	for _, b := range bones {
		if b.Name == "" {
			continue
		}
		if _, dup := r.rest[b.Name]; dup {
			continue
		}
		if b.Rest.Len() == 0 {
			b.Rest = mgl64.QuatIdent()
		}
		b.Rest = b.Rest.Normalize()
		r.rest[b.Name] = b.Rest
		r.bones = append(r.bones, b)
	}

	names := make([]string, len(r.bones))
	for i, b := range r.bones {
		names[i] = b.Name
	}
	r.morphResolver = resolve.NewMorphs(r.morphs)
	r.boneResolver = resolve.NewBones(names)
	r.morphResolver.Warm(resolve.ARKit)
	r.boneResolver.Warm(resolve.BodyBones)
	return r
}

// Default returns a rig exposing every ARKit blend shape and the canonical
// body bones at identity rest pose. It stands in when no asset is configured.
func Default() *Rig {
	bones := make([]Bone, len(resolve.BodyBones))
	for i, name := range resolve.BodyBones {
		bones[i] = Bone{Name: name, Rest: mgl64.QuatIdent()}
	}
	return New(resolve.ARKit, bones)
}

// Load reads a .gltf or .glb file.
func Load(path string) (*Rig, error) {
	doc, err := gltf.Open(path)
	if err != nil {
		return nil, fmt.Errorf("rig: open %s: %w", path, err)
	}
	return FromDocument(doc)
}

// FromDocument extracts morph target names from each mesh's "targetNames"
// extras and bones from skin joints. Assets without skins contribute every
// named node that carries no mesh.
func FromDocument(doc *gltf.Document) (*Rig, error) {
	if doc == nil {
		return nil, errors.New("rig: document must not be nil")
	}

	var morphs []string
	for _, m := range doc.Meshes {
		morphs = append(morphs, targetNames(m)...)
	}

	var joints []int
	for _, s := range doc.Skins {
		for _, j := range s.Joints {
			if !slices.Contains(joints, j) {
				joints = append(joints, j)
			}
		}
	}
	if len(joints) == 0 {
		for i, n := range doc.Nodes {
			if n.Mesh == nil && n.Name != "" {
				joints = append(joints, i)
			}
		}
	}

	bones := make([]Bone, 0, len(joints))
	for _, j := range joints {
		if j < 0 || j >= len(doc.Nodes) {
			return nil, fmt.Errorf("rig: joint %d out of range (%d nodes)", j, len(doc.Nodes))
		}
		n := doc.Nodes[j]
		rot := n.RotationOrDefault()
		bones = append(bones, Bone{
			Name: n.Name,
			Rest: mgl64.Quat{W: rot[3], V: mgl64.Vec3{rot[0], rot[1], rot[2]}},
		})
	}
	return New(morphs, bones), nil
}

func targetNames(m *gltf.Mesh) []string {
	extras, ok := m.Extras.(map[string]any)
	if !ok {
		return nil
	}
	raw, ok := extras["targetNames"].([]any)
	if !ok {
		return nil
	}
	names := make([]string, 0, len(raw))
	for _, v := range raw {
		if s, ok := v.(string); ok {
			names = append(names, s)
		}
	}
	return names
}

// Morphs returns the morph target names.
func (r *Rig) Morphs() []string { return slices.Clone(r.morphs) }

// Bones returns the bones in asset order.
func (r *Rig) Bones() []Bone { return slices.Clone(r.bones) }

// Rest returns the rest rotation of the named asset bone.
func (r *Rig) Rest(name string) (mgl64.Quat, bool) {
	q, ok := r.rest[name]
	return q, ok
}

// ResolveMorph maps a canonical morph name to the asset's name.
func (r *Rig) ResolveMorph(canonical string) (string, bool) {
	return r.morphResolver.Resolve(canonical)
}

// ResolveBone maps a canonical bone name to the asset's name.
func (r *Rig) ResolveBone(canonical string) (string, bool) {
	return r.boneResolver.Resolve(canonical)
}

// Resolve implements the viseme package's resolver over morph targets.
func (r *Rig) Resolve(canonical string) (string, bool) {
	return r.ResolveMorph(canonical)
}
