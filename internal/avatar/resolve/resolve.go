// Package resolve binds canonical morph-target and bone names to whatever
// names a loaded avatar asset actually exposes.
//
// Asset pipelines disagree on naming ("eyeBlinkLeft", "eye_blink_left",
// "EyeBlink_L"; "LeftArm", "mixamorigLeftArm", "upperarm_l"). A [Resolver]
// expands a canonical name into alias candidates and tries them against the
// available set in three passes, first hit wins:
//
//  1. exact, case-insensitive
//  2. normalized (lowercase, non-alphanumerics stripped)
//  3. substring containment in either direction on normalized forms
//
// Results, including misses, are cached until [Resolver.Reset] installs a new
// available set. A miss is never an error; callers skip the capability.
package resolve

import (
	"slices"
	"strings"
	"sync"
	"unicode"
)

// CandidateFunc expands a canonical name into the ordered list of names to
// try against the asset.
type CandidateFunc func(canonical string) []string

type entry struct {
	name string
	ok   bool
}

type named struct {
	raw  string
	norm string
}

// Resolver is safe for concurrent use.
type Resolver struct {
	candidates CandidateFunc

	mu        sync.RWMutex
	available []named
	cache     map[string]entry
	all       map[string][]string
}

// New returns a resolver over available using candidates to expand names.
func New(candidates CandidateFunc, available []string) *Resolver {
	r := &Resolver{candidates: candidates}
	r.Reset(available)
	return r
}

// NewMorphs returns a resolver for morph-target names.
func NewMorphs(available []string) *Resolver { return New(MorphCandidates, available) }

// NewBones returns a resolver for bone names.
func NewBones(available []string) *Resolver { return New(BoneCandidates, available) }

// Reset installs a new available set and drops every cached result.
func (r *Resolver) Reset(available []string) {
	names := make([]named, 0, len(available))
	for _, a := range available {
		names = append(names, named{raw: a, norm: Normalize(a)})
	}
	r.mu.Lock()
	r.available = names
	r.cache = make(map[string]entry)
	r.all = make(map[string][]string)
	r.mu.Unlock()
}

// Available returns the names of the current asset.
func (r *Resolver) Available() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, len(r.available))
	for i, a := range r.available {
		out[i] = a.raw
	}
	return out
}

// Resolve returns the asset name for canonical, or false when the asset has
// nothing that fits.
func (r *Resolver) Resolve(canonical string) (string, bool) {
	r.mu.RLock()
	e, hit := r.cache[canonical]
	r.mu.RUnlock()
	if hit {
		return e.name, e.ok
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if e, hit := r.cache[canonical]; hit {
		return e.name, e.ok
	}
	name, ok := r.lookup(r.candidates(canonical))
	r.cache[canonical] = entry{name: name, ok: ok}
	return name, ok
}

// ResolveAll resolves every candidate of canonical on its own and returns the
// distinct hits in candidate order. Compound aliases such as "eye_look_left"
// fan out to one target per eye this way. The returned slice is the
// caller's own.
func (r *Resolver) ResolveAll(canonical string) []string {
	r.mu.RLock()
	out, hit := r.all[canonical]
	r.mu.RUnlock()
	if hit {
		return slices.Clone(out)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if out, hit := r.all[canonical]; hit {
		return slices.Clone(out)
	}
	seen := make(map[string]bool)
	for _, c := range r.candidates(canonical) {
		name, ok := r.lookup([]string{c})
		if ok && !seen[name] {
			seen[name] = true
			out = append(out, name)
		}
	}
	r.all[canonical] = out
	return slices.Clone(out)
}

// Warm resolves names ahead of time and returns how many were found.
func (r *Resolver) Warm(names []string) int {
	n := 0
	for _, name := range names {
		if _, ok := r.Resolve(name); ok {
			n++
		}
	}
	return n
}

// lookup runs the three passes. Callers hold r.mu.
func (r *Resolver) lookup(candidates []string) (string, bool) {
	if len(r.available) == 0 || len(candidates) == 0 {
		return "", false
	}
	for _, c := range candidates {
		for _, a := range r.available {
			if strings.EqualFold(a.raw, c) {
				return a.raw, true
			}
		}
	}
	norms := make([]string, len(candidates))
	for i, c := range candidates {
		norms[i] = Normalize(c)
	}
	for _, c := range norms {
		if c == "" {
			continue
		}
		for _, a := range r.available {
			if a.norm == c {
				return a.raw, true
			}
		}
	}
	for _, c := range norms {
		if c == "" {
			continue
		}
		for _, a := range r.available {
			if a.norm != "" && (strings.Contains(a.norm, c) || strings.Contains(c, a.norm)) {
				return a.raw, true
			}
		}
	}
	return "", false
}

// Normalize lowercases s and strips everything but ASCII letters and digits.
func Normalize(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		r = unicode.ToLower(r)
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// dedupe drops repeated strings, keeping first occurrences.
func dedupe(in []string) []string {
	seen := make(map[string]bool, len(in))
	out := in[:0]
	for _, s := range in {
		if s == "" || seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	return out
}
