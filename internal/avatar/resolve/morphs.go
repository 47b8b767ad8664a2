package resolve

import (
	"regexp"
	"strings"
)

// ARKit lists the blend shapes the animation driver touches. Warming a
// resolver with it moves all resolution work to asset load.
var ARKit = []string{
	"browInnerUp", "browOuterUpLeft", "browOuterUpRight", "browDownLeft", "browDownRight",
	"eyeBlinkLeft", "eyeBlinkRight", "eyeWideLeft", "eyeWideRight",
	"eyeLookInLeft", "eyeLookOutLeft", "eyeLookUpLeft", "eyeLookDownLeft",
	"eyeLookInRight", "eyeLookOutRight", "eyeLookUpRight", "eyeLookDownRight",
	"cheekPuff", "cheekSquintLeft", "cheekSquintRight",
	"jawOpen", "mouthClose", "mouthFunnel", "mouthPucker", "mouthLeft", "mouthRight",
	"mouthSmileLeft", "mouthSmileRight", "mouthFrownLeft", "mouthFrownRight",
	"mouthUpperUpLeft", "mouthUpperUpRight", "mouthShrugUpper", "mouthStretchLeft", "mouthStretchRight",
}

// morphAliases maps names from other naming schemes onto ARKit names. The
// eye_look_* entries are compound: each expands to one target per eye.
var morphAliases = map[string][]string{
	"eye_blink_left":  {"eyeBlinkLeft"},
	"eye_blink_right": {"eyeBlinkRight"},
	"eyeWide_L":       {"eyeWideLeft"},
	"eyeWide_R":       {"eyeWideRight"},
	"browOuterUp_L":   {"browOuterUpLeft"},
	"browOuterUp_R":   {"browOuterUpRight"},
	"browDown_L":      {"browDownLeft"},
	"browDown_R":      {"browDownRight"},
	"eyeSquint_L":     {"eyeSquintLeft"},
	"eyeSquint_R":     {"eyeSquintRight"},
	"mouthSmile_L":    {"mouthSmileLeft"},
	"mouthSmile_R":    {"mouthSmileRight"},
	"cheekSquint_L":   {"cheekSquintLeft"},
	"cheekSquint_R":   {"cheekSquintRight"},
	"jaw_open":        {"jawOpen"},
	"eye_look_left":   {"eyeLookOutLeft", "eyeLookInRight"},
	"eye_look_right":  {"eyeLookOutRight", "eyeLookInLeft"},
	"eye_look_up":     {"eyeLookUpLeft", "eyeLookUpRight"},
	"eye_look_down":   {"eyeLookDownLeft", "eyeLookDownRight"},
}

var (
	reSideL     = regexp.MustCompile(`(?i)_L\b`)
	reSideR     = regexp.MustCompile(`(?i)_R\b`)
	reLeft      = regexp.MustCompile(`(?i)_left`)
	reRight     = regexp.MustCompile(`(?i)_right`)
	reEyePrefix = regexp.MustCompile(`(?i)(^|_)eye_`)
)

// MorphCandidates returns name followed by its generated aliases and any
// entries from the alias table.
func MorphCandidates(name string) []string {
	out := []string{
		name,
		replaceFirst(reSideR, replaceFirst(reSideL, name, "Left"), "Right"),
		replaceFirst(reRight, replaceFirst(reLeft, name, "Left"), "Right"),
		replaceFirst(reEyePrefix, name, "eye"),
		strings.ReplaceAll(name, "_", ""),
		capitalize(name),
	}
	out = append(out, morphAliases[name]...)
	return dedupe(out)
}

// replaceFirst replaces the leftmost match of re in s.
func replaceFirst(re *regexp.Regexp, s, repl string) string {
	loc := re.FindStringIndex(s)
	if loc == nil {
		return s
	}
	return s[:loc[0]] + repl + s[loc[1]:]
}

func capitalize(s string) string {
	if s == "" || s[0] < 'a' || s[0] > 'z' {
		return s
	}
	return string(s[0]-'a'+'A') + s[1:]
}
