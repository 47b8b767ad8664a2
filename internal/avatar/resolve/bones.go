package resolve

import "strings"

// Canonical bone names used by the animation driver.
const (
	LeftUpperArm  = "leftUpperArm"
	RightUpperArm = "rightUpperArm"
	LeftLowerArm  = "leftLowerArm"
	RightLowerArm = "rightLowerArm"
	LeftHand      = "leftHand"
	RightHand     = "rightHand"
	LeftUpperLeg  = "leftUpperLeg"
	RightUpperLeg = "rightUpperLeg"
	LeftLowerLeg  = "leftLowerLeg"
	RightLowerLeg = "rightLowerLeg"
	Hips          = "hips"
	Spine         = "spine"
	Chest         = "chest"
	Neck          = "neck"
	Head          = "head"
	LeftShoulder  = "leftShoulder"
	RightShoulder = "rightShoulder"
)

// BodyBones are the canonical bones posed by the driver.
var BodyBones = []string{
	LeftUpperArm, RightUpperArm, LeftLowerArm, RightLowerArm, LeftHand, RightHand,
	LeftUpperLeg, RightUpperLeg, LeftLowerLeg, RightLowerLeg,
	Hips, Spine, Chest, Neck, Head,
}

// boneAliases is keyed by the canonical name with letters only, lowercased.
var boneAliases = map[string][]string{
	"leftupperarm":  {"LeftArm", "LeftUpperArm", "upperarm_l", "upperarm.l", "mixamorigLeftArm", "Arm_L", "Shoulder_L"},
	"rightupperarm": {"RightArm", "RightUpperArm", "upperarm_r", "upperarm.r", "mixamorigRightArm", "Arm_R", "Shoulder_R"},
	"leftlowerarm":  {"LeftForeArm", "LeftLowerArm", "lowerarm_l", "forearm_l", "mixamorigLeftForeArm", "ForeArm_L"},
	"rightlowerarm": {"RightForeArm", "RightLowerArm", "lowerarm_r", "forearm_r", "mixamorigRightForeArm", "ForeArm_R"},
	"lefthand":      {"LeftHand", "hand_l", "mixamorigLeftHand", "Hand_L"},
	"righthand":     {"RightHand", "hand_r", "mixamorigRightHand", "Hand_R"},
	"leftupperleg":  {"LeftUpLeg", "LeftUpperLeg", "upperleg_l", "thigh_l", "mixamorigLeftUpLeg", "UpLeg_L"},
	"rightupperleg": {"RightUpLeg", "RightUpperLeg", "upperleg_r", "thigh_r", "mixamorigRightUpLeg", "UpLeg_R"},
	"leftlowerleg":  {"LeftLeg", "LeftLowerLeg", "lowerleg_l", "calf_l", "mixamorigLeftLeg", "Leg_L"},
	"rightlowerleg": {"RightLeg", "RightLowerLeg", "lowerleg_r", "calf_r", "mixamorigRightLeg", "Leg_R"},
	"hips":          {"Hips", "hips", "pelvis", "root"},
	"spine":         {"Spine", "spine", "spine_01", "spine1"},
	"chest":         {"Spine2", "spine_02", "spine2", "chest", "upperchest"},
	"neck":          {"Neck", "neck"},
	"head":          {"Head", "head"},
	"leftshoulder":  {"LeftShoulder", "shoulder_l", "mixamorigLeftShoulder"},
	"rightshoulder": {"RightShoulder", "shoulder_r", "mixamorigRightShoulder"},
}

// BoneCandidates returns the table aliases of canonical, each followed by its
// lowercase and dot-free variants. Names missing from the table only try
// themselves.
func BoneCandidates(canonical string) []string {
	out := []string{canonical}
	aliases := boneAliases[lettersLower(canonical)]
	out = append(out, aliases...)
	for _, a := range aliases {
		out = append(out, strings.ToLower(a), strings.ReplaceAll(a, ".", ""))
	}
	return dedupe(out)
}

func lettersLower(s string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(s) {
		if r >= 'a' && r <= 'z' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
