package avatar3d

import (
	"fmt"
	"sort"
	"strings"
)

// MoodPose maps channel names to the influence the idle layer blends toward.
// Channels absent from the pose rest at 0.
type MoodPose map[string]float32

func (p MoodPose) Target(channel string) float32 {
	return p[channel]
}

const MoodDefault = "default"

// MoodLibrary resolves mood tags to poses. Lookups are case-insensitive.
type MoodLibrary struct {
	poses map[string]MoodPose
}

func NewMoodLibrary() *MoodLibrary {
	lib := &MoodLibrary{poses: make(map[string]MoodPose)}
	for name, pose := range builtinMoods {
		lib.Define(name, pose)
	}
	return lib
}

// Define adds or replaces a pose. The pose is copied.
func (l *MoodLibrary) Define(name string, pose MoodPose) {
	cp := make(MoodPose, len(pose))
	for k, v := range pose {
		cp[k] = v
	}
	l.poses[strings.ToLower(name)] = cp
}

func (l *MoodLibrary) Lookup(name string) (MoodPose, bool) {
	pose, ok := l.poses[strings.ToLower(strings.TrimSpace(name))]
	return pose, ok
}

func (l *MoodLibrary) Names() []string {
	out := make([]string, 0, len(l.poses))
	for name := range l.poses {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

func (l *MoodLibrary) String() string {
	return fmt.Sprintf("moods%v", l.Names())
}

var builtinMoods = map[string]MoodPose{
	MoodDefault: {},
	"happy": {
		"browInnerUp":     0.17,
		"eyeSquintLeft":   0.4,
		"eyeSquintRight":  0.44,
		"noseSneerLeft":   0.17,
		"noseSneerRight":  0.14,
		"mouthPressLeft":  0.61,
		"mouthPressRight": 0.41,
	},
	"funnyface": {
		"jawLeft":         0.63,
		"mouthPucker":     0.53,
		"noseSneerLeft":   1,
		"noseSneerRight":  0.39,
		"mouthLeft":       1,
		"eyeLookUpLeft":   1,
		"eyeLookUpRight":  1,
		"cheekPuff":       1,
		"mouthDimpleLeft": 0.415,
		"mouthRollLower":  0.32,
		"mouthSmileLeft":  0.355,
		"mouthSmileRight": 0.355,
	},
	"sad": {
		"mouthFrownLeft":   1,
		"mouthFrownRight":  1,
		"mouthShrugLower":  0.783,
		"browInnerUp":      0.452,
		"eyeSquintLeft":    0.72,
		"eyeSquintRight":   0.75,
		"eyeLookDownLeft":  0.5,
		"eyeLookDownRight": 0.5,
		"jawForward":       1,
	},
	"surprised": {
		"eyeWideLeft":  0.5,
		"eyeWideRight": 0.5,
		"jawOpen":      0.351,
		"mouthFunnel":  1,
		"browInnerUp":  1,
	},
	"angry": {
		"browDownLeft":     1,
		"browDownRight":    1,
		"eyeSquintLeft":    1,
		"eyeSquintRight":   1,
		"jawForward":       1,
		"jawLeft":          1,
		"mouthShrugLower":  1,
		"noseSneerLeft":    1,
		"noseSneerRight":   0.42,
		"eyeLookDownLeft":  0.16,
		"eyeLookDownRight": 0.16,
		"cheekSquintLeft":  1,
		"cheekSquintRight": 1,
		"mouthClose":       0.23,
		"mouthFunnel":      0.63,
		"mouthDimpleRight": 1,
	},
	"crazy": {
		"browInnerUp":       0.9,
		"jawForward":        1,
		"noseSneerLeft":     0.57,
		"noseSneerRight":    0.51,
		"eyeLookDownLeft":   0.394,
		"eyeLookUpRight":    0.404,
		"eyeLookInLeft":     0.962,
		"eyeLookInRight":    0.962,
		"jawOpen":           0.962,
		"mouthDimpleLeft":   0.962,
		"mouthDimpleRight":  0.962,
		"mouthStretchLeft":  0.279,
		"mouthStretchRight": 0.289,
		"mouthSmileLeft":    0.558,
		"mouthSmileRight":   0.385,
		"tongueOut":         0.962,
	},
	"attentive": {
		"browInnerUp":     0.15,
		"eyeWideLeft":     0.1,
		"eyeWideRight":    0.1,
		"mouthSmileLeft":  0.05,
		"mouthSmileRight": 0.05,
	},
	"thinking": {
		"browInnerUp":     0.25,
		"eyeLookUpLeft":   0.3,
		"eyeLookUpRight":  0.3,
		"mouthPressLeft":  0.1,
		"mouthPressRight": 0.1,
	},
	"concerned": {
		"browInnerUp":     0.35,
		"browDownLeft":    0.2,
		"browDownRight":   0.2,
		"mouthFrownLeft":  0.15,
		"mouthFrownRight": 0.15,
	},
	"confident": {
		"mouthSmileLeft":   0.2,
		"mouthSmileRight":  0.2,
		"cheekSquintLeft":  0.1,
		"cheekSquintRight": 0.1,
		"eyeSquintLeft":    0.05,
		"eyeSquintRight":   0.05,
	},
}
