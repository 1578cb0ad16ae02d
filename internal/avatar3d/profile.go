package avatar3d

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/normanking/cortexface/internal/viseme"
)

var ErrUnknownProfile = errors.New("avatar3d: unknown profile")

// ChannelTarget is one morph driven by a viseme code, scaled by Gain.
type ChannelTarget struct {
	Channel string  `mapstructure:"channel" json:"channel"`
	Gain    float32 `mapstructure:"gain" json:"gain"`
}

type JawProfile struct {
	Channel string
	Neutral float32
	Ranges  map[string]JawRange
}

// Profile carries everything that differs between character rigs: the viseme
// table, the channel names, eyelids, jaw bone and the blend factor of speech
// ramps.
type Profile struct {
	Name       string
	Codes      map[string][]ChannelTarget
	Morphs     []string
	Eyelids    [2]string // left, right
	Jaw        JawProfile
	RampWeight float32
}

// Targets returns the channels driven by code. Unknown codes map to nothing.
func (p Profile) Targets(code string) []ChannelTarget {
	return p.Codes[viseme.NormalizeCode(code)]
}

func (p Profile) IsEyelid(channel string) bool {
	return channel != "" && (channel == p.Eyelids[0] || channel == p.Eyelids[1])
}

// Channels builds the channel set the profile animates.
func (p Profile) Channels() *ChannelSet {
	set := NewChannelSet()
	set.AddMorph(p.Morphs...)
	for _, code := range sortedCodes(p.Codes) {
		for _, t := range p.Codes[code] {
			set.AddMorph(t.Channel)
		}
	}
	set.AddMorph(p.Eyelids[0], p.Eyelids[1])
	if p.Jaw.Channel != "" {
		set.AddRotation(p.Jaw.Channel, p.Jaw.Neutral)
	}
	return set
}

// NewJawMapper builds a mapper over interp with the profile's ranges.
func (p Profile) NewJawMapper(interp *Interpolator) (*JawMapper, error) {
	m := NewJawMapper(interp, p.Jaw.Channel, p.Jaw.Neutral, p.RampWeight)
	for _, code := range sortedRanges(p.Jaw.Ranges) {
		if err := m.RegisterRange(code, p.Jaw.Ranges[code]); err != nil {
			return nil, fmt.Errorf("profile %s: %w", p.Name, err)
		}
	}
	return m, nil
}

// Validate checks the profile is usable by a Character.
func (p Profile) Validate() error {
	if p.Name == "" {
		return errors.New("avatar3d: profile has no name")
	}
	if p.RampWeight <= 0 || p.RampWeight > 1 {
		return fmt.Errorf("avatar3d: profile %s ramp weight %v outside (0,1]", p.Name, p.RampWeight)
	}
	for code, r := range p.Jaw.Ranges {
		if r.Max < r.Base {
			return fmt.Errorf("%w: profile %s code %s", ErrInvertedRange, p.Name, code)
		}
	}
	return nil
}

func sortedCodes(m map[string][]ChannelTarget) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func sortedRanges(m map[string]JawRange) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Ready Player Me avatars expose one viseme_* morph per Oculus viseme.
// Silence drives nothing so the previous shape simply releases.
var rpmProfile = Profile{
	Name: "rpm",
	Codes: map[string][]ChannelTarget{
		viseme.CodeSilence: {},
		viseme.CodeAA:      {{"viseme_aa", 1}},
		viseme.CodeE:       {{"viseme_E", 1}},
		viseme.CodeI:       {{"viseme_I", 1}},
		viseme.CodeO:       {{"viseme_O", 1}},
		viseme.CodeU:       {{"viseme_U", 1}},
		viseme.CodeFF:      {{"viseme_FF", 1}},
		viseme.CodeSS:      {{"viseme_SS", 1}},
		viseme.CodeTH:      {{"viseme_TH", 1}},
		viseme.CodeKK:      {{"viseme_kk", 1}},
		viseme.CodeRR:      {{"viseme_RR", 1}},
		viseme.CodeDD:      {{"viseme_DD", 1}},
		viseme.CodePP:      {{"viseme_PP", 1}},
		viseme.CodeCH:      {{"viseme_CH", 1}},
		viseme.CodeNN:      {{"viseme_nn", 1}},
	},
	Morphs:     append([]string{"viseme_sil"}, ARKitChannels...),
	Eyelids:    [2]string{"eyeBlinkLeft", "eyeBlinkRight"},
	RampWeight: 1,
}

// arkitProfile blends several ARKit blendshapes per viseme.
var arkitProfile = Profile{
	Name: "arkit",
	Codes: map[string][]ChannelTarget{
		viseme.CodeSilence: {},
		viseme.CodePP:      {{"mouthClose", 0.8}, {"mouthPucker", 0.3}},
		viseme.CodeFF:      {{"mouthFunnel", 0.5}, {"mouthLowerDownLeft", 0.2}, {"mouthLowerDownRight", 0.2}},
		viseme.CodeTH:      {{"mouthFunnel", 0.3}, {"tongueOut", 0.4}},
		viseme.CodeDD:      {{"jawOpen", 0.2}, {"mouthUpperUpLeft", 0.2}, {"mouthUpperUpRight", 0.2}},
		viseme.CodeKK:      {{"jawOpen", 0.25}, {"mouthStretchLeft", 0.2}, {"mouthStretchRight", 0.2}},
		viseme.CodeCH:      {{"mouthFunnel", 0.4}, {"mouthPucker", 0.3}},
		viseme.CodeSS:      {{"mouthStretchLeft", 0.3}, {"mouthStretchRight", 0.3}},
		viseme.CodeNN:      {{"jawOpen", 0.15}, {"mouthClose", 0.3}},
		viseme.CodeRR:      {{"mouthPucker", 0.4}, {"mouthFunnel", 0.2}},
		viseme.CodeAA:      {{"jawOpen", 0.6}, {"mouthStretchLeft", 0.2}, {"mouthStretchRight", 0.2}},
		viseme.CodeE:       {{"jawOpen", 0.3}, {"mouthSmileLeft", 0.3}, {"mouthSmileRight", 0.3}},
		viseme.CodeI:       {{"jawOpen", 0.2}, {"mouthSmileLeft", 0.4}, {"mouthSmileRight", 0.4}},
		viseme.CodeO:       {{"jawOpen", 0.4}, {"mouthFunnel", 0.5}, {"mouthPucker", 0.3}},
		viseme.CodeU:       {{"jawOpen", 0.25}, {"mouthPucker", 0.6}, {"mouthFunnel", 0.4}},
	},
	Morphs:     ARKitChannels,
	Eyelids:    [2]string{"eyeBlinkLeft", "eyeBlinkRight"},
	RampWeight: 0.7,
}

// Reallusion CC4 rigs open the jaw through the CC_Base_JawRoot bone, whose
// Euler Z rests at 1.57 rad.
var cc4Profile = Profile{
	Name: "cc4",
	Codes: map[string][]ChannelTarget{
		viseme.CodeSilence: {},
		viseme.CodePP:      {{"V_Explosive", 1}},
		viseme.CodeFF:      {{"V_Dental_Lip", 1}},
		viseme.CodeTH:      {{"V_Tongue_Out", 0.6}, {"V_Lip_Open", 0.4}},
		viseme.CodeDD:      {{"V_Tongue_up", 0.7}, {"V_Lip_Open", 0.3}},
		viseme.CodeKK:      {{"V_Tongue_Raise", 0.7}, {"V_Lip_Open", 0.4}},
		viseme.CodeCH:      {{"V_Affricate", 1}},
		viseme.CodeSS:      {{"V_Wide", 0.6}, {"V_Tight", 0.3}},
		viseme.CodeNN:      {{"V_Tongue_up", 0.6}, {"V_Lip_Open", 0.2}},
		viseme.CodeRR:      {{"V_Tight_O", 0.6}, {"V_Tongue_Curl_U", 0.4}},
		viseme.CodeAA:      {{"V_Open", 1}, {"Open_Jaw", 0.5}},
		viseme.CodeE:       {{"V_Wide", 0.7}, {"V_Open", 0.3}},
		viseme.CodeI:       {{"V_Wide", 1}},
		viseme.CodeO:       {{"V_Tight_O", 1}, {"Open_Jaw", 0.3}},
		viseme.CodeU:       {{"V_Tight", 1}},
	},
	Morphs:  []string{"Mouth_Smile_L", "Mouth_Smile_R", "Brow_Raise_Inner_L", "Brow_Raise_Inner_R"},
	Eyelids: [2]string{"Eye_Blink_L", "Eye_Blink_R"},
	Jaw: JawProfile{
		Channel: "CC_Base_JawRoot",
		Neutral: 1.57,
		Ranges: map[string]JawRange{
			viseme.CodeAA: {Base: 1.57, Max: 1.85},
			viseme.CodeO:  {Base: 1.57, Max: 1.78},
			viseme.CodeE:  {Base: 1.57, Max: 1.72},
			viseme.CodeU:  {Base: 1.57, Max: 1.68},
			viseme.CodeI:  {Base: 1.57, Max: 1.66},
			viseme.CodeKK: {Base: 1.57, Max: 1.64},
			viseme.CodeDD: {Base: 1.57, Max: 1.62},
		},
	},
	RampWeight: 0.2,
}

var builtinProfiles = map[string]Profile{
	rpmProfile.Name:   rpmProfile,
	arkitProfile.Name: arkitProfile,
	cc4Profile.Name:   cc4Profile,
}

// BuiltinProfile returns a copy of a bundled profile.
func BuiltinProfile(name string) (Profile, error) {
	p, ok := builtinProfiles[name]
	if !ok {
		return Profile{}, fmt.Errorf("%w: %q", ErrUnknownProfile, name)
	}
	return p.clone(), nil
}

func ProfileNames() []string {
	names := make([]string, 0, len(builtinProfiles))
	for name := range builtinProfiles {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (p Profile) clone() Profile {
	out := p
	out.Codes = make(map[string][]ChannelTarget, len(p.Codes))
	for code, targets := range p.Codes {
		out.Codes[code] = append([]ChannelTarget(nil), targets...)
	}
	out.Morphs = append([]string(nil), p.Morphs...)
	out.Jaw.Ranges = make(map[string]JawRange, len(p.Jaw.Ranges))
	for code, r := range p.Jaw.Ranges {
		out.Jaw.Ranges[code] = r
	}
	return out
}

// DefaultRampDuration is the ease time of each speech ramp.
const DefaultRampDuration = 300 * time.Millisecond
