// Package viseme decodes the timed viseme payloads that the dialogue service
// sends alongside synthesized speech into ordered timelines for lip-sync.
package viseme

import "strings"

// Short viseme codes as emitted by the dialogue service.
const (
	CodeSilence = "-"  // Silence
	CodePP      = "p"  // p, b, m
	CodeFF      = "f"  // f, v
	CodeTH      = "th" // th (dental)
	CodeDD      = "d"  // t, d
	CodeKK      = "k"  // k, g
	CodeCH      = "ch" // ch, j, sh
	CodeSS      = "s"  // s, z
	CodeNN      = "n"  // n, l
	CodeRR      = "r"  // r
	CodeAA      = "a"  // a (as in "father")
	CodeE       = "e"  // e (as in "bed")
	CodeI       = "i"  // i (as in "sit")
	CodeO       = "o"  // o (as in "go")
	CodeU       = "u"  // u (as in "boot")
)

// Codes lists every short code in Oculus viseme order.
var Codes = []string{
	CodeSilence, CodePP, CodeFF, CodeTH, CodeDD, CodeKK, CodeCH, CodeSS,
	CodeNN, CodeRR, CodeAA, CodeE, CodeI, CodeO, CodeU,
}

// oculusToCode maps the 15 Oculus lip-sync viseme names onto short codes so
// payloads produced by Oculus-style engines decode to the same timeline.
var oculusToCode = map[string]string{
	"sil": CodeSilence,
	"PP":  CodePP,
	"FF":  CodeFF,
	"TH":  CodeTH,
	"DD":  CodeDD,
	"kk":  CodeKK,
	"CH":  CodeCH,
	"SS":  CodeSS,
	"nn":  CodeNN,
	"RR":  CodeRR,
	"aa":  CodeAA,
	"E":   CodeE,
	"I":   CodeI,
	"O":   CodeO,
	"U":   CodeU,
}

// NormalizeCode returns the short code for code. Oculus names are translated,
// anything else is trimmed and lower-cased.
func NormalizeCode(code string) string {
	code = strings.TrimSpace(code)
	if short, ok := oculusToCode[code]; ok {
		return short
	}
	lower := strings.ToLower(code)
	if lower == "sil" || lower == "" {
		return CodeSilence
	}
	return lower
}

// IsSilence reports whether code represents a closed, silent mouth.
func IsSilence(code string) bool {
	return NormalizeCode(code) == CodeSilence
}
