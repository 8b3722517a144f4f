// Package colors converts loosely specified colours into 8-bit RGB and picks
// legible outline colours for them.
package colors

import (
	"fmt"
	"image/color"
	"math"
	"slices"
	"strconv"
	"strings"

	"github.com/lucasb-eyer/go-colorful"
	"golang.org/x/image/colornames"

	"github.com/NERVsystems/osmplot/pkg/core"
)

// RGB is an 8-bit colour triple
type RGB struct {
	R, G, B uint8
}

var (
	Black   = RGB{0, 0, 0}
	White   = RGB{255, 255, 255}
	Neutral = RGB{128, 128, 128}
)

// RGBA implements color.Color
func (c RGB) RGBA() (r, g, b, a uint32) {
	return color.RGBA{R: c.R, G: c.G, B: c.B, A: 0xff}.RGBA()
}

// Colorful returns the colour in go-colorful's float representation
func (c RGB) Colorful() colorful.Color {
	return colorful.Color{R: float64(c.R) / 255, G: float64(c.G) / 255, B: float64(c.B) / 255}
}

// Hex returns the colour as #rrggbb
func (c RGB) Hex() string {
	return fmt.Sprintf("#%02x%02x%02x", c.R, c.G, c.B)
}

func (c RGB) String() string {
	return c.Hex()
}

// MarshalText encodes the colour as #rrggbb
func (c RGB) MarshalText() ([]byte, error) {
	return []byte(c.Hex()), nil
}

// UnmarshalText accepts anything ToRGB255 accepts as a string
func (c *RGB) UnmarshalText(text []byte) error {
	v, err := ToRGB255(string(text))
	if err != nil {
		return err
	}
	*c = v
	return nil
}

// Tableau10 is the tab10 cycle. C0-C9 and the tab:* names resolve to it.
var Tableau10 = []RGB{
	{0x1f, 0x77, 0xb4},
	{0xff, 0x7f, 0x0e},
	{0x2c, 0xa0, 0x2c},
	{0xd6, 0x27, 0x28},
	{0x94, 0x67, 0xbd},
	{0x8c, 0x56, 0x4b},
	{0xe3, 0x77, 0xc2},
	{0x7f, 0x7f, 0x7f},
	{0xbc, 0xbd, 0x22},
	{0x17, 0xbe, 0xcf},
}

var tableauNames = []string{
	"tab:blue", "tab:orange", "tab:green", "tab:red", "tab:purple",
	"tab:brown", "tab:pink", "tab:gray", "tab:olive", "tab:cyan",
}

// ToRGB255 resolves a colour given as a name, a hex string, an RGB value,
// a color.Color or a numeric triple.
//
// Names are the CSS/SVG keywords from golang.org/x/image/colornames (case
// and spaces ignored), the Tableau names tab:blue through tab:cyan
// (tab:grey too) and the cycle references C0-C9. Hex strings may be #rgb,
// #rgba, #rrggbb or #rrggbbaa; alpha is ignored.
//
// A triple whose largest component exceeds 1 is taken as already 8-bit;
// otherwise components are scaled from [0,1] and truncated.
func ToRGB255(v any) (RGB, error) {
	switch c := v.(type) {
	case RGB:
		return c, nil
	case *RGB:
		if c == nil {
			return RGB{}, core.InvalidColor(v, "nil colour")
		}
		return *c, nil
	case string:
		return parseString(c)
	case [3]float64:
		return fromTriple(v, c[0], c[1], c[2])
	case []float64:
		if len(c) != 3 {
			return RGB{}, core.InvalidColor(v, fmt.Sprintf("expected 3 components, got %d", len(c)))
		}
		return fromTriple(v, c[0], c[1], c[2])
	case [3]int:
		return fromTriple(v, float64(c[0]), float64(c[1]), float64(c[2]))
	case []int:
		if len(c) != 3 {
			return RGB{}, core.InvalidColor(v, fmt.Sprintf("expected 3 components, got %d", len(c)))
		}
		return fromTriple(v, float64(c[0]), float64(c[1]), float64(c[2]))
	case [3]uint8:
		return RGB{c[0], c[1], c[2]}, nil
	case []any:
		if len(c) != 3 {
			return RGB{}, core.InvalidColor(v, fmt.Sprintf("expected 3 components, got %d", len(c)))
		}
		var f [3]float64
		for i, x := range c {
			n, ok := toFloat(x)
			if !ok {
				return RGB{}, core.InvalidColor(v, fmt.Sprintf("component %d is not a number", i))
			}
			f[i] = n
		}
		return fromTriple(v, f[0], f[1], f[2])
	case color.Color:
		cf, ok := colorful.MakeColor(c)
		if !ok {
			return RGB{}, core.InvalidColor(v, "fully transparent colour")
		}
		r, g, b := cf.RGB255()
		return RGB{r, g, b}, nil
	case nil:
		return RGB{}, core.InvalidColor(v, "no colour given")
	default:
		return RGB{}, core.InvalidColor(v, fmt.Sprintf("unsupported type %T", v))
	}
}

func parseString(s string) (RGB, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	if name == "" {
		return RGB{}, core.InvalidColor(s, "empty colour")
	}
	if strings.HasPrefix(name, "#") {
		return parseHex(s, name)
	}
	if len(name) == 2 && name[0] == 'c' && name[1] >= '0' && name[1] <= '9' {
		return Tableau10[name[1]-'0'], nil
	}
	if strings.HasPrefix(name, "tab:") {
		if name == "tab:grey" {
			name = "tab:gray"
		}
		if i := slices.Index(tableauNames, name); i >= 0 {
			return Tableau10[i], nil
		}
		return RGB{}, core.InvalidColor(s, "unknown Tableau colour")
	}
	named, ok := colornames.Map[strings.ReplaceAll(name, " ", "")]
	if !ok {
		return RGB{}, core.InvalidColor(s, "unknown colour name")
	}
	return RGB{named.R, named.G, named.B}, nil
}

// parseHex drops any alpha digits before handing the colour to colorful
func parseHex(orig, hex string) (RGB, error) {
	switch len(hex) {
	case 5, 9:
		hex = hex[:len(hex)-(len(hex)-1)/4]
	case 4, 7:
	default:
		return RGB{}, core.InvalidColor(orig, "hex colours must be #rgb, #rgba, #rrggbb or #rrggbbaa")
	}
	if _, err := strconv.ParseUint(hex[1:], 16, 32); err != nil {
		return RGB{}, core.InvalidColor(orig, "invalid hex digits")
	}
	c, err := colorful.Hex(hex)
	if err != nil {
		return RGB{}, core.InvalidColor(orig, err.Error())
	}
	r, g, b := c.RGB255()
	return RGB{r, g, b}, nil
}

func fromTriple(orig any, r, g, b float64) (RGB, error) {
	for _, x := range []float64{r, g, b} {
		if math.IsNaN(x) || math.IsInf(x, 0) || x < 0 {
			return RGB{}, core.InvalidColor(orig, "components must be finite and non-negative")
		}
	}

	if max(r, g, b) > 1 {
		if max(r, g, b) > 255 {
			return RGB{}, core.InvalidColor(orig, "8-bit components must not exceed 255")
		}
		return RGB{uint8(math.Round(r)), uint8(math.Round(g)), uint8(math.Round(b))}, nil
	}
	return RGB{uint8(r * 255), uint8(g * 255), uint8(b * 255)}, nil
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint8:
		return float64(n), true
	}
	return 0, false
}

// Luminance returns the relative luminance of c in [0,1] using the
// Rec. 709 channel weights.
func Luminance(c RGB) float64 {
	return (0.2126*float64(c.R) + 0.7152*float64(c.G) + 0.0722*float64(c.B)) / 255
}

// ContrastColor returns black for light colours and white for dark ones
func ContrastColor(c RGB) RGB {
	return ContrastForLuminance(Luminance(c))
}

// ContrastForLuminance returns black when l > 0.5 and white otherwise, so
// exactly 0.5 resolves to white.
func ContrastForLuminance(l float64) RGB {
	if l > 0.5 {
		return Black
	}
	return White
}
