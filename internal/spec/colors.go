package spec

import (
	"regexp"
	"strings"
)

// hexColorRe matches #RGB, #RRGGBB and #RRGGBBAA, case-insensitive.
var hexColorRe = regexp.MustCompile(`^#(?:[0-9a-fA-F]{3}|[0-9a-fA-F]{6}|[0-9a-fA-F]{8})$`)

// cssColorNames is the fixed whitelist of accepted CSS color keywords.
// Anything outside this set and the hex forms is rejected.
var cssColorNames = map[string]struct{}{
	"aliceblue": {}, "antiquewhite": {}, "aqua": {}, "aquamarine": {}, "azure": {},
	"beige": {}, "bisque": {}, "black": {}, "blanchedalmond": {}, "blue": {},
	"blueviolet": {}, "brown": {}, "burlywood": {}, "cadetblue": {}, "chartreuse": {},
	"chocolate": {}, "coral": {}, "cornflowerblue": {}, "cornsilk": {}, "crimson": {},
	"cyan": {}, "darkblue": {}, "darkcyan": {}, "darkgoldenrod": {}, "darkgray": {},
	"darkgreen": {}, "darkgrey": {}, "darkkhaki": {}, "darkmagenta": {},
	"darkolivegreen": {}, "darkorange": {}, "darkorchid": {}, "darkred": {},
	"darksalmon": {}, "darkseagreen": {}, "darkslateblue": {}, "darkslategray": {},
	"darkslategrey": {}, "darkturquoise": {}, "darkviolet": {}, "deeppink": {},
	"deepskyblue": {}, "dimgray": {}, "dimgrey": {}, "dodgerblue": {}, "firebrick": {},
	"floralwhite": {}, "forestgreen": {}, "fuchsia": {}, "gainsboro": {},
	"ghostwhite": {}, "gold": {}, "goldenrod": {}, "gray": {}, "green": {},
	"greenyellow": {}, "grey": {}, "honeydew": {}, "hotpink": {}, "indianred": {},
	"indigo": {}, "ivory": {}, "khaki": {}, "lavender": {}, "lavenderblush": {},
	"lawngreen": {}, "lemonchiffon": {}, "lightblue": {}, "lightcoral": {},
	"lightcyan": {}, "lightgoldenrodyellow": {}, "lightgray": {}, "lightgreen": {},
	"lightgrey": {}, "lightpink": {}, "lightsalmon": {}, "lightseagreen": {},
	"lightskyblue": {}, "lightslategray": {}, "lightslategrey": {},
	"lightsteelblue": {}, "lightyellow": {}, "lime": {}, "limegreen": {},
	"linen": {}, "magenta": {}, "maroon": {}, "mediumaquamarine": {},
	"mediumblue": {}, "mediumorchid": {}, "mediumpurple": {}, "mediumseagreen": {},
	"mediumslateblue": {}, "mediumspringgreen": {}, "mediumturquoise": {},
	"mediumvioletred": {}, "midnightblue": {}, "mintcream": {}, "mistyrose": {},
	"moccasin": {}, "navajowhite": {}, "navy": {}, "oldlace": {}, "olive": {},
	"olivedrab": {}, "orange": {}, "orangered": {}, "orchid": {},
	"palegoldenrod": {}, "palegreen": {}, "paleturquoise": {}, "palevioletred": {},
	"papayawhip": {}, "peachpuff": {}, "peru": {}, "pink": {}, "plum": {},
	"powderblue": {}, "purple": {}, "rebeccapurple": {}, "red": {}, "rosybrown": {},
	"royalblue": {}, "saddlebrown": {}, "salmon": {}, "sandybrown": {},
	"seagreen": {}, "seashell": {}, "sienna": {}, "silver": {}, "skyblue": {},
	"slateblue": {}, "slategray": {}, "slategrey": {}, "snow": {}, "springgreen": {},
	"steelblue": {}, "tan": {}, "teal": {}, "thistle": {}, "tomato": {},
	"transparent": {}, "turquoise": {}, "violet": {}, "wheat": {}, "white": {},
	"whitesmoke": {}, "yellow": {}, "yellowgreen": {},
}

// IsValidColor reports whether s is an accepted color: a hex form
// (#RGB, #RRGGBB, #RRGGBBAA) or a whitelisted CSS color keyword.
func IsValidColor(s string) bool {
	if hexColorRe.MatchString(s) {
		return true
	}
	_, ok := cssColorNames[strings.ToLower(s)]
	return ok
}
