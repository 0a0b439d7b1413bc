package signal

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

const (
	// KeyScreenWidth and KeyScreenHeight swap when a mobile device rotates. They share breakpoints
	// so the fingerprint can sort them back into place.
	KeyScreenWidth  = "cssScreenWidth"
	KeyScreenHeight = "cssScreenHeight"
)

var screenSideBreakpoints = Series{Min: 320, Max: 2700, Multiplier: 1.1, RoundBase: 10}

// Default is the process-wide registry.
var Default = MustRegistry(DefaultSources()...)

func DefaultSources() []Source {
	sources := []Source{
		&CSS{
			Meta:      Meta{Key: "cssBlink", Title: "CSS hack to tell Chromium-based browsers from other browsers"},
			Condition: "-webkit-app-region: inherit",
		},
		&CSS{
			Meta:      Meta{Key: "cssGecko", Title: "CSS hack to tell Firefox from other browsers"},
			Condition: "-moz-appearance: inherit",
		},
		&CSS{
			Meta:      Meta{Key: "cssWebkit", Title: "CSS hack to tell Safari from other browsers"},
			Condition: "-apple-pay-button-style: inherit",
		},
		&CSS{
			Meta:      Meta{Key: "cssMobileWebkit", Title: "CSS hack to tell whether the Safari is mobile"},
			Condition: "-webkit-touch-callout: inherit",
		},
		&CSS{
			Meta:      Meta{Key: "cssMacGecko", Title: "CSS hack to tell macOS Firefox from other Firefox versions"},
			Condition: "-moz-osx-font-smoothing: inherit",
		},
		// Tor's Gecko lacks accent-color. Outside Gecko the property says nothing the engine
		// probes don't already say, so it only counts for Gecko browsers.
		&CSS{
			Meta: Meta{
				Key:   "cssTorGecko",
				Title: "CSS hack to tell Firefox from Tor",
			},
			Condition: "accent-color: inherit",
		},

		mediaEnum("cssAnyHover", "Any hover", "any-hover", "none", "hover"),
		mediaEnum("cssHover", "Hover", "hover", "none", "hover"),
		mediaEnum("cssAnyPointer", "Any pointer", "any-pointer", "none", "coarse", "fine"),
		mediaEnum("cssPointer", "Pointer", "pointer", "none", "coarse", "fine"),
		mediaEnum("cssColor", "Color bitness", "color", digits()...),
		// rec2020 includes p3 and p3 includes srgb, so the widest gamut is declared last.
		mediaEnum("cssColorGamut", "Color gamut", "color-gamut", "srgb", "p3", "rec2020"),
		mediaEnum("cssForcedColors", "Forced colors", "forced-colors", "none", "active"),
		mediaEnum("cssInvertedColors", "Inverted colors", "inverted-colors", "none", "inverted"),
		mediaEnum("cssMonochrome", "Monochrome", "monochrome", digits()...),
		mediaEnum("cssPrefersColorScheme", "Dark/light mode", "prefers-color-scheme", "light", "dark"),
		mediaEnum("cssPrefersContrast", "Contrast preference", "prefers-contrast", "no-preference", "high", "more", "low", "less", "forced"),
		mediaEnum("cssPrefersReducedMotion", "Reduced motion", "prefers-reduced-motion", "no-preference", "reduce"),
		mediaEnum("cssDynamicRange", "Screen dynamic range", "dynamic-range", "standard", "high"),

		&CSSMediaNumber{
			Meta:         Meta{Key: "cssResolution", Title: "Pixel density"},
			MediaName:    "device-pixel-ratio",
			VendorPrefix: "-webkit-",
			Breakpoints:  Series{Min: 0.5, Max: 5, Multiplier: 1.15, RoundBase: 0.1},
		},
		&CSSMediaNumber{
			Meta:        Meta{Key: KeyScreenWidth, Title: "Screen width"},
			MediaName:   "device-width",
			ValueUnit:   "px",
			Breakpoints: screenSideBreakpoints,
		},
		&CSSMediaNumber{
			Meta:        Meta{Key: KeyScreenHeight, Title: "Screen height"},
			MediaName:   "device-height",
			ValueUnit:   "px",
			Breakpoints: screenSideBreakpoints,
		},
	}

	for _, fontName := range []string{
		"Roboto",         // Android and ChromeOS
		"Ubuntu",         // Ubuntu
		"Calibri",        // Windows
		"MS UI Gothic",   // Windows
		"Gill Sans",      // macOS
		"Helvetica Neue", // macOS and iOS
		"Arimo",          // ChromeOS; Tinos, Cousine, Caladea and Carlito are exclusive there too
	} {
		sources = append(sources, &FontAbsence{
			Meta:     Meta{Key: camelCase(fontName) + "FontAbsence", Title: "“" + fontName + "” font"},
			FontName: fontName,
		})
	}

	return append(sources,
		&HTTPHeader{
			Meta:       Meta{Key: "languageHeader", Title: "Language"},
			Resource:   ResourcePage,
			HeaderName: "Accept-Language",
			// Chrome rewrites the tail of the header in incognito mode.
			Transform: func(headerValue string) string {
				first, _, _ := strings.Cut(headerValue, ",")
				return first
			},
		},
		&HTTPHeader{
			Meta:       Meta{Key: "acceptEncodingHeader", Title: "Accepted encoding"},
			Resource:   ResourcePage,
			HeaderName: "Accept-Encoding",
		},
		&HTTPHeader{
			Meta:       Meta{Key: "pageAcceptHeader", Title: "Accept header for web page"},
			Resource:   ResourcePage,
			HeaderName: "Accept",
		},
		&HTTPHeader{
			Meta:       Meta{Key: "imageAcceptHeader", Title: "Accept header for image"},
			Resource:   ResourceImage,
			HeaderName: "Accept",
		},
		&HTTPHeader{
			Meta:       Meta{Key: "styleAcceptHeader", Title: "Accept header for stylesheet"},
			Resource:   ResourceStyle,
			HeaderName: "Accept",
		},
	)
}

func mediaEnum(key, title, mediaName string, values ...string) *CSSMediaEnum {
	return &CSSMediaEnum{
		Meta:        Meta{Key: key, Title: title},
		MediaName:   mediaName,
		MediaValues: values,
	}
}

func digits() []string {
	return []string{"0", "1", "2", "3", "4", "5", "6", "7", "8", "9", "10"}
}

// camelCase turns "MS UI Gothic" into "msUiGothic".
func camelCase(text string) string {
	var b strings.Builder
	for i, word := range strings.Fields(text) {
		first, size := utf8.DecodeRuneInString(word)
		if i == 0 {
			b.WriteRune(unicode.ToLower(first))
		} else {
			b.WriteRune(unicode.ToUpper(first))
		}
		b.WriteString(strings.ToLower(word[size:]))
	}
	return b.String()
}
