package signal

import (
	"fmt"
	"html"
	"slices"
	"strings"
)

// Collection maps signal keys to values. Writing an existing key replaces its value.
type Collection map[string]string

func (c Collection) Clone() Collection {
	out := make(Collection, len(c))
	for k, v := range c {
		out[k] = v
	}
	return out
}

type Kind string

const (
	KindCSS            Kind = "css"
	KindCSSMediaEnum   Kind = "cssMediaEnum"
	KindCSSMediaNumber Kind = "cssMediaNumber"
	KindHTTPHeader     Kind = "httpHeader"
	KindFontAbsence    Kind = "fontAbsence"
)

// ResourceType is the kind of subresource a header probe is loaded as.
type ResourceType string

const (
	ResourcePage  ResourceType = "page"
	ResourceImage ResourceType = "image"
	ResourceVideo ResourceType = "video"
	ResourceAudio ResourceType = "audio"
	ResourceStyle ResourceType = "style"
)

var resourceTypes = []ResourceType{ResourcePage, ResourceImage, ResourceVideo, ResourceAudio, ResourceStyle}

func ResourceTypes() []ResourceType {
	return slices.Clone(resourceTypes)
}

func ParseResourceType(value string) (ResourceType, bool) {
	rt := ResourceType(value)
	return rt, slices.Contains(resourceTypes, rt)
}

// ProbeWriter collects the markup a source needs to provoke its activation request.
type ProbeWriter interface {
	NextClassName() string
	ActivationURL(key, value string) string
	AddCSS(rule string)
	AddHTML(element string)
}

// Summary is the human readable view of one source and its resolved value.
type Summary struct {
	Key       string
	Title     string
	Kind      Kind
	Detail    string
	Value     string
	Discarded bool
}

// Source is one passive probe. The set of implementations is closed: CSS, CSSMediaEnum,
// CSSMediaNumber, HTTPHeader and FontAbsence.
type Source interface {
	Info() *Meta
	Kind() Kind
	// EmitProbe writes the CSS and HTML that make the browser request the activation URL.
	EmitProbe(w ProbeWriter)
	// Accept validates an activation value. ok=false means the request must be ignored.
	Accept(raw string) (value string, ok bool)
	Describe(value string, present bool) Summary
	// MeanRequests is the average number of activation requests one page view produces.
	MeanRequests() float64

	sealed()
}

type Meta struct {
	Key   string
	Title string
	// Discard removes the source from the fingerprint when it returns true for the full signal set.
	Discard func(all Collection) bool
}

func (m *Meta) Info() *Meta { return m }

func (m *Meta) sealed() {}

// Discarded reports whether the source must be left out of the fingerprint.
func (m *Meta) Discarded(all Collection) bool {
	return m.Discard != nil && m.Discard(all)
}

func backgroundStyle(url string) string {
	return "background: url('" + url + "')"
}

func markerElement(className string) string {
	return `<div class="` + html.EscapeString(className) + `"></div>`
}

func plainValue(value string, present bool) string {
	if !present {
		return "(undefined)"
	}
	if value == "" {
		return "(empty)"
	}
	return value
}

// CSS activates when the browser supports an engine-exclusive, nonstandard property.
type CSS struct {
	Meta
	// Condition is the @supports condition, e.g. "-moz-appearance: inherit".
	Condition string
}

func (s *CSS) Kind() Kind { return KindCSS }

func (s *CSS) rule(className, style string) string {
	return fmt.Sprintf("@supports(%s) { .%s { %s } }", s.Condition, className, style)
}

func (s *CSS) EmitProbe(w ProbeWriter) {
	className := w.NextClassName()
	w.AddHTML(markerElement(className))
	w.AddCSS(s.rule(className, backgroundStyle(w.ActivationURL(s.Key, ""))))
}

func (s *CSS) Accept(string) (string, bool) { return "", true }

func (s *CSS) Describe(_ string, present bool) Summary {
	value := "No"
	if present {
		value = "Yes"
	}
	return Summary{Detail: "CSS: " + s.rule("selector", ""), Value: value}
}

func (s *CSS) MeanRequests() float64 { return 0.5 }

// CSSMediaEnum declares one @media rule per candidate. The cascade keeps only the last matching
// rule's background, so at most one value is requested.
type CSSMediaEnum struct {
	Meta
	MediaName   string
	MediaValues []string
}

func (s *CSSMediaEnum) Kind() Kind { return KindCSSMediaEnum }

func (s *CSSMediaEnum) EmitProbe(w ProbeWriter) {
	className := w.NextClassName()
	w.AddHTML(markerElement(className))
	for _, value := range s.MediaValues {
		style := backgroundStyle(w.ActivationURL(s.Key, value))
		w.AddCSS(fmt.Sprintf("@media (%s: %s) { .%s { %s } }", s.MediaName, value, className, style))
	}
}

func (s *CSSMediaEnum) Accept(raw string) (string, bool) {
	if !slices.Contains(s.MediaValues, raw) {
		return "", false
	}
	return raw, true
}

func (s *CSSMediaEnum) Describe(value string, present bool) Summary {
	return Summary{
		Detail: fmt.Sprintf("CSS: @media (%s: ...) {  }", s.MediaName),
		Value:  plainValue(value, present),
	}
}

func (s *CSSMediaEnum) MeanRequests() float64 { return 0.9 }

// CSSMediaNumber partitions a continuous media feature into ranges, one @media rule each.
type CSSMediaNumber struct {
	Meta
	MediaName    string
	VendorPrefix string
	ValueUnit    string
	Breakpoints  Series
}

func (s *CSSMediaNumber) Kind() Kind { return KindCSSMediaNumber }

func (s *CSSMediaNumber) mediaQuery(r Range) string {
	var b strings.Builder
	if r.Min.Valid {
		fmt.Fprintf(&b, "(%smin-%s: %s%s)", s.VendorPrefix, s.MediaName, r.Min.Decimal.String(), s.ValueUnit)
	}
	if r.Min.Valid && r.Max.Valid {
		b.WriteString(" and ")
	}
	if r.Max.Valid {
		fmt.Fprintf(&b, "(%smax-%s: %s%s)", s.VendorPrefix, s.MediaName, r.UpperBound().String(), s.ValueUnit)
	}
	return b.String()
}

func (s *CSSMediaNumber) EmitProbe(w ProbeWriter) {
	className := w.NextClassName()
	w.AddHTML(markerElement(className))
	for _, r := range s.Breakpoints.Ranges() {
		style := backgroundStyle(w.ActivationURL(s.Key, r.Payload()))
		w.AddCSS(fmt.Sprintf("@media %s { .%s { %s } }", s.mediaQuery(r), className, style))
	}
}

func (s *CSSMediaNumber) Accept(raw string) (string, bool) {
	if !ValidRangePayload(raw) {
		return "", false
	}
	return raw, true
}

func (s *CSSMediaNumber) Describe(value string, present bool) Summary {
	summary := Summary{Detail: fmt.Sprintf("CSS: @media (%[1]smin-%[2]s: ...) and (%[1]smax-%[2]s: ...) {  }", s.VendorPrefix, s.MediaName)}
	if !present {
		summary.Value = "(undefined)"
		return summary
	}
	lower, upper, _ := strings.Cut(value, ",")
	var parts []string
	if lower != "" {
		parts = append(parts, "≥"+lower+s.ValueUnit)
	}
	if upper != "" {
		parts = append(parts, "<"+upper+s.ValueUnit)
	}
	summary.Value = strings.Join(parts, ", ")
	return summary
}

func (s *CSSMediaNumber) MeanRequests() float64 { return 1 }

// HTTPHeader reads a request header sent with a subresource of the given type.
type HTTPHeader struct {
	Meta
	Resource   ResourceType
	HeaderName string
	// ClientHint headers are only sent after the page advertises them in Accept-CH.
	ClientHint bool
	// Transform keeps the stable part of the header value. Nil stores the raw value.
	Transform func(headerValue string) string
}

func (s *HTTPHeader) Kind() Kind { return KindHTTPHeader }

// EmitProbe is a no-op: header probes are plain subresources rendered by the page.
func (s *HTTPHeader) EmitProbe(ProbeWriter) {}

// Accept always rejects. Header signals never arrive through activation URLs.
func (s *HTTPHeader) Accept(string) (string, bool) { return "", false }

// Read returns the value to store for the header, or false when the header was not sent.
func (s *HTTPHeader) Read(getHeader func(name string) (string, bool)) (string, bool) {
	value, ok := getHeader(s.HeaderName)
	if !ok {
		return "", false
	}
	if s.Transform != nil {
		value = s.Transform(value)
	}
	return value, true
}

func (s *HTTPHeader) Describe(value string, present bool) Summary {
	return Summary{Detail: "HTTP header name: " + s.HeaderName, Value: plainValue(value, present)}
}

func (s *HTTPHeader) MeanRequests() float64 { return 0 }

// FontAbsence activates when the font is not installed: the @font-face source list falls back
// from local() to the activation URL.
type FontAbsence struct {
	Meta
	FontName string
}

func (s *FontAbsence) Kind() Kind { return KindFontAbsence }

func (s *FontAbsence) EmitProbe(w ProbeWriter) {
	w.AddHTML(fmt.Sprintf(`<div style="font-family: '%s'">a</div>`, html.EscapeString(s.FontName)))
	w.AddCSS(fmt.Sprintf(
		"@font-face { font-family: '%[1]s'; src: local('%[1]s'), url('%[2]s') format('truetype') }",
		s.FontName, w.ActivationURL(s.Key, ""),
	))
}

func (s *FontAbsence) Accept(string) (string, bool) { return "", true }

// Describe reports whether the font is available, which is the inverse of the signal.
func (s *FontAbsence) Describe(_ string, present bool) Summary {
	value := "Yes"
	if present {
		value = "No"
	}
	return Summary{Detail: "Font name: " + s.FontName, Value: value}
}

func (s *FontAbsence) MeanRequests() float64 { return 0.8 }
