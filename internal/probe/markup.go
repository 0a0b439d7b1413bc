// Package probe renders the CSS and HTML that make a browser report its properties through
// plain subresource requests.
package probe

import (
	"strconv"

	"nojsfp/internal/signal"
)

// ActivationURLFactory makes the URL a browser requests when a signal activates. The factory must
// percent-encode its arguments.
type ActivationURLFactory func(visitID, signalKey, signalValue string) string

// HeaderProbeURLFactory makes the URL of a subresource requested only to read its headers.
type HeaderProbeURLFactory func(visitID string, resource signal.ResourceType) string

// Markup holds CSS rules for a <style> element and elements for the page body.
type Markup struct {
	CSS  []string
	HTML []string
}

type writer struct {
	visitID       string
	activationURL ActivationURLFactory
	probeCount    int
	markup        *Markup
}

func (w *writer) NextClassName() string {
	w.probeCount++
	return "css_probe_" + strconv.Itoa(w.probeCount)
}

func (w *writer) ActivationURL(key, value string) string {
	return w.activationURL(w.visitID, key, value)
}

func (w *writer) AddCSS(rule string)     { w.markup.CSS = append(w.markup.CSS, rule) }
func (w *writer) AddHTML(element string) { w.markup.HTML = append(w.markup.HTML, element) }

// Build emits the probes of every registry source in order.
func Build(registry *signal.Registry, visitID string, activationURL ActivationURLFactory) Markup {
	markup := Markup{CSS: []string{}, HTML: []string{}}
	w := &writer{visitID: visitID, activationURL: activationURL, markup: &markup}
	for source := range registry.All() {
		source.EmitProbe(w)
	}
	return markup
}

// HeaderProbeURLs returns the subresource URLs the page embeds so their request headers can be read.
// The page request itself covers ResourcePage.
func HeaderProbeURLs(visitID string, headerProbeURL HeaderProbeURLFactory) map[signal.ResourceType]string {
	urls := make(map[signal.ResourceType]string)
	for _, resource := range signal.ResourceTypes() {
		if resource == signal.ResourcePage {
			continue
		}
		urls[resource] = headerProbeURL(visitID, resource)
	}
	return urls
}

// ClientHintHeaders is the Accept-CH list: Downlink, which sizes the result delay, plus every
// client hint the registry reads.
func ClientHintHeaders(registry *signal.Registry) []string {
	return append([]string{"Downlink"}, registry.ClientHintHeaders()...)
}
