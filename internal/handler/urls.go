package handler

import (
	"net/url"

	"nojsfp/internal/signal"
)

// ActivationURL is the probe URL a browser fetches when a signal activates.
func ActivationURL(visitID, key, value string) string {
	return "/signal/" + url.PathEscape(visitID) + "/" + url.PathEscape(key) + "/" + url.PathEscape(value)
}

// HeaderProbeURL is fetched unconditionally so its request headers can be read.
func HeaderProbeURL(visitID string, resource signal.ResourceType) string {
	return "/headers/" + url.PathEscape(visitID) + "/" + url.PathEscape(string(resource))
}

func waitResultURL(visitID string) string {
	return "/wait-result/" + url.PathEscape(visitID)
}

func resultFrameURL(visitID string) string {
	return "/result-frame/" + url.PathEscape(visitID)
}

func resultURL(visitID string) string {
	return "/result/" + url.PathEscape(visitID)
}
