package handler

import (
	"embed"
	"html/template"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/render"
)

//go:embed templates/*.tmpl
var templateFS embed.FS

var pages = template.Must(template.ParseFS(templateFS, "templates/*.tmpl"))

type pageView struct {
	CSS           template.CSS
	HTML          template.HTML
	StyleProbeURL string
	ImageProbeURL string
	VideoProbeURL string
	AudioProbeURL string
	WaitResultURL string
}

type waitResultView struct {
	Delay          string
	ResultFrameURL string
}

type resultFrameView struct {
	Fingerprint string
	ResultURL   string
}

type resultView struct {
	Fingerprint string
	Sources     []sourceView
}

type sourceView struct {
	Title     string
	Kind      string
	Detail    string
	Value     string
	Discarded bool
}

type notFoundView struct {
	Message string
}

func cssBlock(rules []string) template.CSS {
	return template.CSS(indentLines(rules, "      "))
}

func htmlBlock(elements []string) template.HTML {
	return template.HTML(indentLines(elements, "      "))
}

func indentLines(lines []string, prefix string) string {
	var b strings.Builder
	for i, line := range lines {
		if i > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(prefix)
		b.WriteString(line)
	}
	return b.String()
}

func renderHTML(c *gin.Context, status int, name string, data any) {
	c.Render(status, render.HTML{Template: pages, Name: name, Data: data})
}

func renderNotFound(c *gin.Context) {
	renderHTML(c, http.StatusNotFound, "not_found", notFoundView{Message: "Visit is not found. Please try again."})
}
