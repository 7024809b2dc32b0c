package web

import (
	"embed"
	"html/template"
	"io"

	"github.com/labstack/echo/v4"
)

//go:embed templates/*.html
var templateFS embed.FS

// TemplateRenderer echo.Renderer backed by the embedded templates
type TemplateRenderer struct {
	templates *template.Template
}

var _ echo.Renderer = &TemplateRenderer{}

// NewTemplateRenderer parse the embedded templates
func NewTemplateRenderer() (*TemplateRenderer, error) {
	t, err := template.ParseFS(templateFS, "templates/*.html")
	if err != nil {
		return nil, err
	}
	return &TemplateRenderer{templates: t}, nil
}

// Render implement echo.Renderer
func (tr *TemplateRenderer) Render(w io.Writer, name string, data interface{}, c echo.Context) error {
	return tr.templates.ExecuteTemplate(w, name, data)
}

type signInPage struct {
	Title        string
	Identifier   string
	Password     string
	ShowPassword bool
	Errors       []string
}

type homePage struct {
	Title     string
	Remaining string
}
