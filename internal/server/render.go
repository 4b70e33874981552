package server

import (
	"bytes"
	"embed"
	"html/template"
	"net/http"

	"github.com/hyperjump/cardex/internal/models"
	"github.com/hyperjump/cardex/internal/pipeline"
	"go.uber.org/zap"
)

//go:embed templates/*.html
var templateFS embed.FS

// pages holds one template set per page, each sharing the layout.
type pages map[string]*template.Template

func parsePages() (pages, error) {
	p := make(pages)
	for _, name := range []string{"index", "result"} {
		t, err := template.ParseFS(templateFS, "templates/layout.html", "templates/"+name+".html")
		if err != nil {
			return nil, err
		}
		p[name] = t
	}
	return p, nil
}

type indexPage struct {
	Warning     string
	MaxUploadMB int64
}

type resultPage struct {
	RunID        string
	ElapsedMS    int64
	Records      []models.Record
	Errors       []string
	SideFailures []pipeline.SideFailure
}

// renderHTML buffers the page before writing the status.
func (s *Server) renderHTML(w http.ResponseWriter, status int, page string, data any) {
	var buf bytes.Buffer
	if err := s.pages[page].ExecuteTemplate(&buf, "layout", data); err != nil {
		s.logger.Error("render failed", zap.String("page", page), zap.Error(err))
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, _ = buf.WriteTo(w)
}
