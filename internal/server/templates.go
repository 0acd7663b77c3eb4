package server

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/skosovsky/generations"
	"github.com/skosovsky/generations/dispatch"
	"github.com/skosovsky/generations/manifest"
)

var errNoTemplates = errors.New("server: template directory not configured")

func (s *Server) document(c echo.Context) (*manifest.Document, error) {
	if s.templates == nil {
		return nil, errNoTemplates
	}
	return s.templates.Get(c.Request().Context(), c.Param("name"), c.QueryParam("env"))
}

func (s *Server) handleTemplates(c echo.Context) error {
	if s.templates == nil {
		return errNoTemplates
	}
	names, err := s.templates.Names()
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]any{"templates": names})
}

// handleIntegrate renders the template with the request body as data.
func (s *Server) handleIntegrate(c echo.Context) error {
	doc, err := s.document(c)
	if err != nil {
		return err
	}
	var data map[string]any
	if err := s.decode(c, &data); err != nil {
		return err
	}
	out, err := doc.Render(data)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, result{Result: out})
}

// handleTemplateGenerate renders the template and runs generate. The provider comes from the
// provider query parameter, then from the document.
func (s *Server) handleTemplateGenerate(c echo.Context) error {
	doc, err := s.document(c)
	if err != nil {
		return err
	}
	name := c.QueryParam("provider")
	if name == "" {
		name = string(doc.Provider)
	}
	if name == "" {
		return generations.MissingArgument("provider")
	}
	p, err := dispatch.ValidateProvider(name)
	if err != nil {
		return err
	}
	var data map[string]any
	if err := s.decode(c, &data); err != nil {
		return err
	}
	req, err := doc.Request(data)
	if err != nil {
		return err
	}
	resp, err := s.client.Generate(c.Request().Context(), p, req)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, result{Result: dispatch.Result(req, resp)})
}
