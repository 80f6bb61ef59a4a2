// Package frontend serves an HTML form that collects a customer record and
// shows the churn prediction returned by the prediction API.
package frontend

import (
	"context"
	"embed"
	"html/template"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/ezoic/churn/config"
	"github.com/ezoic/churn/dataset"
	scigoErrors "github.com/ezoic/churn/pkg/errors"
	"github.com/ezoic/churn/pkg/log"
	"github.com/ezoic/churn/serving"
)

//go:embed templates/index.html
var templateFS embed.FS

// Field is one input of the form.
type Field struct {
	Name   string
	Label  string
	Binary bool
}

// Fields lists the required inputs in schema order.
func Fields() []Field {
	var out []Field
	for _, c := range dataset.ChurnSchema.Columns {
		if c.Kind == dataset.Frequency {
			continue
		}
		out = append(out, Field{Name: c.Field, Label: c.Name, Binary: c.Kind == dataset.Binary})
	}
	return out
}

type page struct {
	Fields []Field
	Values map[string]string
	Result string
	Error  string
}

type renderer struct {
	t *template.Template
}

func (r *renderer) Render(w io.Writer, name string, data interface{}, _ echo.Context) error {
	return r.t.ExecuteTemplate(w, name, data)
}

// Server is the form front-end.
type Server struct {
	e      *echo.Echo
	client *Client
	fields []Field
	cfg    config.Frontend
	logger log.Logger
}

// New builds the front-end for cfg.
func New(cfg config.Frontend) (*Server, error) {
	t, err := template.ParseFS(templateFS, "templates/index.html")
	if err != nil {
		return nil, scigoErrors.Wrap(err, "parse templates")
	}
	logger := log.GetLoggerWithName("frontend")
	s := &Server{
		client: NewClient(cfg.PredictURL, cfg.Timeout),
		fields: Fields(),
		cfg:    cfg,
		logger: logger,
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Renderer = &renderer{t: t}
	e.Use(serving.LogRequests(logger))
	e.Use(middleware.Recover())
	e.GET("/", s.index)
	e.POST("/", s.predict)
	s.e = e
	return s, nil
}

// Handler returns the router.
func (s *Server) Handler() http.Handler {
	return s.e
}

// Serve listens on cfg.Addr until ctx is done.
func (s *Server) Serve(ctx context.Context) error {
	errc := make(chan error, 1)
	go func() {
		s.logger.Info("Serving form", log.HTTPAddrKey, s.cfg.Addr, "predict_url", s.cfg.PredictURL)
		errc <- s.e.Start(s.cfg.Addr)
	}()
	select {
	case err := <-errc:
		if scigoErrors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return scigoErrors.Wrap(err, "serve")
	case <-ctx.Done():
	}
	sctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return scigoErrors.Wrap(s.e.Shutdown(sctx), "shutdown")
}

func (s *Server) newPage() page {
	return page{Fields: s.fields, Values: map[string]string{}}
}

func (s *Server) index(c echo.Context) error {
	return c.Render(http.StatusOK, "index.html", s.newPage())
}

func (s *Server) predict(c echo.Context) error {
	p := s.newPage()
	input := make(map[string]any, len(s.fields)+1)

	if state := strings.TrimSpace(c.FormValue("state")); state != "" {
		p.Values["state"] = state
		input["state"] = state
	}
	var bad []string
	for _, f := range s.fields {
		raw := strings.TrimSpace(c.FormValue(f.Name))
		p.Values[f.Name] = raw
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil || (f.Binary && v != 0 && v != 1) {
			bad = append(bad, f.Label)
			continue
		}
		if f.Binary {
			input[f.Name] = int(v)
		} else {
			input[f.Name] = v
		}
	}
	if len(bad) > 0 {
		p.Error = "Invalid value for: " + strings.Join(bad, ", ")
		return c.Render(http.StatusBadRequest, "index.html", p)
	}

	label, err := s.client.Predict(c.Request().Context(), input)
	if err != nil {
		s.logger.Warn("Prediction request failed", "error", err)
		p.Error = err.Error()
		return c.Render(http.StatusBadGateway, "index.html", p)
	}
	p.Result = Describe(label)
	return c.Render(http.StatusOK, "index.html", p)
}

// Describe turns a predicted label into the text shown to the user.
func Describe(label int) string {
	switch label {
	case 1:
		return "Churn (1)"
	case 0:
		return "No churn (0)"
	}
	return strconv.Itoa(label)
}
