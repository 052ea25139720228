package http

import (
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/tenantrag/internal/errdefs"
	"github.com/fyrsmithlabs/tenantrag/internal/ingest"
	"github.com/fyrsmithlabs/tenantrag/internal/sanitize"
)

// handleHealth reports ok, or 503 when the vector store check fails.
func (s *Server) handleHealth(c echo.Context) error {
	if s.health != nil {
		if err := s.health.Health(c.Request().Context()); err != nil {
			s.logger.Warn(c.Request().Context(), "health check failed", zap.Error(err))
			return c.JSON(http.StatusServiceUnavailable, HealthResponse{Status: "unavailable"})
		}
	}
	return c.JSON(http.StatusOK, HealthResponse{Status: "ok"})
}

// handleCreateTenant registers a tenant and returns its token.
func (s *Server) handleCreateTenant(c echo.Context) error {
	token, err := s.tenants.Register(c.Request().Context())
	if err != nil {
		return s.fail(c, "register tenant", err)
	}

	status := http.StatusOK
	if c.Request().Method == http.MethodPost {
		status = http.StatusCreated
	}
	return c.JSON(status, TokenResponse{Token: token})
}

func (s *Server) handleTenantExists(c echo.Context) error {
	token, err := tenantToken(c)
	if err != nil {
		return s.fail(c, "tenant exists", err)
	}
	ok, err := s.tenants.Exists(c.Request().Context(), token)
	if err != nil {
		return s.fail(c, "tenant exists", err)
	}
	if !ok {
		return c.NoContent(http.StatusNotFound)
	}
	return c.NoContent(http.StatusOK)
}

func (s *Server) handleDropTenant(c echo.Context) error {
	token, err := tenantToken(c)
	if err != nil {
		return s.fail(c, "drop tenant", err)
	}
	if err := s.tenants.Drop(c.Request().Context(), token); err != nil {
		return s.fail(c, "drop tenant", err)
	}
	return c.JSON(http.StatusOK, MessageResponse{Message: "Tenant deleted."})
}

// handleUpload ingests the multipart "file" field. A filename that is
// already present answers 409 and leaves the tenant unchanged.
func (s *Server) handleUpload(c echo.Context) error {
	token, err := tenantToken(c)
	if err != nil {
		return s.fail(c, "upload", err)
	}

	fh, err := c.FormFile("file")
	if err != nil {
		return s.fail(c, "upload", errdefs.InvalidInput("multipart field \"file\" is required"))
	}
	filename, err := sanitize.DocumentName(fh.Filename)
	if err != nil {
		return s.fail(c, "upload", err)
	}

	f, err := fh.Open()
	if err != nil {
		return s.fail(c, "upload", fmt.Errorf("opening upload: %w", err))
	}
	defer f.Close()

	res, err := s.documents.IngestFile(c.Request().Context(), token, filename, f, fh.Size)
	if err != nil {
		return s.fail(c, "upload", err)
	}

	if res.Status == ingest.StatusAlreadyExists {
		return echo.NewHTTPError(http.StatusConflict,
			fmt.Sprintf("Filename '%s' already exists. Upload aborted.", filename))
	}
	return c.JSON(http.StatusOK, UploadResponse{
		Message:  fmt.Sprintf("File %s uploaded and processed successfully.", filename),
		Filename: res.Filename,
		Chunks:   res.Chunks,
		Pages:    res.Pages,
	})
}

func (s *Server) handleList(c echo.Context) error {
	token, err := tenantToken(c)
	if err != nil {
		return s.fail(c, "list documents", err)
	}
	names, err := s.documents.ListDocuments(c.Request().Context(), token)
	if err != nil {
		return s.fail(c, "list documents", err)
	}
	if names == nil {
		names = []string{}
	}
	return c.JSON(http.StatusOK, ListResponse{Filenames: names})
}

func (s *Server) handleDelete(c echo.Context) error {
	token, err := tenantToken(c)
	if err != nil {
		return s.fail(c, "delete document", err)
	}
	filename := c.Request().Header.Get(HeaderFilename)

	n, err := s.documents.DeleteDocument(c.Request().Context(), token, filename)
	if err != nil {
		return s.fail(c, "delete document", err)
	}

	msg := fmt.Sprintf("No entities found with filename '%s'.", filename)
	if n > 0 {
		msg = fmt.Sprintf("%d entities with filename '%s' were deleted.", n, filename)
	}
	return c.JSON(http.StatusOK, DeleteResponse{Message: msg, Deleted: n})
}

// handleQuery answers the "query" parameter from the tenant's documents,
// optionally restricted to repeated "filenames" parameters.
func (s *Server) handleQuery(c echo.Context) error {
	token, err := tenantToken(c)
	if err != nil {
		return s.fail(c, "query", err)
	}

	var (
		query     string
		topK      = s.config.DefaultTopK
		filenames []string
	)
	if err := echo.QueryParamsBinder(c).
		String("query", &query).
		Int("top_k", &topK).
		Strings("filenames", &filenames).
		BindError(); err != nil {
		return s.fail(c, "query", errdefs.InvalidInput("%v", err))
	}

	ans, err := s.answerer.Answer(c.Request().Context(), token, query, topK, filenames)
	if err != nil {
		return s.fail(c, "query", err)
	}

	hits := make([]Hit, len(ans.Hits))
	for i, h := range ans.Hits {
		hits[i] = Hit{
			ID:       h.ID,
			Distance: h.Distance,
			Text:     h.Text,
			Filename: h.Filename,
			Page:     h.Page,
		}
	}
	return c.JSON(http.StatusOK, QueryResponse{Answer: ans.Text, Hits: hits})
}

func tenantToken(c echo.Context) (string, error) {
	token := c.Request().Header.Get(HeaderTenant)
	if token == "" {
		return "", errdefs.InvalidInput("%s header is required", HeaderTenant)
	}
	return token, nil
}
