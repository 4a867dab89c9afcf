// Package server exposes the credential lifecycle over HTTP.
package server

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/agentattest/attest-core/internal/log"
	"github.com/agentattest/attest-core/internal/metrics"
	"github.com/agentattest/attest-core/pkg/issuance"
)

// Options configure a Server.
type Options struct {
	Logger *zap.Logger

	// Gatherer backs /metrics. Defaults to prometheus.DefaultGatherer.
	Gatherer prometheus.Gatherer
}

// Server is the HTTP API.
type Server struct {
	echo    *echo.Echo
	svc     *issuance.Service
	logger  *zap.Logger
	started time.Time
}

// New creates a Server for svc.
func New(svc *issuance.Service, opts Options) *Server {
	s := &Server{
		echo:    echo.New(),
		svc:     svc,
		logger:  log.OrNop(opts.Logger),
		started: time.Now(),
	}

	gatherer := opts.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}

	e := s.echo
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = s.handleError

	e.Use(middleware.Recover())
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogURI:     true,
		LogStatus:  true,
		LogMethod:  true,
		LogLatency: true,
		LogValuesFunc: func(_ echo.Context, v middleware.RequestLoggerValues) error {
			s.logger.Debug("request",
				zap.String("method", v.Method),
				log.WithURL(v.URI),
				zap.Int("status", v.Status),
				log.WithDuration(v.Latency))
			return nil
		},
	}))

	e.POST("/apply", s.apply)
	e.GET("/status/:applicationId", s.status)
	e.POST("/issue/:applicationId", s.issue)
	e.POST("/admin/issue/:applicationId", s.issue)
	e.POST("/revoke/:credentialId", s.revoke)
	e.POST("/admin/revoke/:credentialId", s.revoke)
	e.GET("/verify", s.verify)
	e.POST("/simulate-transaction", s.simulate)

	admin := e.Group("/admin")
	admin.GET("/applications", s.listApplications)
	admin.GET("/credentials", s.listCredentials)
	admin.GET("/revocations", s.listRevocations)
	admin.GET("/revocations/:credentialId", s.getRevocation)

	e.GET("/health", s.health)
	e.GET("/.well-known/jwks.json", s.jwks)
	e.GET("/metrics", echo.WrapHandler(metrics.Handler(gatherer)))

	return s
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.echo
}

type issueResponse struct {
	Success    bool                     `json:"success"`
	Credential *issuance.CredentialView `json:"credential"`
	Message    string                   `json:"message"`
}

type revokeRequest struct {
	Reason string `json:"reason"`
}

type revokeResponse struct {
	Success    bool                       `json:"success"`
	Revocation *issuance.RevocationResult `json:"revocation"`
	Message    string                     `json:"message"`
}

type applyResponse struct {
	ApplicationID string `json:"application_id"`
	Status        string `json:"status"`
	RiskScore     int    `json:"risk_score"`
	Message       string `json:"message"`
}

type listResponse struct {
	Items interface{} `json:"items"`
	Count int         `json:"count"`
}

type healthResponse struct {
	Status string `json:"status"`
	Uptime string `json:"uptime"`
}

// POST /apply.
func (s *Server) apply(c echo.Context) error {
	var req issuance.ApplicationRequest
	if err := c.Bind(&req); err != nil {
		return err
	}

	app, err := s.svc.Apply(c.Request().Context(), req)
	if err != nil {
		return newAPIError("Failed to submit application", err)
	}

	return c.JSON(http.StatusOK, applyResponse{
		ApplicationID: app.ID,
		Status:        string(app.Status),
		RiskScore:     app.RiskScore,
		Message:       "Application submitted successfully",
	})
}

// GET /status/:applicationId.
func (s *Server) status(c echo.Context) error {
	st, err := s.svc.Status(c.Request().Context(), c.Param("applicationId"))
	if err != nil {
		return newAPIError("Failed to load application", err)
	}
	return c.JSON(http.StatusOK, st)
}

// POST /issue/:applicationId.
func (s *Server) issue(c echo.Context) error {
	cred, err := s.svc.Issue(c.Request().Context(), c.Param("applicationId"))
	if err != nil {
		return newAPIError("Failed to issue credential", err)
	}

	return c.JSON(http.StatusOK, issueResponse{
		Success:    true,
		Credential: issuance.NewCredentialView(cred, cred.Status),
		Message:    "Credential issued and anchored on " + s.svc.NetworkName(),
	})
}

// POST /revoke/:credentialId.
func (s *Server) revoke(c echo.Context) error {
	var req revokeRequest
	if err := c.Bind(&req); err != nil {
		return err
	}

	rev, err := s.svc.Revoke(c.Request().Context(), c.Param("credentialId"), req.Reason)
	if err != nil {
		return newAPIError("Failed to revoke credential", err)
	}

	return c.JSON(http.StatusOK, revokeResponse{
		Success:    true,
		Revocation: rev,
		Message:    "Credential revoked on " + s.svc.NetworkName(),
	})
}

// GET /verify?credential_id=|agent_did=.
func (s *Server) verify(c echo.Context) error {
	v, err := s.svc.Verify(c.Request().Context(), c.QueryParam("credential_id"), c.QueryParam("agent_did"))
	if err != nil {
		return newAPIError("Failed to verify credential", err)
	}
	return c.JSON(http.StatusOK, v)
}

// POST /simulate-transaction.
func (s *Server) simulate(c echo.Context) error {
	var req issuance.SimulationRequest
	if err := c.Bind(&req); err != nil {
		return err
	}

	res, err := s.svc.SimulateTransaction(c.Request().Context(), req)
	if err != nil {
		return newAPIError("Failed to simulate transaction", err)
	}
	return c.JSON(http.StatusOK, res)
}

// GET /admin/applications.
func (s *Server) listApplications(c echo.Context) error {
	apps, err := s.svc.ListApplications(c.Request().Context())
	if err != nil {
		return newAPIError("Failed to list applications", err)
	}
	return c.JSON(http.StatusOK, listResponse{Items: apps, Count: len(apps)})
}

// GET /admin/credentials.
func (s *Server) listCredentials(c echo.Context) error {
	creds, err := s.svc.ListCredentials(c.Request().Context())
	if err != nil {
		return newAPIError("Failed to list credentials", err)
	}
	return c.JSON(http.StatusOK, listResponse{Items: creds, Count: len(creds)})
}

// GET /admin/revocations?since=RFC3339.
func (s *Server) listRevocations(c echo.Context) error {
	var since time.Time
	if raw := c.QueryParam("since"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "since must be an RFC 3339 timestamp")
		}
		since = t
	}

	revs, err := s.svc.ListRevocations(c.Request().Context(), since)
	if err != nil {
		return newAPIError("Failed to list revocations", err)
	}
	return c.JSON(http.StatusOK, listResponse{Items: revs, Count: len(revs)})
}

// GET /admin/revocations/:credentialId.
func (s *Server) getRevocation(c echo.Context) error {
	rev, err := s.svc.Revocation(c.Request().Context(), c.Param("credentialId"))
	if err != nil {
		return newAPIError("Failed to load revocation", err)
	}
	return c.JSON(http.StatusOK, rev)
}

func (s *Server) health(c echo.Context) error {
	return c.JSON(http.StatusOK, healthResponse{
		Status: "ok",
		Uptime: time.Since(s.started).Round(time.Second).String(),
	})
}

func (s *Server) jwks(c echo.Context) error {
	set, err := s.svc.JWKS()
	if err != nil {
		return newAPIError("Proof keys unavailable", err)
	}
	return c.JSON(http.StatusOK, set)
}
