package server

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	neopaths "github.com/saulfrancisco-ruizacevedo/go-neopaths"
	"github.com/saulfrancisco-ruizacevedo/go-neopaths/models"
	"go.uber.org/zap"
)

// respond writes the response envelope shared by every endpoint.
func respond(c *gin.Context, status int, data any) {
	c.JSON(status, gin.H{"statusCode": status, "data": data})
}

// fail maps err onto a status and writes the envelope with a client-safe message.
func fail(c *gin.Context, logger *zap.Logger, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		logger.Error("request failed",
			zap.String("request_id", c.GetString(requestIDKey)),
			zap.String("path", c.FullPath()),
			zap.Error(err))
	}
	_ = c.Error(err)
	respond(c, status, neopaths.UserMessage(err))
}

func statusFor(err error) int {
	switch neopaths.Classify(err) {
	case neopaths.ClassValidation:
		return http.StatusBadRequest
	case neopaths.ClassNotFound:
		return http.StatusNotFound
	case neopaths.ClassUpstream:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// bind decodes the JSON body. Decoding failures are reported as invalid requests.
func bind(c *gin.Context, req any) error {
	if err := c.ShouldBindJSON(req); err != nil {
		return fmt.Errorf("%w: %v", neopaths.ErrInvalidRequest, err)
	}
	return nil
}

// Regulation handles POST /regulation.
func Regulation(s Searcher, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req models.RegulationRequest
		if err := bind(c, &req); err != nil {
			fail(c, logger, err)
			return
		}
		rs, err := s.Regulation(c.Request.Context(), req)
		if err != nil {
			fail(c, logger, err)
			return
		}
		respond(c, http.StatusOK, rs)
	}
}

// Deep handles POST /deep.
func Deep(s Searcher, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req models.DeepRequest
		if err := bind(c, &req); err != nil {
			fail(c, logger, err)
			return
		}
		rs, err := s.Deep(c.Request.Context(), req)
		if err != nil {
			fail(c, logger, err)
			return
		}
		respond(c, http.StatusOK, rs)
	}
}

// Simple handles POST /simple.
func Simple(s Searcher, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req models.SimpleRequest
		if err := bind(c, &req); err != nil {
			fail(c, logger, err)
			return
		}
		rs, err := s.Simple(c.Request.Context(), req)
		if err != nil {
			fail(c, logger, err)
			return
		}
		respond(c, http.StatusOK, rs)
	}
}

// Vertex handles GET /vertices/:id.
func Vertex(s Searcher, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		v, err := s.Vertex(c.Request.Context(), c.Param("id"))
		if err != nil {
			fail(c, logger, err)
			return
		}
		respond(c, http.StatusOK, v)
	}
}

// Health handles GET /health. It reports 503 while the graph is unreachable.
func Health(s Searcher) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := s.Ping(c.Request.Context()); err != nil {
			respond(c, http.StatusServiceUnavailable, neopaths.UserMessage(err))
			return
		}
		respond(c, http.StatusOK, "ok")
	}
}
