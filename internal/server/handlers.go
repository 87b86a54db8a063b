package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/vyrodovalexey/avaguard/internal/auth/jwt"
	"github.com/vyrodovalexey/avaguard/internal/authz"
	"github.com/vyrodovalexey/avaguard/internal/authz/external"
	"github.com/vyrodovalexey/avaguard/internal/observability"
	"github.com/vyrodovalexey/avaguard/internal/session"
)

const (
	errUnauthorized = "unauthorized"
	readyTimeout    = 2 * time.Second
)

type authorizeRequest struct {
	Relation  string `json:"relation" binding:"required"`
	Object    string `json:"object" binding:"required"`
	TimeoutMs int64  `json:"timeoutMs"`
}

type authorizeResponse struct {
	Outcome   authz.Outcome `json:"outcome"`
	Source    authz.Source  `json:"source"`
	LatencyMs int64         `json:"latencyMs"`
	Reason    string        `json:"reason,omitempty"`
}

type writeRelationshipsRequest struct {
	Writes  []external.Relationship `json:"writes"`
	Deletes []external.Relationship `json:"deletes"`
}

type listObjectsRequest struct {
	Relation string `json:"relation" binding:"required"`
	Type     string `json:"type" binding:"required"`
}

type statsResponse struct {
	Enabled    bool    `json:"enabled"`
	Size       int     `json:"size"`
	MaxEntries int     `json:"maxEntries"`
	TTLSeconds float64 `json:"ttlSeconds"`
	Hits       uint64  `json:"hits"`
	Misses     uint64  `json:"misses"`
	Evictions  uint64  `json:"evictions"`
	Expired    uint64  `json:"expired"`
	Inflight   int     `json:"inflight"`
}

func errorBody(msg string) gin.H {
	return gin.H{"error": msg}
}

func (s *Server) handleAuthorize(c *gin.Context) {
	token, err := jwt.ExtractBearer(c.GetHeader("Authorization"))
	if err != nil {
		s.logger.WithContext(c.Request.Context()).Info("authorization rejected",
			observability.String("reason", authz.ReasonInvalidToken),
			observability.Error(err),
		)
		c.JSON(http.StatusUnauthorized, errorBody(errUnauthorized))
		return
	}

	var req authorizeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorBody("relation and object are required"))
		return
	}
	if req.TimeoutMs < 0 {
		c.JSON(http.StatusBadRequest, errorBody("timeoutMs must be non-negative"))
		return
	}

	timeout := time.Duration(req.TimeoutMs) * time.Millisecond
	if limit := s.cfg.MaxRequestTimeout.Duration(); limit > 0 && timeout > limit {
		timeout = limit
	}

	result, err := s.authorizer.Authorize(c.Request.Context(), token, req.Relation, req.Object, timeout)
	switch {
	case errors.Is(err, authz.ErrUnauthorized):
		c.JSON(http.StatusUnauthorized, errorBody(errUnauthorized))
		return
	case errors.Is(err, authz.ErrInvalidRequest):
		c.JSON(http.StatusBadRequest, errorBody(err.Error()))
		return
	case errors.Is(err, session.ErrStoreUnavailable):
		_ = c.Error(err)
		c.JSON(http.StatusServiceUnavailable, errorBody("session store unavailable"))
		return
	case err != nil:
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, errorBody("internal server error"))
		return
	}

	c.JSON(http.StatusOK, authorizeResponse{
		Outcome:   result.Outcome,
		Source:    result.Source,
		LatencyMs: result.Latency.Milliseconds(),
		Reason:    result.Reason,
	})
}

func (s *Server) handleInvalidate(c *gin.Context) {
	var sel authz.Selector
	if err := c.ShouldBindJSON(&sel); err != nil {
		c.JSON(http.StatusBadRequest, errorBody("invalid selector"))
		return
	}
	if sel.IsZero() {
		c.JSON(http.StatusBadRequest, errorBody("at least one of subject, relation, object is required"))
		return
	}

	var removed int
	if sel.Subject != "" && sel.Relation != "" && sel.Object != "" {
		if s.cache.Invalidate(authz.Key{Subject: sel.Subject, Relation: sel.Relation, Object: sel.Object}) {
			removed = 1
		}
	} else {
		removed = s.cache.InvalidateMatching(sel)
	}

	s.logger.WithContext(c.Request.Context()).Info("decisions invalidated",
		observability.String("subject", sel.Subject),
		observability.String("relation", sel.Relation),
		observability.String("object", sel.Object),
		observability.Int("removed", removed),
	)
	c.JSON(http.StatusOK, gin.H{"removed": removed})
}

func (s *Server) handleWriteRelationships(c *gin.Context) {
	var req writeRelationshipsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorBody("invalid relationships"))
		return
	}

	err := s.relations.WriteRelationships(c.Request.Context(), req.Writes, req.Deletes)
	if err != nil {
		s.relationshipError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"writes": len(req.Writes), "deletes": len(req.Deletes)})
}

func (s *Server) handleListObjects(c *gin.Context) {
	token, err := jwt.ExtractBearer(c.GetHeader("Authorization"))
	if err != nil {
		c.JSON(http.StatusUnauthorized, errorBody(errUnauthorized))
		return
	}

	var req listObjectsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorBody(authz.ErrInvalidListRequest.Error()))
		return
	}

	objects, err := s.relations.ListObjects(c.Request.Context(), token, req.Relation, req.Type)
	if err != nil {
		s.relationshipError(c, err)
		return
	}
	if objects == nil {
		objects = []string{}
	}
	c.JSON(http.StatusOK, gin.H{"objects": objects})
}

// relationshipError maps a relationship operation failure onto a status.
func (s *Server) relationshipError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, authz.ErrUnauthorized):
		c.JSON(http.StatusUnauthorized, errorBody(errUnauthorized))
	case errors.Is(err, authz.ErrInvalidRelationship), errors.Is(err, authz.ErrInvalidListRequest):
		c.JSON(http.StatusBadRequest, errorBody(err.Error()))
	case errors.Is(err, external.ErrUnsupported):
		c.JSON(http.StatusNotImplemented, errorBody("policy engine does not store relationships"))
	case errors.Is(err, session.ErrStoreUnavailable):
		_ = c.Error(err)
		c.JSON(http.StatusServiceUnavailable, errorBody("session store unavailable"))
	case external.IsAuthorityError(err):
		_ = c.Error(err)
		c.JSON(http.StatusServiceUnavailable, errorBody("policy engine unavailable"))
	default:
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, errorBody("internal server error"))
	}
}

func (s *Server) handleClear(c *gin.Context) {
	removed := s.cache.Clear()
	s.logger.WithContext(c.Request.Context()).Info("decision cache cleared", observability.Int("removed", removed))
	c.JSON(http.StatusOK, gin.H{"removed": removed})
}

func (s *Server) handleStats(c *gin.Context) {
	st := s.cache.Stats()
	c.JSON(http.StatusOK, statsResponse{
		Enabled:    st.Enabled,
		Size:       st.Size,
		MaxEntries: st.MaxEntries,
		TTLSeconds: st.TTL.Seconds(),
		Hits:       st.Hits,
		Misses:     st.Misses,
		Evictions:  st.Evictions,
		Expired:    st.Expired,
		Inflight:   st.Inflight,
	})
}

func (s *Server) handleHealthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) handleReadyz(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), readyTimeout)
	defer cancel()

	status := http.StatusOK
	results := make(map[string]string, len(s.checks))
	for _, check := range s.checks {
		if err := check.Check(ctx); err != nil {
			status = http.StatusServiceUnavailable
			results[check.Name] = err.Error()
			continue
		}
		results[check.Name] = "ok"
	}

	body := gin.H{"status": "ready", "checks": results}
	if status != http.StatusOK {
		body["status"] = "not ready"
	}
	c.JSON(status, body)
}
