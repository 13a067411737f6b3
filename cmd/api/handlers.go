package main

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/therealutkarshpriyadarshi/restream/internal/broadcast"
	"github.com/therealutkarshpriyadarshi/restream/internal/database"
	"github.com/therealutkarshpriyadarshi/restream/internal/middleware"
	"github.com/therealutkarshpriyadarshi/restream/internal/storage"
	"github.com/therealutkarshpriyadarshi/restream/pkg/models"
)

type broadcastResponse struct {
	Status models.BroadcastStatus `json:"status"`
	Uptime string                 `json:"uptime"`
}

func newBroadcastResponse(status models.BroadcastStatus) broadcastResponse {
	return broadcastResponse{
		Status: status,
		Uptime: models.FormatUptime(status.Uptime(time.Now())),
	}
}

// writeStartError maps Supervisor.Start failures onto HTTP statuses
func writeStartError(c *gin.Context, h *broadcast.Handle, err error) {
	var (
		validation *broadcast.ValidationError
		running    *broadcast.AlreadyRunningError
		spawn      *broadcast.SpawnError
	)

	switch {
	case errors.As(err, &validation):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error(), "field": validation.Field})
	case errors.As(err, &running):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error(), "active_id": running.ActiveID})
	case errors.As(err, &spawn):
		body := gin.H{"error": err.Error()}
		if h != nil {
			body["status"] = h.Status()
		}
		c.JSON(http.StatusBadGateway, body)
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}

func (s *Server) getSettings(c *gin.Context) {
	opts := s.sup.Options()
	c.JSON(http.StatusOK, gin.H{
		"ingest_url":     opts.IngestBaseURL,
		"live_input_url": opts.LiveInputBaseURL,
		"defaults":       opts.Defaults,
		"encoder":        opts.Encoder,
	})
}

func (s *Server) startBroadcast(c *gin.Context) {
	var req models.BroadcastRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body: " + err.Error()})
		return
	}

	buf := s.logs.NewBuffer()
	h, err := s.sup.Start(c.Request.Context(), req, buf)
	if h != nil {
		s.logs.Register(h, buf)
	}
	if err != nil {
		writeStartError(c, h, err)
		return
	}

	s.logger.WithBroadcastID(h.ID()).
		WithRequestID(middleware.GetRequestID(c)).
		Info("Broadcast started via API")

	c.JSON(http.StatusCreated, newBroadcastResponse(h.Status()))
}

func (s *Server) stopBroadcast(c *gin.Context) {
	h := s.sup.Current()
	if h == nil {
		c.JSON(http.StatusOK, newBroadcastResponse(models.IdleStatus()))
		return
	}

	// Not the request context: a dropped client must not escalate to SIGKILL
	ctx, cancel := context.WithTimeout(context.Background(), s.stopTimeout)
	defer cancel()

	if err := s.sup.Stop(ctx, h); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error(), "status": h.Status()})
		return
	}

	c.JSON(http.StatusOK, newBroadcastResponse(h.Status()))
}

func (s *Server) getBroadcast(c *gin.Context) {
	c.JSON(http.StatusOK, newBroadcastResponse(s.sup.Status(s.sup.Current())))
}

func (s *Server) releaseBroadcast(c *gin.Context) {
	h := s.sup.Current()
	if h == nil {
		c.JSON(http.StatusOK, newBroadcastResponse(models.IdleStatus()))
		return
	}

	if !s.sup.Release(h) {
		c.JSON(http.StatusConflict, gin.H{
			"error":  "Broadcast has not terminated",
			"status": h.Status(),
		})
		return
	}

	if s.cache != nil {
		if err := s.cache.ClearCurrent(c.Request.Context()); err != nil {
			s.logger.WithError(err).Warn("Failed to clear cached status")
		}
	}

	c.JSON(http.StatusOK, newBroadcastResponse(models.IdleStatus()))
}

// logBuffer resolves the buffer named by ?id=, defaulting to the current broadcast
func (s *Server) logBuffer(c *gin.Context) (string, *broadcast.LineBuffer, bool) {
	id := c.Query("id")
	if id == "" {
		h := s.sup.Current()
		if h == nil {
			return "", nil, false
		}
		id = h.ID()
	}
	buf, ok := s.logs.Get(id)
	return id, buf, ok
}

func parseSince(c *gin.Context) (uint64, bool) {
	raw := c.Query("since")
	if raw == "" {
		return 0, true
	}
	since, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "since must be a non-negative integer"})
		return 0, false
	}
	return since, true
}

func (s *Server) getLogs(c *gin.Context) {
	since, ok := parseSince(c)
	if !ok {
		return
	}

	id, buf, found := s.logBuffer(c)
	if !found {
		c.JSON(http.StatusOK, gin.H{"broadcast_id": id, "lines": []broadcast.Line{}})
		return
	}

	c.JSON(http.StatusOK, gin.H{"broadcast_id": id, "lines": buf.Since(since)})
}

func (s *Server) streamLogs(c *gin.Context) {
	since, ok := parseSince(c)
	if !ok {
		return
	}

	_, buf, found := s.logBuffer(c)
	if !found {
		c.JSON(http.StatusNotFound, gin.H{"error": "No broadcast output available"})
		return
	}

	// Subscribe before reading the backlog so nothing falls in between
	live, cancel := buf.Subscribe(256)
	defer cancel()

	last := since
	for _, line := range buf.Since(since) {
		c.SSEvent("line", line)
		last = line.Seq
	}
	c.Writer.Flush()

	ctx := c.Request.Context()
	c.Stream(func(w io.Writer) bool {
		select {
		case <-ctx.Done():
			return false
		case line, ok := <-live:
			if !ok {
				c.SSEvent("end", gin.H{"last_seq": last})
				return false
			}
			if line.Seq <= last {
				return true
			}
			last = line.Seq
			c.SSEvent("line", line)
			return true
		}
	})
}

func (s *Server) getStreamHealth(c *gin.Context) {
	c.JSON(http.StatusOK, s.telemetry.Health(s.sup.Status(s.sup.Current())))
}

func (s *Server) getStreamAnalytics(c *gin.Context) {
	c.JSON(http.StatusOK, s.telemetry.Analytics(s.sup.Status(s.sup.Current()), time.Now()))
}

func (s *Server) listBroadcasts(c *gin.Context) {
	if s.sessions == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Broadcast history is not enabled"})
		return
	}

	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}

	sessions, err := s.sessions.ListSessions(c.Request.Context(), limit, offset)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"broadcasts": sessions,
		"limit":      limit,
		"offset":     offset,
	})
}

func (s *Server) getBroadcastSession(c *gin.Context) {
	if s.sessions == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Broadcast history is not enabled"})
		return
	}

	session, err := s.sessions.GetSession(c.Request.Context(), c.Param("id"))
	if errors.Is(err, database.ErrSessionNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Broadcast not found"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, session)
}

// getTranscript returns a presigned URL for the archived transcript when there
// is one and otherwise serves the retained output directly. ?inline=true
// streams the archived object instead of linking to it.
func (s *Server) getTranscript(c *gin.Context) {
	id := c.Param("id")
	logger := s.logger.WithBroadcastID(id)

	if s.transcripts != nil {
		key := storage.TranscriptKey(id)
		exists, err := s.transcripts.Exists(c.Request.Context(), key)
		if err != nil {
			logger.WithError(err).Warn("Failed to look up archived transcript")
		}
		if exists {
			if c.Query("inline") != "true" {
				url, err := s.transcripts.GetURL(c.Request.Context(), key)
				if err == nil {
					c.JSON(http.StatusOK, gin.H{"broadcast_id": id, "url": url})
					return
				}
				logger.WithError(err).Warn("Failed to presign transcript, serving it inline")
			}
			s.serveObject(c, key)
			return
		}
	}

	lines, ok := s.logs.Transcript(id)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "Transcript not found"})
		return
	}

	c.Data(http.StatusOK, "text/plain; charset=utf-8", storage.FormatTranscript(lines))
}

func (s *Server) serveObject(c *gin.Context, key string) {
	obj, err := s.transcripts.Download(c.Request.Context(), key)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	defer obj.Close()

	c.Status(http.StatusOK)
	c.Header("Content-Type", "text/plain; charset=utf-8")
	if _, err := io.Copy(c.Writer, obj); err != nil {
		s.logger.WithError(err).Warn("Failed to stream archived object")
	}
}

// listArtifacts lists every object archived for a broadcast
func (s *Server) listArtifacts(c *gin.Context) {
	if s.transcripts == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Transcript archive is not enabled"})
		return
	}

	id := c.Param("id")
	objects, err := s.transcripts.List(c.Request.Context(), storage.BroadcastPrefix(id))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if len(objects) == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "No archived artifacts"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"broadcast_id": id,
		"bucket":       s.transcripts.Bucket(),
		"objects":      objects,
	})
}
