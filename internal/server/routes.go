package server

import (
	"encoding/hex"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/danmuck/uartframe/internal/link"
	"github.com/danmuck/uartframe/internal/packet"
	"github.com/danmuck/uartframe/internal/scan"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// SendRequest selects exactly one of Text, Frame or Hex.
type SendRequest struct {
	// Text is written verbatim, e.g. "LED_ON_OK\r\n".
	Text string `json:"text"`
	// Frame is sent as '@' Frame "\r\n".
	Frame string `json:"frame"`
	// Hex is a 4-byte binary payload, e.g. "01020304".
	Hex string `json:"hex"`
}

func (s *Server) RegisterRoutes() {
	s.router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "ok",
			"uptime":  time.Since(s.Appeared).String(),
			"service": s.link.Name(),
			"version": version,
		})
	})

	s.router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	s.router.GET("/ready", func(c *gin.Context) {
		st := s.link.Status()
		code := http.StatusOK
		if !st.Connected {
			code = http.StatusServiceUnavailable
		}
		c.JSON(code, gin.H{
			"ready":   st.Connected,
			"service": st.Link,
			"version": version,
		})
	})

	s.router.GET("/status", func(c *gin.Context) {
		c.JSON(http.StatusOK, s.link.Status())
	})

	s.router.POST("/errors/clear", func(c *gin.Context) {
		cleared := s.link.ClearError()
		body := gin.H{"cleared": cleared != nil}
		if cleared != nil {
			body["error"] = cleared.Error()
		}
		c.JSON(http.StatusOK, body)
	})

	s.router.POST("/send", func(c *gin.Context) {
		var req SendRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		if err := s.send(req); err != nil {
			c.JSON(sendStatus(err), gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "sent"})
	})

	s.router.GET("/scan", func(c *gin.Context) {
		if s.scanner == nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "no scanner attached"})
			return
		}
		cols, half, err := s.scanner.Latest()
		if err != nil {
			code := http.StatusServiceUnavailable
			if errors.Is(err, scan.ErrOverrun) {
				code = http.StatusConflict
			}
			c.JSON(code, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"scanner":  s.scanner.Name,
			"half":     half.String(),
			"channels": cols,
		})
	})
}

var errBadSendRequest = errors.New("server: send request needs exactly one of text, frame, hex")

func (s *Server) send(req SendRequest) error {
	set := 0
	for _, v := range []string{req.Text, req.Frame, req.Hex} {
		if v != "" {
			set++
		}
	}
	if set != 1 {
		return errBadSendRequest
	}
	switch {
	case req.Text != "":
		return s.link.SendText(req.Text)
	case req.Frame != "":
		return s.link.SendTextFrame(req.Frame)
	default:
		payload, err := hex.DecodeString(strings.TrimSpace(req.Hex))
		if err != nil {
			return errors.Join(errBadSendRequest, err)
		}
		return s.link.Send(payload)
	}
}

func sendStatus(err error) int {
	switch {
	case errors.Is(err, errBadSendRequest),
		errors.Is(err, packet.ErrPayloadLength),
		errors.Is(err, packet.ErrPayloadTooLong),
		errors.Is(err, packet.ErrInvalidPayload):
		return http.StatusBadRequest
	case errors.Is(err, link.ErrNotConnected):
		return http.StatusServiceUnavailable
	default:
		var serr *packet.SinkError
		if errors.As(err, &serr) {
			return http.StatusBadGateway
		}
		return http.StatusInternalServerError
	}
}
