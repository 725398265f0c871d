package observability

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
)

// SessionSnapshot is the read-only view of a running session exposed over the
// status endpoint.
type SessionSnapshot struct {
	State      string `json:"state"`
	DeviceNode string `json:"device_node"`
	SocketPath string `json:"socket_path"`
	LogPath    string `json:"log_path,omitempty"`
	ScriptPath string `json:"teardown_script"`
	BackendPID int    `json:"backend_pid"`
	BlockSize  int    `json:"block_size"`
}

// StatusServer serves health, session state and metrics for long-lived
// foreground sessions.
type StatusServer struct {
	addr      string
	snapshot  func() SessionSnapshot
	startedAt time.Time
}

func NewStatusServer(addr string, snapshot func() SessionSnapshot) *StatusServer {
	return &StatusServer{
		addr:      addr,
		snapshot:  snapshot,
		startedAt: time.Now(),
	}
}

func (s *StatusServer) router() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery(), requestLogger())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "ok",
			"uptime":  time.Since(s.startedAt).String(),
			"service": "nbdctl",
		})
	})
	r.GET("/session", func(c *gin.Context) {
		c.JSON(http.StatusOK, s.snapshot())
	})
	RegisterMetrics()
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	return r
}

// Start runs the status server in the background. A listen failure is logged
// and does not affect the session; the endpoint is best-effort.
func (s *StatusServer) Start() {
	r := s.router()
	go func() {
		if err := r.Run(s.addr); err != nil {
			log.Warn().Err(err).Str("addr", s.addr).Msg("status server stopped")
		}
	}()
}
