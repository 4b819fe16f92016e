package publisher

import (
	"context"
	"fmt"
	"log"
	"net"
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"

	"github.com/ryosukesatoh/arxiv-digest/internal/report"
)

const emptyPage = `<!DOCTYPE html><html><body><h1>arXiv digest</h1><p>No digest available yet. Check back later.</p></body></html>`

// WebPublisher serves the latest report over HTTP.
type WebPublisher struct {
	addr   string
	router *gin.Engine
	server *http.Server
	mu     sync.RWMutex
	latest *report.Report
}

func NewWebPublisher(addr string) *WebPublisher {
	gin.SetMode(gin.ReleaseMode)

	wp := &WebPublisher{addr: addr, router: gin.New()}
	wp.router.Use(gin.Recovery())
	wp.router.GET("/", wp.handleIndex)
	wp.router.GET("/report.txt", wp.handleText)
	wp.router.GET("/api/report", wp.handleJSON)
	wp.router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	wp.server = &http.Server{
		Addr:    addr,
		Handler: wp.router,
	}
	return wp
}

// Start begins serving HTTP in the background. Call Shutdown to stop.
func (wp *WebPublisher) Start() error {
	ln, err := net.Listen("tcp", wp.addr)
	if err != nil {
		return fmt.Errorf("web: failed to listen on %s: %w", wp.addr, err)
	}
	go func() {
		log.Printf("Web publisher listening on %s", wp.addr)
		if err := wp.server.Serve(ln); err != nil && err != http.ErrServerClosed {
			log.Printf("Web publisher error: %v", err)
		}
	}()
	return nil
}

// Shutdown gracefully shuts down the HTTP server.
func (wp *WebPublisher) Shutdown(ctx context.Context) error {
	return wp.server.Shutdown(ctx)
}

func (wp *WebPublisher) Publish(_ context.Context, rep *report.Report) error {
	wp.mu.Lock()
	wp.latest = rep
	wp.mu.Unlock()
	log.Printf("Web publisher updated with %q", rep.Subject)
	return nil
}

func (wp *WebPublisher) current() *report.Report {
	wp.mu.RLock()
	defer wp.mu.RUnlock()
	return wp.latest
}

func (wp *WebPublisher) handleIndex(c *gin.Context) {
	rep := wp.current()
	if rep == nil {
		c.Data(http.StatusOK, "text/html; charset=utf-8", []byte(emptyPage))
		return
	}
	c.Data(http.StatusOK, "text/html; charset=utf-8", []byte(rep.HTML))
}

func (wp *WebPublisher) handleText(c *gin.Context) {
	rep := wp.current()
	if rep == nil {
		c.String(http.StatusNotFound, "no digest available yet\n")
		return
	}
	c.Data(http.StatusOK, "text/plain; charset=utf-8", []byte(rep.Text))
}

func (wp *WebPublisher) handleJSON(c *gin.Context) {
	rep := wp.current()
	if rep == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "no digest available yet"})
		return
	}
	c.JSON(http.StatusOK, rep)
}
