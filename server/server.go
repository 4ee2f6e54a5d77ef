package server

import (
	"context"
	"crypto/tls"
	"errors"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/felixge/fgprof"
	"github.com/gin-gonic/gin"
	pkgerrors "github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
	"github.com/valyala/bytebufferpool"
	"golang.org/x/sync/errgroup"

	"github.com/talostrading/latency/config"
	"github.com/talostrading/latency/recorder"
)

const (
	// maxBodySize bounds the bytes read from a request body. Latency bodies
	// are a few dozen bytes.
	maxBodySize = 4096

	shutdownTimeout   = 5 * time.Second
	readHeaderTimeout = 10 * time.Second
)

// Server accepts the requests of the latency clients over HTTP and HTTPS
// and hands their bodies to a Recorder.
type Server struct {
	cfg    config.Server
	rec    *recorder.Recorder
	engine *gin.Engine
	log    *log.Entry

	mu        sync.Mutex
	listener  net.Listener
	tlsLn     net.Listener
	tlsConfig *tls.Config
}

func New(rec *recorder.Recorder, cfg config.Server, logger *log.Entry) *Server {
	if logger == nil {
		logger = log.WithField("thread", "server")
	}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())

	s := &Server{
		cfg:    cfg,
		rec:    rec,
		engine: router,
		log:    logger,
	}

	if cfg.Metrics {
		router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	}
	if cfg.Profiling {
		router.GET("/debug/fgprof", gin.WrapH(fgprof.Handler()))
	}
	router.POST("/*path", s.record)

	return s
}

func (s *Server) Handler() http.Handler {
	return s.engine
}

// Routes lists the registered method and path pairs.
func (s *Server) Routes() gin.RoutesInfo {
	return s.engine.Routes()
}

func (s *Server) record(c *gin.Context) {
	arrival := time.Now()

	buf := bytebufferpool.Get()
	defer bytebufferpool.Put(buf)

	body := http.MaxBytesReader(c.Writer, c.Request.Body, maxBodySize)
	if _, err := buf.ReadFrom(body); err != nil {
		s.log.WithError(err).Warn("could not read request body")
	} else {
		// Failures are logged and counted by the recorder; the client
		// always gets a 204.
		_ = s.rec.Record(buf.B, arrival)
	}

	if s.cfg.KeepAlive {
		c.Header("Connection", "keep-alive")
	} else {
		c.Header("Connection", "close")
	}
	c.Status(http.StatusNoContent)
}

// Listen binds the plain listener and, if configured, the TLS listener.
func (s *Server) Listen() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cfg.TLSListen != "" {
		pair, err := tls.LoadX509KeyPair(s.cfg.TLS.CertFile, s.cfg.TLS.KeyFile)
		if err != nil {
			return pkgerrors.Wrap(err, "could not load TLS certificate")
		}
		s.tlsConfig = &tls.Config{
			Certificates: []tls.Certificate{pair},
			MinVersion:   tls.VersionTLS12,
		}
	}

	ln, err := net.Listen("tcp", s.cfg.Listen)
	if err != nil {
		return pkgerrors.Wrapf(err, "could not listen on %s", s.cfg.Listen)
	}
	s.listener = ln

	if s.cfg.TLSListen != "" {
		tlsLn, err := net.Listen("tcp", s.cfg.TLSListen)
		if err != nil {
			ln.Close()
			return pkgerrors.Wrapf(err, "could not listen on %s", s.cfg.TLSListen)
		}
		s.tlsLn = tlsLn
	}

	return nil
}

func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

func (s *Server) TLSAddr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.tlsLn == nil {
		return nil
	}
	return s.tlsLn.Addr()
}

// ListenAndServe listens if Listen was not called yet and serves until ctx
// is done, then shuts the servers down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	if s.Addr() == nil {
		if err := s.Listen(); err != nil {
			return err
		}
	}
	return s.Serve(ctx)
}

func (s *Server) Serve(ctx context.Context) error {
	s.mu.Lock()
	ln, tlsLn, tlsConfig := s.listener, s.tlsLn, s.tlsConfig
	s.mu.Unlock()

	if ln == nil {
		return pkgerrors.New("server is not listening")
	}

	g, ctx := errgroup.WithContext(ctx)

	var servers []*http.Server
	newServer := func() *http.Server {
		srv := &http.Server{
			Handler:           s.engine,
			ReadHeaderTimeout: readHeaderTimeout,
		}
		srv.SetKeepAlivesEnabled(s.cfg.KeepAlive)
		servers = append(servers, srv)
		return srv
	}

	plain := newServer()
	g.Go(func() error {
		s.log.WithField("addr", ln.Addr().String()).Info("serving http")
		return ignoreClosed(plain.Serve(ln))
	})

	if tlsLn != nil {
		secure := newServer()
		secure.TLSConfig = tlsConfig
		g.Go(func() error {
			s.log.WithField("addr", tlsLn.Addr().String()).Info("serving https")
			return ignoreClosed(secure.ServeTLS(tlsLn, "", ""))
		})
	}

	g.Go(func() error {
		<-ctx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		var first error
		for _, srv := range servers {
			if err := srv.Shutdown(shutdownCtx); err != nil && first == nil {
				first = err
			}
		}
		s.log.Info("servers shut down")
		return first
	})

	return g.Wait()
}

func ignoreClosed(err error) error {
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}
