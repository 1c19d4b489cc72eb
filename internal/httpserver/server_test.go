package httpserver

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	cfgpkg "github.com/driller442/BatteryHub/internal/config"
	appmetrics "github.com/driller442/BatteryHub/internal/metrics"
)

func serve(srv *Server, method, path string) *httptest.ResponseRecorder {
	rr := httptest.NewRecorder()
	req := httptest.NewRequest(method, path, nil)
	srv.srv.Handler.ServeHTTP(rr, req)
	return rr
}

func TestHealthzAndMetrics(t *testing.T) {
	gin.SetMode(gin.TestMode)
	cfg := cfgpkg.HTTPConfig{Addr: ":0", ReadTimeout: time.Second, WriteTimeout: time.Second}
	reg := appmetrics.NewRegistry()
	srv := New(cfg, "/metrics", appmetrics.Handler(reg))

	if rr := serve(srv, http.MethodGet, "/healthz"); rr.Code != http.StatusOK {
		t.Fatalf("/healthz code=%d", rr.Code)
	}
	if rr := serve(srv, http.MethodGet, "/metrics"); rr.Code != http.StatusOK {
		t.Fatalf("/metrics code=%d", rr.Code)
	}
}

func TestMetricsDisabled(t *testing.T) {
	gin.SetMode(gin.TestMode)
	cfg := cfgpkg.HTTPConfig{Addr: ":0", ReadTimeout: time.Second, WriteTimeout: time.Second}
	srv := New(cfg, "/metrics", nil)

	if rr := serve(srv, http.MethodGet, "/metrics"); rr.Code != http.StatusNotFound {
		t.Fatalf("metrics disabled code=%d", rr.Code)
	}
}

func TestEngineMountsBeforeStart(t *testing.T) {
	gin.SetMode(gin.TestMode)
	cfg := cfgpkg.HTTPConfig{Addr: ":0", ReadTimeout: time.Second, WriteTimeout: time.Second}
	srv := New(cfg, "", nil)
	srv.Engine().GET("/api/devices", func(c *gin.Context) {
		c.JSON(http.StatusOK, []string{})
	})

	if rr := serve(srv, http.MethodGet, "/api/devices"); rr.Code != http.StatusOK {
		t.Fatalf("mounted route code=%d", rr.Code)
	}
}

func TestPprofToggle(t *testing.T) {
	gin.SetMode(gin.TestMode)
	cfg := cfgpkg.HTTPConfig{
		Addr: ":0", ReadTimeout: time.Second, WriteTimeout: time.Second,
		Pprof: cfgpkg.HTTPPprof{Enable: true, Prefix: "/debug/pprof"},
	}
	srv := New(cfg, "", nil)
	if rr := serve(srv, http.MethodGet, "/debug/pprof/cmdline"); rr.Code != http.StatusOK {
		t.Fatalf("pprof enabled code=%d", rr.Code)
	}

	off := New(cfgpkg.HTTPConfig{Addr: ":0", ReadTimeout: time.Second, WriteTimeout: time.Second}, "", nil)
	if rr := serve(off, http.MethodGet, "/debug/pprof/cmdline"); rr.Code != http.StatusNotFound {
		t.Fatalf("pprof disabled code=%d", rr.Code)
	}
}
