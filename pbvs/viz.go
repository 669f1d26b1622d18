package pbvs

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// StatusServer exposes metrics and a live snapshot of the controller inputs.
type StatusServer struct {
	echo *echo.Echo
	addr string

	estimator *StateEstimator
	fusion    *TargetFusion
	gate      *ArmCommandGate
	logger    *zap.Logger
}

// stateSnapshot is the /debug/state payload.
type stateSnapshot struct {
	Pose          *PlanarPose       `json:"pose"`
	Target        TargetObservation `json:"target"`
	ArmObserved   *ArmState         `json:"arm_observed"`
	ArmLastIssued ArmState          `json:"arm_last_issued"`
}

// NewStatusServer builds the HTTP server; call Run to serve.
func NewStatusServer(addr string, gatherer prometheus.Gatherer, estimator *StateEstimator, fusion *TargetFusion, gate *ArmCommandGate, logger *zap.Logger) *StatusServer {
	if logger == nil {
		logger = zap.NewNop()
	}
	if addr == "" {
		addr = "127.0.0.1:7070"
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())

	s := &StatusServer{
		echo:      e,
		addr:      addr,
		estimator: estimator,
		fusion:    fusion,
		gate:      gate,
		logger:    logger.Named("status"),
	}

	e.GET("/healthz", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})
	e.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))
	e.GET("/debug/state", s.handleState)
	return s
}

// Handler returns the underlying HTTP handler.
func (s *StatusServer) Handler() http.Handler {
	return s.echo
}

// Run serves until ctx is done, then shuts down gracefully.
func (s *StatusServer) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- s.echo.Start(s.addr)
	}()
	s.logger.Info("status server listening", zap.String("addr", s.addr))

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return errors.Wrap(err, "status server")
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.echo.Shutdown(shutdownCtx)
	}
}

func (s *StatusServer) handleState(c echo.Context) error {
	var snap stateSnapshot
	if pose, ok := s.estimator.Pose(); ok {
		snap.Pose = &pose
	}
	snap.Target = s.fusion.Snapshot()
	if arm, ok := s.gate.Observed(); ok {
		snap.ArmObserved = &arm
	}
	snap.ArmLastIssued = s.gate.LastIssued()
	return c.JSON(http.StatusOK, snap)
}
