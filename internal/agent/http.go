package agent

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/signalsfoundry/imc-missions/internal/imcnet"
	"github.com/signalsfoundry/imc-missions/internal/inspect"
	"github.com/signalsfoundry/imc-missions/internal/logging"
	"github.com/signalsfoundry/imc-missions/internal/planstore"
)

// peerView is the JSON shape of a discovered system.
type peerView struct {
	ID       uint16    `json:"id"`
	Name     string    `json:"name"`
	Type     string    `json:"type"`
	Addr     string    `json:"addr,omitempty"`
	Services []string  `json:"services,omitempty"`
	Lat      *float64  `json:"lat,omitempty"`
	Lon      *float64  `json:"lon,omitempty"`
	Depth    *float64  `json:"depth,omitempty"`
	LastSeen time.Time `json:"last_seen"`
}

func (a *Agent) newRouter() http.Handler {
	r := gin.New()
	r.Use(gin.Recovery(), requestLogger(a.log))

	r.GET("/metrics", gin.WrapH(a.metrics.Handler()))
	r.GET("/healthz", a.handleHealth)
	r.GET("/peers", a.handlePeers)
	r.GET("/plans", a.handleListPlans)
	r.GET("/plans/:id", a.handleGetPlan)
	r.POST("/plans/:id/start", a.handleStartPlan)
	return r
}

func (a *Agent) handleHealth(c *gin.Context) {
	peers := a.node.KnowledgeBase().Len()
	status := http.StatusOK
	state := "SERVING"
	if peers == 0 {
		status = http.StatusServiceUnavailable
		state = "NOT_SERVING"
	}
	c.JSON(status, gin.H{"status": state, "peers": peers, "name": a.cfg.Name})
}

func (a *Agent) handlePeers(c *gin.Context) {
	systems := a.node.KnowledgeBase().List()
	out := make([]peerView, 0, len(systems))
	for _, s := range systems {
		v := peerView{
			ID:       s.ID,
			Name:     s.Name,
			Type:     s.Type.String(),
			Addr:     s.Addr,
			Services: s.Services,
			LastSeen: s.LastSeen,
		}
		if s.HasPosition {
			lat, lon, depth := s.Position.Lat.Degrees(), s.Position.Lon.Degrees(), s.Depth
			v.Lat, v.Lon, v.Depth = &lat, &lon, &depth
		}
		out = append(out, v)
	}
	c.JSON(http.StatusOK, out)
}

func (a *Agent) requireStore(c *gin.Context) bool {
	if a.store == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "plan archive disabled"})
		return false
	}
	return true
}

func storeStatus(err error) int {
	switch {
	case errors.Is(err, planstore.ErrInvalidID):
		return http.StatusBadRequest
	case errors.Is(err, planstore.ErrNotFound):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

func (a *Agent) handleListPlans(c *gin.Context) {
	if !a.requireStore(c) {
		return
	}
	plans, err := a.store.List()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if plans == nil {
		plans = []planstore.Summary{}
	}
	c.JSON(http.StatusOK, plans)
}

func (a *Agent) handleGetPlan(c *gin.Context) {
	if !a.requireStore(c) {
		return
	}
	spec, err := a.store.Load(c.Param("id"))
	if err != nil {
		c.JSON(storeStatus(err), gin.H{"error": err.Error()})
		return
	}
	b, err := inspect.JSON(spec)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.Data(http.StatusOK, "application/json; charset=utf-8", b)
}

func (a *Agent) handleStartPlan(c *gin.Context) {
	if !a.requireStore(c) {
		return
	}
	ctx := c.Request.Context()
	spec, err := a.store.Load(c.Param("id"))
	if err != nil {
		c.JSON(storeStatus(err), gin.H{"error": err.Error()})
		return
	}
	pc, err := a.StartPlan(ctx, spec)
	if err != nil {
		loggerFrom(ctx, a.log).Warn(ctx, "start request failed", logging.Err(err))
		status := http.StatusBadGateway
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, imcnet.ErrNoPeers) {
			status = http.StatusServiceUnavailable
		}
		c.JSON(status, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"plan_id": spec.PlanID, "request_id": pc.RequestID})
}
