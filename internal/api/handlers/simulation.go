package handlers

import (
	"bytes"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/greenside-dev/course-dispatch/internal/course"
	"github.com/greenside-dev/course-dispatch/internal/sim"
)

// SimulationHandler runs scenarios on demand.
type SimulationHandler struct {
	logger *logrus.Logger
}

// NewSimulationHandler creates a simulation handler.
func NewSimulationHandler(logger *logrus.Logger) *SimulationHandler {
	return &SimulationHandler{logger: logger}
}

// SimulationRequest is a scenario submission. Unset fields fall back to
// the default scenario.
type SimulationRequest struct {
	DurationMin              float64 `json:"simulation_duration_min"`
	OrderIntervalMin         float64 `json:"order_interval_min"`
	OrderIntervalVarianceMin float64 `json:"order_interval_variance_min"`
	VolumeMultiplier         float64 `json:"volume_multiplier"`
	NumBeverageCarts         *int    `json:"num_beverage_carts"`
	NumDeliveryStaff         *int    `json:"num_delivery_staff"`
	Strategy                 string  `json:"strategy"`
	TargetDeliveryTimeMin    float64 `json:"target_delivery_time_min"`
	TargetWaitTimeMin        float64 `json:"target_wait_time_min"`
	Seed                     *int64  `json:"rng_seed"`
	DetailedLogging          bool    `json:"detailed_logging"`
	IncludeEventLog          bool    `json:"include_event_log"`
}

// RunSimulation executes a scenario and returns its KPI report.
func (h *SimulationHandler) RunSimulation(c *gin.Context) {
	var req SimulationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error: "Invalid request format",
			Code:  "INVALID_REQUEST",
			Details: map[string]string{
				"validation_error": err.Error(),
			},
		})
		return
	}

	sc := sim.DefaultScenario()
	if req.DurationMin > 0 {
		sc.DurationMin = req.DurationMin
	}
	if req.OrderIntervalMin > 0 {
		sc.OrderIntervalMin = req.OrderIntervalMin
	}
	if req.OrderIntervalVarianceMin > 0 {
		sc.OrderIntervalVarianceMin = req.OrderIntervalVarianceMin
	}
	if req.VolumeMultiplier > 0 {
		sc.VolumeMultiplier = req.VolumeMultiplier
	}
	if req.NumBeverageCarts != nil {
		sc.NumBeverageCarts = *req.NumBeverageCarts
	}
	if req.NumDeliveryStaff != nil {
		sc.NumDeliveryStaff = *req.NumDeliveryStaff
	}
	if req.Strategy != "" {
		sc.Strategy = strings.ToUpper(req.Strategy)
	}
	if req.TargetDeliveryTimeMin > 0 {
		sc.TargetDeliveryTimeMin = req.TargetDeliveryTimeMin
	}
	if req.TargetWaitTimeMin > 0 {
		sc.TargetWaitTimeMin = req.TargetWaitTimeMin
	}
	if req.Seed != nil {
		sc.Seed = *req.Seed
	}
	sc.DetailedLogging = req.DetailedLogging

	var eventLog bytes.Buffer
	engine, err := sim.New(sc, course.Default(), h.logger, sim.WithEventLog(&eventLog))
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error: "Invalid scenario",
			Code:  "INVALID_SCENARIO",
			Details: map[string]string{
				"reason": err.Error(),
			},
		})
		return
	}

	report, err := engine.Run()
	if err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error: "Simulation failed",
			Code:  "SIMULATION_FAILED",
			Details: map[string]string{
				"reason": err.Error(),
			},
		})
		return
	}

	resp := gin.H{
		"strategy": sc.Strategy,
		"seed":     sc.Seed,
		"report":   report,
	}
	if req.IncludeEventLog {
		resp["event_log"] = eventLog.String()
	}
	c.JSON(http.StatusOK, resp)
}
