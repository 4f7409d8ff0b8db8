package server

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"

	"leafscan/internal/irrigation"
	"leafscan/internal/logger"
	"leafscan/internal/pipeline"
	"leafscan/internal/telemetry"

	"github.com/gin-gonic/gin"
)

const diagnosisUserID = 1

type soilDataRequest struct {
	PlantID  *int     `json:"tanaman_id" binding:"required"`
	Moisture *float64 `json:"moisture" binding:"required"`
}

type waterLevelRequest struct {
	DistanceCm *float64 `json:"distance_cm" binding:"required"`
}

type manualControlRequest struct {
	Action string `json:"action" binding:"required"`
}

type diagnosisResponse struct {
	Message        string  `json:"message"`
	Result         string  `json:"hasil"`
	Confidence     float64 `json:"confidence"`
	Recommendation string  `json:"rekomendasi"`
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":          "ok",
		"inference_ready": s.inferenceReady(),
	})
}

func (s *Server) inferenceReady() bool {
	return s.deps.Diagnoser != nil && s.deps.Diagnoser.Ready()
}

func (s *Server) soilData(c *gin.Context) {
	var req soilDataRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		unprocessable(c, err)
		return
	}

	decision := s.deps.Pump.Evaluate(*req.Moisture)

	rec, err := s.deps.Store.AppendSoilLog(c.Request.Context(), telemetry.SoilLog{
		PlantID:  *req.PlantID,
		Moisture: *req.Moisture,
		PumpOn:   decision.PumpOn,
		Trigger:  string(decision.Trigger),
	})
	if err != nil {
		// Recording failures do not change the pump command.
		s.logger.Error("HTTPServer", err, logger.Fields{"operation": "append_soil_log"})
	} else {
		s.logger.Debug("HTTPServer", "soil log stored", logger.Fields{
			"id":       rec.ID,
			"moisture": rec.Moisture,
			"pump_on":  rec.PumpOn,
		})
	}

	c.JSON(http.StatusOK, gin.H{"status": "success", "pump": pumpState(decision.PumpOn)})
}

func (s *Server) waterLevel(c *gin.Context) {
	var req waterLevelRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		unprocessable(c, err)
		return
	}

	level := irrigation.ComputeTankLevel(s.opts.TankHeightCm, *req.DistanceCm)
	if _, err := s.deps.Store.UpsertTank(c.Request.Context(), level.LevelCm, level.Percent); err != nil {
		s.logger.Error("HTTPServer", err, logger.Fields{"operation": "upsert_tank"})
	}

	c.JSON(http.StatusOK, gin.H{"status": "recorded", "level_percent": level.Percent})
}

func (s *Server) detectDisease(c *gin.Context) {
	plantID, err := strconv.Atoi(c.Query("tanaman_id"))
	if err != nil {
		unprocessable(c, fmt.Errorf("tanaman_id must be an integer"))
		return
	}

	if !s.inferenceReady() {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": pipeline.ErrUnavailable.Error()})
		return
	}

	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, s.opts.MaxUploadBytes)
	header, err := c.FormFile("file")
	if err != nil {
		unprocessable(c, fmt.Errorf("file: %w", err))
		return
	}

	file, err := header.Open()
	if err != nil {
		s.internalError(c, err)
		return
	}
	data, err := io.ReadAll(file)
	file.Close()
	if err != nil {
		s.internalError(c, err)
		return
	}

	ext := strings.ToLower(filepath.Ext(header.Filename))
	name, err := s.deps.Archive.Save(data, plantID, ext)
	if err != nil {
		s.internalError(c, fmt.Errorf("store upload: %w", err))
		return
	}

	result, err := s.deps.Diagnoser.Diagnose(c.Request.Context(), data, ext)
	switch {
	case errors.Is(err, pipeline.ErrUnavailable):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": pipeline.ErrUnavailable.Error()})
		return
	case errors.Is(err, pipeline.ErrImageUnreadable):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": pipeline.ErrImageUnreadable.Error()})
		return
	case errors.Is(err, pipeline.ErrBusy):
		s.logger.Warning("HTTPServer", "diagnosis refused, memory budget exhausted", logger.Fields{
			"error": err.Error(),
		})
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "inference busy, retry later"})
		return
	case err != nil:
		s.internalError(c, err)
		return
	}

	advice, adviceID := telemetry.DefaultAdvice, (*int)(nil)
	if result.Detected() {
		advice, adviceID = s.deps.Catalogue.Advice(result.Dominant)
	}

	if _, err := s.deps.Store.AddDiagnosis(c.Request.Context(), telemetry.DiagnosisRecord{
		PlantID:          plantID,
		UserID:           diagnosisUserID,
		Image:            name,
		Result:           result.Dominant,
		Confidence:       result.Confidence,
		Detail:           result.Breakdown,
		RecommendationID: adviceID,
	}); err != nil {
		s.logger.Error("HTTPServer", err, logger.Fields{"operation": "add_diagnosis"})
	}

	c.JSON(http.StatusOK, diagnosisResponse{
		Message:        "Deteksi Selesai",
		Result:         result.Dominant,
		Confidence:     result.Confidence,
		Recommendation: advice,
	})
}

func (s *Server) manualControl(c *gin.Context) {
	var req manualControlRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		unprocessable(c, err)
		return
	}

	mode := s.deps.Pump.SetManual(strings.ToLower(req.Action) == "on")
	c.JSON(http.StatusOK, gin.H{"status": "success", "mode": string(mode)})
}

func (s *Server) chartData(c *gin.Context) {
	plantID, err := strconv.Atoi(c.Param("tanaman_id"))
	if err != nil {
		unprocessable(c, fmt.Errorf("tanaman_id must be an integer"))
		return
	}

	limit, err := strconv.Atoi(c.DefaultQuery("limit", "20"))
	if err != nil || limit < 0 {
		unprocessable(c, fmt.Errorf("limit must be a non-negative integer"))
		return
	}

	logs, err := s.deps.Store.RecentSoilLogs(c.Request.Context(), plantID, limit)
	if err != nil {
		s.internalError(c, err)
		return
	}
	c.JSON(http.StatusOK, logs)
}

func (s *Server) dashboardMetrics(c *gin.Context) {
	ctx := c.Request.Context()

	soil, hasSoil, err := s.deps.Store.LatestSoilLog(ctx, s.opts.DashboardPlantID)
	if err != nil {
		s.internalError(c, err)
		return
	}
	tank, hasTank, err := s.deps.Store.LatestTank(ctx)
	if err != nil {
		s.internalError(c, err)
		return
	}

	resp := gin.H{"soil_moisture": 0.0, "pump_status": false, "tank_percent": 0.0}
	if hasSoil {
		resp["soil_moisture"] = soil.Moisture
		resp["pump_status"] = soil.PumpOn
	}
	if hasTank {
		resp["tank_percent"] = tank.Percent
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) diagnoses(c *gin.Context) {
	plantID, err := strconv.Atoi(c.Param("tanaman_id"))
	if err != nil {
		unprocessable(c, fmt.Errorf("tanaman_id must be an integer"))
		return
	}

	list, err := s.deps.Store.Diagnoses(c.Request.Context(), plantID)
	if err != nil {
		s.internalError(c, err)
		return
	}
	c.JSON(http.StatusOK, list)
}

func pumpState(on bool) string {
	if on {
		return "ON"
	}
	return "OFF"
}

func unprocessable(c *gin.Context, err error) {
	_ = c.Error(err)
	c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
}

func (s *Server) internalError(c *gin.Context, err error) {
	_ = c.Error(err)
	s.logger.Error("HTTPServer", err, logger.Fields{"path": c.Request.URL.Path})
	c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
}
