// Package telemetry records sensor readings and diagnosis results.
package telemetry

import (
	"context"
	"sort"
	"sync"
	"time"

	"leafscan/internal/voting"

	"github.com/google/uuid"
)

// SoilLog is one moisture reading and the pump decision taken for it.
type SoilLog struct {
	ID        int64     `json:"id"`
	PlantID   int       `json:"tanaman_id"`
	Moisture  float64   `json:"kelembapan_tanah"`
	PumpOn    bool      `json:"pompa_on"`
	Trigger   string    `json:"sumber_perintah"`
	CreatedAt time.Time `json:"created_at"`
}

// TankRecord is the single, continuously updated water tank state.
type TankRecord struct {
	ID        int64     `json:"id"`
	LevelCm   float64   `json:"ketinggian_air"`
	Percent   float64   `json:"persentase_isi"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type DiagnosisRecord struct {
	ID               string           `json:"id"`
	PlantID          int              `json:"tanaman_id"`
	UserID           int              `json:"user_id"`
	Image            string           `json:"gambar"`
	Result           string           `json:"hasil_deteksi"`
	Confidence       float64          `json:"tingkat_keyakinan"`
	Detail           voting.Breakdown `json:"detail_persentase"`
	RecommendationID *int             `json:"rekomendasi_id"`
	CreatedAt        time.Time        `json:"created_at"`
}

// Store persists telemetry. Latest lookups report false when nothing exists.
type Store interface {
	AppendSoilLog(ctx context.Context, log SoilLog) (SoilLog, error)
	RecentSoilLogs(ctx context.Context, plantID, limit int) ([]SoilLog, error)
	LatestSoilLog(ctx context.Context, plantID int) (SoilLog, bool, error)
	UpsertTank(ctx context.Context, levelCm, percent float64) (TankRecord, error)
	LatestTank(ctx context.Context) (TankRecord, bool, error)
	AddDiagnosis(ctx context.Context, rec DiagnosisRecord) (DiagnosisRecord, error)
	Diagnoses(ctx context.Context, plantID int) ([]DiagnosisRecord, error)
}

// MemoryStore keeps everything in process memory.
type MemoryStore struct {
	mu        sync.RWMutex
	now       func() time.Time
	nextSoil  int64
	soil      []SoilLog
	tank      *TankRecord
	diagnoses []DiagnosisRecord
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{now: time.Now}
}

func (s *MemoryStore) AppendSoilLog(ctx context.Context, log SoilLog) (SoilLog, error) {
	if err := ctx.Err(); err != nil {
		return SoilLog{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextSoil++
	log.ID = s.nextSoil
	log.CreatedAt = s.now()
	s.soil = append(s.soil, log)
	return log, nil
}

// RecentSoilLogs returns the newest limit logs of a plant, oldest first.
func (s *MemoryStore) RecentSoilLogs(ctx context.Context, plantID, limit int) ([]SoilLog, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []SoilLog
	for i := len(s.soil) - 1; i >= 0 && len(out) < limit; i-- {
		if s.soil[i].PlantID == plantID {
			out = append(out, s.soil[i])
		}
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	if out == nil {
		out = []SoilLog{}
	}
	return out, nil
}

func (s *MemoryStore) LatestSoilLog(ctx context.Context, plantID int) (SoilLog, bool, error) {
	if err := ctx.Err(); err != nil {
		return SoilLog{}, false, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	for i := len(s.soil) - 1; i >= 0; i-- {
		if s.soil[i].PlantID == plantID {
			return s.soil[i], true, nil
		}
	}
	return SoilLog{}, false, nil
}

// UpsertTank updates the one tank record, creating it on first use.
func (s *MemoryStore) UpsertTank(ctx context.Context, levelCm, percent float64) (TankRecord, error) {
	if err := ctx.Err(); err != nil {
		return TankRecord{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if s.tank == nil {
		s.tank = &TankRecord{ID: 1, CreatedAt: now}
	}
	s.tank.LevelCm = levelCm
	s.tank.Percent = percent
	s.tank.UpdatedAt = now
	return *s.tank, nil
}

func (s *MemoryStore) LatestTank(ctx context.Context) (TankRecord, bool, error) {
	if err := ctx.Err(); err != nil {
		return TankRecord{}, false, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.tank == nil {
		return TankRecord{}, false, nil
	}
	return *s.tank, true, nil
}

func (s *MemoryStore) AddDiagnosis(ctx context.Context, rec DiagnosisRecord) (DiagnosisRecord, error) {
	if err := ctx.Err(); err != nil {
		return DiagnosisRecord{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	rec.ID = uuid.NewString()
	rec.CreatedAt = s.now()
	s.diagnoses = append(s.diagnoses, rec)
	return rec, nil
}

// Diagnoses returns a plant's diagnosis history, oldest first.
func (s *MemoryStore) Diagnoses(ctx context.Context, plantID int) ([]DiagnosisRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	out := []DiagnosisRecord{}
	for _, rec := range s.diagnoses {
		if rec.PlantID == plantID {
			out = append(out, rec)
		}
	}
	return out, nil
}
