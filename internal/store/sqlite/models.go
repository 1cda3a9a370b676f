package sqlite

import (
	"encoding/json"
	"fmt"
	"time"

	"parbuild/internal/session"
	"parbuild/internal/worker"
)

// sessionModel is the GORM model for the sessions table. Slice and map
// fields are stored as JSON text columns.
type sessionModel struct {
	ID          string `gorm:"primaryKey"`
	Name        string `gorm:"not null;default:''"`
	Status      string `gorm:"not null;index:idx_sessions_status;check:status IN ('created','running','paused','completed','failed','cancelled')"`
	CreatedAt   time.Time
	StartedAt   *time.Time `gorm:"default:null"`
	CompletedAt *time.Time `gorm:"default:null;index:idx_sessions_completed_at"`

	TotalTasks      int `gorm:"not null;default:0"`
	CompletedTasks  int `gorm:"not null;default:0"`
	FailedTasks     int `gorm:"not null;default:0"`
	InProgressTasks int `gorm:"not null;default:0"`

	LockedFiles      string `gorm:"not null;default:'[]'"`
	ModifiedFiles    string `gorm:"not null;default:'[]'"`
	AssignedWorkerID string `gorm:"default:''"`
	Metadata         string `gorm:"not null;default:'{}'"`

	UpdatedAt time.Time
}

func (sessionModel) TableName() string { return "sessions" }

// workerModel is the GORM model for the workers table.
type workerModel struct {
	ID     string `gorm:"primaryKey"`
	Status string `gorm:"not null;index:idx_workers_status;check:status IN ('idle','busy','offline','error')"`

	SessionID     string `gorm:"default:''"`
	CurrentTaskID string `gorm:"default:''"`

	TasksCompleted int `gorm:"not null;default:0"`
	TasksFailed    int `gorm:"not null;default:0"`

	RegisteredAt  time.Time
	LastHeartbeat *time.Time `gorm:"default:null"`
	Metadata      string     `gorm:"not null;default:'{}'"`

	UpdatedAt time.Time
}

func (workerModel) TableName() string { return "workers" }

func encodeStrings(paths []string) (string, error) {
	if len(paths) == 0 {
		return "[]", nil
	}
	b, err := json.Marshal(paths)
	if err != nil {
		return "", fmt.Errorf("encode string list: %w", err)
	}
	return string(b), nil
}

func decodeStrings(raw string) ([]string, error) {
	if raw == "" || raw == "[]" {
		return nil, nil
	}
	var out []string
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return nil, fmt.Errorf("decode string list: %w", err)
	}
	return out, nil
}

func encodeMap(m map[string]string) (string, error) {
	if len(m) == 0 {
		return "{}", nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return "", fmt.Errorf("encode metadata: %w", err)
	}
	return string(b), nil
}

func decodeMap(raw string) (map[string]string, error) {
	if raw == "" || raw == "{}" {
		return nil, nil
	}
	var out map[string]string
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return nil, fmt.Errorf("decode metadata: %w", err)
	}
	return out, nil
}

func sessionToModel(s *session.Session) (*sessionModel, error) {
	locked, err := encodeStrings(s.LockedFiles)
	if err != nil {
		return nil, err
	}
	modified, err := encodeStrings(s.ModifiedFiles)
	if err != nil {
		return nil, err
	}
	meta, err := encodeMap(s.Metadata)
	if err != nil {
		return nil, err
	}
	return &sessionModel{
		ID:               s.ID,
		Name:             s.Name,
		Status:           s.Status.String(),
		CreatedAt:        s.CreatedAt,
		StartedAt:        s.StartedAt,
		CompletedAt:      s.CompletedAt,
		TotalTasks:       s.TotalTasks,
		CompletedTasks:   s.CompletedTasks,
		FailedTasks:      s.FailedTasks,
		InProgressTasks:  s.InProgressTasks,
		LockedFiles:      locked,
		ModifiedFiles:    modified,
		AssignedWorkerID: s.AssignedWorkerID,
		Metadata:         meta,
	}, nil
}

func modelToSession(m *sessionModel) (*session.Session, error) {
	locked, err := decodeStrings(m.LockedFiles)
	if err != nil {
		return nil, fmt.Errorf("session %s: %w", m.ID, err)
	}
	modified, err := decodeStrings(m.ModifiedFiles)
	if err != nil {
		return nil, fmt.Errorf("session %s: %w", m.ID, err)
	}
	meta, err := decodeMap(m.Metadata)
	if err != nil {
		return nil, fmt.Errorf("session %s: %w", m.ID, err)
	}
	return &session.Session{
		ID:               m.ID,
		Name:             m.Name,
		Status:           session.Status(m.Status),
		CreatedAt:        m.CreatedAt,
		StartedAt:        m.StartedAt,
		CompletedAt:      m.CompletedAt,
		TotalTasks:       m.TotalTasks,
		CompletedTasks:   m.CompletedTasks,
		FailedTasks:      m.FailedTasks,
		InProgressTasks:  m.InProgressTasks,
		LockedFiles:      locked,
		ModifiedFiles:    modified,
		AssignedWorkerID: m.AssignedWorkerID,
		Metadata:         meta,
	}, nil
}

func workerToModel(w *worker.Worker) (*workerModel, error) {
	meta, err := encodeMap(w.Metadata)
	if err != nil {
		return nil, err
	}
	return &workerModel{
		ID:             w.ID,
		Status:         w.Status.String(),
		SessionID:      w.SessionID,
		CurrentTaskID:  w.CurrentTaskID,
		TasksCompleted: w.TasksCompleted,
		TasksFailed:    w.TasksFailed,
		RegisteredAt:   w.RegisteredAt,
		LastHeartbeat:  w.LastHeartbeat,
		Metadata:       meta,
	}, nil
}

func modelToWorker(m *workerModel) (*worker.Worker, error) {
	meta, err := decodeMap(m.Metadata)
	if err != nil {
		return nil, fmt.Errorf("worker %s: %w", m.ID, err)
	}
	return &worker.Worker{
		ID:             m.ID,
		Status:         worker.Status(m.Status),
		SessionID:      m.SessionID,
		CurrentTaskID:  m.CurrentTaskID,
		TasksCompleted: m.TasksCompleted,
		TasksFailed:    m.TasksFailed,
		RegisteredAt:   m.RegisteredAt,
		LastHeartbeat:  m.LastHeartbeat,
		Metadata:       meta,
	}, nil
}
