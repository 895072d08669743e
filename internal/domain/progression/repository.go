package progression

import (
	"context"
)

// ══════════════════════════════════════════════════════════════════════════════
// REPOSITORY INTERFACES
// Implemented by infrastructure/persistence/docstore on top of a key-path
// document store. Every operation is a plain get or put; there is no
// atomicity across calls.
// ══════════════════════════════════════════════════════════════════════════════

// UserRepository stores UserProgress records.
type UserRepository interface {
	// GetUser returns the member's record, or a fresh one when absent.
	GetUser(ctx context.Context, userID string) (*UserProgress, error)

	// PutUser overwrites the member's record.
	PutUser(ctx context.Context, userID string, p *UserProgress) error

	// GetAllUsers returns every stored record keyed by user id.
	GetAllUsers(ctx context.Context) (map[string]*UserProgress, error)
}

// MissionRepository stores DailyMission records.
type MissionRepository interface {
	// GetMission returns the member's mission for today, or an empty one when
	// absent or stale.
	GetMission(ctx context.Context, userID, today string) (*DailyMission, error)

	// PutMission overwrites the member's mission.
	PutMission(ctx context.Context, userID string, m *DailyMission) error

	// GetAllMissions returns every stored mission keyed by user id.
	GetAllMissions(ctx context.Context) (map[string]*DailyMission, error)

	// ClearMissions deletes every mission record.
	ClearMissions(ctx context.Context) error
}

// AttendanceRepository stores Attendance records.
type AttendanceRepository interface {
	// GetAttendance returns the member's record, or an empty one when absent.
	GetAttendance(ctx context.Context, userID string) (*Attendance, error)

	// PutAttendance overwrites the member's record.
	PutAttendance(ctx context.Context, userID string, a *Attendance) error

	// GetAllAttendance returns every stored record keyed by user id.
	GetAllAttendance(ctx context.Context) (map[string]*Attendance, error)
}

// Repository is the full progression store.
type Repository interface {
	UserRepository
	MissionRepository
	AttendanceRepository
}
