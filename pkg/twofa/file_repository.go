package twofa

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
)

// FileTwoFactorRepository implements TwoFactorRepository using file-based storage
type FileTwoFactorRepository struct {
	dataDir  string
	profiles map[uuid.UUID]Profile
	mutex    sync.RWMutex
}

// NewFileTwoFactorRepository creates a new file-based two-factor repository
func NewFileTwoFactorRepository(dataDir string) (*FileTwoFactorRepository, error) {
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	repo := &FileTwoFactorRepository{
		dataDir:  dataDir,
		profiles: make(map[uuid.UUID]Profile),
	}

	if err := repo.load(); err != nil {
		return nil, fmt.Errorf("failed to load data: %w", err)
	}

	return repo, nil
}

// GetProfile returns the stored profile, or the disabled default when
// the user has no record yet.
func (r *FileTwoFactorRepository) GetProfile(ctx context.Context, userID uuid.UUID) (Profile, error) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	profile, exists := r.profiles[userID]
	if !exists {
		return Profile{UserID: userID, Method: MethodDisabled}, nil
	}
	return profile, nil
}

// UpdateProfile persists the whole profile in one write.
func (r *FileTwoFactorRepository) UpdateProfile(ctx context.Context, profile Profile) error {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	previous, existed := r.profiles[profile.UserID]

	profile.UpdatedAt = time.Now().UTC()
	r.profiles[profile.UserID] = profile

	if err := r.save(); err != nil {
		// Rollback
		if existed {
			r.profiles[profile.UserID] = previous
		} else {
			delete(r.profiles, profile.UserID)
		}
		return fmt.Errorf("failed to save: %w", err)
	}

	return nil
}

// ConsumeBackupCode removes the code from the set if present; the check
// and removal happen under one lock so racing submissions cannot both win.
func (r *FileTwoFactorRepository) ConsumeBackupCode(ctx context.Context, userID uuid.UUID, code string, verifiedAt time.Time) (bool, error) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	profile, exists := r.profiles[userID]
	if !exists {
		return false, nil
	}

	index := -1
	for i, candidate := range profile.BackupCodes {
		if candidate == code {
			index = i
			break
		}
	}
	if index < 0 {
		return false, nil
	}

	remaining := make([]string, 0, len(profile.BackupCodes)-1)
	remaining = append(remaining, profile.BackupCodes[:index]...)
	remaining = append(remaining, profile.BackupCodes[index+1:]...)
	profile.BackupCodes = remaining
	profile.LastVerifiedAt = &verifiedAt
	profile.UpdatedAt = time.Now().UTC()
	r.profiles[userID] = profile

	if err := r.save(); err != nil {
		return false, fmt.Errorf("failed to save: %w", err)
	}

	return true, nil
}

// load reads profile data from file
func (r *FileTwoFactorRepository) load() error {
	filePath := filepath.Join(r.dataDir, "twofactor_profiles.json")

	// If file doesn't exist, start with empty map
	if _, err := os.Stat(filePath); os.IsNotExist(err) {
		return nil
	}

	data, err := os.ReadFile(filePath)
	if err != nil {
		return fmt.Errorf("failed to read file: %w", err)
	}

	if len(data) == 0 {
		return nil
	}

	var profiles []Profile
	if err := json.Unmarshal(data, &profiles); err != nil {
		return fmt.Errorf("failed to unmarshal data: %w", err)
	}

	r.profiles = make(map[uuid.UUID]Profile)
	for _, profile := range profiles {
		r.profiles[profile.UserID] = profile
	}

	return nil
}

// save writes profile data to file atomically
func (r *FileTwoFactorRepository) save() error {
	profiles := make([]Profile, 0, len(r.profiles))
	for _, profile := range r.profiles {
		profiles = append(profiles, profile)
	}

	data, err := json.MarshalIndent(profiles, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal data: %w", err)
	}

	// Write to temp file first
	tempFile := filepath.Join(r.dataDir, "twofactor_profiles.json.tmp")
	if err := os.WriteFile(tempFile, data, 0644); err != nil {
		return fmt.Errorf("failed to write temp file: %w", err)
	}

	// Atomic rename
	finalFile := filepath.Join(r.dataDir, "twofactor_profiles.json")
	if err := os.Rename(tempFile, finalFile); err != nil {
		return fmt.Errorf("failed to rename file: %w", err)
	}

	return nil
}
