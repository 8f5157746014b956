package store

import (
	"context"
	"fmt"

	"github.com/xkilldash9x/barrier-cli/api/schemas"
)

const deviceColumns = `name, user_agent, width, height, device_scale_factor, is_mobile, has_touch, is_landscape`

// GetDeviceProfile loads a stored emulation profile by name.
func (s *Store) GetDeviceProfile(ctx context.Context, name string) (*schemas.DeviceProfile, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+deviceColumns+` FROM device_configs WHERE name = $1;`, name)
	if err != nil {
		return nil, fmt.Errorf("failed to query device config: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, fmt.Errorf("error during row iteration: %w", err)
		}
		return nil, fmt.Errorf("device config %q: %w", name, schemas.ErrNotFound)
	}
	var d schemas.DeviceProfile
	if err := rows.Scan(&d.Name, &d.UserAgent, &d.Width, &d.Height, &d.DeviceScaleFactor, &d.Mobile, &d.Touch, &d.Landscape); err != nil {
		return nil, fmt.Errorf("failed to scan device config: %w", err)
	}
	return &d, nil
}

// ListDeviceProfiles returns every stored emulation profile.
func (s *Store) ListDeviceProfiles(ctx context.Context) ([]schemas.DeviceProfile, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+deviceColumns+` FROM device_configs ORDER BY name;`)
	if err != nil {
		return nil, fmt.Errorf("failed to query device configs: %w", err)
	}
	defer rows.Close()

	var devices []schemas.DeviceProfile
	for rows.Next() {
		var d schemas.DeviceProfile
		if err := rows.Scan(&d.Name, &d.UserAgent, &d.Width, &d.Height, &d.DeviceScaleFactor, &d.Mobile, &d.Touch, &d.Landscape); err != nil {
			return nil, fmt.Errorf("failed to scan device config: %w", err)
		}
		devices = append(devices, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during row iteration: %w", err)
	}
	return devices, nil
}

// ListGuidanceLevels returns the stored guidance tags.
func (s *Store) ListGuidanceLevels(ctx context.Context) ([]string, error) {
	rows, err := s.pool.Query(ctx, `SELECT level FROM guidance_levels ORDER BY level;`)
	if err != nil {
		return nil, fmt.Errorf("failed to query guidance levels: %w", err)
	}
	defer rows.Close()

	var levels []string
	for rows.Next() {
		var level string
		if err := rows.Scan(&level); err != nil {
			return nil, fmt.Errorf("failed to scan guidance level: %w", err)
		}
		levels = append(levels, level)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during row iteration: %w", err)
	}
	return levels, nil
}
