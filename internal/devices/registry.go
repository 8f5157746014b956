// Package devices resolves emulation profile names to concrete viewport settings.
package devices

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/chromedp/chromedp/device"
	"go.uber.org/zap"

	"github.com/xkilldash9x/barrier-cli/api/schemas"
)

// Lookup is the subset of the store the registry reads from.
type Lookup interface {
	GetDeviceProfile(ctx context.Context, name string) (*schemas.DeviceProfile, error)
	ListDeviceProfiles(ctx context.Context) ([]schemas.DeviceProfile, error)
}

// presets are the chromedp device descriptors offered without any stored configuration.
var presets = []device.Info{
	device.IPhoneX.Device(),
	device.IPhone8.Device(),
	device.IPhone8Plus.Device(),
	device.IPhoneSE.Device(),
	device.IPad.Device(),
	device.IPadPro.Device(),
	device.Pixel2.Device(),
	device.GalaxyS5.Device(),
	device.Nexus5.Device(),
}

func fromInfo(info device.Info) schemas.DeviceProfile {
	return schemas.DeviceProfile{
		Name:              info.Name,
		UserAgent:         info.UserAgent,
		Width:             info.Width,
		Height:            info.Height,
		DeviceScaleFactor: info.Scale,
		Mobile:            info.Mobile,
		Touch:             info.Touch,
		Landscape:         info.Landscape,
	}
}

// Builtins returns the desktop default followed by the chromedp presets.
func Builtins() []schemas.DeviceProfile {
	out := make([]schemas.DeviceProfile, 0, len(presets)+1)
	out = append(out, schemas.DefaultDeviceProfile)
	for _, info := range presets {
		out = append(out, fromInfo(info))
	}
	return out
}

// Registry looks devices up in the store first and falls back to the builtins.
type Registry struct {
	store       Lookup
	defaultName string
	logger      *zap.Logger
}

// NewRegistry creates a registry. An empty defaultName uses the desktop profile.
func NewRegistry(store Lookup, defaultName string, logger *zap.Logger) *Registry {
	if defaultName == "" {
		defaultName = schemas.DefaultDeviceProfile.Name
	}
	return &Registry{store: store, defaultName: defaultName, logger: logger.Named("devices")}
}

// Resolve returns the profile named name, or the default profile for an empty name.
func (r *Registry) Resolve(ctx context.Context, name string) (schemas.DeviceProfile, error) {
	if strings.TrimSpace(name) == "" {
		name = r.defaultName
	}

	if r.store != nil {
		profile, err := r.store.GetDeviceProfile(ctx, name)
		switch {
		case err == nil:
			return *profile, nil
		case !errors.Is(err, schemas.ErrNotFound):
			return schemas.DeviceProfile{}, fmt.Errorf("failed to look up device %q: %w", name, err)
		}
	}

	for _, profile := range Builtins() {
		if strings.EqualFold(profile.Name, name) {
			return profile, nil
		}
	}
	return schemas.DeviceProfile{}, fmt.Errorf("device %q: %w", name, schemas.ErrNotFound)
}

// List returns stored profiles merged with the builtins, stored entries winning on name.
func (r *Registry) List(ctx context.Context) ([]schemas.DeviceProfile, error) {
	byName := make(map[string]schemas.DeviceProfile)
	for _, profile := range Builtins() {
		byName[profile.Name] = profile
	}
	if r.store != nil {
		stored, err := r.store.ListDeviceProfiles(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to list devices: %w", err)
		}
		for _, profile := range stored {
			byName[profile.Name] = profile
		}
	}

	out := make([]schemas.DeviceProfile, 0, len(byName))
	for _, profile := range byName {
		out = append(out, profile)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}
