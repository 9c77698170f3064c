package malgo

import (
	"encoding/hex"
	"runtime"
	"strings"

	"github.com/gen2brain/malgo"

	"github.com/tphakala/withu/internal/audiocore"
	"github.com/tphakala/withu/internal/errors"
	"github.com/tphakala/withu/internal/logger"
)

// DeviceInfo describes a capture device.
type DeviceInfo struct {
	Index     int    `json:"index"`
	Name      string `json:"name"`
	ID        string `json:"id"`
	IsDefault bool   `json:"isDefault"`
}

// backendFor returns the capture backend for goos.
func backendFor(goos string) (malgo.Backend, error) {
	switch goos {
	case "linux":
		return malgo.BackendAlsa, nil
	case "windows":
		return malgo.BackendWasapi, nil
	case "darwin":
		return malgo.BackendCoreaudio, nil
	default:
		return malgo.BackendNull, audiocore.NewUnsupportedPlatformError(goos)
	}
}

func initContext() (*malgo.AllocatedContext, error) {
	backend, err := backendFor(runtime.GOOS)
	if err != nil {
		return nil, err
	}

	ctx, err := malgo.InitContext([]malgo.Backend{backend}, malgo.ContextConfig{}, func(message string) {
		GetLogger().Debug("malgo backend message", logger.String("message", strings.TrimSpace(message)))
	})
	if err != nil {
		return nil, classifyBackendError(err, "", "init_context")
	}
	return ctx, nil
}

func freeContext(ctx *malgo.AllocatedContext) {
	if ctx == nil {
		return
	}
	_ = ctx.Uninit()
	ctx.Free()
}

// EnumerateDevices lists the capture devices of the platform backend.
func EnumerateDevices() ([]DeviceInfo, error) {
	ctx, err := initContext()
	if err != nil {
		return nil, err
	}
	defer freeContext(ctx)

	infos, err := ctx.Devices(malgo.Capture)
	if err != nil {
		return nil, classifyBackendError(err, "", "enumerate_devices")
	}
	return toDeviceInfos(infos), nil
}

func toDeviceInfos(infos []malgo.DeviceInfo) []DeviceInfo {
	devices := make([]DeviceInfo, 0, len(infos))
	for i := range infos {
		// Skip the null device
		if strings.Contains(infos[i].Name(), "Discard all samples") {
			continue
		}

		id, err := hexToASCII(infos[i].ID.String())
		if err != nil {
			id = infos[i].ID.String()
		}

		devices = append(devices, DeviceInfo{
			Index:     i,
			Name:      infos[i].Name(),
			ID:        id,
			IsDefault: infos[i].IsDefault == 1,
		})
	}
	return devices
}

// selectDevice returns the position in devices matching want. An empty
// name, "default" or "sysdefault" picks the default device or the first one.
// Otherwise it tries an exact name, then the decoded ID, then a substring of
// the name.
func selectDevice(devices []DeviceInfo, want string) (int, error) {
	if len(devices) == 0 {
		return -1, audiocore.NewDeviceError(errors.NewStd("no capture devices found"), want, "select_device")
	}

	switch want {
	case "", "default", "sysdefault":
		for i := range devices {
			if devices[i].IsDefault {
				return i, nil
			}
		}
		return 0, nil
	}

	for i := range devices {
		if devices[i].Name == want {
			return i, nil
		}
	}
	for i := range devices {
		if devices[i].ID == want {
			return i, nil
		}
	}
	for i := range devices {
		if strings.Contains(devices[i].Name, want) {
			return i, nil
		}
	}

	return -1, errors.New(audiocore.ErrDeviceUnavailable).
		Component(audiocore.ComponentAudioCore).
		Category(errors.CategoryDevice).
		Context("device_name", want).
		Context("available_devices", len(devices)).
		Context("error", "no matching audio device found").
		Build()
}

// classifyBackendError maps a malgo failure onto the capture error kinds.
func classifyBackendError(err error, source, operation string) error {
	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "permission") || strings.Contains(msg, "access denied") || strings.Contains(msg, "not allowed") {
		return audiocore.NewPermissionError(err, source)
	}
	return audiocore.NewDeviceError(err, source, operation)
}

func hexToASCII(s string) (string, error) {
	b, err := hex.DecodeString(s)
	if err != nil {
		return "", err
	}
	return strings.TrimRight(string(b), "\x00"), nil
}
