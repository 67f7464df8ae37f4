package dlink

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/scottmckenzie/dlink-smart-plug/pkg/soap"
)

// Socket states reported by State.
const (
	ON      = "ON"
	OFF     = "OFF"
	Unknown = "unknown"
)

// Module sub-types listed by GetModuleProfile.
const (
	subTypePowerMeter  = "Electrical Power Meter"
	subTypeTemperature = "Temperature Monitor"
)

// ErrInvalidState is returned by SetState for anything but ON or OFF.
var ErrInvalidState = errors.New("dlink: state must be ON or OFF")

// Caller is the authenticated session the facades talk through.
// *hnap.Client implements it.
type Caller interface {
	Call(ctx context.Context, method string, params soap.Params) (soap.Tree, error)
	Settings() soap.Tree
	Actions() []string
	DeviceActions(ctx context.Context) ([]string, error)
	SOAPActions(ctx context.Context, moduleID string) (soap.Tree, error)
}

// Modules holds the module IDs each plug feature is addressed through.
type Modules struct {
	Socket string
	Power  string
	Temp   string
}

// DefaultModules returns the IDs used by plugs that do not advertise a
// module profile.
func DefaultModules() Modules {
	return Modules{Socket: "1", Power: "2", Temp: "3"}
}

// merge overrides m with the non-empty fields of o.
func (m Modules) merge(o Modules) Modules {
	if o.Socket != "" {
		m.Socket = o.Socket
	}

	if o.Power != "" {
		m.Power = o.Power
	}

	if o.Temp != "" {
		m.Temp = o.Temp
	}

	return m
}

// SmartPlug is a switchable power outlet with a power meter and a
// temperature sensor.
type SmartPlug struct {
	caller    Caller
	log       *slog.Logger
	overrides Modules

	mu      sync.Mutex
	modules Modules
}

// PlugOption configures a SmartPlug.
type PlugOption func(*SmartPlug)

// WithModules pins module IDs regardless of what the device profile says.
// Empty fields are ignored.
func WithModules(m Modules) PlugOption {
	return func(p *SmartPlug) { p.overrides = m }
}

// WithPlugLogger sets the logger. The default discards all output.
func WithPlugLogger(log *slog.Logger) PlugOption {
	return func(p *SmartPlug) {
		if log != nil {
			p.log = log
		}
	}
}

// NewSmartPlug creates a plug facade and resolves its module IDs from the
// device's module profile. This is the first round trip, so it logs in.
func NewSmartPlug(ctx context.Context, caller Caller, opts ...PlugOption) (*SmartPlug, error) {
	p := &SmartPlug{
		caller:  caller,
		log:     slog.New(slog.DiscardHandler),
		modules: DefaultModules(),
	}

	for _, opt := range opts {
		opt(p)
	}

	if err := p.RefreshModules(ctx); err != nil {
		return nil, err
	}

	return p, nil
}

// RefreshModules re-reads GetModuleProfile and updates the power and
// temperature module IDs.
func (p *SmartPlug) RefreshModules(ctx context.Context) error {
	resp, err := p.caller.Call(ctx, "GetModuleProfile", nil)
	if err != nil {
		return fmt.Errorf("dlink: module profile: %w", err)
	}

	modules := DefaultModules()

	profiles, err := resp.List("ModuleProfileList", "ModuleProfile")
	if err != nil {
		p.log.WarnContext(ctx, "device has no module profile, using defaults", "error", err)
	}

	for _, item := range profiles {
		profile, ok := item.(soap.Tree)
		if !ok {
			continue
		}

		subType, _ := profile.String("ModuleSubType")
		id, err := profile.String("ModuleID")
		if err != nil {
			continue
		}

		switch subType {
		case subTypePowerMeter:
			modules.Power = id
		case subTypeTemperature:
			modules.Temp = id
		}
	}

	modules = modules.merge(p.overrides)

	p.mu.Lock()
	p.modules = modules
	p.mu.Unlock()

	p.log.DebugContext(ctx, "resolved modules",
		"socket", modules.Socket,
		"power", modules.Power,
		"temp", modules.Temp,
	)

	return nil
}

// Modules returns the module IDs in use.
func (p *SmartPlug) Modules() Modules {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.modules
}

// DeviceName returns the name from the cached device settings.
func (p *SmartPlug) DeviceName() (string, error) { return p.setting("DeviceName") }

// FirmwareVersion returns the firmware version from the cached device settings.
func (p *SmartPlug) FirmwareVersion() (string, error) { return p.setting("FirmwareVersion") }

// HardwareVersion returns the hardware revision from the cached device settings.
func (p *SmartPlug) HardwareVersion() (string, error) { return p.setting("HardwareVersion") }

// ModelName returns the model from the cached device settings.
func (p *SmartPlug) ModelName() (string, error) { return p.setting("ModelName") }

func (p *SmartPlug) setting(name string) (string, error) {
	v, err := p.caller.Settings().String(name)
	if err != nil {
		return "", fmt.Errorf("dlink: device settings: %w", err)
	}

	return v, nil
}

// Actions returns the action names the device supports, fetching them when
// no login has cached them yet.
func (p *SmartPlug) Actions(ctx context.Context) ([]string, error) {
	if actions := p.caller.Actions(); len(actions) > 0 {
		return actions, nil
	}

	actions, err := p.caller.DeviceActions(ctx)
	if err != nil {
		return nil, fmt.Errorf("dlink: device actions: %w", err)
	}

	return actions, nil
}

// CurrentConsumption returns the instantaneous power draw in watts.
func (p *SmartPlug) CurrentConsumption(ctx context.Context) (float64, error) {
	return p.float(ctx, "GetCurrentPowerConsumption", p.Modules().Power, "CurrentConsumption")
}

// TotalConsumption returns the accumulated energy use in kWh.
func (p *SmartPlug) TotalConsumption(ctx context.Context) (float64, error) {
	return p.float(ctx, "GetPMWarningThreshold", p.Modules().Power, "TotalConsumption")
}

// Temperature returns the internal temperature in degrees Celsius.
func (p *SmartPlug) Temperature(ctx context.Context) (float64, error) {
	return p.float(ctx, "GetCurrentTemperature", p.Modules().Temp, "CurrentTemperature")
}

func (p *SmartPlug) float(ctx context.Context, method, moduleID, field string) (float64, error) {
	resp, err := p.caller.Call(ctx, method, soap.Params{}.Add("ModuleID", moduleID))
	if err != nil {
		return 0, fmt.Errorf("dlink: %s: %w", method, err)
	}

	v, err := resp.Float(field)
	if err != nil {
		return 0, fmt.Errorf("dlink: %s: %w", method, err)
	}

	return v, nil
}

// State returns ON, OFF, or Unknown when the device reports anything else.
func (p *SmartPlug) State(ctx context.Context) (string, error) {
	resp, err := p.caller.Call(ctx, "GetSocketSettings", soap.Params{}.Add("ModuleID", p.Modules().Socket))
	if err != nil {
		return "", fmt.Errorf("dlink: GetSocketSettings: %w", err)
	}

	status, err := resp.String("SocketInfoList", "SocketInfo", "OPStatus")
	if err != nil {
		return "", fmt.Errorf("dlink: GetSocketSettings: %w", err)
	}

	switch status {
	case "true", "TRUE", "True":
		return ON, nil
	case "false", "FALSE", "False":
		return OFF, nil
	default:
		return Unknown, nil
	}
}

// SetState switches the socket ON or OFF.
func (p *SmartPlug) SetState(ctx context.Context, state string) error {
	var status string

	switch strings.ToUpper(state) {
	case ON:
		status = "true"
	case OFF:
		status = "false"
	default:
		return fmt.Errorf("%w: %q", ErrInvalidState, state)
	}

	params := soap.Params{}.
		Add("ModuleID", p.Modules().Socket).
		Add("OPStatus", status).
		Add("NickName", "Socket 1").
		Add("Description", "Socket 1")

	// A2 hardware ignores the request without an explicit controller.
	if hw, _ := p.caller.Settings().String("HardwareVersion"); hw == "A2" {
		params = params.Add("Controller", 1)
	}

	resp, err := p.caller.Call(ctx, "SetSocketSettings", params)
	if err != nil {
		return fmt.Errorf("dlink: SetSocketSettings: %w", err)
	}

	p.log.DebugContext(ctx, "socket state set", "state", state, "response", resp)

	return nil
}
