package main

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/scottmckenzie/dlink-smart-plug/pkg/config"
	"github.com/scottmckenzie/dlink-smart-plug/pkg/dlink"
	"github.com/scottmckenzie/dlink-smart-plug/pkg/hnap"
	"github.com/scottmckenzie/dlink-smart-plug/pkg/soap"
	"gopkg.in/yaml.v3"
)

var commands = []string{"on", "off", "state", "curr", "total", "temp", "latest_motion", "actions", "log", "info"}

func isCommand(cmd string) bool {
	return slices.Contains(commands, cmd)
}

// device bundles one authenticated session with the facades built on it.
type device struct {
	client  *hnap.Client
	modules dlink.Modules
	motion  string
	log     *slog.Logger
}

// openDevice prepares a session for cfg. No request is made yet.
func openDevice(cfg config.Config, log *slog.Logger, metrics *hnap.Metrics) (*device, error) {
	timeout, err := cfg.RequestTimeout()
	if err != nil {
		return nil, err
	}

	transport := soap.New(cfg.Host, hnap.ActionBaseURL,
		soap.WithTimeout(timeout),
		soap.WithLogger(log),
	)

	client := hnap.New(transport,
		hnap.Credentials{Username: cfg.Username, Password: cfg.Password},
		hnap.WithLogger(log),
		hnap.WithMetrics(metrics),
	)

	return &device{
		client: client,
		modules: dlink.Modules{
			Socket: cfg.Modules.Socket,
			Power:  cfg.Modules.Power,
			Temp:   cfg.Modules.Temp,
		},
		motion: cfg.Modules.Motion,
		log:    log,
	}, nil
}

func (d *device) plug(ctx context.Context) (*dlink.SmartPlug, error) {
	return dlink.NewSmartPlug(ctx, d.client, dlink.WithModules(d.modules), dlink.WithPlugLogger(d.log))
}

func (d *device) sensor() *dlink.MotionSensor {
	return dlink.NewMotionSensor(d.client, d.motion, d.log)
}

func (d *device) Close() error {
	return d.client.Close()
}

// execute runs cmd and returns what it prints: the device identity followed
// by the command result.
func execute(ctx context.Context, d *device, cmd string) (string, error) {
	var (
		plug *dlink.SmartPlug
		err  error
	)

	switch cmd {
	case "latest_motion", "log":
		// Motion sensors have no plug module profile.
		err = d.client.Login(ctx)
	default:
		plug, err = d.plug(ctx)
	}

	if err != nil {
		return "", err
	}

	var b strings.Builder

	settings := d.client.Settings()
	b.WriteString(renderTable([][2]string{
		{"Device", settingOrUnknown(settings, "DeviceName")},
		{"Firmware", settingOrUnknown(settings, "FirmwareVersion")},
		{"Hardware", settingOrUnknown(settings, "HardwareVersion")},
	}))

	result, err := runCommand(ctx, d, plug, cmd)
	if err != nil {
		return "", err
	}

	b.WriteString(result)

	return b.String(), nil
}

func runCommand(ctx context.Context, d *device, plug *dlink.SmartPlug, cmd string) (string, error) {
	switch cmd {
	case "on", "off":
		state := strings.ToUpper(cmd)
		if err := plug.SetState(ctx, state); err != nil {
			return "", err
		}

		return fmt.Sprintf("Socket switched %s\n", renderState(state)), nil
	case "state":
		state, err := plug.State(ctx)
		if err != nil {
			return "", err
		}

		return renderState(state) + "\n", nil
	case "curr":
		return floatLine(plug.CurrentConsumption(ctx))
	case "total":
		return floatLine(plug.TotalConsumption(ctx))
	case "temp":
		return floatLine(plug.Temperature(ctx))
	case "latest_motion":
		t, err := d.sensor().LatestTrigger(ctx)
		if err != nil {
			return "", err
		}

		return "Latest time: " + valueStyle.Render(t.Format(time.DateTime)) + "\n", nil
	case "actions":
		actions, err := plug.Actions(ctx)
		if err != nil {
			return "", err
		}

		return headerStyle.Render("Supported actions:") + "\n" + strings.Join(actions, "\n") + "\n", nil
	case "log":
		entries, err := d.sensor().SystemLog(ctx)
		if err != nil {
			return "", err
		}

		data, err := yaml.Marshal(entries)
		if err != nil {
			return "", fmt.Errorf("render log: %w", err)
		}

		return string(data), nil
	case "info":
		settings := d.client.Settings()
		m := plug.Modules()

		return renderTable([][2]string{
			{"Model", settingOrUnknown(settings, "ModelName")},
			{"Socket module", m.Socket},
			{"Power module", m.Power},
			{"Temperature module", m.Temp},
			{"Session", d.client.State().String()},
		}), nil
	}

	return "", fmt.Errorf("unknown command %q", cmd)
}

func renderState(state string) string {
	switch state {
	case dlink.ON:
		return onStyle.Render(state)
	case dlink.OFF:
		return offStyle.Render(state)
	default:
		return dimStyle.Render(state)
	}
}

func floatLine(v float64, err error) (string, error) {
	if err != nil {
		return "", err
	}

	return valueStyle.Render(strconv.FormatFloat(v, 'f', -1, 64)) + "\n", nil
}

func settingOrUnknown(settings soap.Tree, name string) string {
	v, err := settings.String(name)
	if err != nil || v == "" {
		return dlink.Unknown
	}

	return v
}
