package main

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/scottmckenzie/dlink-smart-plug/pkg/config"
	"github.com/scottmckenzie/dlink-smart-plug/pkg/hnap"
	"github.com/scottmckenzie/dlink-smart-plug/pkg/hnap/hnaptest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const pin = "0000"

func newTestDevice() *hnaptest.Device {
	d := hnaptest.NewDevice(pin)
	d.Handle("GetModuleProfile", func(map[string]string) (string, error) {
		return `<ModuleProfileList><ModuleProfile><ModuleID>2</ModuleID><ModuleSubType>Electrical Power Meter</ModuleSubType></ModuleProfile></ModuleProfileList>`, nil
	})
	d.Handle("GetSocketSettings", func(map[string]string) (string, error) {
		return "<SocketInfoList><SocketInfo><OPStatus>false</OPStatus></SocketInfo></SocketInfoList>", nil
	})
	d.Handle("SetSocketSettings", func(map[string]string) (string, error) { return "", nil })
	d.Handle("GetCurrentPowerConsumption", func(map[string]string) (string, error) {
		return "<CurrentConsumption>42.1</CurrentConsumption>", nil
	})
	d.Handle("GetPMWarningThreshold", func(map[string]string) (string, error) {
		return "<TotalConsumption>7</TotalConsumption>", nil
	})
	d.Handle("GetCurrentTemperature", func(map[string]string) (string, error) {
		return "<CurrentTemperature>31</CurrentTemperature>", nil
	})
	d.Handle("GetModuleSOAPActions", func(map[string]string) (string, error) {
		return "<ModuleSOAPList><SOAPActions><Action>GetLatestDetection</Action></SOAPActions></ModuleSOAPList>", nil
	})
	d.Handle("GetLatestDetection", func(map[string]string) (string, error) {
		return "<LatestDetectTime>1700000000</LatestDetectTime>", nil
	})
	d.Handle("GetSystemLogs", func(map[string]string) (string, error) {
		return "<SystemLogList><SystemLog><Message>boot</Message></SystemLog></SystemLogList>", nil
	})

	return d
}

func openTestDevice(t *testing.T, d *hnaptest.Device) *device {
	t.Helper()

	cfg := config.Default()
	cfg.Host = d.Start(t)
	cfg.Password = pin

	dev, err := openDevice(cfg, slog.New(slog.DiscardHandler), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = dev.Close() })

	return dev
}

func TestExecute(t *testing.T) {
	tests := []struct {
		cmd  string
		want []string
	}{
		{cmd: "state", want: []string{"OFF"}},
		{cmd: "on", want: []string{"Socket switched ON"}},
		{cmd: "off", want: []string{"Socket switched OFF"}},
		{cmd: "curr", want: []string{"42.1"}},
		{cmd: "total", want: []string{"7"}},
		{cmd: "temp", want: []string{"31"}},
		{cmd: "actions", want: []string{"Supported actions:", "GetSocketSettings"}},
		{cmd: "info", want: []string{"Model", "DSP-W215", "Power module", "Session"}},
		{cmd: "latest_motion", want: []string{"Latest time: " + time.Unix(1700000000, 0).Format(time.DateTime)}},
		{cmd: "log", want: []string{"Message: boot"}},
	}

	for _, tt := range tests {
		t.Run(tt.cmd, func(t *testing.T) {
			d := newTestDevice()
			out, err := execute(context.Background(), openTestDevice(t, d), tt.cmd)
			require.NoError(t, err)

			assert.Contains(t, out, "DSP-W215")
			assert.Contains(t, out, "2.22")
			for _, w := range tt.want {
				assert.Contains(t, out, w)
			}
		})
	}
}

func TestExecute_MotionSkipsModuleProfile(t *testing.T) {
	d := newTestDevice()

	_, err := execute(context.Background(), openTestDevice(t, d), "latest_motion")
	require.NoError(t, err)
	assert.Zero(t, d.Count("GetModuleProfile"))
	assert.Equal(t, 1, d.Logins())
}

func TestExecute_WrongPIN(t *testing.T) {
	d := newTestDevice()

	cfg := config.Default()
	cfg.Host = d.Start(t)
	cfg.Password = "9999"

	dev, err := openDevice(cfg, slog.New(slog.DiscardHandler), nil)
	require.NoError(t, err)

	_, err = execute(context.Background(), dev, "state")
	assert.ErrorIs(t, err, hnap.ErrBadCredentials)
}

func TestIsCommand(t *testing.T) {
	for _, c := range commands {
		assert.True(t, isCommand(c), c)
	}

	assert.False(t, isCommand("serve"))
	assert.False(t, isCommand("reboot"))
}

func TestRun_UnknownCommand(t *testing.T) {
	err := run(&options{}, "reboot")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown command")
}

func TestRenderTable(t *testing.T) {
	out := renderTable([][2]string{{"Device", "DSP-W215"}, {"Hardware", "B1"}})

	lines := strings.Split(strings.TrimSuffix(out, "\n"), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[1], "Hardware  B1")
	assert.Contains(t, lines[0], "DSP-W215")
	assert.Equal(t, strings.Index(lines[0], "DSP-W215"), strings.Index(lines[1], "B1"))
}

func TestResolveConfig(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv(config.EnvHost, "10.0.0.9")
	t.Setenv(config.EnvPIN, "")

	cfg, err := resolveConfig(&options{
		envFile: filepath.Join(t.TempDir(), "missing.env"),
		pin:     "123456",
		timeout: "3s",
		verbose: true,
	})
	require.NoError(t, err)

	assert.Equal(t, "10.0.0.9", cfg.Host)
	assert.Equal(t, "123456", cfg.Password)
	assert.Equal(t, "Admin", cfg.Username)
	assert.Equal(t, "3s", cfg.Timeout)
	assert.Equal(t, "debug", cfg.LogLevel)
}

func TestResolveConfig_FlagsOverrideFile(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	t.Setenv(config.EnvHost, "")
	t.Setenv(config.EnvPIN, "")

	writeTestFile(t, filepath.Join(dir, defaultConfigFile), "host: plug.local\npassword: \"1111\"\nusername: user\n")

	cfg, err := resolveConfig(&options{envFile: ".env", host: "10.0.0.3", user: "Admin"})
	require.NoError(t, err)

	assert.Equal(t, "10.0.0.3", cfg.Host)
	assert.Equal(t, "1111", cfg.Password)
	assert.Equal(t, "Admin", cfg.Username)
}

func TestResolveConfig_FileBeatsEnv(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	t.Setenv(config.EnvHost, "10.0.0.9")
	t.Setenv(config.EnvPIN, "2222")

	writeTestFile(t, filepath.Join(dir, defaultConfigFile), "host: plug.local\npassword: \"1111\"\n")

	cfg, err := resolveConfig(&options{envFile: ".env"})
	require.NoError(t, err)

	assert.Equal(t, "plug.local", cfg.Host)
	assert.Equal(t, "1111", cfg.Password)

	writeTestFile(t, filepath.Join(dir, defaultConfigFile), "username: user\n")

	cfg, err = resolveConfig(&options{envFile: ".env"})
	require.NoError(t, err)

	assert.Equal(t, "10.0.0.9", cfg.Host)
	assert.Equal(t, "2222", cfg.Password)
}

func TestResolveConfig_MissingHost(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv(config.EnvHost, "")

	_, err := resolveConfig(&options{envFile: ".env", pin: pin})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "host is required")
}

func TestWithSpinner_Disabled(t *testing.T) {
	called := false
	err := withSpinner(context.Background(), false, "working", func(context.Context) error {
		called = true
		return io.EOF
	})

	assert.True(t, called)
	assert.ErrorIs(t, err, io.EOF)
}

func TestSpinnerModel(t *testing.T) {
	m := newSpinnerModel("Talking to plug")
	assert.Contains(t, m.View(), "Talking to plug")

	next, cmd := m.Update(doneMsg{})
	assert.NotNil(t, cmd)
	assert.Empty(t, next.View())

	next, _ = m.Update(tea.KeyMsg{Type: tea.KeyCtrlC})
	sm, ok := next.(spinnerModel)
	require.True(t, ok)
	assert.True(t, sm.interrupted)
}

func TestValidatePIN(t *testing.T) {
	assert.ErrorIs(t, validatePIN("  "), errNoPIN)
	assert.NoError(t, validatePIN("0000"))
}

func TestMetricsServer(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := hnap.NewMetrics(reg)

	d := newTestDevice()
	cfg := config.Default()
	cfg.Host = d.Start(t)
	cfg.Password = pin

	dev, err := openDevice(cfg, slog.New(slog.DiscardHandler), m)
	require.NoError(t, err)
	_, err = execute(context.Background(), dev, "state")
	require.NoError(t, err)

	srv := httptest.NewServer(newMetricsServer(":0", reg).Handler)
	t.Cleanup(srv.Close)

	resp, err := http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), `hnap_calls_total{method="GetSocketSettings",result="ok"} 1`)
	assert.Contains(t, string(body), `hnap_logins_total{result="success"} 1`)
}
