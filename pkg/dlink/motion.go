package dlink

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/scottmckenzie/dlink-smart-plug/pkg/soap"
)

// DefaultMotionModule is the module ID of the motion detector on a DCH-S150.
const DefaultMotionModule = "1"

// MotionSensor is a motion detector.
type MotionSensor struct {
	caller   Caller
	moduleID string
	log      *slog.Logger

	mu      sync.Mutex
	actions []string
}

// NewMotionSensor creates a motion sensor facade for moduleID. An empty
// moduleID selects DefaultMotionModule.
func NewMotionSensor(caller Caller, moduleID string, log *slog.Logger) *MotionSensor {
	if moduleID == "" {
		moduleID = DefaultMotionModule
	}

	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}

	return &MotionSensor{caller: caller, moduleID: moduleID, log: log}
}

// LatestTrigger returns the time motion was last detected. Sensors that
// support GetLatestDetection are asked directly; older firmware is read
// through the newest entry of the detector log.
func (m *MotionSensor) LatestTrigger(ctx context.Context) (time.Time, error) {
	actions, err := m.soapActions(ctx)
	if err != nil {
		return time.Time{}, err
	}

	var raw string

	if slices.Contains(actions, "GetLatestDetection") {
		resp, err := m.caller.Call(ctx, "GetLatestDetection", soap.Params{}.Add("ModuleID", m.moduleID))
		if err != nil {
			return time.Time{}, fmt.Errorf("dlink: GetLatestDetection: %w", err)
		}

		if raw, err = resp.String("LatestDetectTime"); err != nil {
			return time.Time{}, fmt.Errorf("dlink: GetLatestDetection: %w", err)
		}
	} else {
		resp, err := m.caller.Call(ctx, "GetMotionDetectorLogs", soap.Params{}.
			Add("ModuleID", m.moduleID).
			Add("MaxCount", 1).
			Add("PageOffset", 1).
			Add("StartTime", 0).
			Add("EndTime", "All"))
		if err != nil {
			return time.Time{}, fmt.Errorf("dlink: GetMotionDetectorLogs: %w", err)
		}

		if raw, err = newestLogTime(resp); err != nil {
			m.log.ErrorContext(ctx, "unexpected detector log", "response", resp)
			return time.Time{}, fmt.Errorf("dlink: GetMotionDetectorLogs: %w", err)
		}
	}

	return parseUnix(raw)
}

// SystemLog returns up to 100 entries of the device system log.
func (m *MotionSensor) SystemLog(ctx context.Context) (soap.Tree, error) {
	resp, err := m.caller.Call(ctx, "GetSystemLogs", soap.Params{}.
		Add("MaxCount", 100).
		Add("PageOffset", 1).
		Add("StartTime", 0).
		Add("EndTime", "All"))
	if err != nil {
		return nil, fmt.Errorf("dlink: GetSystemLogs: %w", err)
	}

	return resp, nil
}

// soapActions returns the module's action list, fetching it once.
func (m *MotionSensor) soapActions(ctx context.Context) ([]string, error) {
	m.mu.Lock()
	cached := m.actions
	m.mu.Unlock()

	if len(cached) > 0 {
		return cached, nil
	}

	resp, err := m.caller.SOAPActions(ctx, m.moduleID)
	if err != nil {
		return nil, fmt.Errorf("dlink: module actions: %w", err)
	}

	actions, err := resp.Strings("ModuleSOAPList", "SOAPActions", "Action")
	if err != nil {
		return nil, fmt.Errorf("dlink: module actions: %w", err)
	}

	m.mu.Lock()
	m.actions = actions
	m.mu.Unlock()

	return actions, nil
}

func newestLogTime(resp soap.Tree) (string, error) {
	entries, err := resp.List("MotionDetectorLogList", "MotionDetectorLog")
	if err != nil {
		return "", err
	}

	entry, ok := entries[0].(soap.Tree)
	if !ok {
		return "", &soap.FieldError{Path: "MotionDetectorLogList.MotionDetectorLog", Err: soap.ErrFieldType}
	}

	return entry.String("TimeStamp")
}

// parseUnix converts a decimal unix timestamp to local time.
func parseUnix(raw string) (time.Time, error) {
	f, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("dlink: timestamp %q: %w", raw, err)
	}

	sec, frac := math.Modf(f)

	return time.Unix(int64(sec), int64(frac*float64(time.Second))), nil
}
