package dlink

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/scottmckenzie/dlink-smart-plug/pkg/tools/toolbox"
)

var emptySchema = json.RawMessage(`{"type":"object","properties":{}}`)

// Tools returns a ToolBox exposing plug and, when non-nil, sensor. Each tool
// performs one device operation and returns its result as text.
func Tools(plug *SmartPlug, sensor *MotionSensor) *toolbox.ToolBox {
	tb := toolbox.New()

	tb.Register(
		toolbox.Tool{
			Name:        "plug_state",
			Description: "Report whether the smart plug socket is ON or OFF.",
			InputSchema: emptySchema,
			Handler: func(ctx context.Context, _ json.RawMessage) (string, error) {
				return plug.State(ctx)
			},
		},
		toolbox.Tool{
			Name:        "plug_set_state",
			Description: "Switch the smart plug socket ON or OFF.",
			InputSchema: json.RawMessage(`{"type":"object","properties":{"state":{"type":"string","enum":["ON","OFF"],"description":"Desired socket state"}},"required":["state"]}`),
			Handler:     plug.handleSetState,
		},
		toolbox.Tool{
			Name:        "plug_power",
			Description: "Read the current power consumption of the smart plug in watts.",
			InputSchema: emptySchema,
			Handler: func(ctx context.Context, _ json.RawMessage) (string, error) {
				return formatFloat(plug.CurrentConsumption(ctx))
			},
		},
		toolbox.Tool{
			Name:        "plug_total_power",
			Description: "Read the total energy consumed through the smart plug in kWh.",
			InputSchema: emptySchema,
			Handler: func(ctx context.Context, _ json.RawMessage) (string, error) {
				return formatFloat(plug.TotalConsumption(ctx))
			},
		},
		toolbox.Tool{
			Name:        "plug_temperature",
			Description: "Read the internal temperature of the smart plug in degrees Celsius.",
			InputSchema: emptySchema,
			Handler: func(ctx context.Context, _ json.RawMessage) (string, error) {
				return formatFloat(plug.Temperature(ctx))
			},
		},
		toolbox.Tool{
			Name:        "device_actions",
			Description: "List the HNAP actions the device supports, one per line.",
			InputSchema: emptySchema,
			Handler: func(ctx context.Context, _ json.RawMessage) (string, error) {
				actions, err := plug.Actions(ctx)
				if err != nil {
					return "", err
				}

				return strings.Join(actions, "\n"), nil
			},
		},
	)

	if sensor != nil {
		tb.Register(toolbox.Tool{
			Name:        "motion_latest",
			Description: "Report when the motion sensor last detected motion, in RFC 3339 format.",
			InputSchema: emptySchema,
			Handler: func(ctx context.Context, _ json.RawMessage) (string, error) {
				t, err := sensor.LatestTrigger(ctx)
				if err != nil {
					return "", err
				}

				return t.Format(time.RFC3339), nil
			},
		})
	}

	return tb
}

type setStateInput struct {
	State string `json:"state"`
}

func (p *SmartPlug) handleSetState(ctx context.Context, input json.RawMessage) (string, error) {
	var in setStateInput
	if err := json.Unmarshal(input, &in); err != nil {
		return "", fmt.Errorf("plug_set_state: invalid input: %w", err)
	}

	if in.State == "" {
		return "", fmt.Errorf("plug_set_state: state is required")
	}

	if err := p.SetState(ctx, in.State); err != nil {
		return "", err
	}

	return fmt.Sprintf("Socket switched %s.", strings.ToUpper(in.State)), nil
}

func formatFloat(v float64, err error) (string, error) {
	if err != nil {
		return "", err
	}

	return strconv.FormatFloat(v, 'f', -1, 64), nil
}
