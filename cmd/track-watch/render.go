package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/freshlane/ordertrack/internal/services/watcher"
)

// renderView рисует один кадр экрана отслеживания в текст.
func renderView(v watcher.View) string {
	var b strings.Builder

	fmt.Fprintf(&b, "order %s\n", v.OrderID)

	switch v.State {
	case watcher.StateNotFound:
		b.WriteString("  order not found\n")
		return b.String()
	case watcher.StateError:
		b.WriteString("  unable to load tracking, retrying...\n")
		return b.String()
	}

	if v.Cancelled {
		b.WriteString("  ORDER CANCELLED\n")
	} else {
		for _, step := range v.Steps {
			mark := " "
			if step.Reached {
				mark = "x"
			}
			cursor := "  "
			if step.Current {
				cursor = "> "
			}
			fmt.Fprintf(&b, "  %s[%s] %s\n", cursor, mark, step.Label)
		}
	}

	if v.ETALabel != "" {
		fmt.Fprintf(&b, "  ETA: %s\n", v.ETALabel)
	}
	if v.Dispatch.Show {
		if v.Dispatch.Preparing {
			b.WriteString("  courier: preparing for dispatch\n")
		} else if v.Dispatch.Agent != nil {
			fmt.Fprintf(&b, "  courier: %s", v.Dispatch.Agent.Name)
			if v.Dispatch.Agent.Vehicle != "" {
				fmt.Fprintf(&b, " (%s %s)", v.Dispatch.Agent.Vehicle, v.Dispatch.Agent.VehicleNumber)
			}
			fmt.Fprintf(&b, " %s\n", v.Dispatch.Agent.TelURL)
		}
		fmt.Fprintf(&b, "  support: %s\n", v.Dispatch.SupportTel)
	}
	if v.Stale && !v.Updated.IsZero() {
		fmt.Fprintf(&b, "  showing data from %s\n", v.Updated.Format(time.RFC3339))
	}
	if v.Banner {
		b.WriteString("  ! updates are failing, data may be out of date\n")
	}
	return b.String()
}
