package mqtt

import (
	"encoding/json"
	"math"
	"time"

	"codeberg.org/mutker/cyclewatch/internal/appliance"
)

// StatePayload is the retained per-appliance state message. Energy is rounded
// to 3 decimals of kWh and cost to 2 decimals; cost fields are omitted
// entirely when no rate source is configured.
type StatePayload struct {
	Appliance  string         `json:"appliance"`
	Running    bool           `json:"running"`
	PowerW     float64        `json:"power_w"`
	Stale      bool           `json:"stale"`
	LastUpdate string         `json:"last_update,omitempty"`
	Cycle      CyclePayload   `json:"cycle"`
	Totals     TotalsPayload  `json:"totals"`
	Service    ServicePayload `json:"service"`
}

type CyclePayload struct {
	Start     string   `json:"start,omitempty"`
	End       string   `json:"end,omitempty"`
	DurationS int64    `json:"duration_s"`
	EnergyKWH float64  `json:"energy_kwh"`
	Cost      *float64 `json:"cost,omitempty"`
}

type TotalsPayload struct {
	LifetimeKWH  float64  `json:"lifetime_kwh"`
	DailyKWH     float64  `json:"daily_kwh"`
	MonthlyKWH   float64  `json:"monthly_kwh"`
	LifetimeCost *float64 `json:"lifetime_cost,omitempty"`
	DailyCost    *float64 `json:"daily_cost,omitempty"`
	MonthlyCost  *float64 `json:"monthly_cost,omitempty"`
}

type ServicePayload struct {
	Status          string `json:"status"`
	Message         string `json:"message,omitempty"`
	CycleCount      int    `json:"cycle_count"`
	CyclesRemaining int    `json:"cycles_remaining"`
	LastService     string `json:"last_service,omitempty"`
}

// EventPayload is the transition message published on cycle start/stop.
type EventPayload struct {
	Appliance string `json:"appliance"`
	Event     string `json:"event"`
	Effective string `json:"effective"`
}

// FormatState builds the JSON state message for a snapshot.
func FormatState(snap appliance.Snapshot) ([]byte, error) {
	p := StatePayload{
		Appliance:  snap.Appliance,
		Running:    snap.Running,
		PowerW:     roundTo(snap.CurrentPower, 1),
		Stale:      snap.Stale,
		LastUpdate: formatTimestamp(snap.LastUpdate),
		Cycle: CyclePayload{
			Start:     formatTimestamp(snap.CycleStart),
			End:       formatTimestamp(snap.CycleEnd),
			DurationS: int64(snap.CycleDuration.Truncate(time.Second).Seconds()),
			EnergyKWH: roundTo(snap.CycleEnergy, 3),
		},
		Totals: TotalsPayload{
			LifetimeKWH: roundTo(snap.LifetimeEnergy, 3),
			DailyKWH:    roundTo(snap.DailyEnergy, 3),
			MonthlyKWH:  roundTo(snap.MonthlyEnergy, 3),
		},
		Service: ServicePayload{
			Status:          string(snap.ServiceStatus),
			Message:         snap.ServiceMessage,
			CycleCount:      snap.CycleCount,
			CyclesRemaining: snap.CyclesRemaining,
			LastService:     formatTimestamp(snap.LastService),
		},
	}

	if snap.CostTracked {
		p.Cycle.Cost = roundPtr(snap.CycleCost, 2)
		p.Totals.LifetimeCost = roundPtr(snap.LifetimeCost, 2)
		p.Totals.DailyCost = roundPtr(snap.DailyCost, 2)
		p.Totals.MonthlyCost = roundPtr(snap.MonthlyCost, 2)
	}

	return json.Marshal(p)
}

// FormatEvent builds the JSON transition message.
func FormatEvent(ev appliance.TransitionEvent) ([]byte, error) {
	return json.Marshal(EventPayload{
		Appliance: ev.Appliance,
		Event:     ev.Direction.String(),
		Effective: formatTimestamp(ev.Effective),
	})
}

func formatTimestamp(t time.Time) string {
	if t.IsZero() {
		return ""
	}

	return t.UTC().Format(time.RFC3339)
}

func roundTo(v float64, decimals int) float64 {
	scale := math.Pow(10, float64(decimals))

	return math.Round(v*scale) / scale
}

func roundPtr(v float64, decimals int) *float64 {
	rounded := roundTo(v, decimals)

	return &rounded
}
