package reporting

import (
	"context"

	"github.com/shopspring/decimal"
)

var (
	runtimeMeasure  = Sum("runtime", func(l MachineLog) decimal.Decimal { return l.RuntimeHours })
	downtimeMeasure = Sum("downtime", func(l MachineLog) decimal.Decimal { return l.DowntimeHours })
)

func buildProductionEfficiency(ctx context.Context, in buildInput, res *Result) error {
	logs, err := in.reader.MachineLogs(ctx, in.tenant.ID, in.window)
	if err != nil {
		return err
	}
	groups, err := AggregateParallel(ctx, logs, in.shardSize,
		func(l MachineLog) string { return l.MachineID },
		runtimeMeasure, downtimeMeasure)
	if err != nil {
		return err
	}
	names := make(map[string]string, len(groups))
	for _, l := range logs {
		if names[l.MachineID] == "" {
			names[l.MachineID] = l.MachineName
		}
	}

	pe := &ProductionEfficiency{Rows: make([]ProductionEfficiencyRow, 0, len(groups))}
	var totalRuntime, totalDowntime decimal.Decimal
	for _, id := range groups.Keys(stringLess) {
		sums := groups[id]
		runtime, downtime := sums.Get("runtime"), sums.Get("downtime")
		totalRuntime = totalRuntime.Add(runtime)
		totalDowntime = totalDowntime.Add(downtime)
		pe.Rows = append(pe.Rows, ProductionEfficiencyRow{
			MachineID:     id,
			MachineName:   names[id],
			RuntimeHours:  runtime,
			DowntimeHours: downtime,
			Efficiency:    roundPercent(Efficiency(runtime, downtime)),
			Logs:          sums.Count,
		})
	}
	pe.Summary = ProductionEfficiencySummary{
		TotalRuntimeHours:  totalRuntime,
		TotalDowntimeHours: totalDowntime,
		OverallEfficiency:  roundPercent(Efficiency(totalRuntime, totalDowntime)),
		Machines:           len(pe.Rows),
		PeriodHours:        decimal.NewFromInt(int64(in.window.Days()) * 24),
	}
	res.ProductionEfficiency = pe
	return nil
}
