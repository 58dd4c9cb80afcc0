package reporting

import (
	"context"
	"sort"
	"strings"

	"github.com/shopspring/decimal"
)

// UnassignedRegion labels order lines without a region.
const UnassignedRegion = "UNASSIGNED"

func regionOf(l OrderLine) string {
	if r := strings.TrimSpace(l.Region); r != "" {
		return r
	}
	return UnassignedRegion
}

var (
	lineQuantity = Sum("quantity", func(l OrderLine) decimal.Decimal { return l.Quantity })
	lineRevenue  = Sum("revenue", OrderLine.Revenue)
	lineCost     = Sum("cost", OrderLine.Cost)
)

func buildSalesByRegion(ctx context.Context, in buildInput, res *Result) error {
	lines, err := in.reader.OrderLines(ctx, in.tenant.ID, in.window)
	if err != nil {
		return err
	}
	groups, err := AggregateParallel(ctx, lines, in.shardSize, regionOf, lineRevenue)
	if err != nil {
		return err
	}

	orders := make(map[string]map[string]struct{}, len(groups))
	allOrders := make(map[string]struct{})
	for _, l := range lines {
		region := regionOf(l)
		if orders[region] == nil {
			orders[region] = make(map[string]struct{})
		}
		orders[region][l.OrderID] = struct{}{}
		allOrders[l.OrderID] = struct{}{}
	}

	total := groups.Total().Get("revenue")
	sr := &SalesByRegion{Rows: make([]SalesByRegionRow, 0, len(groups))}
	regions := groups.Keys(func(a, b string) bool {
		ra, rb := groups[a].Get("revenue"), groups[b].Get("revenue")
		if !ra.Equal(rb) {
			return ra.GreaterThan(rb)
		}
		return a < b
	})
	revenues := make([]decimal.Decimal, len(regions))
	for i, region := range regions {
		revenues[i] = groups[region].Get("revenue")
	}
	shares := apportionPercent(revenues, total)
	for i, region := range regions {
		sr.Rows = append(sr.Rows, SalesByRegionRow{
			Region:     region,
			Revenue:    in.currency.Round(revenues[i]),
			OrderCount: len(orders[region]),
			Percentage: shares[i],
		})
	}
	sr.Summary = SalesByRegionSummary{
		TotalRevenue: in.currency.Round(total),
		TotalOrders:  len(allOrders),
		Regions:      len(sr.Rows),
	}
	res.SalesByRegion = sr
	return nil
}

func buildProductPerformance(ctx context.Context, in buildInput, res *Result) error {
	lines, err := in.reader.OrderLines(ctx, in.tenant.ID, in.window)
	if err != nil {
		return err
	}
	groups, err := AggregateParallel(ctx, lines, in.shardSize,
		func(l OrderLine) string { return l.ProductID },
		lineQuantity, lineRevenue, lineCost)
	if err != nil {
		return err
	}
	names := make(map[string]string, len(groups))
	for _, l := range lines {
		if names[l.ProductID] == "" {
			names[l.ProductID] = l.ProductName
		}
	}

	type ranked struct {
		id      string
		revenue decimal.Decimal
	}
	order := make([]ranked, 0, len(groups))
	for id, sums := range groups {
		order = append(order, ranked{id: id, revenue: sums.Get("revenue")})
	}
	sort.Slice(order, func(i, j int) bool {
		if !order[i].revenue.Equal(order[j].revenue) {
			return order[i].revenue.GreaterThan(order[j].revenue)
		}
		return order[i].id < order[j].id
	})

	pp := &ProductPerformance{Rows: make([]ProductPerformanceRow, 0, len(order))}
	var totalRevenue, totalCost decimal.Decimal
	for i, r := range order {
		sums := groups[r.id]
		revenue, cost := sums.Get("revenue"), sums.Get("cost")
		gross := revenue.Sub(cost)
		totalRevenue = totalRevenue.Add(revenue)
		totalCost = totalCost.Add(cost)
		if in.options.TopN > 0 && i >= in.options.TopN {
			continue
		}
		pp.Rows = append(pp.Rows, ProductPerformanceRow{
			Rank:        i + 1,
			ProductID:   r.id,
			ProductName: names[r.id],
			Quantity:    sums.Get("quantity"),
			Revenue:     in.currency.Round(revenue),
			Cost:        in.currency.Round(cost),
			GrossProfit: in.currency.Round(gross),
			Margin:      roundPercent(percentOf(gross, revenue)),
		})
	}
	gross := totalRevenue.Sub(totalCost)
	pp.Summary = ProductPerformanceSummary{
		TotalRevenue:     in.currency.Round(totalRevenue),
		TotalCost:        in.currency.Round(totalCost),
		TotalGrossProfit: in.currency.Round(gross),
		Margin:           roundPercent(percentOf(gross, totalRevenue)),
		Products:         len(order),
	}
	res.ProductPerformance = pp
	return nil
}
