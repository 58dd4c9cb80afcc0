package reporting

import (
	"context"
	"sort"

	"github.com/shopspring/decimal"
)

func buildStockValuation(ctx context.Context, in buildInput, res *Result) error {
	movements, err := in.reader.StockMovements(ctx, in.tenant.ID, AsOfWindow(in.asOf))
	if err != nil {
		return err
	}
	products, err := loadCatalog(ctx, in)
	if err != nil {
		return err
	}
	onHand, err := AggregateParallel(ctx, movements, in.shardSize, byProduct, quantityMeasure)
	if err != nil {
		return err
	}

	sv := &StockValuation{Rows: []StockValuationRow{}}
	totalValue, totalItems := decimal.Zero, decimal.Zero
	for _, id := range onHand.Keys(stringLess) {
		product, missing := products.resolve(id)
		if missing != nil {
			res.Diagnostics = append(res.Diagnostics, *missing)
		}
		qty := onHand[id].Get("quantity")
		value := qty.Mul(product.UnitPrice)
		totalValue = totalValue.Add(value)
		totalItems = totalItems.Add(qty)
		sv.Rows = append(sv.Rows, StockValuationRow{
			ProductID:   id,
			ProductName: product.Name,
			SKU:         product.SKU,
			Quantity:    qty,
			UnitPrice:   in.currency.Round(product.UnitPrice),
			TotalValue:  in.currency.Round(value),
		})
	}
	average := decimal.Zero
	if !totalItems.IsZero() {
		average = totalValue.Div(totalItems)
	}
	sv.Summary = StockValuationSummary{
		TotalValue:          in.currency.Round(totalValue),
		TotalItems:          totalItems,
		AverageValuePerItem: in.currency.Round(average),
		ProductCount:        len(sv.Rows),
	}
	res.StockValuation = sv
	return nil
}

func buildLowStock(ctx context.Context, in buildInput, res *Result) error {
	movements, err := in.reader.StockMovements(ctx, in.tenant.ID, in.window.Through())
	if err != nil {
		return err
	}
	products, err := loadCatalog(ctx, in)
	if err != nil {
		return err
	}
	stock, err := AggregateParallel(ctx, movements, in.shardSize, byProduct, quantityMeasure)
	if err != nil {
		return err
	}
	for _, id := range stock.Keys(stringLess) {
		if _, missing := products.resolve(id); missing != nil {
			res.Diagnostics = append(res.Diagnostics, *missing)
		}
	}

	ls := &LowStock{Rows: []LowStockRow{}}
	ls.Summary.CriticalFraction = in.fraction
	ls.Summary.TotalShortage = decimal.Zero
	for _, p := range products {
		current := stock[p.ID].Get("quantity")
		if !current.LessThan(p.ReorderLevel) {
			continue
		}
		status := StockWarning
		if current.LessThanOrEqual(p.ReorderLevel.Mul(in.fraction)) {
			status = StockCritical
			ls.Summary.Critical++
		} else {
			ls.Summary.Warning++
		}
		shortage := maxZero(p.ReorderLevel.Sub(current))
		ls.Summary.TotalShortage = ls.Summary.TotalShortage.Add(shortage)
		ls.Rows = append(ls.Rows, LowStockRow{
			ProductID:    p.ID,
			ProductName:  p.Name,
			SKU:          p.SKU,
			CurrentStock: current,
			ReorderLevel: p.ReorderLevel,
			Shortage:     shortage,
			Status:       status,
		})
	}
	sort.Slice(ls.Rows, func(i, j int) bool {
		a, b := ls.Rows[i], ls.Rows[j]
		if a.Status != b.Status {
			return a.Status == StockCritical
		}
		if !a.Shortage.Equal(b.Shortage) {
			return a.Shortage.GreaterThan(b.Shortage)
		}
		return a.ProductID < b.ProductID
	})
	ls.Summary.TotalProducts = len(ls.Rows)
	res.LowStock = ls
	return nil
}

var (
	incomingMeasure = Sum("incoming", func(m StockMovement) decimal.Decimal { return maxZero(m.Quantity) })
	outgoingMeasure = Sum("outgoing", func(m StockMovement) decimal.Decimal { return maxZero(m.Quantity.Neg()) })
)

func buildInventoryMovement(ctx context.Context, in buildInput, res *Result) error {
	movements, err := in.reader.StockMovements(ctx, in.tenant.ID, in.window.Through())
	if err != nil {
		return err
	}
	products, err := loadCatalog(ctx, in)
	if err != nil {
		return err
	}

	var prior, current []StockMovement
	for _, m := range movements {
		if in.window.Before(m.MovementDate) {
			prior = append(prior, m)
			continue
		}
		current = append(current, m)
	}
	opening := Aggregate(prior, byProduct, quantityMeasure)
	activity, err := AggregateParallel(ctx, current, in.shardSize, byProduct, incomingMeasure, outgoingMeasure, quantityMeasure)
	if err != nil {
		return err
	}

	im := &InventoryMovement{Rows: []InventoryMovementRow{}}
	var totalIn, totalOut decimal.Decimal
	for _, id := range activity.Keys(stringLess) {
		product, missing := products.resolve(id)
		if missing != nil {
			res.Diagnostics = append(res.Diagnostics, *missing)
		}
		sums := activity[id]
		incoming, outgoing := sums.Get("incoming"), sums.Get("outgoing")
		net := incoming.Sub(outgoing)
		open := opening[id].Get("quantity")
		totalIn = totalIn.Add(incoming)
		totalOut = totalOut.Add(outgoing)
		im.Summary.TotalMovements += sums.Count
		im.Rows = append(im.Rows, InventoryMovementRow{
			ProductID:   id,
			ProductName: product.Name,
			Opening:     open,
			Incoming:    incoming,
			Outgoing:    outgoing,
			NetChange:   net,
			Closing:     open.Add(net),
			SignedSum:   sums.Get("quantity"),
			Movements:   sums.Count,
		})
	}
	im.Summary.TotalIncoming = totalIn
	im.Summary.TotalOutgoing = totalOut
	im.Summary.NetChange = totalIn.Sub(totalOut)
	res.InventoryMovement = im
	return nil
}
