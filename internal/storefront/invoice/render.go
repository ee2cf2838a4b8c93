package invoice

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/medimart/storefront/pkg/money"
	"github.com/medimart/storefront/pkg/types"
	"github.com/shopspring/decimal"
)

const dateLayout = "2006-01-02 15:04"

// RenderText writes a printable invoice with two-decimal amounts.
func RenderText(w io.Writer, inv *types.Invoice) error {
	if inv == nil {
		return fmt.Errorf("invoice: nothing to render")
	}
	currency := strings.ToUpper(inv.Currency)

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "MediMart Invoice\t%s\n", inv.InvoiceNumber)
	fmt.Fprintf(tw, "Issued\t%s\n", inv.IssuedAt.UTC().Format(dateLayout))
	fmt.Fprintf(tw, "Customer\t%s <%s>\n", inv.Customer.Name, inv.Customer.Email)
	fmt.Fprintf(tw, "Payment\t%s (%s)\n", inv.IntentID, inv.Status)
	fmt.Fprintln(tw, "\t")
	fmt.Fprintln(tw, "Item\tBrand\tQty\tUnit\tTotal")
	for _, item := range inv.Items {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%s\t%s\n",
			item.Name, item.Brand, item.Quantity,
			money.Format(item.UnitPrice), money.Format(lineTotal(item)))
	}
	fmt.Fprintln(tw, "\t")
	fmt.Fprintf(tw, "Total\t\t\t\t%s %s\n", money.Format(inv.Total), currency)
	return tw.Flush()
}

// ExportCSV writes one row per line item for spreadsheet import.
func ExportCSV(w io.Writer, inv *types.Invoice) error {
	if inv == nil {
		return fmt.Errorf("invoice: nothing to export")
	}
	cw := csv.NewWriter(w)
	rows := [][]string{{"invoice_number", "issued_at", "product_id", "name", "brand", "quantity", "unit_price", "line_total", "currency"}}
	for _, item := range inv.Items {
		rows = append(rows, []string{
			inv.InvoiceNumber,
			inv.IssuedAt.UTC().Format(dateLayout),
			item.ProductID,
			item.Name,
			item.Brand,
			strconv.Itoa(item.Quantity),
			money.Format(item.UnitPrice),
			money.Format(lineTotal(item)),
			strings.ToUpper(inv.Currency),
		})
	}
	rows = append(rows, []string{inv.InvoiceNumber, "", "", "TOTAL", "", "", "", money.Format(inv.Total), strings.ToUpper(inv.Currency)})
	if err := cw.WriteAll(rows); err != nil {
		return fmt.Errorf("invoice: write csv: %w", err)
	}
	return nil
}

// RenderOrders writes the "my orders" list.
func RenderOrders(w io.Writer, invoices []types.Invoice) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "Invoice\tIssued\tItems\tTotal\tID")
	for _, inv := range invoices {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%s\t%s\n",
			inv.InvoiceNumber, inv.IssuedAt.UTC().Format(dateLayout), len(inv.Items),
			money.FormatWithCurrency(inv.Total, strings.ToUpper(inv.Currency)), inv.ID)
	}
	return tw.Flush()
}

// RenderPayments writes the payment history table.
func RenderPayments(w io.Writer, payments []types.Payment) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "Date\tIntent\tMethod\tStatus\tAmount")
	for _, p := range payments {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
			p.CreatedAt.UTC().Format(dateLayout), p.IntentID, p.Method, p.Status,
			money.FormatWithCurrency(p.Amount, strings.ToUpper(p.Currency)))
	}
	return tw.Flush()
}

func lineTotal(item types.PaymentItem) decimal.Decimal {
	if !item.LineTotal.IsZero() {
		return item.LineTotal
	}
	return money.LineTotal(item.UnitPrice, item.Quantity)
}
