package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/joho/godotenv"

	"github.com/medimart/storefront/internal/storefront/app"
	"github.com/medimart/storefront/internal/storefront/cart"
	"github.com/medimart/storefront/internal/storefront/checkout"
	"github.com/medimart/storefront/internal/storefront/invoice"
	"github.com/medimart/storefront/pkg/config"
	"github.com/medimart/storefront/pkg/enums"
	"github.com/medimart/storefront/pkg/logger"
)

const closeTimeout = 10 * time.Second

const usage = `usage: storefront <command> [flags]

commands:
  signup     -username -email -password [-photo] [-role user|seller]
  login      -email -password
  logout
  whoami
  medicines  [-category name]
  cart       show | add <medicine-id> | inc <id> | dec <id> | rm <id> | clear
  checkout   -card -exp-month -exp-year -cvc
  invoice    <invoice-id> [-csv]
  orders
  payments   [-all]
`

func main() {
	logg := logger.New(logger.Options{ServiceName: "storefront", Output: os.Stderr})

	_ = godotenv.Load()

	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	cfg, err := config.LoadStorefront()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}
	logg = logger.New(logger.Options{
		ServiceName: "storefront",
		Level:       logger.ParseLevel(cfg.LogLevel),
		Output:      os.Stderr,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logg, os.Args[1], os.Args[2:], os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.StorefrontConfig, logg *logger.Logger, command string, args []string, out io.Writer) (err error) {
	a, err := app.New(ctx, cfg, logg)
	if err != nil {
		return err
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), closeTimeout)
		defer cancel()
		if cerr := a.Close(closeCtx); cerr != nil {
			logg.Error(closeCtx, "storefront shutdown", cerr)
		}
	}()
	if err := a.Start(ctx); err != nil {
		return err
	}

	switch command {
	case "signup":
		return signUp(ctx, a, args, out)
	case "login":
		return logIn(ctx, a, args, out)
	case "logout":
		if err := a.SignOut(ctx); err != nil {
			return err
		}
		fmt.Fprintln(out, "signed out")
		return nil
	case "whoami":
		return whoAmI(a, out)
	case "medicines":
		return listMedicines(ctx, a, args, out)
	case "cart":
		return cartCommand(ctx, a, args, out)
	case "checkout":
		return checkoutCommand(ctx, a, args, out)
	case "invoice":
		return showInvoice(ctx, a, args, out)
	case "orders":
		orders, err := a.Invoices.Orders(ctx)
		if err != nil {
			return err
		}
		return invoice.RenderOrders(out, orders)
	case "payments":
		return listPayments(ctx, a, args, out)
	default:
		return fmt.Errorf("unknown command %q\n%s", command, usage)
	}
}

func signUp(ctx context.Context, a *app.App, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("signup", flag.ContinueOnError)
	username := fs.String("username", "", "display name")
	email := fs.String("email", "", "email address")
	password := fs.String("password", "", "password, at least 6 characters")
	photo := fs.String("photo", "", "profile photo URL")
	role := fs.String("role", string(enums.RoleUser), "user or seller")
	if err := fs.Parse(args); err != nil {
		return err
	}
	parsedRole, err := enums.ParseRole(*role)
	if err != nil {
		return err
	}
	s, err := a.SignUp(ctx, app.SignUpInput{
		Username: *username,
		Email:    *email,
		Password: *password,
		PhotoURL: *photo,
		Role:     parsedRole,
	})
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "welcome %s (%s)\n", s.DisplayName, s.Role)
	return nil
}

func logIn(ctx context.Context, a *app.App, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("login", flag.ContinueOnError)
	email := fs.String("email", "", "email address")
	password := fs.String("password", "", "password")
	if err := fs.Parse(args); err != nil {
		return err
	}
	s, err := a.SignIn(ctx, *email, *password)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "signed in as %s (%s)\n", s.Email, s.Role)
	return nil
}

func whoAmI(a *app.App, out io.Writer) error {
	s, ok := a.Sessions.Current()
	if !ok {
		fmt.Fprintln(out, "guest")
		return nil
	}
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "name\t%s\n", s.DisplayName)
	fmt.Fprintf(tw, "email\t%s\n", s.Email)
	fmt.Fprintf(tw, "role\t%s\n", s.Role)
	fmt.Fprintf(tw, "user id\t%s\n", s.BackendID)
	return tw.Flush()
}

func listMedicines(ctx context.Context, a *app.App, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("medicines", flag.ContinueOnError)
	category := fs.String("category", "", "filter by category")
	if err := fs.Parse(args); err != nil {
		return err
	}
	meds, err := a.Backend.ListMedicines(ctx, *category)
	if err != nil {
		return err
	}
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tBRAND\tCATEGORY\tPRICE")
	for _, m := range meds {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", m.ID, m.Name, m.Brand, m.Category, m.Price.StringFixed(2))
	}
	return tw.Flush()
}

func cartCommand(ctx context.Context, a *app.App, args []string, out io.Writer) error {
	action := "show"
	if len(args) > 0 {
		action = args[0]
	}
	id := ""
	if len(args) > 1 {
		id = strings.TrimSpace(args[1])
	}
	needsID := action == "add" || action == "inc" || action == "dec" || action == "rm"
	if needsID && id == "" {
		return fmt.Errorf("cart %s: medicine id is required", action)
	}

	switch action {
	case "show":
		return renderCart(a.Cart.Snapshot(), out)
	case "add":
		m, err := a.Backend.GetMedicine(ctx, id)
		if err != nil {
			return err
		}
		if err := a.Cart.AddOrIncrement(cart.Product{ID: m.ID, Name: m.Name, Brand: m.Brand, Image: m.ImageURL, Price: m.Price}); err != nil {
			return err
		}
	case "inc":
		if !a.Cart.Increment(id) {
			return fmt.Errorf("cart: %s is not in the cart", id)
		}
	case "dec":
		if !a.Cart.Decrement(id) {
			return fmt.Errorf("cart: %s is not in the cart", id)
		}
	case "rm":
		if !a.Cart.Remove(id) {
			return fmt.Errorf("cart: %s is not in the cart", id)
		}
	case "clear":
		a.Cart.Clear()
	default:
		return fmt.Errorf("unknown cart action %q", action)
	}
	return renderCart(a.Cart.Snapshot(), out)
}

func renderCart(lines []cart.Line, out io.Writer) error {
	if len(lines) == 0 {
		fmt.Fprintln(out, "cart is empty")
		return nil
	}
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tQTY\tPRICE\tSUBTOTAL")
	for _, l := range lines {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%s\t%s\n", l.ProductID, l.Name, l.Quantity, l.UnitPrice.StringFixed(2), l.Subtotal().StringFixed(2))
	}
	fmt.Fprintf(tw, "\t\t\tTOTAL\t%s\n", cart.Total(lines).StringFixed(2))
	return tw.Flush()
}

func checkoutCommand(ctx context.Context, a *app.App, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("checkout", flag.ContinueOnError)
	number := fs.String("card", "", "card number")
	month := fs.Int("exp-month", 0, "expiry month")
	year := fs.Int("exp-year", 0, "expiry year")
	cvc := fs.String("cvc", "", "card security code")
	if err := fs.Parse(args); err != nil {
		return err
	}

	order, err := a.Checkout.Submit(ctx, checkout.CardDetails{
		Number:   *number,
		ExpMonth: *month,
		ExpYear:  *year,
		CVC:      *cvc,
	})
	var failure *checkout.Failure
	if errors.As(err, &failure) {
		fmt.Fprintf(out, "checkout failed at %s: %s\n", failure.Step, failure.Reason)
		if !failure.Retryable() && order != nil {
			fmt.Fprintf(out, "contact support with order %s (payment %s)\n", order.ID, order.PaymentIntentID)
		}
		return err
	}
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "paid %s %s\n", order.Total.StringFixed(2), strings.ToUpper(order.Currency))
	fmt.Fprintf(out, "invoice %s\n", order.InvoiceID)
	return nil
}

func showInvoice(ctx context.Context, a *app.App, args []string, out io.Writer) error {
	if len(args) == 0 {
		return errors.New("invoice: id is required")
	}
	id := args[0]
	fs := flag.NewFlagSet("invoice", flag.ContinueOnError)
	asCSV := fs.Bool("csv", false, "export as CSV")
	if err := fs.Parse(args[1:]); err != nil {
		return err
	}
	inv, err := a.Invoices.Fetch(ctx, id)
	if err != nil {
		return err
	}
	if *asCSV {
		return invoice.ExportCSV(out, inv)
	}
	return invoice.RenderText(out, inv)
}

func listPayments(ctx context.Context, a *app.App, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("payments", flag.ContinueOnError)
	all := fs.Bool("all", a.Sessions.Role() == enums.RoleAdmin, "list every customer's payments (admin)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	payments, err := a.Invoices.Payments(ctx, *all)
	if err != nil {
		return err
	}
	return invoice.RenderPayments(out, payments)
}
