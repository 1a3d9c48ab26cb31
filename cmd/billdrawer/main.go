// Command billdrawer drives a bill drawer against a running clinicdesk
// API: it either builds and saves a new bill or collects a payment on a
// stored one.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
	"sync/atomic"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/clinicdesk/internal/billing/calc"
	"github.com/smallbiznis/clinicdesk/internal/billing/client"
	"github.com/smallbiznis/clinicdesk/internal/billing/domain"
	"github.com/smallbiznis/clinicdesk/internal/billing/drawer"
	"github.com/smallbiznis/clinicdesk/internal/billing/form"
	"github.com/smallbiznis/clinicdesk/internal/clock"
	"github.com/smallbiznis/clinicdesk/internal/config"
	"github.com/smallbiznis/clinicdesk/internal/observability"
	"github.com/smallbiznis/clinicdesk/internal/observability/logger"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var exitCode atomic.Int32

type options struct {
	patient  string
	doctor   string
	items    string
	discount string
	received string
	mode     string
	billID   string
	pay      string
}

func parseOptions(args []string) (options, error) {
	var opts options
	fs := flag.NewFlagSet("billdrawer", flag.ContinueOnError)
	fs.StringVar(&opts.patient, "patient", "", "patient name or MRN to search for")
	fs.StringVar(&opts.doctor, "doctor", "", "doctor name or registration number to search for")
	fs.StringVar(&opts.items, "items", "", "comma separated catalog searches, one line per match")
	fs.StringVar(&opts.discount, "discount", "0", "bill discount percent")
	fs.StringVar(&opts.received, "received", "0", "amount received at billing")
	fs.StringVar(&opts.mode, "mode", "", "payment mode")
	fs.StringVar(&opts.billID, "bill", "", "stored bill id; switches to payment collection")
	fs.StringVar(&opts.pay, "pay", "", "payment amount to collect on -bill")
	if err := fs.Parse(args); err != nil {
		return options{}, err
	}
	return opts, nil
}

func main() {
	opts, err := parseOptions(os.Args[1:])
	if err != nil {
		os.Exit(2)
	}

	app := fx.New(
		config.Module,
		fx.Provide(observability.LoadConfig),
		fx.Provide(func(cfg observability.Config) logger.Config {
			return logger.Config{
				ServiceName: cfg.ServiceName + "-drawer",
				Environment: cfg.Environment,
				Version:     cfg.Version,
				Level:       cfg.LogLevel,
				Format:      cfg.LogFormat,
			}
		}),
		fx.Provide(logger.New),
		clock.Module,
		fx.Provide(newClient),
		fx.Provide(newDeps),
		fx.Supply(opts),
		fx.Invoke(run),
		fx.NopLogger,
	)
	app.Run()
	if code := exitCode.Load(); code != 0 {
		os.Exit(int(code))
	}
}

func newClient(cfg config.Config, log *zap.Logger) (*client.Client, error) {
	return client.New(client.Config{BaseURL: cfg.APIURL, Timeout: cfg.ClientTimeout, OperatorID: cfg.OperatorID}, log)
}

func newDeps(c *client.Client, billing *config.BillingConfigHolder, clk clock.Clock, log *zap.Logger) drawer.Deps {
	settings := billing.Get()
	return drawer.Deps{
		Gateway:         c,
		Catalog:         c,
		Parties:         c,
		Rules:           form.Rules{PaymentModes: settings.PaymentModes},
		Clock:           clk,
		Log:             log,
		SearchDebounce:  settings.SearchDebounce(),
		CatalogPageSize: settings.SearchPageSize,
		DefaultBillType: settings.DefaultBillType,
	}
}

func run(lc fx.Lifecycle, shutdowner fx.Shutdowner, deps drawer.Deps, opts options, log *zap.Logger) {
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			go func() {
				ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
				defer cancel()

				var err error
				if opts.billID != "" {
					err = collect(ctx, deps, opts)
				} else {
					err = create(ctx, deps, opts)
				}
				if err != nil {
					log.Error("drawer run failed", zap.Error(err))
					fmt.Fprintln(os.Stderr, err)
					exitCode.Store(1)
				}
				_ = shutdowner.Shutdown()
			}()
			return nil
		},
	})
}

func create(ctx context.Context, deps drawer.Deps, opts options) error {
	d := drawer.NewCreate(deps)
	defer d.Close()

	patient, err := firstMatch(d.SearchPatients(ctx, opts.patient))
	if err != nil {
		return fmt.Errorf("patient %q: %w", opts.patient, err)
	}
	doctor, err := firstMatch(d.SearchDoctors(ctx, opts.doctor))
	if err != nil {
		return fmt.Errorf("doctor %q: %w", opts.doctor, err)
	}
	if err := d.SelectPatient(patient); err != nil {
		return err
	}
	if err := d.SelectDoctor(doctor); err != nil {
		return err
	}

	for _, term := range strings.Split(opts.items, ",") {
		term = strings.TrimSpace(term)
		if term == "" {
			continue
		}
		entry, err := firstMatch(d.SearchCatalog(ctx, term))
		if err != nil {
			return fmt.Errorf("item %q: %w", term, err)
		}
		if err := d.AddFromCatalog(entry); err != nil {
			return err
		}
	}

	discount, err := decimal.NewFromString(opts.discount)
	if err != nil {
		return fmt.Errorf("discount: %w", err)
	}
	received, err := decimal.NewFromString(opts.received)
	if err != nil {
		return fmt.Errorf("received: %w", err)
	}
	actions := []calc.Action{
		calc.SetDiscountPercent{Percent: discount},
		calc.SetReceivedAmount{Amount: received},
	}
	if opts.mode != "" {
		actions = append(actions, calc.SetPaymentMode{Mode: opts.mode})
	}
	for _, action := range actions {
		if err := d.Dispatch(action); err != nil {
			return err
		}
	}

	return report(d, d.Submit(ctx))
}

func collect(ctx context.Context, deps drawer.Deps, opts options) error {
	id, err := snowflake.ParseString(opts.billID)
	if err != nil {
		return fmt.Errorf("bill id: %w", err)
	}

	d, err := drawer.Open(ctx, deps, id, domain.ModeCollect)
	if err != nil {
		return err
	}
	defer d.Close()

	draft := domain.PaymentDraft{Amount: opts.pay, Mode: opts.mode}
	if draft.Mode == "" {
		draft.Mode = d.State().Bill.PaymentMode
	}
	if err := d.SetPaymentDraft(draft); err != nil {
		return err
	}
	preview := d.PaymentPreview()
	fmt.Printf("after payment: balance %s (%s)\n", preview.BalanceAmount.StringFixed(2), preview.PaymentStatus)

	return report(d, d.Submit(ctx))
}

func report(d *drawer.Drawer, outcome drawer.Outcome) error {
	switch outcome.Status {
	case drawer.StatusSaved:
		bill := d.State().Bill
		fmt.Printf("%s  total %s  received %s  balance %s  %s\n",
			bill.BillNumber,
			bill.TotalAmount.StringFixed(2),
			bill.ReceivedAmount.StringFixed(2),
			bill.BalanceAmount.StringFixed(2),
			bill.PaymentStatus,
		)
		return nil
	case drawer.StatusInvalid:
		for field, msg := range outcome.Errors {
			fmt.Fprintf(os.Stderr, "%s: %s\n", field, msg)
		}
		return errors.New("bill is not valid")
	default:
		return errors.New(outcome.Notice)
	}
}

func firstMatch[T any](results []T, err error) (T, error) {
	var zero T
	if err != nil {
		return zero, err
	}
	if len(results) == 0 {
		return zero, errors.New("no match")
	}
	return results[0], nil
}
