package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/mmynk/blocsheet/internal/export"
	"github.com/mmynk/blocsheet/internal/handler"
	"github.com/mmynk/blocsheet/internal/models"
	"github.com/mmynk/blocsheet/internal/service"
	"github.com/mmynk/blocsheet/internal/structure"
)

func (app *App) serveCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			provider, err := structure.FileProvider(app.cfg.StructurePath)
			if err != nil {
				return err
			}
			srv := &http.Server{
				Addr:              app.cfg.HTTPAddr,
				Handler:           handler.New(app.service(provider), app.metrics).Routes(),
				ReadHeaderTimeout: 10 * time.Second,
			}

			errCh := make(chan error, 1)
			go func() {
				slog.Info("HTTP server starting", "address", srv.Addr, "store", app.cfg.Store)
				errCh <- srv.ListenAndServe()
			}()

			select {
			case err := <-errCh:
				if errors.Is(err, http.ErrServerClosed) {
					return nil
				}
				return fmt.Errorf("server failed: %w", err)
			case <-cmd.Context().Done():
			}

			slog.Info("Shutting down HTTP server", "timeout", app.cfg.ShutdownTimeout)
			ctx, cancel := context.WithTimeout(context.Background(), app.cfg.ShutdownTimeout)
			defer cancel()
			return srv.Shutdown(ctx)
		},
	}
}

func (app *App) initCommand() *cobra.Command {
	var association, period, structurePath, notes string
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Open the first sheet of an association, or the next one after a publish",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if structurePath == "" {
				structurePath = app.cfg.StructurePath
			}
			provider, err := structure.FileProvider(structurePath)
			if err != nil {
				return err
			}
			sheet, err := app.service(provider).CreateSheet(cmd.Context(), service.CreateSheetInput{
				AssociationID: association,
				Period:        period,
				Notes:         notes,
			})
			if err != nil {
				return err
			}
			fmt.Fprint(app.out, pterm.Success.Sprintfln("Sheet %s opened for %s, period %s", sheet.ID, association, sheet.Period))
			return nil
		},
	}
	cmd.Flags().StringVarP(&association, "association", "a", "", "Association id")
	cmd.Flags().StringVarP(&period, "period", "p", "", "Billing period, e.g. 2025-03")
	cmd.Flags().StringVarP(&structurePath, "structure", "s", "", "YAML or XLSX structure file (default STRUCTURE_PATH)")
	cmd.Flags().StringVar(&notes, "notes", "", "Free-form notes kept on the sheet")
	_ = cmd.MarkFlagRequired("association")
	_ = cmd.MarkFlagRequired("period")
	return cmd
}

func (app *App) sheetsCommand() *cobra.Command {
	var association string
	cmd := &cobra.Command{
		Use:   "sheets",
		Short: "List the sheets of an association",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			sheets, err := app.service(structure.NoSource{}).ListSheets(cmd.Context(), association)
			if err != nil {
				return err
			}
			if len(sheets) == 0 {
				fmt.Fprint(app.out, pterm.Warning.Sprintfln("No sheets for %s", association))
				return nil
			}
			return app.render(sheetsTable(sheets))
		},
	}
	cmd.Flags().StringVarP(&association, "association", "a", "", "Association id")
	_ = cmd.MarkFlagRequired("association")
	return cmd
}

func (app *App) expenseCommand() *cobra.Command {
	var sheetID, name, policy string
	var amount, unitPrice float64
	cmd := &cobra.Command{
		Use:   "expense",
		Short: "Add an expense billed as a total to an in-progress sheet",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			e := models.Expense{
				Name:      name,
				Policy:    models.DistributionPolicy(policy),
				Amount:    amount,
				UnitPrice: unitPrice,
			}
			if e.Policy == models.PolicyConsumption {
				e.Amount, e.InvoicedAmount = 0, amount
			}
			added, err := app.service(structure.NoSource{}).AddExpense(cmd.Context(), sheetID, e)
			if err != nil {
				return err
			}
			fmt.Fprint(app.out, pterm.Success.Sprintfln("Expense %s added as %s", added.Name, added.ID))
			return nil
		},
	}
	cmd.Flags().StringVar(&sheetID, "sheet", "", "Sheet id")
	cmd.Flags().StringVar(&name, "name", "", "Expense name")
	cmd.Flags().StringVar(&policy, "policy", string(models.PolicyPerUnit), "perUnit, perPerson, bySurface, individualAmount or consumption")
	cmd.Flags().Float64Var(&amount, "amount", 0, "Billed total; the supplier invoice for consumption expenses")
	cmd.Flags().Float64Var(&unitPrice, "unit-price", 0, "Price per consumption unit")
	_ = cmd.MarkFlagRequired("sheet")
	_ = cmd.MarkFlagRequired("name")
	return cmd
}

func (app *App) tableCommand() *cobra.Command {
	var sheetID, xlsxPath string
	cmd := &cobra.Command{
		Use:   "table",
		Short: "Show the maintenance table of a sheet",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			svc := app.service(structure.NoSource{})
			sheet, err := svc.GetSheet(cmd.Context(), sheetID)
			if err != nil {
				return err
			}
			rows, err := svc.ComputeMaintenanceTable(cmd.Context(), sheetID)
			if err != nil {
				return err
			}
			if err := app.render(maintenanceTable(rows)); err != nil {
				return err
			}
			if xlsxPath == "" {
				return nil
			}
			data, err := export.MaintenanceXLSX(sheet, rows)
			if err != nil {
				return err
			}
			if err := os.WriteFile(xlsxPath, data, 0o644); err != nil {
				return fmt.Errorf("failed to write %s: %w", xlsxPath, err)
			}
			fmt.Fprint(app.out, pterm.Success.Sprintfln("Table written to %s", xlsxPath))
			return nil
		},
	}
	cmd.Flags().StringVar(&sheetID, "sheet", "", "Sheet id")
	cmd.Flags().StringVar(&xlsxPath, "xlsx", "", "Also write the table to this XLSX file")
	_ = cmd.MarkFlagRequired("sheet")
	return cmd
}

func (app *App) validateCommand() *cobra.Command {
	var sheetID string
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Check whether a sheet can be published",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			result, err := app.service(structure.NoSource{}).CanPublish(cmd.Context(), sheetID)
			if err != nil {
				return err
			}
			if err := app.renderIssues(result); err != nil {
				return err
			}
			if !result.OK() {
				return fmt.Errorf("sheet %s has %d blocking issues", sheetID, len(result.Errors))
			}
			fmt.Fprint(app.out, pterm.Success.Sprintfln("Sheet %s can be published", sheetID))
			return nil
		},
	}
	cmd.Flags().StringVar(&sheetID, "sheet", "", "Sheet id")
	_ = cmd.MarkFlagRequired("sheet")
	return cmd
}

func (app *App) publishCommand() *cobra.Command {
	var sheetID string
	var penaltyRate float64
	cmd := &cobra.Command{
		Use:   "publish",
		Short: "Publish a sheet and open its successor",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			in := service.PublishInput{PublishedBy: app.operator(cmd)}
			if cmd.Flags().Changed("penalty-rate") {
				p := app.cfg.Penalty()
				p.Rate = penaltyRate
				in.Penalty = &p
			}
			successorID, err := app.service(structure.NoSource{}).Publish(cmd.Context(), sheetID, in)
			var vErr *service.ValidationError
			if errors.As(err, &vErr) {
				if rerr := app.renderIssues(vErr.Result); rerr != nil {
					return rerr
				}
			}
			if err != nil {
				return err
			}
			fmt.Fprint(app.out, pterm.Success.Sprintfln("Sheet %s published; next sheet is %s", sheetID, successorID))
			return nil
		},
	}
	cmd.Flags().StringVar(&sheetID, "sheet", "", "Sheet id")
	cmd.Flags().Float64Var(&penaltyRate, "penalty-rate", 0, "Override the penalty rate applied to carried arrears")
	_ = cmd.MarkFlagRequired("sheet")
	return cmd
}

func (app *App) payCommand() *cobra.Command {
	var sheetID, unitID, note string
	var amount float64
	cmd := &cobra.Command{
		Use:   "pay",
		Short: "Record a payment against a published sheet",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			p, err := app.service(structure.NoSource{}).RecordPayment(cmd.Context(), sheetID, models.Payment{
				UnitID:     unitID,
				Amount:     amount,
				Note:       note,
				RecordedBy: app.operator(cmd),
			})
			if err != nil {
				return err
			}
			fmt.Fprint(app.out, pterm.Success.Sprintfln("Payment %s of %s recorded for unit %s", p.ID, money(p.Amount), p.UnitID))
			return nil
		},
	}
	cmd.Flags().StringVar(&sheetID, "sheet", "", "Published sheet id")
	cmd.Flags().StringVar(&unitID, "unit", "", "Unit id")
	cmd.Flags().Float64Var(&amount, "amount", 0, "Amount received")
	cmd.Flags().StringVar(&note, "note", "", "Receipt number or other note")
	_ = cmd.MarkFlagRequired("sheet")
	_ = cmd.MarkFlagRequired("unit")
	_ = cmd.MarkFlagRequired("amount")
	return cmd
}

func (app *App) balanceCommand() *cobra.Command {
	var sheetID, unitID string
	cmd := &cobra.Command{
		Use:   "balance",
		Short: "Show what a unit owes on a sheet",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			b, err := app.service(structure.NoSource{}).ComputeUnitBalance(cmd.Context(), sheetID, unitID)
			if err != nil {
				return err
			}
			return app.render(pterm.TableData{
				{"Unit", "Original", "Paid", "Remaining"},
				{unitID, money(b.Original), money(b.Paid), money(b.Remaining)},
			})
		},
	}
	cmd.Flags().StringVar(&sheetID, "sheet", "", "Sheet id")
	cmd.Flags().StringVar(&unitID, "unit", "", "Unit id")
	_ = cmd.MarkFlagRequired("sheet")
	_ = cmd.MarkFlagRequired("unit")
	return cmd
}
