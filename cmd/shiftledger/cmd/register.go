package cmd

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/shiftledger/shiftledger/internal/device"
	"github.com/shiftledger/shiftledger/internal/erp"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

var (
	registerEmployee string
	registerEmail    string
	registerForce    bool
)

var registerCmd = &cobra.Command{
	Use:   "register",
	Short: "Bind this machine to an ERPNext employee",
	Long: `Register this machine for an employee. Pass the ERPNext Employee ID with
--employee, or an email address with --email to look the employee up in
ERPNext. Registration is done once; use --force to replace it.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if registerEmployee == "" && registerEmail == "" {
			return errors.New("one of --employee or --email is required")
		}

		store := device.NewStore(cfg.Device.Path)
		existing, err := store.Load()
		switch {
		case err == nil && !registerForce:
			return errors.Errorf("already registered as %s (use --force to replace)", existing.EmployeeID)
		case err != nil && !errors.Is(err, device.ErrNotRegistered):
			return err
		}

		var emp *erp.Employee
		if cfg.Sync.BaseURL != "" {
			if cfg.Sync.APIKey != "" && cfg.Sync.APISecret == "" && term.IsTerminal(int(os.Stdin.Fd())) {
				fmt.Printf("API secret for %s: ", cfg.Sync.APIKey)
				secret, err := term.ReadPassword(int(os.Stdin.Fd()))
				fmt.Println()
				if err != nil {
					return errors.Wrap(err, "failed to read API secret")
				}
				cfg.Sync.APISecret = strings.TrimSpace(string(secret))
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()
			emp, err = lookupEmployee(ctx)
			if err != nil {
				return err
			}
		} else if registerEmployee == "" {
			return errors.New("looking up an employee by email needs sync.base_url")
		}

		id := registerEmployee
		if emp != nil {
			id = emp.Name
		}
		dev := device.New(id)
		dev.Email = registerEmail
		if emp != nil {
			dev.EmployeeName = emp.EmployeeName
			dev.Department = emp.Department
			dev.Designation = emp.Designation
		}

		if err := store.Save(dev); err != nil {
			return err
		}

		fmt.Printf("Registered %s", dev.EmployeeID)
		if dev.EmployeeName != "" {
			fmt.Printf(" (%s)", dev.EmployeeName)
		}
		fmt.Printf("\nDevice ID: %s\nSaved to:  %s\n", dev.DeviceID, store.Path())
		return nil
	},
}

func lookupEmployee(ctx context.Context) (*erp.Employee, error) {
	client := erp.New(cfg.Sync.BaseURL, cfg.Sync.APIKey, cfg.Sync.APISecret, cfg.Sync.Timeout)

	if registerEmployee != "" {
		emp, err := client.GetEmployee(ctx, registerEmployee)
		if err != nil {
			return nil, errors.Wrapf(err, "employee %s not found in ERP", registerEmployee)
		}
		return emp, nil
	}

	emp, err := client.FindEmployeeByEmail(ctx, registerEmail)
	if err != nil {
		return nil, errors.Wrap(err, "employee lookup failed")
	}
	if emp == nil {
		return nil, errors.Errorf("no employee with email %s", registerEmail)
	}
	return emp, nil
}

func init() {
	registerCmd.Flags().StringVar(&registerEmployee, "employee", "", "ERPNext Employee ID (e.g. HR-EMP-00001)")
	registerCmd.Flags().StringVar(&registerEmail, "email", "", "employee email to look up in ERPNext")
	registerCmd.Flags().BoolVar(&registerForce, "force", false, "replace an existing registration")
}
