package cmd

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/unza/counseling-identity/internal/core/domain"
	"github.com/unza/counseling-identity/internal/core/ports"
)

var adminCmd = &cobra.Command{
	Use:   "admin",
	Short: "Manage internal accounts from the server",
}

var bootstrapCmd = &cobra.Command{
	Use:   "bootstrap",
	Short: "Create or repair the initial administrator account",
	Long: `Ensures the ADMIN and SUPER_ADMIN roles exist and that the account named by
ADMIN_EMAIL holds both. Safe to run repeatedly; an existing account keeps its
password and roles.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := newApp(ctx, cfg, log)
		if err != nil {
			return err
		}
		defer a.Close(ctx)

		u, err := a.bootstrapAdmin(ctx, cfg.Admin)
		if err != nil {
			return fmt.Errorf("bootstrap failed: %w", err)
		}
		return printUser(cmd, u)
	},
}

var (
	emailFlag     string
	usernameFlag  string
	passwordFlag  string
	firstNameFlag string
	lastNameFlag  string
	rolesInput    []string
	stdinFlag     bool
)

var createUserCmd = &cobra.Command{
	Use:   "create-user",
	Short: "Create an internal account",
	RunE: func(cmd *cobra.Command, args []string) error {
		if emailFlag == "" {
			return fmt.Errorf("--email flag is required")
		}
		if usernameFlag == "" {
			return fmt.Errorf("--username flag is required")
		}

		password := passwordFlag
		if stdinFlag {
			scanner := bufio.NewScanner(os.Stdin)
			fmt.Fprint(cmd.ErrOrStderr(), "Enter password: ")
			if scanner.Scan() {
				password = strings.TrimSpace(scanner.Text())
			}
			if err := scanner.Err(); err != nil {
				return fmt.Errorf("failed to read password: %w", err)
			}
		}
		if password == "" {
			return fmt.Errorf("a password is required (--password or --stdin)")
		}

		roles := make([]domain.RoleName, 0, len(rolesInput))
		for _, r := range rolesInput {
			name, err := domain.ParseRoleName(r)
			if err != nil {
				return err
			}
			roles = append(roles, name)
		}

		ctx := cmd.Context()
		a, err := newApp(ctx, cfg, log)
		if err != nil {
			return err
		}
		defer a.Close(ctx)

		u, err := a.admin.CreateUser(ctx, ports.CreateUserInput{
			Username:  usernameFlag,
			Email:     emailFlag,
			Password:  password,
			FirstName: firstNameFlag,
			LastName:  lastNameFlag,
			Roles:     roles,
		})
		if err != nil {
			return fmt.Errorf("create user failed: %w", err)
		}
		return printUser(cmd, u)
	},
}

func printUser(cmd *cobra.Command, u *domain.User) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(u)
}

func init() {
	createUserCmd.Flags().StringVar(&emailFlag, "email", "", "Email address of the user")
	createUserCmd.Flags().StringVar(&usernameFlag, "username", "", "Username of the user")
	createUserCmd.Flags().StringVar(&passwordFlag, "password", "", "Password for the user (use --stdin to avoid shell history)")
	createUserCmd.Flags().StringVar(&firstNameFlag, "first-name", "", "First name")
	createUserCmd.Flags().StringVar(&lastNameFlag, "last-name", "", "Last name")
	createUserCmd.Flags().StringSliceVar(&rolesInput, "role", []string{}, "Role(s) to assign; defaults to the internal provisioning role")
	createUserCmd.Flags().BoolVar(&stdinFlag, "stdin", false, "Read password from stdin instead of --password flag")

	adminCmd.AddCommand(bootstrapCmd)
	adminCmd.AddCommand(createUserCmd)
}
