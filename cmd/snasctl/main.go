// Command snasctl is the administrator CLI for SNAS, talking to a running
// snas-server over the admin and user NATS subjects via pkg/client.BusClient.
// It mirrors cmd/warren's subcommand-per-resource layout (clusterCmd,
// nodeCmd, secretCmd, ...) with a userCmd in place of Warren's resource
// commands.
package main

import (
	"fmt"
	"os"
	"time"

	"github.com/cuemby/snas/pkg/client"
	"github.com/cuemby/snas/pkg/log"
	"github.com/cuemby/snas/pkg/secure"
	"github.com/nats-io/nats.go"
	"github.com/spf13/cobra"
)

var (
	Version = "dev"
	Commit  = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:     "snasctl",
	Short:   "Administer a SNAS credential authority",
	Version: Version,
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf("snasctl version %s\nCommit: %s\n", Version, Commit))

	rootCmd.PersistentFlags().String("nats-url", "nats://127.0.0.1:4222", "NATS server URL")
	rootCmd.PersistentFlags().String("admin-topic-prefix", "snas.admin", "Admin bus subject prefix")
	rootCmd.PersistentFlags().String("user-topic-prefix", "snas.user", "User bus subject prefix")
	rootCmd.PersistentFlags().Duration("timeout", 5*time.Second, "Request timeout")
	rootCmd.PersistentFlags().String("log-level", "warn", "Log level (debug, info, warn, error)")

	cobra.OnInitialize(initLogging)

	rootCmd.AddCommand(addUserCmd, getUserCmd, listUsersCmd, removeUserCmd, resetPasswordCmd, addGroupsCmd, removeGroupsCmd, setApprovalCmd, verifyCmd, changePasswordCmd)
}

func initLogging() {
	level, _ := rootCmd.PersistentFlags().GetString("log-level")
	log.Init(log.Config{Level: log.Level(level)})
}

func newBusClient(cmd *cobra.Command) (*client.BusClient, func(), error) {
	url, _ := cmd.Flags().GetString("nats-url")
	adminPrefix, _ := cmd.Flags().GetString("admin-topic-prefix")
	userPrefix, _ := cmd.Flags().GetString("user-topic-prefix")
	timeout, _ := cmd.Flags().GetDuration("timeout")

	nc, err := nats.Connect(url, nats.Name("snasctl"))
	if err != nil {
		return nil, nil, fmt.Errorf("connecting to %s: %w", url, err)
	}
	bc, err := client.NewBusClient(nc,
		client.WithAdminPrefix(adminPrefix),
		client.WithUserPrefix(userPrefix),
		client.WithRequestTimeout(timeout),
	)
	if err != nil {
		nc.Close()
		return nil, nil, err
	}
	return bc, nc.Close, nil
}

var addUserCmd = &cobra.Command{
	Use:   "add-user",
	Short: "Create a new account",
	RunE: func(cmd *cobra.Command, args []string) error {
		username, _ := cmd.Flags().GetString("username")
		password, _ := cmd.Flags().GetString("password")
		groups, _ := cmd.Flags().GetStringSlice("group")
		forceReset, _ := cmd.Flags().GetBool("force-reset")

		bc, closeFn, err := newBusClient(cmd)
		if err != nil {
			return err
		}
		defer closeFn()

		if err := bc.AddUser(cmd.Context(), username, secure.NewString(password), groups, forceReset); err != nil {
			return err
		}
		fmt.Printf("user %q created\n", username)
		return nil
	},
}

func init() {
	addUserCmd.Flags().String("username", "", "Username (required)")
	addUserCmd.Flags().String("password", "", "Initial password (required)")
	addUserCmd.Flags().StringSlice("group", nil, "Group to add the user to (repeatable)")
	addUserCmd.Flags().Bool("force-reset", false, "Require the user to change their password on first login")
	_ = addUserCmd.MarkFlagRequired("username")
	_ = addUserCmd.MarkFlagRequired("password")
}

var getUserCmd = &cobra.Command{
	Use:   "get-user [username]",
	Short: "Show an account's groups and reset phase",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		bc, closeFn, err := newBusClient(cmd)
		if err != nil {
			return err
		}
		defer closeFn()

		resp, err := bc.GetUser(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		fmt.Printf("username:       %s\n", resp.Username)
		fmt.Printf("groups:         %v\n", resp.Groups)
		fmt.Printf("needs_approval: %v\n", resp.NeedsApproval)
		fmt.Printf("reset_phase:    %s\n", resp.ResetPhase)
		return nil
	},
}

var listUsersCmd = &cobra.Command{
	Use:   "list-users",
	Short: "List every known username",
	RunE: func(cmd *cobra.Command, args []string) error {
		bc, closeFn, err := newBusClient(cmd)
		if err != nil {
			return err
		}
		defer closeFn()

		usernames, err := bc.ListUsers(cmd.Context())
		if err != nil {
			return err
		}
		for _, u := range usernames {
			fmt.Println(u)
		}
		return nil
	},
}

var removeUserCmd = &cobra.Command{
	Use:   "remove-user [username]",
	Short: "Permanently remove an account",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		bc, closeFn, err := newBusClient(cmd)
		if err != nil {
			return err
		}
		defer closeFn()

		if err := bc.RemoveUser(cmd.Context(), args[0]); err != nil {
			return err
		}
		fmt.Printf("user %q removed\n", args[0])
		return nil
	},
}

var resetPasswordCmd = &cobra.Command{
	Use:   "reset-password [username]",
	Short: "Issue a one-time temporary password",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		bc, closeFn, err := newBusClient(cmd)
		if err != nil {
			return err
		}
		defer closeFn()

		resp, err := bc.ResetPassword(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		fmt.Printf("temporary password: %s\n", resp.Token)
		fmt.Printf("expires at:         %s\n", time.Unix(resp.ExpiresAt, 0).Format(time.RFC3339))
		return nil
	},
}

var addGroupsCmd = &cobra.Command{
	Use:   "add-groups [username] [group...]",
	Short: "Add the user to one or more groups",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		bc, closeFn, err := newBusClient(cmd)
		if err != nil {
			return err
		}
		defer closeFn()

		groups, err := bc.AddGroups(cmd.Context(), args[0], args[1:])
		if err != nil {
			return err
		}
		fmt.Printf("groups: %v\n", groups)
		return nil
	},
}

var removeGroupsCmd = &cobra.Command{
	Use:   "remove-groups [username] [group...]",
	Short: "Remove the user from one or more groups",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		bc, closeFn, err := newBusClient(cmd)
		if err != nil {
			return err
		}
		defer closeFn()

		groups, err := bc.RemoveGroups(cmd.Context(), args[0], args[1:])
		if err != nil {
			return err
		}
		fmt.Printf("groups: %v\n", groups)
		return nil
	},
}

var setApprovalCmd = &cobra.Command{
	Use:   "set-approval [username] [true|false]",
	Short: "Set or clear the administrative needs_approval flag",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		approved := args[1] == "true"

		bc, closeFn, err := newBusClient(cmd)
		if err != nil {
			return err
		}
		defer closeFn()

		if err := bc.SetApproval(cmd.Context(), args[0], approved); err != nil {
			return err
		}
		fmt.Printf("user %q needs_approval set to %v\n", args[0], approved)
		return nil
	},
}

var verifyCmd = &cobra.Command{
	Use:   "verify [username] [password]",
	Short: "Check a username/password pair against the user bus (diagnostic)",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		bc, closeFn, err := newBusClient(cmd)
		if err != nil {
			return err
		}
		defer closeFn()

		resp, err := bc.Verify(cmd.Context(), args[0], secure.NewString(args[1]))
		if err != nil {
			return err
		}
		fmt.Printf("valid:                %v\n", resp.Valid)
		fmt.Printf("needs_password_reset: %v\n", resp.NeedsPasswordReset)
		if resp.Message != "" {
			fmt.Printf("message:              %s\n", resp.Message)
		}
		return nil
	},
}

var changePasswordCmd = &cobra.Command{
	Use:   "change-password [username] [old-password] [new-password]",
	Short: "Change a user's password via the user bus (diagnostic)",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		bc, closeFn, err := newBusClient(cmd)
		if err != nil {
			return err
		}
		defer closeFn()

		if err := bc.ChangePassword(cmd.Context(), args[0], secure.NewString(args[1]), secure.NewString(args[2])); err != nil {
			return err
		}
		fmt.Println("password changed")
		return nil
	},
}
