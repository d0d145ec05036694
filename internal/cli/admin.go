package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"sprintboard/internal/models"
	"sprintboard/internal/scrum"
)

var (
	userRole      string
	userEmail     string
	userFirstName string
	userLastName  string

	projectDescription string
)

var userCmd = &cobra.Command{
	Use:   "user",
	Short: "Manage users",
}

var userAddCmd = &cobra.Command{
	Use:   "add <username>",
	Short: "Create a user",
	Long: `Create a user. The printed id is what API callers send in the X-User-ID header.

Roles: ADMIN, SCRUM_MASTER, PRODUCT_OWNER, DEVELOPER (default).`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		sess, err := openSession(cmd)
		if err != nil {
			return err
		}
		defer sess.Close()

		user, err := sess.manager.CreateUser(cmd.Context(), scrum.SystemCapabilities(), models.User{
			Username:  args[0],
			Email:     userEmail,
			FirstName: userFirstName,
			LastName:  userLastName,
			Role:      models.Role(userRole),
		})
		if err != nil {
			return fmt.Errorf("creating user: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Created user %d (%s, %s)\n", user.ID, user.Username, user.Role)
		return nil
	},
}

var userListCmd = &cobra.Command{
	Use:   "list",
	Short: "List users",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		sess, err := openSession(cmd)
		if err != nil {
			return err
		}
		defer sess.Close()

		users, err := sess.manager.ListUsers(cmd.Context(), scrum.SystemCapabilities())
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "%-6s %-20s %-15s\n", "ID", "USERNAME", "ROLE")
		for _, u := range users {
			fmt.Fprintf(out, "%-6d %-20s %-15s\n", u.ID, u.Username, u.Role)
		}
		return nil
	},
}

var projectCmd = &cobra.Command{
	Use:   "project",
	Short: "Manage projects",
}

var projectAddCmd = &cobra.Command{
	Use:   "add <name>",
	Short: "Create a project",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		sess, err := openSession(cmd)
		if err != nil {
			return err
		}
		defer sess.Close()

		project, err := sess.manager.CreateProject(cmd.Context(), scrum.SystemCapabilities(), args[0], projectDescription)
		if err != nil {
			return fmt.Errorf("creating project: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Created project %d (%s)\n", project.ID, project.Name)
		return nil
	},
}

func init() {
	userAddCmd.Flags().StringVar(&userRole, "role", string(models.RoleDeveloper), "Team role")
	userAddCmd.Flags().StringVar(&userEmail, "email", "", "Email address")
	userAddCmd.Flags().StringVar(&userFirstName, "first-name", "", "First name")
	userAddCmd.Flags().StringVar(&userLastName, "last-name", "", "Last name")
	userCmd.AddCommand(userAddCmd, userListCmd)

	projectAddCmd.Flags().StringVar(&projectDescription, "description", "", "Project description")
	projectCmd.AddCommand(projectAddCmd)

	rootCmd.AddCommand(userCmd, projectCmd)
}
