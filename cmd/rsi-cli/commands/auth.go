package commands

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

var (
	loginUsername string
	loginForce    bool
)

func init() {
	loginCmd.Flags().StringVar(&loginUsername, "username", "", "The account to sign in as, defaults to the config's username.")
	loginCmd.Flags().BoolVar(&loginForce, "force", false, "Sign in even if the stored session is still valid.")
	rootCmd.AddCommand(loginCmd, logoutCmd, whoamiCmd)
}

func readLine(prompt string) (string, error) {
	fmt.Fprint(os.Stderr, prompt)
	line, err := stdin.ReadString('\n')
	if err != nil && line == "" {
		return "", err
	}
	return strings.TrimSpace(line), nil
}

var loginCmd = &cobra.Command{
	Use:   "login [--username <name>] [--force]",
	Short: "Signs in and stores the session, prompting for a two-factor code if needed.",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		g := getGlobals(cmd.Context())

		username := loginUsername
		if username == "" {
			username = g.Config.Username
		}
		var err error
		if username == "" {
			username, err = readLine("username: ")
			if err != nil {
				return err
			}
		}
		password := g.Config.Password
		if password == "" {
			password, err = readLine("password: ")
			if err != nil {
				return err
			}
		}

		err = g.Site.Authenticate(cmd.Context(), username, password, loginForce)
		if err != nil {
			return err
		}
		fmt.Println("signed in as", username)
		return nil
	},
}

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Signs out and removes the stored session.",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return getGlobals(cmd.Context()).Site.Session.SignOut(cmd.Context())
	},
}

var whoamiCmd = &cobra.Command{
	Use:   "whoami",
	Short: "Reports whether the stored session is signed in.",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		site := getGlobals(cmd.Context()).Site
		ok, err := site.IsAuthenticated(cmd.Context())
		if err != nil {
			return err
		}
		if !ok {
			fmt.Println("not signed in")
			return nil
		}
		name, _ := site.Session.Token()
		fmt.Printf("signed in (%s)\n", name)
		return nil
	},
}
