package commands

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"unicode"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// InteractiveCmd creates the interactive command
func InteractiveCmd(app *AppContext) *cobra.Command {
	return &cobra.Command{
		Use:   "interactive",
		Short: "Start an interactive session (sign in once, run multiple commands)",
		Long: `Start an interactive session where you can run multiple commands with a single sign-in.
The session will keep running until you type 'exit' or 'quit'.

Type 'help' to see available commands.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := app.out()
			fmt.Fprintln(out, "\nStarting interactive session...")
			fmt.Fprintln(out, "Type 'help' for available commands, 'exit' or 'quit' to leave")

			// Sibling commands, excluding the ones that make no sense inside a session
			commands := make(map[string]*cobra.Command)
			for _, sub := range cmd.Parent().Commands() {
				switch sub.Name() {
				case "interactive", "completion", "help", "serve":
					continue
				}
				commands[sub.Name()] = sub
			}

			in := app.input()
			for {
				fmt.Fprint(out, "> ")

				line, err := in.ReadString('\n')
				if err != nil && line == "" {
					if err == io.EOF {
						return nil
					}
					return fmt.Errorf("error reading input: %w", err)
				}
				line = strings.TrimSpace(line)
				if line == "" {
					continue
				}

				parts, err := parseCommandLine(line)
				if err != nil {
					fmt.Fprintf(out, "✗ Error parsing command: %v\n\n", err)
					continue
				}
				if len(parts) == 0 {
					continue
				}
				name, cmdArgs := parts[0], parts[1:]

				switch name {
				case "exit", "quit":
					fmt.Fprintln(out, "Goodbye!")
					return nil
				case "help":
					printInteractiveHelp(out, commands)
					continue
				case "whoami":
					if app.Session != nil && app.Session.User() != nil {
						u := app.Session.User()
						fmt.Fprintf(out, "%s <%s> %s\n\n", u.FullName(), u.Email, u.Roles)
					} else {
						fmt.Fprintln(out, "Not signed in")
					}
					continue
				case "logout":
					if err := app.SignOut(); err != nil {
						fmt.Fprintf(out, "✗ Error: %v\n\n", err)
					}
					continue
				}

				target, ok := commands[name]
				if !ok {
					fmt.Fprintf(out, "✗ Unknown command: %s (type 'help' for available commands)\n\n", name)
					continue
				}
				if err := runInSession(target, cmdArgs); err != nil {
					fmt.Fprintf(out, "✗ Error: %v\n\n", err)
				}
			}
		},
	}
}

// runInSession executes a command's RunE directly so PersistentPreRunE does not
// build a second AppContext. Subcommands (users list) are resolved first.
func runInSession(target *cobra.Command, args []string) error {
	if target.HasSubCommands() {
		found, rest, err := target.Find(args)
		if err != nil {
			return err
		}
		if found == target {
			return fmt.Errorf("%s needs a subcommand", target.Name())
		}
		target, args = found, rest
	}

	target.Flags().VisitAll(func(flag *pflag.Flag) {
		if flag.Changed {
			_ = flag.Value.Set(flag.DefValue)
			flag.Changed = false
		}
	})

	if err := target.ParseFlags(args); err != nil {
		return fmt.Errorf("error parsing flags: %w", err)
	}
	args = target.Flags().Args()

	if target.Args != nil {
		if err := target.Args(target, args); err != nil {
			return err
		}
	}

	switch {
	case target.RunE != nil:
		return target.RunE(target, args)
	case target.Run != nil:
		target.Run(target, args)
	}
	return nil
}

func printInteractiveHelp(out io.Writer, commands map[string]*cobra.Command) {
	fmt.Fprintln(out, "\nAvailable commands:")

	names := make([]string, 0, len(commands))
	for name := range commands {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		cmd := commands[name]
		fmt.Fprintf(out, "  %-34s %s\n", cmd.Use, cmd.Short)
		for _, sub := range cmd.Commands() {
			fmt.Fprintf(out, "    %-32s %s\n", sub.Use, sub.Short)
		}
	}

	fmt.Fprintln(out, "\n  whoami                             Show the signed-in user")
	fmt.Fprintln(out, "  logout                             Sign out; the next command signs in again")
	fmt.Fprintln(out, "  help                               Show this help message")
	fmt.Fprintln(out, "  exit, quit                         Exit the interactive session")
}

// parseCommandLine splits a command line into arguments, respecting quoted strings.
// Supports both single and double quotes.
func parseCommandLine(line string) ([]string, error) {
	var args []string
	var current strings.Builder
	var inQuote rune

	for _, r := range line {
		switch {
		case inQuote != 0:
			if r == inQuote {
				inQuote = 0
			} else {
				current.WriteRune(r)
			}
		case r == '"' || r == '\'':
			inQuote = r
		case unicode.IsSpace(r):
			if current.Len() > 0 {
				args = append(args, current.String())
				current.Reset()
			}
		default:
			current.WriteRune(r)
		}
	}
	if inQuote != 0 {
		return nil, fmt.Errorf("unclosed quote: %c", inQuote)
	}

	if current.Len() > 0 {
		args = append(args, current.String())
	}
	return args, nil
}
