package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/ehr/queue/internal/domain/queue"
)

// console renders queue operations as text for the one-shot commands and the
// interactive menu.
type console struct {
	svc *queue.Service
	out io.Writer
}

func (c *console) add(ctx context.Context, name string, age int, priority queue.Priority) error {
	p, err := c.svc.AdmitPatient(ctx, name, age, priority)
	if err != nil {
		var verr *queue.ValidationError
		if errors.As(err, &verr) {
			fmt.Fprintf(c.out, "Error: %s.\n", capitalize(verr.Reason))
			return nil
		}
		return err
	}
	fmt.Fprintf(c.out, "Patient added successfully with ID: %d\n", p.ID)
	return nil
}

func (c *console) serve(ctx context.Context) error {
	p, ok, err := c.svc.ServeNext(ctx)
	if err != nil {
		return err
	}
	if !ok {
		fmt.Fprintln(c.out, "No patients in queue.")
		return nil
	}
	fmt.Fprintf(c.out, "Served patient: %s (ID: %d)\n", p.Name, p.ID)
	return nil
}

func (c *console) sort(ctx context.Context) {
	c.svc.Sort(ctx)
	fmt.Fprintln(c.out, "Queue sorted by priority.")
}

func (c *console) display() {
	fmt.Fprintln(c.out, "\nCurrent Queue:")
	tw := tabwriter.NewWriter(c.out, 0, 8, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tName\tAge\tPriority")
	for _, p := range c.svc.Display() {
		fmt.Fprintf(tw, "%d\t%s\t%d\t%s\n", p.ID, p.Name, p.Age, p.Priority)
	}
	tw.Flush()
}

func (c *console) clear(ctx context.Context) error {
	n, err := c.svc.Clear(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(c.out, "Queue cleared (%d removed).\n", n)
	return nil
}

func (c *console) served(ctx context.Context, limit, offset int) error {
	items, total, err := c.svc.Served(ctx, limit, offset)
	if err != nil {
		return err
	}
	fmt.Fprintf(c.out, "Served patients (%d total):\n", total)
	tw := tabwriter.NewWriter(c.out, 0, 8, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tName\tAge\tPriority\tServed At")
	for _, r := range items {
		servedAt := ""
		if r.ServedAt != nil {
			servedAt = r.ServedAt.Local().Format("2006-01-02 15:04:05")
		}
		fmt.Fprintf(tw, "%d\t%s\t%d\t%s\t%s\n", r.ID, r.Name, r.Age, r.Priority, servedAt)
	}
	tw.Flush()
	return nil
}

func (c *console) removeServed(ctx context.Context, id int) error {
	found, err := c.svc.RemoveServed(ctx, id)
	if err != nil {
		return err
	}
	if !found {
		fmt.Fprintf(c.out, "Patient with ID %d not found in served list.\n", id)
		return nil
	}
	fmt.Fprintf(c.out, "Patient with ID %d removed from served list.\n", id)
	return nil
}

const menuText = `
--- Patient Queue Menu ---
1. Add Patient
2. Serve Patient
3. Sort by Priority
4. Display
5. Clear Queue
6. Exit
Enter choice: `

// menu runs the interactive loop until the user picks Exit or in is
// exhausted. Store errors are reported and the loop continues.
func (c *console) menu(ctx context.Context, in io.Reader) error {
	sc := bufio.NewScanner(in)
	prompt := func(label string) (string, bool) {
		fmt.Fprint(c.out, label)
		if !sc.Scan() {
			return "", false
		}
		return strings.TrimSpace(sc.Text()), true
	}

	for {
		choice, ok := prompt(menuText)
		if !ok {
			return sc.Err()
		}

		var err error
		switch choice {
		case "1":
			err = c.menuAdd(ctx, prompt)
		case "2":
			err = c.serve(ctx)
		case "3":
			c.sort(ctx)
		case "4":
			c.display()
		case "5":
			err = c.clear(ctx)
		case "6":
			fmt.Fprintln(c.out, "Goodbye!")
			return nil
		default:
			fmt.Fprintln(c.out, "Invalid choice!")
		}
		if err != nil {
			fmt.Fprintf(c.out, "Error: %v\n", err)
		}
	}
}

func (c *console) menuAdd(ctx context.Context, prompt func(string) (string, bool)) error {
	name, ok := prompt("Enter full name: ")
	if !ok {
		return nil
	}
	if name == "" {
		fmt.Fprintln(c.out, "Error: Name cannot be empty.")
		return nil
	}

	raw, ok := prompt("Enter age: ")
	if !ok {
		return nil
	}
	age, err := strconv.Atoi(raw)
	if err != nil || age < queue.MinAge || age > queue.MaxAge {
		fmt.Fprintf(c.out, "Error: Invalid age (must be %d-%d).\n", queue.MinAge, queue.MaxAge)
		return nil
	}

	raw, ok = prompt("Enter priority (1=High,2=Medium,3=Low): ")
	if !ok {
		return nil
	}
	prio, err := strconv.Atoi(raw)
	if err != nil || !queue.Priority(prio).Valid() {
		fmt.Fprintln(c.out, "Error: Invalid priority (must be 1, 2, or 3).")
		return nil
	}

	return c.add(ctx, name, age, queue.Priority(prio))
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

// withConsole opens the queue for a single command and closes it afterwards.
func withConsole(cmd *cobra.Command, fn func(ctx context.Context, c *console) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	// keep stdout for the command's own output
	logger := newLogger(os.Stderr, cfg)

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	svc, pool, err := openService(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer pool.Close()

	return fn(ctx, &console{svc: svc, out: cmd.OutOrStdout()})
}

func queueCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "queue",
		Short: "Work with the waiting list from the terminal",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "add <name> <age> <priority>",
		Short: "Admit a patient (priority 1=High, 2=Medium, 3=Low)",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			age, err := strconv.Atoi(args[1])
			if err != nil {
				return fmt.Errorf("invalid age %q", args[1])
			}
			prio, err := strconv.Atoi(args[2])
			if err != nil {
				return fmt.Errorf("invalid priority %q", args[2])
			}
			return withConsole(cmd, func(ctx context.Context, c *console) error {
				return c.add(ctx, args[0], age, queue.Priority(prio))
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "next",
		Short: "Serve the most urgent patient",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withConsole(cmd, func(ctx context.Context, c *console) error {
				return c.serve(ctx)
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "sort",
		Short: "Print the waiting list in serving order",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withConsole(cmd, func(ctx context.Context, c *console) error {
				c.sort(ctx)
				c.display()
				return nil
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "display",
		Short: "Print the waiting list",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withConsole(cmd, func(ctx context.Context, c *console) error {
				c.display()
				return nil
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "clear",
		Short: "Remove every waiting patient",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withConsole(cmd, func(ctx context.Context, c *console) error {
				return c.clear(ctx)
			})
		},
	})

	servedCmd := &cobra.Command{
		Use:   "served",
		Short: "List served patients, most recent first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			limit, _ := cmd.Flags().GetInt("limit")
			offset, _ := cmd.Flags().GetInt("offset")
			return withConsole(cmd, func(ctx context.Context, c *console) error {
				return c.served(ctx, limit, offset)
			})
		},
	}
	servedCmd.Flags().Int("limit", 20, "Maximum number of rows")
	servedCmd.Flags().Int("offset", 0, "Rows to skip")
	cmd.AddCommand(servedCmd)

	cmd.AddCommand(&cobra.Command{
		Use:   "remove-served <id>",
		Short: "Delete a served patient",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.Atoi(args[0])
			if err != nil {
				return fmt.Errorf("invalid patient id %q", args[0])
			}
			return withConsole(cmd, func(ctx context.Context, c *console) error {
				return c.removeServed(ctx, id)
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "menu",
		Short: "Interactive menu",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withConsole(cmd, func(ctx context.Context, c *console) error {
				return c.menu(ctx, cmd.InOrStdin())
			})
		},
	})

	return cmd
}
