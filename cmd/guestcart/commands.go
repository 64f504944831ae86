package main

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/fjod/storefront/internal/auth"
	"github.com/fjod/storefront/internal/client"
	"github.com/fjod/storefront/internal/domain"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
)

type variationFlags struct {
	color, size, ram string
}

func (v *variationFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&v.color, "color", "", "Variation color")
	cmd.Flags().StringVar(&v.size, "size", "", "Variation size")
	cmd.Flags().StringVar(&v.ram, "ram", "", "Variation RAM")
}

func (v *variationFlags) variation() *domain.Variation {
	out := &domain.Variation{Color: v.color, Size: v.size, RAM: v.ram}
	if out.IsZero() {
		return nil
	}
	return out
}

func newListCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "Print the guest cart",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			printLines(cmd.OutOrStdout(), a.store.Load(cmd.Context()))
			return nil
		},
	}
}

func newAddCmd(a *app) *cobra.Command {
	var (
		v        variationFlags
		quantity int
		price    string
		category string
		name     string
	)
	cmd := &cobra.Command{
		Use:   "add <product-ref>",
		Short: "Add a product to the guest cart",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := decimal.NewFromString(price)
			if err != nil {
				return fmt.Errorf("invalid --price %q: %w", price, err)
			}
			product := domain.Product{Ref: args[0], Name: name, Category: category, Price: p}
			printLines(cmd.OutOrStdout(), a.store.Add(cmd.Context(), product, quantity, v.variation()))
			return nil
		},
	}
	cmd.Flags().IntVarP(&quantity, "quantity", "q", 1, "Quantity to add")
	cmd.Flags().StringVar(&price, "price", "0", "Unit price captured for the line")
	cmd.Flags().StringVar(&category, "category", "", "Product category")
	cmd.Flags().StringVar(&name, "name", "", "Product name")
	v.register(cmd)
	return cmd
}

func newUpdateCmd(a *app) *cobra.Command {
	var v variationFlags
	cmd := &cobra.Command{
		Use:   "update <product-ref> <quantity>",
		Short: "Set the quantity of a line; 0 removes it",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			quantity, err := strconv.Atoi(args[1])
			if err != nil {
				return fmt.Errorf("invalid quantity %q", args[1])
			}
			printLines(cmd.OutOrStdout(), a.store.Update(cmd.Context(), args[0], quantity, v.variation()))
			return nil
		},
	}
	v.register(cmd)
	return cmd
}

func newRemoveCmd(a *app) *cobra.Command {
	var (
		v   variationFlags
		all bool
	)
	cmd := &cobra.Command{
		Use:   "remove <product-ref>",
		Short: "Remove a line, or every variation of a product with --all",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var lines domain.Lines
			if all {
				lines = a.store.RemoveProduct(cmd.Context(), args[0])
			} else {
				lines = a.store.Remove(cmd.Context(), args[0], v.variation())
			}
			printLines(cmd.OutOrStdout(), lines)
			return nil
		},
	}
	cmd.Flags().BoolVar(&all, "all", false, "Remove every variation of the product")
	v.register(cmd)
	return cmd
}

func newClearCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Empty the guest cart",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a.store.Clear(cmd.Context())
			fmt.Fprintln(cmd.OutOrStdout(), "cart cleared")
			return nil
		},
	}
}

func newCountCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "count",
		Short: "Print the number of items in the guest cart",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Fprintln(cmd.OutOrStdout(), a.store.Count(cmd.Context()))
			return nil
		},
	}
}

func newTotalCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "total",
		Short: "Print the guest cart total",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Fprintln(cmd.OutOrStdout(), a.store.Total(cmd.Context()).String())
			return nil
		},
	}
}

func newMergeCmd(a *app) *cobra.Command {
	var (
		apiURL string
		token  string
		userID string
		secret string
	)
	cmd := &cobra.Command{
		Use:   "merge",
		Short: "Merge the guest cart into the server cart after login",
		Long: `Sends the guest cart to POST /cart/merge and clears it once the server
has accepted it. Pass --token, or --user with --secret to sign a token
locally against a development server.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if token == "" {
				if userID == "" || secret == "" {
					return fmt.Errorf("either --token or both --user and --secret are required")
				}
				var err error
				if token, err = auth.NewToken([]byte(secret), userID, time.Hour); err != nil {
					return err
				}
			}

			c := client.New(apiURL, token, client.WithLogger(a.logger))
			if err := a.store.MergeInto(cmd.Context(), c); err != nil {
				return err
			}

			cart, err := c.GetCart(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "merged into server cart")
			printLines(cmd.OutOrStdout(), cart.Items)
			return nil
		},
	}
	cmd.Flags().StringVar(&apiURL, "api", "http://localhost:8080", "Cart service base URL")
	cmd.Flags().StringVar(&token, "token", "", "Bearer token of the logged-in user")
	cmd.Flags().StringVar(&userID, "user", "", "User id to sign a development token for")
	cmd.Flags().StringVar(&secret, "secret", "", "JWT secret of the development server")
	return cmd
}

func printLines(w io.Writer, lines domain.Lines) {
	if len(lines) == 0 {
		fmt.Fprintln(w, "cart is empty")
		return
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "PRODUCT\tVARIATION\tQTY\tUNIT\tSUBTOTAL")
	for _, l := range lines {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%s\t%s\n",
			l.ProductRef, describe(l.Variation), l.Quantity, l.UnitPrice().String(), l.Subtotal().String())
	}
	fmt.Fprintf(tw, "\t\t%d\t\t%s\n", lines.Count(), lines.Total().String())
	_ = tw.Flush()
}

func describe(v *domain.Variation) string {
	if v.IsZero() {
		return "-"
	}
	var parts []string
	for _, p := range []string{v.Color, v.Size, v.RAM} {
		if p != "" {
			parts = append(parts, p)
		}
	}
	return strings.Join(parts, "/")
}
