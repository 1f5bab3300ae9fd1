// Команда cartctl управляет локальной корзиной устройства, хранящейся в каталоге снапшотов.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"text/tabwriter"

	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/spraynsniff/storefront/internal/cart"
	"github.com/spraynsniff/storefront/internal/domain"
	"github.com/spraynsniff/storefront/internal/notify"
	"github.com/spraynsniff/storefront/internal/storage/file"
)

const (
	defaultDir    = "./data/carts"
	defaultCartID = "default"
)

type globalOptions struct {
	dir     string
	cartID  string
	verbose bool
}

func newRootCmd(stdout, stderr io.Writer) *cobra.Command {
	opts := &globalOptions{}

	root := &cobra.Command{
		Use:           "cartctl",
		Short:         "Manage the device-local Spray n Sniff cart",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(_ *cobra.Command, _ []string) {
			log.SetOutput(stderr)
			if opts.verbose {
				log.SetLevel(log.InfoLevel)
			} else {
				log.SetLevel(log.WarnLevel)
			}
		},
	}
	root.SetOut(stdout)
	root.SetErr(stderr)
	root.PersistentFlags().StringVar(&opts.dir, "dir", defaultDir, "directory with cart snapshot files")
	root.PersistentFlags().StringVar(&opts.cartID, "cart", defaultCartID, "cart (device) identifier")
	root.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "log cart notifications")

	root.AddCommand(
		newAddCmd(opts),
		newRemoveCmd(opts),
		newSetCmd(opts),
		newClearCmd(opts),
		newShowCmd(opts),
		newTotalCmd(opts),
	)
	return root
}

func newAddCmd(opts *globalOptions) *cobra.Command {
	var (
		name     string
		price    string
		imageURL string
		quantity int
	)
	cmd := &cobra.Command{
		Use:   "add <product-id>",
		Short: "Add a product to the cart or increase its quantity",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := decimal.NewFromString(price)
			if err != nil {
				return fmt.Errorf("invalid price %q: %w", price, err)
			}
			return withCart(cmd, opts, func(ctx context.Context, svc *cart.Service) (cart.Change, error) {
				return svc.Add(ctx, opts.cartID, domain.CartLine{
					ProductID: args[0],
					Name:      name,
					Price:     p,
					ImageURL:  imageURL,
					Quantity:  quantity,
				})
			})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "product name")
	cmd.Flags().StringVar(&price, "price", "0", "unit price")
	cmd.Flags().StringVar(&imageURL, "image", "", "product image URL")
	cmd.Flags().IntVarP(&quantity, "qty", "q", 1, "quantity to add")
	return cmd
}

func newRemoveCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "remove <product-id>",
		Short: "Remove a product from the cart",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withCart(cmd, opts, func(ctx context.Context, svc *cart.Service) (cart.Change, error) {
				return svc.Remove(ctx, opts.cartID, args[0])
			})
		},
	}
}

func newSetCmd(opts *globalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "set <product-id> <quantity>",
		Short: "Overwrite the quantity of a cart line",
		Long: "Overwrite the quantity of a cart line. Zero and negative quantities are stored as-is;\n" +
			"flags go before the product id, everything after it is positional (cartctl set p-1 -3).",
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			quantity, err := strconv.Atoi(args[1])
			if err != nil {
				return fmt.Errorf("invalid quantity %q", args[1])
			}
			return withCart(cmd, opts, func(ctx context.Context, svc *cart.Service) (cart.Change, error) {
				return svc.SetQuantity(ctx, opts.cartID, args[0], quantity)
			})
		},
	}
	// "-3" — отрицательное количество, а не флаг.
	cmd.Flags().SetInterspersed(false)
	return cmd
}

func newClearCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Remove every line from the cart",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withCart(cmd, opts, func(ctx context.Context, svc *cart.Service) (cart.Change, error) {
				return svc.Clear(ctx, opts.cartID)
			})
		},
	}
}

func newShowCmd(opts *globalOptions) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Print cart lines and totals",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			view, err := loadView(cmd.Context(), opts)
			if err != nil {
				return err
			}
			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(view)
			}
			return printView(cmd.OutOrStdout(), view)
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the cart as JSON")
	return cmd
}

func newTotalCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "total",
		Short: "Print the cart total and item count",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			view, err := loadView(cmd.Context(), opts)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "total=%s count=%d\n", view.Total.String(), view.Count)
			return err
		},
	}
}

func openService(opts *globalOptions) (*cart.Service, error) {
	repo, err := file.NewCartSnapshotRepository(opts.dir)
	if err != nil {
		return nil, err
	}
	logger := log.WithField("component", "cartctl")
	return cart.NewService(repo,
		cart.WithLogger(logger),
		cart.WithServiceNotifier(notify.NewLogNotifier(logger)),
	), nil
}

func loadView(ctx context.Context, opts *globalOptions) (cart.View, error) {
	svc, err := openService(opts)
	if err != nil {
		return cart.View{}, err
	}
	return svc.View(ctx, opts.cartID)
}

// withCart выполняет мутацию и печатает итоговую корзину.
// Ошибка сохранения снапшота выводится как предупреждение: состояние в памяти уже изменено.
func withCart(cmd *cobra.Command, opts *globalOptions, mutate func(context.Context, *cart.Service) (cart.Change, error)) error {
	svc, err := openService(opts)
	if err != nil {
		return err
	}
	change, err := mutate(cmd.Context(), svc)
	if err != nil {
		if change.View.CartID == "" {
			return err
		}
		_, _ = fmt.Fprintf(cmd.ErrOrStderr(), "warning: %v\n", err)
	}
	if !change.Changed {
		_, _ = fmt.Fprintln(cmd.ErrOrStderr(), "nothing changed")
	}
	return printView(cmd.OutOrStdout(), change.View)
}

func printView(w io.Writer, view cart.View) error {
	if len(view.Lines) == 0 {
		_, err := fmt.Fprintf(w, "cart %s is empty\n", view.CartID)
		return err
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "PRODUCT\tNAME\tPRICE\tQTY\tSUBTOTAL")
	for _, line := range view.Lines {
		_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\n",
			line.ProductID, line.Name, line.Price.String(), line.Quantity, line.Subtotal().String())
	}
	_, _ = fmt.Fprintf(tw, "\t\t\t%d\t%s\n", view.Count, view.Total.String())
	return tw.Flush()
}

func main() {
	root := newRootCmd(os.Stdout, os.Stderr)
	if err := root.ExecuteContext(context.Background()); err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
